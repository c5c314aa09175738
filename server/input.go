package main

import "math"

// InputState is one input record from a player. The server keeps only the
// most recent record per player; the client predictor keeps a bounded FIFO
// of unconfirmed records.
//
// Only the canonical field names are accepted on the wire. The legacy
// aliases (turnLeft/turnRight/boost) are not decoded; senders must use
// steerLeft/steerRight/nitro.
type InputState struct {
	PlayerID   string  `json:"playerId,omitempty"`
	Sequence   uint32  `json:"sequence"`
	Timestamp  int64   `json:"timestamp"`
	Accelerate bool    `json:"accelerate"`
	Brake      bool    `json:"brake"`
	SteerLeft  bool    `json:"steerLeft"`
	SteerRight bool    `json:"steerRight"`
	SteerValue float64 `json:"steerValue,omitempty"`
	Nitro      bool    `json:"nitro"`
	Handbrake  bool    `json:"handbrake"`
	Respawn    bool    `json:"respawn"`
}

// Steer resolves the scalar steering input in [-1, 1]. Analog wins over the
// boolean keys when it is nonzero.
func (in *InputState) Steer() float64 {
	if in.SteerValue != 0 {
		return Clamp(in.SteerValue, -1, 1)
	}
	s := 0.0
	if in.SteerLeft {
		s -= 1
	}
	if in.SteerRight {
		s += 1
	}
	return s
}

// Sanitize clamps analog fields so a hostile client cannot feed the
// integrator out-of-range values.
func (in *InputState) Sanitize() {
	if math.IsNaN(in.SteerValue) || math.IsInf(in.SteerValue, 0) {
		in.SteerValue = 0
	}
	in.SteerValue = Clamp(in.SteerValue, -1, 1)
}
