package main

// rttSmoothing is the EWMA weight for new samples
const rttSmoothing = 0.2

// RTTEstimator keeps a smoothed round-trip estimate from ping/pong
// exchanges. It belongs to the client side of a session; the server only
// echoes timestamps.
type RTTEstimator struct {
	smoothed float64
	samples  int
}

// AddSample feeds one measured round trip in milliseconds
func (e *RTTEstimator) AddSample(rttMs float64) {
	if rttMs < 0 {
		return
	}
	if e.samples == 0 {
		e.smoothed = rttMs
	} else {
		e.smoothed += (rttMs - e.smoothed) * rttSmoothing
	}
	e.samples++
}

// OnPong derives a sample from a pong's echoed client timestamp
func (e *RTTEstimator) OnPong(p PongMsg, nowMs int64) {
	e.AddSample(float64(nowMs - p.ClientTimestamp))
}

// RTT returns the smoothed estimate in milliseconds, 0 before any sample
func (e *RTTEstimator) RTT() float64 { return e.smoothed }

// OneWay returns the estimated one-way latency in milliseconds
func (e *RTTEstimator) OneWay() float64 { return e.smoothed / 2 }
