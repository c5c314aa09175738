package main

import (
	"sync"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// mockBroadcaster captures sent messages for testing
type mockBroadcaster struct {
	mu       sync.Mutex
	messages []mockMessage
	binaries [][]byte
}

type mockMessage struct {
	Type    string
	Payload interface{}
}

func (m *mockBroadcaster) SendMessage(msgType string, payload interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, mockMessage{Type: msgType, Payload: payload})
}

func (m *mockBroadcaster) SendBinary(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.binaries = append(m.binaries, append([]byte(nil), data...))
}

func (m *mockBroadcaster) lastOfType(msgType string) (mockMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].Type == msgType {
			return m.messages[i], true
		}
	}
	return mockMessage{}, false
}

func (m *mockBroadcaster) countOfType(msgType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.messages {
		if msg.Type == msgType {
			n++
		}
	}
	return n
}

func (m *mockBroadcaster) snapshots(t *testing.T) []GameStateSnapshot {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	snaps := make([]GameStateSnapshot, 0, len(m.binaries))
	for _, raw := range m.binaries {
		var s GameStateSnapshot
		if err := msgpack.Unmarshal(raw, &s); err != nil {
			t.Fatalf("snapshot unmarshal: %v", err)
		}
		snaps = append(snaps, s)
	}
	return snaps
}

// newTestRoom builds a room without running its actor loop; tests drive
// handle/tick directly
func newTestRoom(track *Track, laps int) (*Room, *mockBroadcaster) {
	r := NewRoom("room1", "ABCDEF", "host", RoomSettings{LapCount: laps, EnableChat: true}, track)
	bc := &mockBroadcaster{}
	reply := make(chan joinReply, 1)
	r.handle(roomCommand{kind: cmdJoin, player: &RoomPlayer{ID: "host", Nickname: "Ace"}, bc: bc, joinReply: reply})
	<-reply
	return r, bc
}

func startTestRace(t *testing.T, r *Room) {
	t.Helper()
	r.handle(roomCommand{kind: cmdReady, sessionID: "host", ready: true})
	r.handle(roomCommand{kind: cmdStart, sessionID: "host"})
	if r.state != StateCountdown {
		t.Fatalf("expected countdown, got %s", r.state)
	}
	for r.countLeft > 0 {
		r.countdownTick()
	}
	r.beginRacing()
	if r.state != StateRacing {
		t.Fatalf("expected racing, got %s", r.state)
	}
}

func TestRoomStartRequiresHost(t *testing.T) {
	r, _ := newTestRoom(testRaceTrack(), 1)
	other := &mockBroadcaster{}
	reply := make(chan joinReply, 1)
	r.handle(roomCommand{kind: cmdJoin, player: &RoomPlayer{ID: "p2", Nickname: "Bo"}, bc: other, joinReply: reply})
	<-reply

	r.handle(roomCommand{kind: cmdReady, sessionID: "p2", ready: true})
	r.handle(roomCommand{kind: cmdStart, sessionID: "p2", bc: other})
	if r.state != StateWaiting {
		t.Fatalf("non-host started the race")
	}
	if msg, ok := other.lastOfType(MsgError); !ok || msg.Payload.(ErrorMsg).Code != ErrNotHost {
		t.Error("expected NOT_HOST error")
	}
}

func TestRoomStartRequiresReady(t *testing.T) {
	r, bc := newTestRoom(testRaceTrack(), 1)
	r.handle(roomCommand{kind: cmdStart, sessionID: "host", bc: bc})
	if r.state != StateWaiting {
		t.Fatal("race started with nobody ready")
	}
	if msg, ok := bc.lastOfType(MsgError); !ok || msg.Payload.(ErrorMsg).Code != ErrCannotStart {
		t.Error("expected CANNOT_START error")
	}
}

func TestRoomCountdownFlow(t *testing.T) {
	r, bc := newTestRoom(testRaceTrack(), 1)
	startTestRace(t, r)

	if msg, ok := bc.lastOfType(MsgGameStarting); !ok {
		t.Fatal("missing game_starting")
	} else {
		gs := msg.Payload.(GameStartingMsg)
		if gs.Countdown != CountdownSeconds || gs.Track == nil || len(gs.Cars) != 1 {
			t.Errorf("bad game_starting payload: %+v", gs)
		}
	}
	// Countdown ticks 2, 1, 0
	if n := bc.countOfType(MsgCountdown); n != CountdownSeconds {
		t.Errorf("expected %d countdown messages, got %d", CountdownSeconds, n)
	}
	if _, ok := bc.lastOfType(MsgGameStarted); !ok {
		t.Error("missing game_started")
	}
}

func TestRoomSnapshotSequenceMonotonic(t *testing.T) {
	r, bc := newTestRoom(testRaceTrack(), 1)
	startTestRace(t, r)

	for i := 0; i < BroadcastEvery*5; i++ {
		r.tick()
	}
	snaps := bc.snapshots(t)
	if len(snaps) != 5 {
		t.Fatalf("expected 5 snapshots, got %d", len(snaps))
	}
	for i, s := range snaps {
		if s.Sequence != uint64(i+1) {
			t.Errorf("snapshot %d: sequence %d, want %d", i, s.Sequence, i+1)
		}
	}
}

func TestRoomInputDuringCountdownNoDeadZone(t *testing.T) {
	r, bc := newTestRoom(testRaceTrack(), 1)
	r.handle(roomCommand{kind: cmdReady, sessionID: "host", ready: true})
	r.handle(roomCommand{kind: cmdStart, sessionID: "host"})

	// Key held during countdown
	r.handle(roomCommand{kind: cmdInput, sessionID: "host", input: InputState{Sequence: 1, Accelerate: true}})

	for r.countLeft > 0 {
		r.countdownTick()
	}
	r.beginRacing()
	for i := 0; i < BroadcastEvery; i++ {
		r.tick()
	}
	snaps := bc.snapshots(t)
	if len(snaps) == 0 {
		t.Fatal("no snapshot broadcast")
	}
	car := snaps[len(snaps)-1].Cars[0]
	if car.VX == 0 && car.VY == 0 {
		t.Error("held input across countdown->racing produced no velocity")
	}
	if car.LastInputSeq != 1 {
		t.Errorf("expected lastInputSequence 1, got %d", car.LastInputSeq)
	}
}

func TestRoomWrapAroundBounds(t *testing.T) {
	track := testRaceTrack()
	track.WrapAround = true
	r, bc := newTestRoom(track, 1)
	startTestRace(t, r)

	// Push the car toward the seam and run a while
	car := r.cars["host"]
	car.Pos = Vec2{790, 300}
	car.Rotation = 1.5707963267948966 // heading +X
	for i := 0; i < 60*2; i++ {
		r.handle(roomCommand{kind: cmdInput, sessionID: "host", input: InputState{Sequence: uint32(i + 1), Accelerate: true}})
		r.tick()
	}
	for _, s := range bc.snapshots(t) {
		for _, cs := range s.Cars {
			p := cs.Position()
			if p.X < 0 || p.X >= float64(track.Width) || p.Y < 0 || p.Y >= float64(track.Height) {
				t.Fatalf("broadcast position out of bounds: %v", p)
			}
		}
	}
}

func TestRoomRespawnEvent(t *testing.T) {
	r, bc := newTestRoom(testRaceTrack(), 1)
	startTestRace(t, r)

	car := r.cars["host"]
	car.Pos = Vec2{700, 50}
	car.Vel = Vec2{3, 3}
	r.handle(roomCommand{kind: cmdInput, sessionID: "host", input: InputState{Sequence: 7, Respawn: true}})
	for i := 0; i < BroadcastEvery; i++ {
		r.tick()
	}

	if car.Vel.Len() != 0 {
		t.Error("respawn must zero velocity")
	}
	snaps := bc.snapshots(t)
	found := false
	for _, s := range snaps {
		for _, ev := range s.Events {
			if ev.Type == EvRaceRespawn && ev.PlayerID == "host" {
				found = true
			}
		}
	}
	if !found {
		t.Error("respawn event missing from snapshots")
	}
}

func TestRoomRaceCompletion(t *testing.T) {
	r, bc := newTestRoom(testRaceTrack(), 1)
	startTestRace(t, r)
	r.startedAt = time.Now().Add(-10 * time.Second)

	car := r.cars["host"]
	track := r.track
	for _, cp := range track.Checkpoints() {
		car.Pos = cp.Center()
		r.tick()
	}
	car.Pos = track.Finish().Center()
	r.tick()

	if n := bc.countOfType(MsgCheckpointPassed); n != len(track.Checkpoints()) {
		t.Errorf("expected %d checkpoint messages, got %d", len(track.Checkpoints()), n)
	}
	if _, ok := bc.lastOfType(MsgLapCompleted); !ok {
		t.Error("missing lap_completed")
	}
	if _, ok := bc.lastOfType(MsgPlayerFinished); !ok {
		t.Error("missing player_finished")
	}
	msg, ok := bc.lastOfType(MsgRaceFinished)
	if !ok {
		t.Fatal("missing race_finished")
	}
	results := msg.Payload.(RaceFinishedMsg).Results
	if len(results) != 1 || !results[0].Finished || results[0].Rank != 1 {
		t.Errorf("bad results: %+v", results)
	}
	if r.state != StateResults {
		t.Errorf("room should show results, got %s", r.state)
	}
	// After the results hold the room resets to the lobby
	r.resultsAt = time.Now().Add(-resultsHold - time.Second)
	r.tick()
	if r.state != StateWaiting {
		t.Errorf("room should reset to waiting, got %s", r.state)
	}
	if r.players["host"].Ready {
		t.Error("ready flags should clear on reset")
	}
}

func TestRoomMidRaceJoinPolicy(t *testing.T) {
	r, _ := newTestRoom(testRaceTrack(), 1)
	startTestRace(t, r)

	reply := make(chan joinReply, 1)
	r.handle(roomCommand{kind: cmdJoin, player: &RoomPlayer{ID: "late", Nickname: "Late"}, bc: &mockBroadcaster{}, joinReply: reply})
	if res := <-reply; res.ok {
		t.Fatal("mid-race join allowed without AllowMidRaceJoin")
	}

	r2, _ := newTestRoom(testRaceTrack(), 1)
	r2.settings.AllowMidRaceJoin = true
	startTestRace(t, r2)
	reply2 := make(chan joinReply, 1)
	late := &mockBroadcaster{}
	r2.handle(roomCommand{kind: cmdJoin, player: &RoomPlayer{ID: "late", Nickname: "Late"}, bc: late, joinReply: reply2})
	if res := <-reply2; !res.ok {
		t.Fatalf("mid-race join refused: %s", res.reason)
	}
	if _, ok := r2.cars["late"]; !ok {
		t.Error("mid-race joiner has no car")
	}
	if _, ok := late.lastOfType(MsgGameStarted); !ok {
		t.Error("mid-race joiner missed game_started")
	}
}

func TestRoomIdleCheck(t *testing.T) {
	r, _ := newTestRoom(testRaceTrack(), 1)
	reply := make(chan bool, 1)
	r.handle(roomCommand{kind: cmdIdleCheck, boolReply: reply})
	if <-reply {
		t.Error("fresh room with a player reported idle")
	}
	r.lastActivity = time.Now().Add(-RoomIdleTimeout - time.Minute)
	r.handle(roomCommand{kind: cmdIdleCheck, boolReply: reply})
	if !<-reply {
		t.Error("stale waiting room not reported idle")
	}

	r.handle(roomCommand{kind: cmdLeave, sessionID: "host", reason: "left"})
	r.lastActivity = time.Now()
	r.handle(roomCommand{kind: cmdIdleCheck, boolReply: reply})
	if !<-reply {
		t.Error("empty room not reported idle")
	}
}

func TestRoomHostMigration(t *testing.T) {
	r, _ := newTestRoom(testRaceTrack(), 1)
	reply := make(chan joinReply, 1)
	r.handle(roomCommand{kind: cmdJoin, player: &RoomPlayer{ID: "p2", Nickname: "Bo"}, bc: &mockBroadcaster{}, joinReply: reply})
	<-reply

	r.handle(roomCommand{kind: cmdLeave, sessionID: "host", reason: "left"})
	if r.HostID != "p2" {
		t.Errorf("host not migrated, got %s", r.HostID)
	}
	if !r.players["p2"].IsHost {
		t.Error("new host flag not set")
	}
}

func TestRoomChatDisabled(t *testing.T) {
	r, bc := newTestRoom(testRaceTrack(), 1)
	r.settings.EnableChat = false
	r.handle(roomCommand{kind: cmdChat, sessionID: "host", text: "hi"})
	if _, ok := bc.lastOfType(MsgChat); ok {
		t.Error("chat broadcast despite EnableChat=false")
	}
	r.settings.EnableChat = true
	r.handle(roomCommand{kind: cmdChat, sessionID: "host", text: "hi"})
	if msg, ok := bc.lastOfType(MsgChat); !ok {
		t.Error("chat not broadcast")
	} else if msg.Payload.(ChatBroadcastMsg).Nickname != "Ace" {
		t.Error("chat nickname wrong")
	}
}
