package main

import (
	"testing"
	"time"
)

func testManager() *RoomManager {
	return NewRoomManager(NewTrackCache(nil))
}

func joinAs(t *testing.T, m *RoomManager, room *Room, id string) *mockBroadcaster {
	t.Helper()
	bc := &mockBroadcaster{}
	if reason := m.JoinRoom(room, &RoomPlayer{ID: id, Nickname: "N" + id}, bc, false); reason != "" {
		t.Fatalf("join %s: %s", id, reason)
	}
	return bc
}

func TestManagerCreateAndFind(t *testing.T) {
	m := testManager()
	defer m.Stop()

	room := m.CreateRoom("host", RoomSettings{TrackID: "no-such-track"})
	if room == nil {
		t.Fatal("create failed")
	}
	// Missing track falls back to the default
	if room.track.ID != DefaultTrackID {
		t.Errorf("expected default track, got %s", room.track.ID)
	}
	if len(room.Code) != 6 {
		t.Errorf("bad code %q", room.Code)
	}
	for _, ch := range room.Code {
		if ch == '0' || ch == 'O' || ch == '1' || ch == 'I' || ch == 'L' {
			t.Errorf("confusable character in code %q", room.Code)
		}
	}

	if m.FindRoom(room.ID) != room {
		t.Error("lookup by id failed")
	}
	if m.FindRoom(room.Code) != room {
		t.Error("lookup by code failed")
	}
	// Codes are case-insensitive
	lower := ""
	for _, ch := range room.Code {
		lower += string(ch | 0x20)
	}
	if m.FindRoom(lower) != room {
		t.Error("lowercase code lookup failed")
	}
}

func TestManagerJoinAndSessionIndex(t *testing.T) {
	m := testManager()
	defer m.Stop()

	room := m.CreateRoom("host", RoomSettings{})
	joinAs(t, m, room, "host")
	if m.RoomForSession("host") != room {
		t.Error("session index missing after join")
	}

	m.LeaveRoom("host", "left")
	time.Sleep(50 * time.Millisecond)
	if m.RoomForSession("host") != nil {
		t.Error("session index kept after leave")
	}
}

func TestManagerJoinFullRoom(t *testing.T) {
	m := testManager()
	defer m.Stop()

	room := m.CreateRoom("h", RoomSettings{MaxPlayers: 2})
	joinAs(t, m, room, "h")
	joinAs(t, m, room, "p2")

	bc := &mockBroadcaster{}
	reason := m.JoinRoom(room, &RoomPlayer{ID: "p3", Nickname: "Np3"}, bc, false)
	if reason == "" {
		t.Fatal("third join into a 2-seat room succeeded")
	}
}

func TestManagerPrivateRoomByID(t *testing.T) {
	m := testManager()
	defer m.Stop()

	room := m.CreateRoom("h", RoomSettings{IsPrivate: true})
	bc := &mockBroadcaster{}
	if reason := m.JoinRoom(room, &RoomPlayer{ID: "p2"}, bc, true); reason == "" {
		t.Error("private room joined by id")
	}
	// The code path still works
	if reason := m.JoinRoom(room, &RoomPlayer{ID: "p2"}, bc, false); reason != "" {
		t.Errorf("join by code failed: %s", reason)
	}
}

func TestManagerSwitchingRoomsLeavesOld(t *testing.T) {
	m := testManager()
	defer m.Stop()

	r1 := m.CreateRoom("h1", RoomSettings{})
	r2 := m.CreateRoom("h2", RoomSettings{})
	joinAs(t, m, r1, "p")
	joinAs(t, m, r2, "p")

	if m.RoomForSession("p") != r2 {
		t.Error("session index not moved to the new room")
	}
	// The old room saw the leave
	time.Sleep(50 * time.Millisecond)
	reply := make(chan RoomInfo, 1)
	r1.Send(roomCommand{kind: cmdInfo, infoReply: reply})
	if info := <-reply; info.Players != 0 {
		t.Errorf("old room still holds the player: %d", info.Players)
	}
}

func TestManagerListRoomsHidesPrivate(t *testing.T) {
	m := testManager()
	defer m.Stop()

	m.CreateRoom("h1", RoomSettings{})
	m.CreateRoom("h2", RoomSettings{IsPrivate: true})
	rooms := m.ListRooms()
	if len(rooms) != 1 {
		t.Fatalf("expected 1 public room, got %d", len(rooms))
	}
	if rooms[0].IsPrivate {
		t.Error("private room listed")
	}
}

func TestManagerIdleGC(t *testing.T) {
	m := testManager()
	defer m.Stop()

	room := m.CreateRoom("h", RoomSettings{})
	joinAs(t, m, room, "h")
	m.LeaveRoom("h", "left")
	time.Sleep(50 * time.Millisecond)

	// Empty room: the sweep drops it
	m.sweep()
	if m.RoomCount() != 0 {
		t.Fatalf("empty room survived the sweep: %d", m.RoomCount())
	}
	if m.FindRoom(room.Code) != nil {
		t.Error("swept room still resolvable by code")
	}
}

func TestManagerCrashIsolation(t *testing.T) {
	m := testManager()
	defer m.Stop()

	room := m.CreateRoom("h", RoomSettings{})
	bc := joinAs(t, m, room, "h")

	// Force a panic inside the room actor (nil player dereference)
	room.Send(roomCommand{kind: cmdJoin, joinReply: make(chan joinReply, 1)})
	time.Sleep(100 * time.Millisecond)

	if m.FindRoom(room.ID) != nil {
		t.Error("crashed room not removed")
	}
	if msg, ok := bc.lastOfType(MsgRoomLeft); !ok {
		t.Error("members not notified of crash")
	} else if msg.Payload.(RoomLeftMsg).Reason != "crash" {
		t.Errorf("wrong reason: %+v", msg.Payload)
	}
}
