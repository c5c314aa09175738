package main

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	maxRooms      = 200
	gcSweepPeriod = 60 * time.Second
)

// RoomManager owns the rooms map, the join-code index, and the
// session-to-room mapping. Those three maps are the only room-related
// shared state and are mutated exclusively under the manager's lock; room
// internals are reached only through each room's inbox.
type RoomManager struct {
	mu          sync.RWMutex
	rooms       map[string]*Room
	byCode      map[string]*Room
	sessionRoom map[string]string // session id -> room id

	tracks      *TrackCache
	onRaceStart func(r *Room)
	onRaceEnd   func(r *Room, results []RaceResult)

	stopGC chan struct{}
}

// NewRoomManager creates a manager and starts its idle-GC sweeper
func NewRoomManager(tracks *TrackCache) *RoomManager {
	m := &RoomManager{
		rooms:       make(map[string]*Room),
		byCode:      make(map[string]*Room),
		sessionRoom: make(map[string]string),
		tracks:      tracks,
		stopGC:      make(chan struct{}),
	}
	go m.gcLoop()
	return m
}

// SetRaceEndHook wires storage/analytics into finished races
func (m *RoomManager) SetRaceEndHook(fn func(r *Room, results []RaceResult)) {
	m.onRaceEnd = fn
}

// SetRaceStartHook wires analytics into race starts
func (m *RoomManager) SetRaceStartHook(fn func(r *Room)) {
	m.onRaceStart = fn
}

// Stop shuts down the sweeper and every room
func (m *RoomManager) Stop() {
	close(m.stopGC)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.rooms {
		r.Stop()
		delete(m.rooms, id)
		delete(m.byCode, r.Code)
	}
}

// CreateRoom creates a room with a fresh id and a unique join code. The
// requested track falls back to the default when missing. Returns nil when
// the server is at capacity.
func (m *RoomManager) CreateRoom(hostSessionID string, settings RoomSettings) *Room {
	track := m.tracks.Get(settings.TrackID)
	if track == nil {
		track = m.tracks.Get(DefaultTrackID)
	}
	if track == nil {
		return nil
	}
	settings.TrackID = track.ID

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rooms) >= maxRooms {
		return nil
	}

	code := GenerateRoomCode()
	for m.byCode[code] != nil {
		code = GenerateRoomCode()
	}

	room := NewRoom(uuid.NewString(), code, hostSessionID, settings, track)
	room.onRaceStart = m.onRaceStart
	room.onRaceEnd = m.onRaceEnd
	room.onCrash = func(r *Room) { m.dropRoom(r) }
	m.rooms[room.ID] = room
	m.byCode[code] = room
	go room.Run()

	log.Printf("room %s created (code %s, track %s)", room.ID, code, track.ID)
	return room
}

// FindRoom looks up a room by id or join code (case-insensitive)
func (m *RoomManager) FindRoom(idOrCode string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.rooms[idOrCode]; ok {
		return r
	}
	return m.byCode[strings.ToUpper(idOrCode)]
}

// RoomForSession returns the room a session currently belongs to
func (m *RoomManager) RoomForSession(sessionID string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if roomID, ok := m.sessionRoom[sessionID]; ok {
		return m.rooms[roomID]
	}
	return nil
}

// JoinRoom places the session in the room, removing it from any previous
// one first. Returns a failure reason string, empty on success.
func (m *RoomManager) JoinRoom(room *Room, player *RoomPlayer, bc Broadcaster, byID bool) string {
	if room.settings.IsPrivate && byID {
		return "room is private"
	}

	if prev := m.RoomForSession(player.ID); prev != nil && prev != room {
		m.LeaveRoom(player.ID, "switched room")
	}

	reply := make(chan joinReply, 1)
	room.Send(roomCommand{kind: cmdJoin, player: player, bc: bc, joinReply: reply})
	select {
	case res := <-reply:
		if !res.ok {
			return res.reason
		}
	case <-room.stop:
		return "room closed"
	}

	m.mu.Lock()
	m.sessionRoom[player.ID] = room.ID
	m.mu.Unlock()
	return ""
}

// LeaveRoom removes the session from its room, if any
func (m *RoomManager) LeaveRoom(sessionID, reason string) {
	m.mu.Lock()
	roomID, ok := m.sessionRoom[sessionID]
	if ok {
		delete(m.sessionRoom, sessionID)
	}
	room := m.rooms[roomID]
	m.mu.Unlock()
	if !ok || room == nil {
		return
	}
	room.Send(roomCommand{kind: cmdLeave, sessionID: sessionID, reason: reason})
}

// ListRooms returns summaries of all public rooms
func (m *RoomManager) ListRooms() []RoomInfo {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	infos := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		reply := make(chan RoomInfo, 1)
		r.Send(roomCommand{kind: cmdInfo, infoReply: reply})
		select {
		case info := <-reply:
			if !info.IsPrivate {
				infos = append(infos, info)
			}
		case <-r.stop:
		case <-time.After(time.Second):
		}
	}
	return infos
}

// RoomCount returns the number of live rooms
func (m *RoomManager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// dropRoom removes a room from the indexes and stops it
func (m *RoomManager) dropRoom(r *Room) {
	m.mu.Lock()
	if m.rooms[r.ID] != r {
		m.mu.Unlock()
		return
	}
	delete(m.rooms, r.ID)
	delete(m.byCode, r.Code)
	for sid, rid := range m.sessionRoom {
		if rid == r.ID {
			delete(m.sessionRoom, sid)
		}
	}
	m.mu.Unlock()

	select {
	case <-r.stop:
	default:
		r.Stop()
	}
	log.Printf("room %s removed", r.ID)
}

// gcLoop reaps empty and idle rooms and their stale session mappings
func (m *RoomManager) gcLoop() {
	ticker := time.NewTicker(gcSweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopGC:
			return
		}
	}
}

func (m *RoomManager) sweep() {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	for _, r := range rooms {
		reply := make(chan bool, 1)
		r.Send(roomCommand{kind: cmdIdleCheck, boolReply: reply})
		select {
		case idle := <-reply:
			if idle {
				m.dropRoom(r)
			}
		case <-r.stop:
			m.dropRoom(r)
		case <-time.After(time.Second):
		}
	}
}
