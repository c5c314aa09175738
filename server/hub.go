package main

import (
	"sync"
	"time"
)

const (
	maxConnsPerIP = 8
	maxTotalConns = 1000

	// PlayerDisconnectTimeout is how long room membership survives a
	// dropped transport before eviction
	PlayerDisconnectTimeout = 10 * time.Second
)

// pendingSession is a disconnected session waiting for a reconnect
type pendingSession struct {
	nickname string
	color    string
	timer    *time.Timer
}

// Hub manages all connected clients and routes them to rooms
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client

	manager      *RoomManager
	tracks       *TrackCache
	leaderboards *LeaderboardStore

	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int

	// Sessions inside the disconnect grace window
	pendingMu sync.Mutex
	pending   map[string]*pendingSession

	// Auth & DB
	db        *DB
	auth      *Auth
	analytics *Analytics
}

// NewHub creates a new Hub. db may be nil (guest-only mode).
func NewHub(manager *RoomManager, tracks *TrackCache, leaderboards *LeaderboardStore, db *DB) *Hub {
	h := &Hub{
		clients:      make(map[*Client]bool),
		register:     make(chan *Client, 64),
		unregister:   make(chan *Client, 64),
		manager:      manager,
		tracks:       tracks,
		leaderboards: leaderboards,
		ipConns:      make(map[string]int),
		pending:      make(map[string]*pendingSession),
		db:           db,
	}
	if db != nil {
		h.auth = NewAuth(db)
		h.analytics = NewAnalytics(db)
	}
	return h
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Run processes register/unregister events
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			if h.analytics != nil {
				h.analytics.Track(EvtSessionStart, client.sessionID, "")
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.onDisconnect(client)
		}
	}
}

// onDisconnect arms the deferred eviction: the room sees the player as
// disconnected immediately but keeps the seat until the grace expires
func (h *Hub) onDisconnect(c *Client) {
	if h.analytics != nil {
		h.analytics.Track(EvtSessionEnd, c.sessionID, "")
	}
	room := h.manager.RoomForSession(c.sessionID)
	if room == nil {
		return
	}
	room.Send(roomCommand{kind: cmdDisconnect, sessionID: c.sessionID})

	sid := c.sessionID
	entry := &pendingSession{nickname: c.nickname, color: c.color}
	entry.timer = time.AfterFunc(PlayerDisconnectTimeout, func() {
		h.pendingMu.Lock()
		delete(h.pending, sid)
		h.pendingMu.Unlock()
		h.manager.LeaveRoom(sid, "disconnected")
	})
	h.pendingMu.Lock()
	h.pending[sid] = entry
	h.pendingMu.Unlock()
}

// Resume reclaims a session inside the grace window. Returns false when
// the window has expired or the id is unknown.
func (h *Hub) Resume(sessionID string, c *Client) bool {
	h.pendingMu.Lock()
	entry, ok := h.pending[sessionID]
	if ok {
		entry.timer.Stop()
		delete(h.pending, sessionID)
	}
	h.pendingMu.Unlock()
	if !ok {
		return false
	}
	c.sessionID = sessionID
	c.nickname = entry.nickname
	c.color = entry.color
	if room := h.manager.RoomForSession(sessionID); room != nil {
		room.Send(roomCommand{kind: cmdReconnect, sessionID: sessionID, bc: c})
	}
	return true
}

// AuthIDForSession returns the authenticated account id for a session, or
// 0 for guests
func (h *Hub) AuthIDForSession(sessionID string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.sessionID == sessionID {
			return c.authPlayerID
		}
	}
	return 0
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops background workers
func (h *Hub) Close() {
	if h.analytics != nil {
		h.analytics.Stop()
	}
}
