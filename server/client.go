package main

import (
	"encoding/json"
	"log"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 8192
	sendBufSize       = 256
	maxMessagesPerSec = 120 // 60 Hz input plus protocol chatter
	maxChatLen        = 200
	emoteCooldown     = 2 * time.Second
)

var nicknameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{2,16}$`)

// Client is one live session: a single WebSocket with a stable session id
// for the life of the connection. The session id doubles as the player id.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	sessionID  string
	remoteAddr string

	nickname  string
	color     string
	lastEmote time.Time

	msgCount   int
	msgResetAt time.Time

	// Auth state
	authPlayerID int64  // 0 = unauthenticated/guest
	authUsername string // "" = unauthenticated
}

// NewClient creates a client with a fresh session id
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		sessionID:  uuid.NewString(),
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws error: %v", err)
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Printf("rate limit exceeded for %s, disconnecting", c.remoteAddr)
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// 0xFF prefix marks a binary frame (snapshots)
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage marshals and queues one flat-tagged message
func (c *Client) SendMessage(msgType string, payload interface{}) {
	data, err := MarshalMessage(msgType, payload)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return
	}
	c.sendRaw(data)
}

// sendRaw queues pre-marshaled bytes; drops when the client is too slow
func (c *Client) sendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
	}
}

// SendBinary queues bytes as a binary WebSocket frame
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) sendError(code, message string) {
	c.SendMessage(MsgError, ErrorMsg{Code: code, Message: message})
}

// handleMessage routes one incoming flat-tagged message
func (c *Client) handleMessage(raw []byte) {
	switch PeekType(raw) {
	case MsgCreateRoom:
		c.handleCreateRoom(raw)
	case MsgJoinRoom:
		c.handleJoinRoom(raw)
	case MsgLeaveRoom:
		if c.hub.manager.RoomForSession(c.sessionID) == nil {
			c.sendError(ErrNoRoom, "not in a room")
			return
		}
		c.hub.manager.LeaveRoom(c.sessionID, "left")
		c.SendMessage(MsgRoomLeft, RoomLeftMsg{Reason: "left"})
	case MsgSetReady:
		var msg SetReadyMsg
		if json.Unmarshal(raw, &msg) == nil {
			c.toRoom(roomCommand{kind: cmdReady, sessionID: c.sessionID, ready: msg.Ready})
		}
	case MsgStartGame:
		c.toRoom(roomCommand{kind: cmdStart, sessionID: c.sessionID, bc: c})
	case MsgInput:
		c.handleInput(raw)
	case MsgChat:
		c.handleChat(raw)
	case MsgEmote:
		c.handleEmote(raw)
	case MsgRequestRoomList:
		c.SendMessage(MsgRoomList, RoomListMsg{Rooms: c.hub.manager.ListRooms()})
	case MsgRequestTrackList:
		c.SendMessage(MsgTrackList, TrackListMsg{Tracks: c.hub.tracks.List()})
	case MsgPing:
		var msg PingMsg
		if json.Unmarshal(raw, &msg) == nil {
			c.SendMessage(MsgPong, PongMsg{
				ClientTimestamp: msg.Timestamp,
				ServerTimestamp: time.Now().UnixMilli(),
			})
		}
	case MsgRegister:
		c.handleRegister(raw)
	case MsgLogin:
		c.handleLogin(raw)
	case MsgAuth:
		c.handleAuth(raw)
	case MsgProfile:
		c.handleProfile()
	}
}

// toRoom forwards a command to the session's current room
func (c *Client) toRoom(cmd roomCommand) {
	room := c.hub.manager.RoomForSession(c.sessionID)
	if room == nil {
		if cmd.kind != cmdInput {
			c.sendError(ErrNoRoom, "not in a room")
		}
		return
	}
	room.Send(cmd)
}

func (c *Client) setNickname(nickname string) bool {
	if !nicknameRe.MatchString(nickname) {
		c.sendError(ErrInvalidNickname, "nickname must be 2-16 characters: letters, digits, _ or -")
		return false
	}
	c.nickname = nickname
	return true
}

func (c *Client) handleCreateRoom(raw []byte) {
	var msg CreateRoomMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if !c.setNickname(msg.Nickname) {
		return
	}
	c.color = msg.PreferredColor

	room := c.hub.manager.CreateRoom(c.sessionID, msg.Settings)
	if room == nil {
		c.sendError(ErrCreateFailed, "could not create room")
		return
	}
	player := &RoomPlayer{ID: c.sessionID, Nickname: c.nickname, Color: c.color}
	if reason := c.hub.manager.JoinRoom(room, player, c, false); reason != "" {
		c.sendError(ErrCreateFailed, reason)
	}
}

func (c *Client) handleJoinRoom(raw []byte) {
	var msg JoinRoomMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if !c.setNickname(msg.Nickname) {
		return
	}
	c.color = msg.PreferredColor

	key := msg.Code
	byID := false
	if key == "" {
		key = msg.RoomID
		byID = true
	}
	room := c.hub.manager.FindRoom(key)
	if room == nil {
		c.sendError(ErrJoinFailed, "room not found")
		return
	}
	player := &RoomPlayer{ID: c.sessionID, Nickname: c.nickname, Color: c.color}
	if reason := c.hub.manager.JoinRoom(room, player, c, byID); reason != "" {
		c.sendError(ErrJoinFailed, reason)
	}
}

func (c *Client) handleInput(raw []byte) {
	var in InputState
	if err := json.Unmarshal(raw, &in); err != nil {
		return
	}
	in.PlayerID = c.sessionID
	c.toRoom(roomCommand{kind: cmdInput, sessionID: c.sessionID, input: in})
}

func (c *Client) handleChat(raw []byte) {
	var msg ChatMsg
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Message == "" {
		return
	}
	text := msg.Message
	if len(text) > maxChatLen {
		text = text[:maxChatLen]
	}
	c.toRoom(roomCommand{kind: cmdChat, sessionID: c.sessionID, text: text})
}

func (c *Client) handleEmote(raw []byte) {
	var msg EmoteMsg
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Emote == "" {
		return
	}
	now := time.Now()
	if now.Sub(c.lastEmote) < emoteCooldown {
		return
	}
	c.lastEmote = now
	c.toRoom(roomCommand{kind: cmdEmote, sessionID: c.sessionID, text: msg.Emote})
}

func (c *Client) handleRegister(raw []byte) {
	if c.hub.auth == nil {
		return
	}
	var msg RegisterMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Register(msg.Username, msg.Password)
	if err != nil {
		c.sendError("AUTH_FAILED", err.Error())
		return
	}
	c.authPlayerID = id
	c.authUsername = msg.Username
	c.SendMessage(MsgAuthOK, AuthOKMsg{Token: token, Username: msg.Username, PlayerID: id})
}

func (c *Client) handleLogin(raw []byte) {
	if c.hub.auth == nil {
		return
	}
	var msg LoginMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Login(msg.Username, msg.Password, c.remoteAddr)
	if err != nil {
		c.sendError("AUTH_FAILED", err.Error())
		return
	}
	c.authPlayerID = id
	c.authUsername = msg.Username
	c.SendMessage(MsgAuthOK, AuthOKMsg{Token: token, Username: msg.Username, PlayerID: id})
}

func (c *Client) handleAuth(raw []byte) {
	if c.hub.auth == nil {
		return
	}
	var msg AuthMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	id, username, err := c.hub.auth.ValidateToken(msg.Token)
	if err != nil {
		c.sendError("AUTH_FAILED", "invalid token")
		return
	}
	c.authPlayerID = id
	c.authUsername = username
	c.SendMessage(MsgAuthOK, AuthOKMsg{Token: msg.Token, Username: username, PlayerID: id})
}

func (c *Client) handleProfile() {
	if c.hub.db == nil || c.authPlayerID == 0 {
		c.sendError("AUTH_FAILED", "not authenticated")
		return
	}
	stats, err := c.hub.db.GetStats(c.authPlayerID)
	if err != nil || stats == nil {
		c.sendError("AUTH_FAILED", "profile not found")
		return
	}
	c.SendMessage(MsgProfileData, ProfileDataMsg{
		Username: c.authUsername,
		Races:    stats.Races,
		Wins:     stats.Wins,
		Laps:     stats.Laps,
		Playtime: stats.Playtime,
	})
}
