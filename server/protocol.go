package main

import "encoding/json"

// Client -> Server message types
const (
	MsgCreateRoom       = "create_room"
	MsgJoinRoom         = "join_room"
	MsgLeaveRoom        = "leave_room"
	MsgSetReady         = "set_ready"
	MsgStartGame        = "start_game"
	MsgInput            = "input"
	MsgChat             = "chat"
	MsgEmote            = "emote"
	MsgRequestRoomList  = "request_room_list"
	MsgRequestTrackList = "request_track_list"
	MsgPing             = "ping"
	MsgRegister         = "register"
	MsgLogin            = "login"
	MsgAuth             = "auth"
	MsgProfile          = "profile"
)

// Server -> Client message types
const (
	MsgWelcome          = "welcome"
	MsgRoomJoined       = "room_joined"
	MsgRoomLeft         = "room_left"
	MsgPlayerJoined     = "player_joined"
	MsgPlayerLeft       = "player_left"
	MsgPlayerReady      = "player_ready"
	MsgGameStarting     = "game_starting"
	MsgCountdown        = "countdown"
	MsgGameStarted      = "game_started"
	MsgGameState        = "game_state"
	MsgCheckpointPassed = "checkpoint_passed"
	MsgLapCompleted     = "lap_completed"
	MsgPlayerFinished   = "player_finished"
	MsgRaceFinished     = "race_finished"
	MsgCollision        = "collision"
	MsgRoomList         = "room_list"
	MsgTrackList        = "track_list"
	MsgError            = "error"
	MsgPong             = "pong"
	MsgAuthOK           = "auth_ok"
	MsgProfileData      = "profile_data"
)

// Error codes carried by ErrorMsg
const (
	ErrInvalidNickname = "INVALID_NICKNAME"
	ErrNoRoom          = "NO_ROOM"
	ErrJoinFailed      = "JOIN_FAILED"
	ErrNotHost         = "NOT_HOST"
	ErrCannotStart     = "CANNOT_START"
	ErrCreateFailed    = "CREATE_FAILED"
)

// TypeTag peeks the discriminator of an incoming message. The wire shape is
// a flat object: the tag plus the message's own optional fields.
type TypeTag struct {
	Type string `json:"type"`
}

// PeekType returns the message type of raw, or "" if undecodable
func PeekType(raw []byte) string {
	var t TypeTag
	if err := json.Unmarshal(raw, &t); err != nil {
		return ""
	}
	return t.Type
}

// RoomSettings are chosen by the host at creation time
type RoomSettings struct {
	MaxPlayers       int    `json:"maxPlayers"`
	LapCount         int    `json:"lapCount"`
	IsPrivate        bool   `json:"isPrivate"`
	AllowMidRaceJoin bool   `json:"allowMidRaceJoin"`
	EnableChat       bool   `json:"enableChat"`
	TrackID          string `json:"trackId"`
	AutoRespawn      bool   `json:"autoRespawn,omitempty"`
}

// PlayerInfo is the lobby-facing player profile
type PlayerInfo struct {
	ID        string `json:"id"`
	Nickname  string `json:"nickname"`
	Color     string `json:"color"`
	Ready     bool   `json:"ready"`
	Connected bool   `json:"connected"`
	IsHost    bool   `json:"isHost"`
}

// RoomInfo is the listing-facing room summary
type RoomInfo struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	State      string `json:"state"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
	TrackID    string `json:"trackId"`
	IsPrivate  bool   `json:"isPrivate"`
}

// TrackInfo is the listing-facing track summary
type TrackInfo struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Author          string `json:"author,omitempty"`
	Difficulty      string `json:"difficulty,omitempty"`
	DefaultLapCount int    `json:"defaultLapCount,omitempty"`
	WrapAround      bool   `json:"wrapAround,omitempty"`
}

// RaceResult is one row of the final standings
type RaceResult struct {
	PlayerID  string    `json:"playerId"`
	Nickname  string    `json:"nickname"`
	Rank      int       `json:"rank"`
	Finished  bool      `json:"finished"`
	TotalTime float64   `json:"totalTime,omitempty"`
	BestLap   float64   `json:"bestLap,omitempty"`
	LapTimes  []float64 `json:"lapTimes,omitempty"`
}

// GameStateSnapshot is the authoritative broadcast at 20 Hz
type GameStateSnapshot struct {
	Sequence  uint64             `json:"sequence" msgpack:"s"`
	Timestamp int64              `json:"timestamp" msgpack:"ts"`
	GameState string             `json:"gameState" msgpack:"gs"`
	Elapsed   float64            `json:"elapsed" msgpack:"e"`
	Cars      []CarStateSnapshot `json:"cars" msgpack:"c"`
	Events    []RaceEvent        `json:"events,omitempty" msgpack:"ev,omitempty"`
}

// ---------- client -> server payloads ----------

type CreateRoomMsg struct {
	Settings       RoomSettings `json:"settings"`
	Nickname       string       `json:"nickname"`
	PreferredColor string       `json:"preferredColor"`
}

type JoinRoomMsg struct {
	RoomID         string `json:"roomId,omitempty"`
	Code           string `json:"code,omitempty"`
	Nickname       string `json:"nickname"`
	PreferredColor string `json:"preferredColor"`
}

type SetReadyMsg struct {
	Ready bool `json:"ready"`
}

type ChatMsg struct {
	Message string `json:"message"`
}

type EmoteMsg struct {
	Emote string `json:"emote"`
}

type PingMsg struct {
	Timestamp int64 `json:"timestamp"`
}

type RegisterMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthMsg struct {
	Token string `json:"token"`
}

// ---------- server -> client payloads ----------

// outMsg is the flat outgoing wire shape: type tag plus payload fields
type outMsg struct {
	Type string `json:"type"`
	// payload is flattened by MarshalMessage
}

// MarshalMessage renders the flat tagged shape: the payload's fields plus
// the "type" discriminator at the top level.
func MarshalMessage(msgType string, payload interface{}) ([]byte, error) {
	if payload == nil {
		return json.Marshal(outMsg{Type: msgType})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	m["type"] = msgType
	return json.Marshal(m)
}

type WelcomeMsg struct {
	PlayerID   string `json:"playerId"`
	ServerTime int64  `json:"serverTime"`
}

type RoomJoinedMsg struct {
	Room     RoomInfo     `json:"room"`
	Settings RoomSettings `json:"settings"`
	Players  []PlayerInfo `json:"players"`
	PlayerID string       `json:"playerId"`
}

type RoomLeftMsg struct {
	Reason string `json:"reason"`
}

type PlayerJoinedMsg struct {
	Player PlayerInfo `json:"player"`
}

type PlayerLeftMsg struct {
	PlayerID string `json:"playerId"`
	Reason   string `json:"reason"`
}

type PlayerReadyMsg struct {
	PlayerID string `json:"playerId"`
	Ready    bool   `json:"ready"`
}

type GameStartingMsg struct {
	Countdown int                `json:"countdown"`
	Track     *Track             `json:"track"`
	Cars      []CarStateSnapshot `json:"cars"`
}

type CountdownMsg struct {
	Count int `json:"count"`
}

type GameStartedMsg struct {
	StartTime int64 `json:"startTime"`
}

type GameStateMsg struct {
	Snapshot GameStateSnapshot `json:"snapshot"`
}

type CheckpointPassedMsg struct {
	PlayerID   string  `json:"playerId"`
	Checkpoint int     `json:"checkpoint"`
	Time       float64 `json:"time"`
}

type LapCompletedMsg struct {
	PlayerID string  `json:"playerId"`
	Lap      int     `json:"lap"`
	LapTime  float64 `json:"lapTime"`
}

type PlayerFinishedMsg struct {
	PlayerID  string  `json:"playerId"`
	Position  int     `json:"position"`
	TotalTime float64 `json:"totalTime"`
}

type RaceFinishedMsg struct {
	Results []RaceResult `json:"results"`
}

type CollisionMsg struct {
	PlayerID string  `json:"playerId"`
	OtherID  string  `json:"otherId"`
	Time     float64 `json:"time"`
}

type ChatBroadcastMsg struct {
	PlayerID string `json:"playerId"`
	Nickname string `json:"nickname"`
	Message  string `json:"message"`
}

type EmoteBroadcastMsg struct {
	PlayerID string `json:"playerId"`
	Emote    string `json:"emote"`
}

type RoomListMsg struct {
	Rooms []RoomInfo `json:"rooms"`
}

type TrackListMsg struct {
	Tracks []TrackInfo `json:"tracks"`
}

type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PongMsg struct {
	ClientTimestamp int64 `json:"clientTimestamp"`
	ServerTimestamp int64 `json:"serverTimestamp"`
}

type AuthOKMsg struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	PlayerID int64  `json:"accountId"`
}

type ProfileDataMsg struct {
	Username string  `json:"username"`
	Races    int     `json:"races"`
	Wins     int     `json:"wins"`
	Laps     int     `json:"laps"`
	Playtime float64 `json:"playtime"`
}
