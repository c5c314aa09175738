package main

import (
	"log"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Race states
const (
	StateWaiting   = "waiting"
	StateCountdown = "countdown"
	StateRacing    = "racing"
	StateResults   = "results"
)

const (
	TickDuration = time.Second / PhysicsTickRate

	CountdownSeconds  = 3
	MinPlayersToStart = 1
	FinishGracePeriod = 30.0 // seconds after first finisher
	RoomIdleTimeout   = 5 * time.Minute
	StuckThreshold    = 5 * time.Second

	goLiveDelay       = 500 * time.Millisecond
	resultsHold       = 10 * time.Second
	maxEventLog       = 10000
	defaultMaxPlayers = 8
	defaultLapCount   = 3
)

// Broadcaster delivers server messages to one session without blocking the
// room tick
type Broadcaster interface {
	SendMessage(msgType string, payload interface{})
	SendBinary(data []byte)
}

// RoomPlayer is the lobby profile for one session in a room
type RoomPlayer struct {
	ID        string // session id, doubles as player id
	Nickname  string
	Color     string
	Ready     bool
	Connected bool
	IsHost    bool
}

// Info converts to the wire profile
func (p *RoomPlayer) Info() PlayerInfo {
	return PlayerInfo{
		ID: p.ID, Nickname: p.Nickname, Color: p.Color,
		Ready: p.Ready, Connected: p.Connected, IsHost: p.IsHost,
	}
}

type roomCmdKind int

const (
	cmdJoin roomCmdKind = iota
	cmdLeave
	cmdInput
	cmdReady
	cmdStart
	cmdChat
	cmdEmote
	cmdDisconnect
	cmdReconnect
	cmdInfo
	cmdIdleCheck
)

type joinReply struct {
	ok     bool
	reason string
}

type roomCommand struct {
	kind      roomCmdKind
	sessionID string
	player    *RoomPlayer
	bc        Broadcaster
	input     InputState
	ready     bool
	text      string
	reason    string
	joinReply chan joinReply
	infoReply chan RoomInfo
	boolReply chan bool
}

// Room is a single logical actor owning one race. All state mutation
// happens on its own goroutine: external messages enter through the inbox
// and are applied at tick boundaries, so the room needs no locking.
type Room struct {
	ID       string
	Code     string
	HostID   string
	settings RoomSettings
	track    *Track

	state   string
	players map[string]*RoomPlayer
	order   []string // join order, for deterministic iteration
	cars    map[string]*Car
	clients map[string]Broadcaster

	arbiter     *RaceArbiter
	tickCount   uint64
	snapshotSeq uint64
	startedAt   time.Time
	elapsed     float64
	events      []RaceEvent // pending, drained into the next snapshot
	eventLog    []RaceEvent // full race log, serialized into the replay
	spawnCursor int

	lastActivity time.Time
	lastResults  []RaceResult
	resultsAt    time.Time

	inbox     chan roomCommand
	stop      chan struct{}
	countdown *time.Ticker
	countLeft int
	goLive    *time.Timer

	// onRaceStart/onRaceEnd are called from the room goroutine at the
	// green light and when a race completes
	onRaceStart func(r *Room)
	onRaceEnd   func(r *Room, results []RaceResult)
	// onCrash is called after a recovered panic, before shutdown
	onCrash func(r *Room)
}

// NewRoom creates a room in the waiting state. Call Run on its own
// goroutine to start the actor.
func NewRoom(id, code, hostID string, settings RoomSettings, track *Track) *Room {
	if settings.MaxPlayers <= 0 || settings.MaxPlayers > 16 {
		settings.MaxPlayers = defaultMaxPlayers
	}
	if settings.LapCount <= 0 {
		settings.LapCount = track.DefaultLapCount
	}
	if settings.LapCount <= 0 {
		settings.LapCount = defaultLapCount
	}
	return &Room{
		ID:           id,
		Code:         code,
		HostID:       hostID,
		settings:     settings,
		track:        track,
		state:        StateWaiting,
		players:      make(map[string]*RoomPlayer),
		cars:         make(map[string]*Car),
		clients:      make(map[string]Broadcaster),
		lastActivity: time.Now(),
		inbox:        make(chan roomCommand, 256),
		stop:         make(chan struct{}),
	}
}

// Run is the room actor loop. A panic inside a tick is isolated to this
// room: members are notified and the room shuts down while the process
// continues.
func (r *Room) Run() {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("room %s: panic in tick: %v", r.ID, rec)
			r.broadcastMsg(MsgRoomLeft, RoomLeftMsg{Reason: "crash"})
			if r.onCrash != nil {
				r.onCrash(r)
			}
		}
	}()

	ticker := time.NewTicker(TickDuration)
	defer ticker.Stop()
	defer r.stopTimers()

	for {
		select {
		case cmd := <-r.inbox:
			r.handle(cmd)
		case <-ticker.C:
			r.tick()
		case <-r.countdownC():
			r.countdownTick()
		case <-r.goLiveC():
			r.beginRacing()
		case <-r.stop:
			return
		}
	}
}

// Stop terminates the actor. Safe to call once from the manager.
func (r *Room) Stop() {
	close(r.stop)
}

// Send enqueues a command. It blocks while the inbox is full and drops the
// command only once the room has been stopped.
func (r *Room) Send(cmd roomCommand) {
	select {
	case r.inbox <- cmd:
	case <-r.stop:
	}
}

func (r *Room) countdownC() <-chan time.Time {
	if r.countdown == nil {
		return nil
	}
	return r.countdown.C
}

func (r *Room) goLiveC() <-chan time.Time {
	if r.goLive == nil {
		return nil
	}
	return r.goLive.C
}

func (r *Room) stopTimers() {
	if r.countdown != nil {
		r.countdown.Stop()
		r.countdown = nil
	}
	if r.goLive != nil {
		r.goLive.Stop()
		r.goLive = nil
	}
}

// ---------- command handling ----------

func (r *Room) handle(cmd roomCommand) {
	switch cmd.kind {
	case cmdJoin:
		r.handleJoin(cmd)
	case cmdLeave:
		r.handleLeave(cmd.sessionID, cmd.reason)
	case cmdInput:
		r.handleInput(cmd.sessionID, cmd.input)
	case cmdReady:
		r.handleReady(cmd.sessionID, cmd.ready)
	case cmdStart:
		r.handleStart(cmd.sessionID, cmd.bc)
	case cmdChat:
		r.handleChat(cmd.sessionID, cmd.text)
	case cmdEmote:
		r.broadcastMsg(MsgEmote, EmoteBroadcastMsg{PlayerID: cmd.sessionID, Emote: cmd.text})
	case cmdDisconnect:
		r.handleDisconnect(cmd.sessionID)
	case cmdReconnect:
		r.handleReconnect(cmd.sessionID, cmd.bc)
	case cmdInfo:
		cmd.infoReply <- r.info()
	case cmdIdleCheck:
		idle := len(r.players) == 0 ||
			(r.state == StateWaiting && time.Since(r.lastActivity) > RoomIdleTimeout)
		cmd.boolReply <- idle
	}
}

func (r *Room) info() RoomInfo {
	return RoomInfo{
		ID:         r.ID,
		Code:       r.Code,
		State:      r.state,
		Players:    len(r.players),
		MaxPlayers: r.settings.MaxPlayers,
		TrackID:    r.track.ID,
		IsPrivate:  r.settings.IsPrivate,
	}
}

func (r *Room) playerInfos() []PlayerInfo {
	infos := make([]PlayerInfo, 0, len(r.players))
	for _, id := range r.order {
		if p, ok := r.players[id]; ok {
			infos = append(infos, p.Info())
		}
	}
	return infos
}

func (r *Room) handleJoin(cmd roomCommand) {
	if len(r.players) >= r.settings.MaxPlayers {
		cmd.joinReply <- joinReply{reason: "room is full"}
		return
	}
	if (r.state == StateRacing || r.state == StateCountdown) && !r.settings.AllowMidRaceJoin {
		cmd.joinReply <- joinReply{reason: "race in progress"}
		return
	}
	p := cmd.player
	p.Connected = true
	p.IsHost = p.ID == r.HostID
	r.players[p.ID] = p
	r.order = append(r.order, p.ID)
	r.clients[p.ID] = cmd.bc
	r.lastActivity = time.Now()

	cmd.joinReply <- joinReply{ok: true}

	cmd.bc.SendMessage(MsgRoomJoined, RoomJoinedMsg{
		Room:     r.info(),
		Settings: r.settings,
		Players:  r.playerInfos(),
		PlayerID: p.ID,
	})
	r.broadcastExcept(p.ID, MsgPlayerJoined, PlayerJoinedMsg{Player: p.Info()})

	// Mid-race joiners get a car at the next spawn and the running race
	if r.state == StateRacing || r.state == StateCountdown {
		r.spawnCar(p.ID)
		cmd.bc.SendMessage(MsgGameStarting, GameStartingMsg{
			Countdown: 0,
			Track:     r.track,
			Cars:      r.carSnapshots(),
		})
		if r.state == StateRacing {
			cmd.bc.SendMessage(MsgGameStarted, GameStartedMsg{StartTime: r.startedAt.UnixMilli()})
		}
	}
}

func (r *Room) handleLeave(sessionID, reason string) {
	p, ok := r.players[sessionID]
	if !ok {
		return
	}
	delete(r.players, sessionID)
	delete(r.clients, sessionID)
	delete(r.cars, sessionID)
	for i, id := range r.order {
		if id == sessionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.lastActivity = time.Now()
	r.broadcastMsg(MsgPlayerLeft, PlayerLeftMsg{PlayerID: sessionID, Reason: reason})

	// Promote a new host so the lobby can still start races
	if p.IsHost && len(r.order) > 0 {
		r.HostID = r.order[0]
		r.players[r.HostID].IsHost = true
	}
}

func (r *Room) handleInput(sessionID string, in InputState) {
	// Inputs count during countdown too: a held key produces velocity on
	// the first racing tick
	if r.state != StateRacing && r.state != StateCountdown {
		return
	}
	c, ok := r.cars[sessionID]
	if !ok {
		return
	}
	in.Sanitize()
	if in.Sequence > c.Input.Sequence || in.Sequence == 0 {
		c.Input = in
	}
	r.lastActivity = time.Now()
}

func (r *Room) handleReady(sessionID string, ready bool) {
	p, ok := r.players[sessionID]
	if !ok || r.state != StateWaiting {
		return
	}
	p.Ready = ready
	r.lastActivity = time.Now()
	r.broadcastMsg(MsgPlayerReady, PlayerReadyMsg{PlayerID: sessionID, Ready: ready})
}

func (r *Room) handleStart(sessionID string, bc Broadcaster) {
	reply := func(code, msg string) {
		if bc != nil {
			bc.SendMessage(MsgError, ErrorMsg{Code: code, Message: msg})
		}
	}
	if sessionID != r.HostID {
		reply(ErrNotHost, "only the host can start the race")
		return
	}
	if r.state != StateWaiting {
		reply(ErrCannotStart, "race already in progress")
		return
	}
	ready := 0
	for _, p := range r.players {
		if p.Ready {
			ready++
		}
	}
	if ready < MinPlayersToStart {
		reply(ErrCannotStart, "not enough players ready")
		return
	}

	// Cars for every ready player, round-robin over spawns
	r.cars = make(map[string]*Car)
	r.spawnCursor = 0
	r.arbiter = NewRaceArbiter(r.track, r.settings.LapCount)
	r.tickCount = 0
	r.snapshotSeq = 0
	r.events = nil
	r.eventLog = nil
	for _, id := range r.order {
		if p := r.players[id]; p != nil && p.Ready {
			r.spawnCar(id)
		}
	}

	r.state = StateCountdown
	r.countLeft = CountdownSeconds
	r.lastActivity = time.Now()
	r.broadcastMsg(MsgGameStarting, GameStartingMsg{
		Countdown: CountdownSeconds,
		Track:     r.track,
		Cars:      r.carSnapshots(),
	})
	// Countdown runs on its own 1 Hz timer, independent of the physics loop
	r.countdown = time.NewTicker(time.Second)
}

func (r *Room) spawnCar(playerID string) {
	spawns := r.track.Spawns()
	if len(spawns) == 0 {
		return
	}
	spawn := spawns[r.spawnCursor%len(spawns)]
	r.spawnCursor++
	car := NewCar(playerID, spawn)
	if r.track.WrapAround {
		car.Pos = WrapPosition(car.Pos, float64(r.track.Width), float64(r.track.Height))
	}
	r.cars[playerID] = car
}

func (r *Room) handleChat(sessionID, text string) {
	if !r.settings.EnableChat {
		return
	}
	p, ok := r.players[sessionID]
	if !ok {
		return
	}
	r.lastActivity = time.Now()
	r.broadcastMsg(MsgChat, ChatBroadcastMsg{PlayerID: sessionID, Nickname: p.Nickname, Message: text})
}

func (r *Room) handleDisconnect(sessionID string) {
	if p, ok := r.players[sessionID]; ok {
		p.Connected = false
		delete(r.clients, sessionID)
	}
}

func (r *Room) handleReconnect(sessionID string, bc Broadcaster) {
	p, ok := r.players[sessionID]
	if !ok {
		return
	}
	p.Connected = true
	r.clients[sessionID] = bc
	bc.SendMessage(MsgRoomJoined, RoomJoinedMsg{
		Room:     r.info(),
		Settings: r.settings,
		Players:  r.playerInfos(),
		PlayerID: sessionID,
	})
	if r.state == StateRacing || r.state == StateCountdown {
		bc.SendMessage(MsgGameStarting, GameStartingMsg{
			Countdown: r.countLeft,
			Track:     r.track,
			Cars:      r.carSnapshots(),
		})
		if r.state == StateRacing {
			bc.SendMessage(MsgGameStarted, GameStartedMsg{StartTime: r.startedAt.UnixMilli()})
		}
	}
}

// ---------- countdown ----------

func (r *Room) countdownTick() {
	if r.state != StateCountdown {
		return
	}
	r.countLeft--
	r.broadcastMsg(MsgCountdown, CountdownMsg{Count: r.countLeft})
	if r.countLeft <= 0 {
		r.countdown.Stop()
		r.countdown = nil
		// Brief hold on "GO!" before the clock starts
		r.goLive = time.NewTimer(goLiveDelay)
	}
}

func (r *Room) beginRacing() {
	r.goLive.Stop()
	r.goLive = nil
	if r.state != StateCountdown {
		return
	}
	r.state = StateRacing
	r.startedAt = time.Now()
	r.elapsed = 0
	r.broadcastMsg(MsgGameStarted, GameStartedMsg{StartTime: r.startedAt.UnixMilli()})
	if r.onRaceStart != nil {
		r.onRaceStart(r)
	}
}

// ---------- simulation ----------

func (r *Room) carList() []*Car {
	cars := make([]*Car, 0, len(r.cars))
	for _, id := range r.order {
		if c, ok := r.cars[id]; ok {
			cars = append(cars, c)
		}
	}
	return cars
}

func (r *Room) carSnapshots() []CarStateSnapshot {
	cars := r.carList()
	snaps := make([]CarStateSnapshot, 0, len(cars))
	for _, c := range cars {
		snaps = append(snaps, c.Snapshot())
	}
	return snaps
}

func (r *Room) emit(ev RaceEvent) {
	r.events = append(r.events, ev)
	if len(r.eventLog) < maxEventLog {
		r.eventLog = append(r.eventLog, ev)
	}
	switch ev.Type {
	case EvRaceCheckpoint:
		r.broadcastMsg(MsgCheckpointPassed, CheckpointPassedMsg{
			PlayerID: ev.PlayerID, Checkpoint: ev.Checkpoint, Time: ev.Time,
		})
	case EvRaceLap:
		r.broadcastMsg(MsgLapCompleted, LapCompletedMsg{
			PlayerID: ev.PlayerID, Lap: ev.Lap, LapTime: ev.LapTime,
		})
	case EvRaceFinish:
		r.broadcastMsg(MsgPlayerFinished, PlayerFinishedMsg{
			PlayerID: ev.PlayerID, Position: ev.Rank, TotalTime: ev.TotalTime,
		})
	case EvRaceCollision:
		r.broadcastMsg(MsgCollision, CollisionMsg{
			PlayerID: ev.PlayerID, OtherID: ev.OtherID, Time: ev.Time,
		})
	}
}

func (r *Room) tick() {
	if r.state == StateResults {
		// Dwell on the results screen, then reset to the lobby
		if time.Since(r.resultsAt) >= resultsHold {
			r.resetToLobby()
		}
		return
	}
	if r.state != StateRacing {
		return
	}
	r.elapsed = time.Since(r.startedAt).Seconds()
	now := time.Now()
	w, h := float64(r.track.Width), float64(r.track.Height)
	cars := r.carList()

	for _, c := range cars {
		in := c.Input
		prevPos := c.Pos

		if in.Respawn && !c.Finished {
			r.emit(r.arbiter.Respawn(c, r.spawnCursor, r.elapsed))
			r.spawnCursor++
			c.Input.Respawn = false
			c.LastInputSeq = in.Sequence
			continue
		}

		StepCar(c, in)
		c.LastInputSeq = in.Sequence

		// Refuse to propagate a non-finite state; snap back and log
		if !c.CheckFinite() {
			log.Printf("room %s: non-finite car state for %s, clamped", r.ID, c.PlayerID)
			c.Pos = prevPos
		}

		if r.track.WrapAround {
			c.Pos = WrapPosition(c.Pos, w, h)
		}
		r.applySurfaces(c)
	}

	// Car-car contact
	for i := 0; i < len(cars); i++ {
		for j := i + 1; j < len(cars); j++ {
			a, b := cars[i], cars[j]
			if ResolveCarCollision(a, b) {
				r.emit(RaceEvent{
					Type: EvRaceCollision, PlayerID: a.PlayerID,
					OtherID: b.PlayerID, Time: r.elapsed,
				})
			}
		}
	}

	// Arbitration
	for _, c := range cars {
		for _, ev := range r.arbiter.Step(c, r.elapsed) {
			r.emit(ev)
		}
		if r.arbiter.UpdateStuck(c, now, StuckThreshold) && r.settings.AutoRespawn && !c.Finished {
			r.emit(r.arbiter.Respawn(c, r.spawnCursor, r.elapsed))
			r.spawnCursor++
		}
	}
	r.arbiter.Rank(cars)

	if r.arbiter.AllFinished(cars) || r.arbiter.GraceExpired(r.elapsed, FinishGracePeriod) {
		r.endRace(cars)
		return
	}

	r.tickCount++
	if r.tickCount%BroadcastEvery == 0 {
		r.broadcastSnapshot()
	}
}

// applySurfaces handles boost pads and oil slicks under the car. These are
// server-side only; the client predictor reconciles the difference.
func (r *Room) applySurfaces(c *Car) {
	for i := range r.track.Elements {
		e := &r.track.Elements[i]
		switch e.Type {
		case ElemBoost:
			if r.arbiter.near(c.Pos, e) {
				c.Nitro = NitroMax
			}
		case ElemOil:
			if r.arbiter.near(c.Pos, e) {
				c.AngularVel = Clamp(c.AngularVel*1.5, -MaxAngularVelocity, MaxAngularVelocity)
				c.Vel = c.Vel.Scale(0.985)
			}
		}
	}
}

func (r *Room) broadcastSnapshot() {
	r.snapshotSeq++
	snap := GameStateSnapshot{
		Sequence:  r.snapshotSeq,
		Timestamp: time.Now().UnixMilli(),
		GameState: r.state,
		Elapsed:   r.elapsed,
		Cars:      r.carSnapshots(),
		Events:    r.events,
	}
	r.events = nil

	data, err := msgpack.Marshal(snap)
	if err != nil {
		log.Printf("room %s: snapshot marshal: %v", r.ID, err)
		return
	}
	for _, bc := range r.clients {
		bc.SendBinary(data)
	}
}

func (r *Room) endRace(cars []*Car) {
	results := r.buildResults(cars)
	r.lastResults = results
	r.state = StateResults
	r.resultsAt = time.Now()
	r.lastActivity = time.Now()
	r.broadcastMsg(MsgRaceFinished, RaceFinishedMsg{Results: results})

	if r.onRaceEnd != nil {
		r.onRaceEnd(r, results)
	}
}

// resetToLobby returns the room to waiting; final ranking and lap times
// stay available in lastResults
func (r *Room) resetToLobby() {
	r.cars = make(map[string]*Car)
	for _, p := range r.players {
		p.Ready = false
	}
	r.state = StateWaiting
	r.lastActivity = time.Now()
}

func (r *Room) buildResults(cars []*Car) []RaceResult {
	sorted := make([]*Car, len(cars))
	copy(sorted, cars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })

	results := make([]RaceResult, 0, len(sorted))
	for _, c := range sorted {
		nickname := ""
		if p, ok := r.players[c.PlayerID]; ok {
			nickname = p.Nickname
		}
		res := RaceResult{
			PlayerID: c.PlayerID,
			Nickname: nickname,
			Rank:     c.Rank,
			Finished: c.Finished,
			LapTimes: c.LapTimes,
		}
		if c.Finished {
			res.TotalTime = c.FinishTime
		}
		for _, lt := range c.LapTimes {
			if res.BestLap == 0 || lt < res.BestLap {
				res.BestLap = lt
			}
		}
		results = append(results, res)
	}
	return results
}

// ---------- broadcast helpers ----------

func (r *Room) broadcastMsg(msgType string, payload interface{}) {
	for _, bc := range r.clients {
		bc.SendMessage(msgType, payload)
	}
}

func (r *Room) broadcastExcept(exceptID string, msgType string, payload interface{}) {
	for id, bc := range r.clients {
		if id == exceptID {
			continue
		}
		bc.SendMessage(msgType, payload)
	}
}
