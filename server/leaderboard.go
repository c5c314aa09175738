package main

import (
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

// maxLeaderboardEntries caps each per-track leaderboard
const maxLeaderboardEntries = 100

// LeaderboardEntry is one nickname's best lap on a track
type LeaderboardEntry struct {
	Nickname   string  `json:"nickname"`
	LapTime    float64 `json:"lapTime"` // seconds
	RecordedAt int64   `json:"recordedAt"`
}

// Leaderboard holds the fastest laps for one track, ascending by time,
// one entry per nickname (case-insensitive)
type Leaderboard struct {
	TrackID string             `json:"trackId"`
	Entries []LeaderboardEntry `json:"entries"`
}

// Submit inserts a lap time, replacing the nickname's prior entry when the
// new time is better. Returns true when the board changed.
func (lb *Leaderboard) Submit(nickname string, lapTime float64) bool {
	if lapTime <= 0 || nickname == "" {
		return false
	}
	key := strings.ToLower(nickname)
	for i, e := range lb.Entries {
		if strings.ToLower(e.Nickname) == key {
			if lapTime >= e.LapTime {
				return false
			}
			lb.Entries[i].LapTime = lapTime
			lb.Entries[i].Nickname = nickname
			lb.Entries[i].RecordedAt = time.Now().UnixMilli()
			lb.sortAndTrim()
			return true
		}
	}
	if len(lb.Entries) >= maxLeaderboardEntries &&
		lapTime >= lb.Entries[len(lb.Entries)-1].LapTime {
		return false
	}
	lb.Entries = append(lb.Entries, LeaderboardEntry{
		Nickname:   nickname,
		LapTime:    lapTime,
		RecordedAt: time.Now().UnixMilli(),
	})
	lb.sortAndTrim()
	return true
}

func (lb *Leaderboard) sortAndTrim() {
	sort.SliceStable(lb.Entries, func(i, j int) bool {
		return lb.Entries[i].LapTime < lb.Entries[j].LapTime
	})
	if len(lb.Entries) > maxLeaderboardEntries {
		lb.Entries = lb.Entries[:maxLeaderboardEntries]
	}
}

// LeaderboardStore caches leaderboards in memory and persists changes
// through the JSON store. On storage errors the cache carries on from its
// last known-good state.
type LeaderboardStore struct {
	mu     sync.Mutex
	boards map[string]*Leaderboard
	store  *Storage
}

// NewLeaderboardStore creates a lazily-populated store
func NewLeaderboardStore(store *Storage) *LeaderboardStore {
	return &LeaderboardStore{
		boards: make(map[string]*Leaderboard),
		store:  store,
	}
}

// Get returns the leaderboard for a track, loading it on first access
func (ls *LeaderboardStore) Get(trackID string) *Leaderboard {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.getLocked(trackID)
}

func (ls *LeaderboardStore) getLocked(trackID string) *Leaderboard {
	if lb, ok := ls.boards[trackID]; ok {
		return lb
	}
	lb := &Leaderboard{TrackID: trackID}
	if ls.store != nil {
		if err := ls.store.Read(ColLeaderboards, trackID, lb); err == nil {
			lb.sortAndTrim()
		}
	}
	ls.boards[trackID] = lb
	return lb
}

// SubmitLap records a lap time and persists the board when it changed
func (ls *LeaderboardStore) SubmitLap(trackID, nickname string, lapTime float64) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	lb := ls.getLocked(trackID)
	if !lb.Submit(nickname, lapTime) {
		return
	}
	if ls.store != nil {
		if err := ls.store.Write(ColLeaderboards, trackID, lb); err != nil {
			log.Printf("leaderboard: persist %s: %v", trackID, err)
		}
	}
}
