package main

import (
	"log"
	"sync"
	"time"
)

// Event types for analytics tracking
const (
	EvtSessionStart = "session_start"
	EvtSessionEnd   = "session_end"
	EvtRaceStart    = "race_start"
	EvtRaceEnd      = "race_end"
	EvtLap          = "lap"
	EvtFinish       = "finish"
)

// AnalyticsEvent represents a single trackable event
type AnalyticsEvent struct {
	Type      string
	SessionID string
	RoomID    string
	Timestamp time.Time
}

// Analytics handles event tracking with batched background writes
type Analytics struct {
	db     *DB
	events chan AnalyticsEvent
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewAnalytics creates and starts the analytics background writer
func NewAnalytics(db *DB) *Analytics {
	a := &Analytics{
		db:     db,
		events: make(chan AnalyticsEvent, 1024),
		stop:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

// Track enqueues an event for async persistence (non-blocking)
func (a *Analytics) Track(evtType, sessionID, roomID string) {
	select {
	case a.events <- AnalyticsEvent{
		Type:      evtType,
		SessionID: sessionID,
		RoomID:    roomID,
		Timestamp: time.Now().UTC(),
	}:
	default:
		// Channel full — drop event rather than blocking game loop
	}
}

// Stop gracefully shuts down the analytics writer
func (a *Analytics) Stop() {
	close(a.stop)
	a.wg.Wait()
}

// writer is the background goroutine that batches and writes events to DB
func (a *Analytics) writer() {
	defer a.wg.Done()

	batch := make([]AnalyticsEvent, 0, 64)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case evt := <-a.events:
			batch = append(batch, evt)
			if len(batch) >= 50 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-a.stop:
			// Drain remaining events
			close(a.events)
			for evt := range a.events {
				batch = append(batch, evt)
			}
			if len(batch) > 0 {
				a.flush(batch)
			}
			return
		}
	}
}

func (a *Analytics) flush(events []AnalyticsEvent) {
	if a.db == nil {
		return
	}
	if err := a.db.InsertEvents(events); err != nil {
		log.Printf("analytics flush: %v", err)
	}
}
