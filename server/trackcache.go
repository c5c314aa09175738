package main

import (
	"fmt"
	"log"
	"sync"
)

// TrackCache holds every track in memory so room ticks never touch disk.
// Built-in tracks are always present and cannot be deleted.
type TrackCache struct {
	mu      sync.RWMutex
	tracks  map[string]*Track
	builtin map[string]bool
	store   *Storage
}

// NewTrackCache populates the cache from the built-ins plus the storage
// collection. Unreadable files are logged and skipped; the cache always
// starts from a known-good state.
func NewTrackCache(store *Storage) *TrackCache {
	tc := &TrackCache{
		tracks:  make(map[string]*Track),
		builtin: make(map[string]bool),
		store:   store,
	}
	for _, t := range BuiltinTracks() {
		t.Normalize()
		tc.tracks[t.ID] = t
		tc.builtin[t.ID] = true
	}
	if store != nil {
		ids, err := store.List(ColTracks)
		if err != nil {
			log.Printf("track cache: list: %v", err)
			return tc
		}
		for _, id := range ids {
			var t Track
			if err := store.Read(ColTracks, id, &t); err != nil {
				log.Printf("track cache: read %s: %v", id, err)
				continue
			}
			t.Normalize()
			if errs := t.Validate(); len(errs) > 0 {
				log.Printf("track cache: %s invalid: %v", id, errs)
				continue
			}
			if !tc.builtin[t.ID] {
				tc.tracks[t.ID] = &t
			}
		}
	}
	return tc
}

// Get returns a track by id, or nil
func (tc *TrackCache) Get(id string) *Track {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.tracks[id]
}

// List returns summaries of all tracks
func (tc *TrackCache) List() []TrackInfo {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	infos := make([]TrackInfo, 0, len(tc.tracks))
	for _, t := range tc.tracks {
		infos = append(infos, TrackInfo{
			ID:              t.ID,
			Name:            t.Name,
			Author:          t.Author,
			Difficulty:      t.Difficulty,
			DefaultLapCount: t.DefaultLapCount,
			WrapAround:      t.WrapAround,
		})
	}
	return infos
}

// Save validates, persists, and caches a track
func (tc *TrackCache) Save(t *Track) []string {
	t.Normalize()
	if errs := t.Validate(); len(errs) > 0 {
		return errs
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.builtin[t.ID] {
		return []string{"cannot overwrite a built-in track"}
	}
	if tc.store != nil {
		if err := tc.store.Write(ColTracks, t.ID, t); err != nil {
			return []string{fmt.Sprintf("persist track: %v", err)}
		}
	}
	tc.tracks[t.ID] = t
	return nil
}

// Delete removes a user track. Built-in tracks are protected.
func (tc *TrackCache) Delete(id string) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.builtin[id] {
		return fmt.Errorf("track %s is protected", id)
	}
	if _, ok := tc.tracks[id]; !ok {
		return fmt.Errorf("track %s not found", id)
	}
	delete(tc.tracks, id)
	if tc.store != nil {
		return tc.store.Delete(ColTracks, id)
	}
	return nil
}
