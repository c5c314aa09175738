package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	addr := flag.String("addr", ":"+envOr("PORT", "3000"), "HTTP listen address")
	dataDir := flag.String("data", envOr("DATA_DIR", "./data"), "Data directory for tracks, leaderboards and replays")
	clientDir := flag.String("client", "", "Path to client directory (optional)")
	noDB := flag.Bool("no-db", false, "Disable the account database (guest-only mode)")
	dev := flag.Bool("dev", envOr("DEPLOY_MODE", "") == "dev", "Development mode (verbose request logging)")
	flag.Parse()

	if *dev {
		log.Printf("running in development mode")
	}

	storage, err := NewStorage(*dataDir)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	tracks := NewTrackCache(storage)
	leaderboards := NewLeaderboardStore(storage)

	var db *DB
	if !*noDB {
		db, err = OpenDB(filepath.Join(*dataDir, "nitrogrid.db"))
		if err != nil {
			log.Printf("database disabled: %v", err)
			db = nil
		}
	}

	manager := NewRoomManager(tracks)
	hub := NewHub(manager, tracks, leaderboards, db)

	// Finished races feed the leaderboards, the replay collection, career
	// stats, and analytics. Run off the room goroutine: none of this may
	// delay the next tick.
	manager.SetRaceEndHook(func(r *Room, results []RaceResult) {
		trackID := r.track.ID
		lapCount := r.settings.LapCount
		roomID := r.ID
		elapsed := r.elapsed
		events := append([]RaceEvent(nil), r.eventLog...)
		go func() {
			replayID := SaveReplay(storage, roomID, trackID, lapCount, events, results)
			for _, res := range results {
				for _, lt := range res.LapTimes {
					leaderboards.SubmitLap(trackID, res.Nickname, lt)
				}
			}
			if hub.analytics != nil {
				hub.analytics.Track(EvtRaceEnd, "", roomID)
				for _, res := range results {
					for range res.LapTimes {
						hub.analytics.Track(EvtLap, res.PlayerID, roomID)
					}
					if res.Finished {
						hub.analytics.Track(EvtFinish, res.PlayerID, roomID)
					}
				}
			}
			if db != nil {
				rows := make([]RacePlayerRow, 0, len(results))
				for _, res := range results {
					rows = append(rows, RacePlayerRow{
						PlayerID:  hub.AuthIDForSession(res.PlayerID),
						Rank:      res.Rank,
						Finished:  res.Finished,
						TotalTime: res.TotalTime,
						BestLap:   res.BestLap,
					})
				}
				if _, err := db.RecordRace(trackID, lapCount, elapsed, rows); err != nil {
					log.Printf("record race: %v", err)
				}
			}
			if replayID != "" {
				log.Printf("room %s: replay %s saved", roomID, replayID)
			}
		}()
	})

	manager.SetRaceStartHook(func(r *Room) {
		if hub.analytics != nil {
			hub.analytics.Track(EvtRaceStart, "", r.ID)
		}
	})

	go hub.Run()

	mux := SetupRoutes(hub, storage, *clientDir)
	server := &http.Server{Addr: *addr, Handler: mux}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s (data dir %s)", *addr, *dataDir)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down...")
	server.Close()
	manager.Stop()
	hub.Close()
	if db != nil {
		db.Close()
	}
}
