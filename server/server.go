package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	qrcode "github.com/skip2/go-qrcode"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, errs []string) {
	body := map[string]interface{}{"error": msg}
	if len(errs) > 0 {
		body["errors"] = errs
	}
	writeJSON(w, status, body)
}

// SetupRoutes configures the WebSocket endpoint and the HTTP control
// surface (tracks, leaderboards, rooms, replays, health)
func SetupRoutes(hub *Hub, storage *Storage, clientDir string) *http.ServeMux {
	mux := http.NewServeMux()

	if clientDir != "" {
		fs := http.FileServer(http.Dir(clientDir))
		mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-cache")
			fs.ServeHTTP(w, r)
		}))
	}

	// WebSocket endpoint; ?session= reclaims a session inside the
	// disconnect grace window
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("upgrade error: %v", err)
			return
		}

		hub.TrackConnect(ip)
		client := NewClient(hub, conn, ip)
		if sid := r.URL.Query().Get("session"); sid != "" {
			hub.Resume(sid, client)
		}
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()

		client.SendMessage(MsgWelcome, WelcomeMsg{
			PlayerID:   client.sessionID,
			ServerTime: time.Now().UnixMilli(),
		})
	})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"rooms":   hub.manager.RoomCount(),
			"clients": hub.ClientCount(),
		})
	})

	mux.HandleFunc("GET /rooms", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"rooms": hub.manager.ListRooms()})
	})

	// Join QR: encodes the join URL for phones scanning from a lobby
	// screen
	mux.HandleFunc("GET /rooms/{code}/qr", func(w http.ResponseWriter, r *http.Request) {
		code := r.PathValue("code")
		room := hub.manager.FindRoom(code)
		if room == nil {
			writeError(w, http.StatusNotFound, "room not found", nil)
			return
		}
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		joinURL := fmt.Sprintf("%s://%s/?join=%s", scheme, r.Host, room.Code)
		png, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "qr encode failed", nil)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	})

	mux.HandleFunc("GET /tracks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"tracks": hub.tracks.List()})
	})

	mux.HandleFunc("GET /tracks/{id}", func(w http.ResponseWriter, r *http.Request) {
		track := hub.tracks.Get(r.PathValue("id"))
		if track == nil {
			writeError(w, http.StatusNotFound, "track not found", nil)
			return
		}
		writeJSON(w, http.StatusOK, track)
	})

	mux.HandleFunc("POST /tracks", func(w http.ResponseWriter, r *http.Request) {
		var track Track
		if err := json.NewDecoder(r.Body).Decode(&track); err != nil {
			writeError(w, http.StatusBadRequest, "invalid track JSON", nil)
			return
		}
		if errs := hub.tracks.Save(&track); len(errs) > 0 {
			writeError(w, http.StatusBadRequest, "track validation failed", errs)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": track.ID})
	})

	mux.HandleFunc("DELETE /tracks/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := hub.tracks.Delete(r.PathValue("id")); err != nil {
			writeError(w, http.StatusForbidden, err.Error(), nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /leaderboards/{trackId}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.leaderboards.Get(r.PathValue("trackId")))
	})

	mux.HandleFunc("GET /replays/{id}", func(w http.ResponseWriter, r *http.Request) {
		var rec ReplayRecord
		if err := storage.Read(ColReplays, r.PathValue("id"), &rec); err != nil {
			writeError(w, http.StatusNotFound, "replay not found", nil)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	})

	return mux
}
