package main

import (
	"database/sql"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// AccountRow represents a player account in the database
type AccountRow struct {
	ID        int64
	Username  string
	PassHash  string
	CreatedAt time.Time
}

// StatsRow represents a player's career stats
type StatsRow struct {
	PlayerID int64
	Races    int
	Wins     int
	Laps     int
	Playtime float64 // seconds
}

// RaceRow represents a completed race
type RaceRow struct {
	ID        int64
	TrackID   string
	LapCount  int
	Duration  float64
	CreatedAt time.Time
}

// RacePlayerRow represents a player's participation in a race
type RacePlayerRow struct {
	RaceID    int64
	PlayerID  int64
	Rank      int
	Finished  bool
	TotalTime float64
	BestLap   float64
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		pass_hash TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS stats (
		player_id INTEGER PRIMARY KEY REFERENCES accounts(id),
		races INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		laps INTEGER NOT NULL DEFAULT 0,
		playtime REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS races (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		track_id TEXT NOT NULL DEFAULT '',
		lap_count INTEGER NOT NULL DEFAULT 0,
		duration REAL NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS race_players (
		race_id INTEGER NOT NULL REFERENCES races(id),
		player_id INTEGER NOT NULL REFERENCES accounts(id),
		rank INTEGER NOT NULL DEFAULT 0,
		finished INTEGER NOT NULL DEFAULT 0,
		total_time REAL NOT NULL DEFAULT 0,
		best_lap REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (race_id, player_id)
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		session_id TEXT NOT NULL DEFAULT '',
		room_id TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_race_players_player ON race_players(player_id);
	CREATE INDEX IF NOT EXISTS idx_accounts_username ON accounts(username);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		log.Printf("DB migration error: %v", err)
	}
	return err
}

// CreateAccount creates a new player account (returns account ID)
func (db *DB) CreateAccount(username, passHash string) (int64, error) {
	res, err := db.conn.Exec(
		"INSERT INTO accounts (username, pass_hash) VALUES (?, ?)",
		username, passHash,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	_, err = db.conn.Exec("INSERT INTO stats (player_id) VALUES (?)", id)
	return id, err
}

// GetAccountByUsername returns an account by username
func (db *DB) GetAccountByUsername(username string) (*AccountRow, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, pass_hash, created_at FROM accounts WHERE username = ?",
		username,
	)
	a := &AccountRow{}
	err := row.Scan(&a.ID, &a.Username, &a.PassHash, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// UsernameExists checks whether a username is taken
func (db *DB) UsernameExists(username string) (bool, error) {
	var n int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM accounts WHERE username = ?", username,
	).Scan(&n)
	return n > 0, err
}

// GetStats returns a player's career stats
func (db *DB) GetStats(playerID int64) (*StatsRow, error) {
	row := db.conn.QueryRow(
		"SELECT player_id, races, wins, laps, playtime FROM stats WHERE player_id = ?",
		playerID,
	)
	s := &StatsRow{}
	err := row.Scan(&s.PlayerID, &s.Races, &s.Wins, &s.Laps, &s.Playtime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// RecordRace persists a completed race and its per-player rows, and bumps
// each account's career stats
func (db *DB) RecordRace(trackID string, lapCount int, duration float64, players []RacePlayerRow) (int64, error) {
	res, err := db.conn.Exec(
		"INSERT INTO races (track_id, lap_count, duration) VALUES (?, ?, ?)",
		trackID, lapCount, duration,
	)
	if err != nil {
		return 0, err
	}
	raceID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, p := range players {
		if p.PlayerID == 0 {
			continue // guest
		}
		_, err = db.conn.Exec(
			`INSERT INTO race_players (race_id, player_id, rank, finished, total_time, best_lap)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			raceID, p.PlayerID, p.Rank, p.Finished, p.TotalTime, p.BestLap,
		)
		if err != nil {
			return raceID, err
		}
		win := 0
		if p.Rank == 1 && p.Finished {
			win = 1
		}
		laps := 0
		if p.Finished {
			laps = lapCount
		}
		_, err = db.conn.Exec(
			`UPDATE stats SET races = races + 1, wins = wins + ?, laps = laps + ?,
			 playtime = playtime + ? WHERE player_id = ?`,
			win, laps, duration, p.PlayerID,
		)
		if err != nil {
			return raceID, err
		}
	}
	return raceID, nil
}

// GetSetting returns a settings value or ""
func (db *DB) GetSetting(key string) string {
	var v string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v)
	if err != nil {
		return ""
	}
	return v
}

// SetSetting upserts a settings value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// InsertEvents writes a batch of analytics events in one transaction
func (db *DB) InsertEvents(events []AnalyticsEvent) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(
		"INSERT INTO events (type, session_id, room_id, created_at) VALUES (?, ?, ?, ?)",
	)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, e := range events {
		if _, err := stmt.Exec(e.Type, e.SessionID, e.RoomID, e.Timestamp); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
