// Package storage provides SQLite-backed persistence for the bot state and alert history.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/polywhale/internal/models"
	"github.com/rewired-gh/polywhale/internal/state"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db        *sql.DB
	maxAlerts int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/polywhale/state.db.
func New(maxAlerts int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "polywhale", "state.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxAlerts: maxAlerts}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bot_state (
			id          INTEGER PRIMARY KEY CHECK (id = 1),
			version     INTEGER NOT NULL,
			payload     TEXT NOT NULL,
			updated_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id              TEXT PRIMARY KEY,
			kind            TEXT NOT NULL,
			event_slug      TEXT NOT NULL,
			category        TEXT,
			market_question TEXT,
			value           REAL NOT NULL DEFAULT 0,
			score           REAL NOT NULL DEFAULT 0,
			sent_at         INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_sent_at ON alerts(sent_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_kind ON alerts(kind, sent_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// LoadState reads the persisted state. It always returns a usable state:
// when nothing is stored or the document is corrupt a fresh state is returned,
// in the corrupt case together with the decode error so the caller can log it.
func (s *Storage) LoadState(now time.Time) (*state.State, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM bot_state WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return state.New(now), nil
	}
	if err != nil {
		return state.New(now), fmt.Errorf("failed to read state: %w", err)
	}
	st, err := state.Decode([]byte(payload), now)
	if err != nil {
		return state.New(now), err
	}
	return st, nil
}

// HasState reports whether a state document has been saved.
func (s *Storage) HasState() (bool, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM bot_state`).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count state rows: %w", err)
	}
	return n > 0, nil
}

// SaveState replaces the persisted state in a single transaction.
func (s *Storage) SaveState(st *state.State) error {
	payload, err := state.Encode(st)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO bot_state (id, version, payload, updated_at)
		VALUES (1, ?, ?, ?)`,
		state.SchemaVersion, string(payload), time.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return tx.Commit()
}

// ImportLegacyFile seeds the database from a JSON state file written by earlier releases.
// It does nothing and returns false when a state is already stored.
func (s *Storage) ImportLegacyFile(path string, now time.Time) (bool, error) {
	exists, err := s.HasState()
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read legacy state: %w", err)
	}
	st, err := state.Decode(data, now)
	if err != nil {
		return false, fmt.Errorf("invalid legacy state %s: %w", path, err)
	}
	if err := s.SaveState(st); err != nil {
		return false, err
	}
	return true, nil
}

// AddAlert records a delivered notification and enforces the history cap.
func (s *Storage) AddAlert(alert *models.AlertRecord) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.SentAt.IsZero() {
		alert.SentAt = time.Now()
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO alerts
			(id, kind, event_slug, category, market_question, value, score, sent_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		alert.ID, alert.Kind, alert.EventSlug, alert.Category, alert.MarketQuestion,
		alert.Value, alert.Score, alert.SentAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	if err := rotate(tx, s.maxAlerts); err != nil {
		return err
	}
	return tx.Commit()
}

// GetRecentAlerts returns up to k alerts, newest first.
func (s *Storage) GetRecentAlerts(k int) ([]models.AlertRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, event_slug, category, market_question, value, score, sent_at
		FROM alerts ORDER BY sent_at DESC LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.AlertRecord
	for rows.Next() {
		var a models.AlertRecord
		var category, question sql.NullString
		var sentAtNano int64
		if err := rows.Scan(&a.ID, &a.Kind, &a.EventSlug, &category, &question,
			&a.Value, &a.Score, &sentAtNano); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Category = category.String
		a.MarketQuestion = question.String
		a.SentAt = time.Unix(0, sentAtNano)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// CountAlertsSince counts alerts of kind sent at or after since.
func (s *Storage) CountAlertsSince(kind string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM alerts WHERE kind = ? AND sent_at >= ?`,
		kind, since.UnixNano()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return n, nil
}

// RotateAlerts keeps at most maxAlerts newest alerts by sent_at.
func (s *Storage) RotateAlerts() error {
	_, err := s.db.Exec(rotateSQL, s.maxAlerts)
	if err != nil {
		return fmt.Errorf("failed to rotate alerts: %w", err)
	}
	return nil
}

const rotateSQL = `
	DELETE FROM alerts WHERE id NOT IN (
		SELECT id FROM alerts ORDER BY sent_at DESC LIMIT ?
	)`

func rotate(tx *sql.Tx, max int) error {
	if _, err := tx.Exec(rotateSQL, max); err != nil {
		return fmt.Errorf("failed to enforce alert cap: %w", err)
	}
	return nil
}
