package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dkarpov/fitbot/internal/model"

	_ "modernc.org/sqlite"
)

// SQLite is a session store backed by a single sessions table. It keeps
// the same TTL semantics as Memory: entries older than the TTL are
// treated as absent and purged.
type SQLite struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSQLite opens (and migrates) a SQLite-backed session store at the
// given path. A non-positive TTL disables expiry.
func NewSQLite(dbPath string, ttl time.Duration) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &SQLite{db: db, ttl: ttl}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		user_id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) Get(ctx context.Context, userID string) (*model.Session, error) {
	var data []byte
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT data, updated_at FROM sessions WHERE user_id = ?`, userID,
	).Scan(&data, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.ttl > 0 && time.Since(updatedAt) > s.ttl {
		_ = s.Delete(ctx, userID)
		return nil, nil
	}
	return decodeSession(data)
}

func (s *SQLite) Set(ctx context.Context, userID string, sess *model.Session) error {
	data, err := encodeSession(sess)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET data = ?, updated_at = ?`,
		userID, data, time.Now(), data, time.Now(),
	)
	return err
}

func (s *SQLite) Delete(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	return err
}

// Sweep removes entries older than the TTL and returns how many rows
// were dropped.
func (s *SQLite) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	res, err := s.db.Exec(`DELETE FROM sessions WHERE updated_at < ?`, time.Now().Add(-s.ttl))
	if err != nil {
		return 0
	}
	n, _ := res.RowsAffected()
	return int(n)
}
