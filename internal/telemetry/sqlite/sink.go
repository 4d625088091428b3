// Package sqlite provides an embedded SQLite [telemetry.Sink] for
// single-node deployments and tests. It uses the pure-Go modernc.org/sqlite
// driver through database/sql.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppmusicbot/ppmusicbot/internal/telemetry"
)

var _ telemetry.Sink = (*Sink)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS discord_data_join (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id      TEXT NOT NULL,
    old_channel  TEXT,
    new_channel  TEXT,
    server_id    TEXT NOT NULL,
    timestamp    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_discord_data_join_server_timestamp
    ON discord_data_join (server_id, timestamp);
`

const insertEvent = `
INSERT INTO discord_data_join (user_id, old_channel, new_channel, server_id, timestamp)
VALUES (?, ?, ?, ?, ?)`

var errNotConnected = errors.New("sqlite sink: not connected")

// Sink writes voice events to a SQLite database. The DSN is anything the
// modernc driver accepts, e.g. "telemetry.db" or ":memory:".
type Sink struct {
	dsn string

	mu sync.RWMutex
	db *sql.DB
}

// New returns an unconnected Sink for dsn.
func New(dsn string) *Sink {
	return &Sink{dsn: dsn}
}

// Connect implements [telemetry.Sink]. It opens the database and creates the
// table if needed.
func (s *Sink) Connect(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return fmt.Errorf("sqlite sink: open: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("sqlite sink: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return fmt.Errorf("sqlite sink: migrate: %w", err)
	}

	s.mu.Lock()
	old := s.db
	s.db = db
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// InsertBatch implements [telemetry.Sink].
func (s *Sink) InsertBatch(ctx context.Context, events []telemetry.VoiceEvent) (err error) {
	db, err := s.current()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite sink: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertEvent)
	if err != nil {
		return fmt.Errorf("sqlite sink: prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err = stmt.ExecContext(ctx,
			ev.UserID,
			nullable(ev.OldChannel),
			nullable(ev.NewChannel),
			ev.GuildID,
			ev.Timestamp.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("sqlite sink: insert: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite sink: commit: %w", err)
	}
	return nil
}

// Ping implements [telemetry.Sink].
func (s *Sink) Ping(ctx context.Context) error {
	db, err := s.current()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Close implements [telemetry.Sink].
func (s *Sink) Close() error {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()
	if db == nil {
		return nil
	}
	return db.Close()
}

func (s *Sink) current() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errNotConnected
	}
	return s.db, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
