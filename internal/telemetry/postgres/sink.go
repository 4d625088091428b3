package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ppmusicbot/ppmusicbot/internal/telemetry"
)

var _ telemetry.Sink = (*Sink)(nil)

const insertEvent = `
INSERT INTO discord_data_join (user_id, old_channel, new_channel, server_id, timestamp)
VALUES ($1, $2, $3, $4, $5)`

// errNotConnected is returned when the sink is used before Connect.
var errNotConnected = errors.New("postgres sink: not connected")

// Sink writes voice events to PostgreSQL. Connect may be called again to
// replace a broken pool.
type Sink struct {
	cfg *pgxpool.Config

	mu   sync.RWMutex
	pool *pgxpool.Pool
}

// New parses dsn and returns an unconnected Sink.
func New(dsn string) (*Sink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres sink: parse dsn: %w", err)
	}
	return &Sink{cfg: cfg}, nil
}

// Connect implements [telemetry.Sink]. It creates a pool, pings it and runs
// [Migrate].
func (s *Sink) Connect(ctx context.Context) error {
	pool, err := pgxpool.NewWithConfig(ctx, s.cfg.Copy())
	if err != nil {
		return fmt.Errorf("postgres sink: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("postgres sink: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return fmt.Errorf("postgres sink: %w", err)
	}

	s.mu.Lock()
	old := s.pool
	s.pool = pool
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// InsertBatch implements [telemetry.Sink].
func (s *Sink) InsertBatch(ctx context.Context, events []telemetry.VoiceEvent) error {
	pool, err := s.current()
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(insertEvent,
			ev.UserID,
			nullable(ev.OldChannel),
			nullable(ev.NewChannel),
			ev.GuildID,
			ev.Timestamp,
		)
	}

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("postgres sink: insert %d events: %w", len(events), err)
	}
	return nil
}

// Ping implements [telemetry.Sink].
func (s *Sink) Ping(ctx context.Context) error {
	pool, err := s.current()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// Close implements [telemetry.Sink].
func (s *Sink) Close() error {
	s.mu.Lock()
	pool := s.pool
	s.pool = nil
	s.mu.Unlock()
	if pool != nil {
		pool.Close()
	}
	return nil
}

// Pool returns the live pool, or nil before Connect.
func (s *Sink) Pool() *pgxpool.Pool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool
}

func (s *Sink) current() (*pgxpool.Pool, error) {
	if p := s.Pool(); p != nil {
		return p, nil
	}
	return nil, errNotConnected
}

// nullable maps an empty channel ID to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
