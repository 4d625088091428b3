// Package postgres provides a PostgreSQL-backed [telemetry.Sink].
//
// Voice events are written to the discord_data_join table through a
// [pgxpool.Pool]; each batch is queued as a [pgx.Batch] of parameterized
// inserts inside one transaction, so a batch is stored completely or not at
// all.
//
// Usage:
//
//	sink, err := postgres.New(dsn)
//	w := telemetry.NewWriter(sink, telemetry.Config{})
//	if err := w.Start(ctx); err != nil { … }
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlDiscordDataJoin = `
CREATE TABLE IF NOT EXISTS discord_data_join (
    id           BIGSERIAL    PRIMARY KEY,
    user_id      TEXT         NOT NULL,
    old_channel  TEXT,
    new_channel  TEXT,
    server_id    TEXT         NOT NULL,
    timestamp    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_discord_data_join_server_timestamp
    ON discord_data_join (server_id, timestamp);

CREATE INDEX IF NOT EXISTS idx_discord_data_join_user_id
    ON discord_data_join (user_id);
`

// Migrate creates the telemetry table and its indexes if they do not exist.
// It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlDiscordDataJoin); err != nil {
		return fmt.Errorf("postgres migrate: discord_data_join: %w", err)
	}
	return nil
}
