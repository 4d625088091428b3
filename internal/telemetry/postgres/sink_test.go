package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ppmusicbot/ppmusicbot/internal/telemetry"
	"github.com/ppmusicbot/ppmusicbot/internal/telemetry/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if PPMUSIC_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("PPMUSIC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PPMUSIC_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestSink connects a sink to a freshly truncated table.
func newTestSink(t *testing.T) *postgres.Sink {
	t.Helper()
	ctx := context.Background()

	sink, err := postgres.New(testDSN(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sink.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })

	if _, err := sink.Pool().Exec(ctx, "TRUNCATE discord_data_join"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return sink
}

func TestNew_InvalidDSN(t *testing.T) {
	t.Parallel()

	if _, err := postgres.New("postgres://user@host:notaport/db"); err == nil {
		t.Error("expected error for invalid DSN")
	}
}

func TestSink_NotConnected(t *testing.T) {
	t.Parallel()

	sink, err := postgres.New("postgres://user@localhost:5432/db")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sink.InsertBatch(context.Background(), []telemetry.VoiceEvent{{UserID: "u"}}); err == nil {
		t.Error("InsertBatch before Connect should fail")
	}
	if err := sink.Ping(context.Background()); err == nil {
		t.Error("Ping before Connect should fail")
	}
	if err := sink.Close(); err != nil {
		t.Errorf("Close before Connect: %v", err)
	}
}

func TestSink_InsertBatch(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []telemetry.VoiceEvent{
		{UserID: "u1", NewChannel: "c1", GuildID: "g1", Timestamp: ts},
		{UserID: "u1", OldChannel: "c1", NewChannel: "c2", GuildID: "g1", Timestamp: ts.Add(time.Minute)},
		{UserID: "u2", OldChannel: "c2", GuildID: "g1", Timestamp: ts.Add(2 * time.Minute)},
	}
	if err := sink.InsertBatch(ctx, events); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	var total, joins, leaves int
	err := sink.Pool().QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE old_channel IS NULL),
		       count(*) FILTER (WHERE new_channel IS NULL)
		FROM discord_data_join`).Scan(&total, &joins, &leaves)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 3 || joins != 1 || leaves != 1 {
		t.Errorf("total/joins/leaves = %d/%d/%d, want 3/1/1", total, joins, leaves)
	}
}

func TestSink_ReconnectReplacesPool(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	first := sink.Pool()
	if err := sink.Connect(ctx); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if sink.Pool() == first {
		t.Error("Connect should replace the pool")
	}
	if err := sink.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestWriter_WithPostgres(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	w := telemetry.NewWriter(sink, telemetry.Config{BatchSize: 2})
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for _, u := range []string{"a", "b", "c"} {
		if err := w.Record(ctx, telemetry.VoiceEvent{UserID: u, NewChannel: "c", GuildID: "g"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	// Close flushes the odd event and releases the pool, so count first.
	var n int
	if err := sink.Pool().QueryRow(ctx, "SELECT count(*) FROM discord_data_join").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("rows before close = %d, want 2", n)
	}
	if err := w.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
