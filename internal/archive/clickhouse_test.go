package archive

import (
	"context"
	"os"
	"testing"
	"time"

	"fisb/internal/config"
)

// setupTestArchive opens a test ClickHouse connection. Returns nil if
// no connection is available, matching internal/storage's convention
// of skipping rather than failing when there's no live database.
func setupTestArchive(t *testing.T) *ClickHouse {
	t.Helper()

	host := os.Getenv("CLICKHOUSE_HOST")
	if host == "" {
		host = "localhost"
	}
	user := os.Getenv("CLICKHOUSE_USER")
	if user == "" {
		user = "default"
	}
	database := os.Getenv("CLICKHOUSE_DB")
	if database == "" {
		database = "fisb"
	}

	ctx := context.Background()
	ch, err := Open(ctx, config.ClickHouseConfig{
		Host:     host,
		Port:     9000,
		User:     user,
		Password: os.Getenv("CLICKHOUSE_PASSWORD"),
		Database: database,
	})
	if err != nil {
		return nil
	}
	return ch
}

func TestInsertAndQueryByUniqueName(t *testing.T) {
	ch := setupTestArchive(t)
	if ch == nil {
		t.Skip("No ClickHouse connection available")
	}
	defer ch.Close()
	ctx := context.Background()

	rec := Record{
		ReceivedAt: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
		Type:       "NOTAM",
		UniqueName: "unit-test-1",
		Station:    "KXYZ",
		RawAPDU:    []byte{0x01, 0x02, 0x03, 0x04},
		Normalized: map[string]any{"contents": "test"},
	}
	if err := ch.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := ch.QueryByUniqueName(ctx, "NOTAM", "unit-test-1")
	if err != nil {
		t.Fatalf("QueryByUniqueName: %v", err)
	}
	if len(got) == 0 {
		t.Fatalf("no records returned after insert")
	}
	if string(got[0].RawAPDU) != string(rec.RawAPDU) {
		t.Errorf("RawAPDU round-trip mismatch: got %v, want %v", got[0].RawAPDU, rec.RawAPDU)
	}
}

func TestInsertBatch(t *testing.T) {
	ch := setupTestArchive(t)
	if ch == nil {
		t.Skip("No ClickHouse connection available")
	}
	defer ch.Close()
	ctx := context.Background()

	records := []Record{
		{ReceivedAt: time.Now(), Type: "AIRMET", UniqueName: "batch-1", RawAPDU: []byte("a"), Normalized: map[string]any{}},
		{ReceivedAt: time.Now(), Type: "AIRMET", UniqueName: "batch-2", RawAPDU: []byte("b"), Normalized: map[string]any{}},
	}
	if err := ch.InsertBatch(ctx, records); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	count, err := ch.Count(ctx, "AIRMET")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count < 2 {
		t.Errorf("Count = %d, want at least 2", count)
	}
}

func TestInsertBatchEmptyIsNoop(t *testing.T) {
	ch := setupTestArchive(t)
	if ch == nil {
		t.Skip("No ClickHouse connection available")
	}
	defer ch.Close()

	if err := ch.InsertBatch(context.Background(), nil); err != nil {
		t.Errorf("InsertBatch(nil) = %v, want nil", err)
	}
}
