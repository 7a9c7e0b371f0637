// Package archive is the append-only record of every normalized
// message the pipeline produces, written before deduplication so a
// replay or audit can see exactly what was decoded even when the
// harvester later decided to skip storing it as an unchanged
// retransmission.
//
// Supplements the distilled spec: `original_source`'s Level2/Level3
// modules assume a rolling decode log exists (driven by testing.py's
// trigger dumps, itself a non-goal), which this package provides in
// the teacher's idiom instead.
//
// Grounded on internal/storage/clickhouse.go's connection and schema
// pattern.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/klauspost/compress/zstd"

	"fisb/internal/config"
)

// ClickHouse wraps a ClickHouse connection for the archive table.
type ClickHouse struct {
	conn    driver.Conn
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Open opens a connection to ClickHouse and ensures the archive table
// exists.
func Open(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("archive: open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("archive: ping clickhouse: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("archive: new zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("archive: new zstd decoder: %w", err)
	}

	ch := &ClickHouse{conn: conn, encoder: encoder, decoder: decoder}
	if err := ch.createSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return ch, nil
}

// Close closes the ClickHouse connection.
func (c *ClickHouse) Close() error {
	c.decoder.Close()
	return c.conn.Close()
}

func (c *ClickHouse) createSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS decoded_records (
		received_at     DateTime64(3),
		type            LowCardinality(String),
		unique_name     String,
		station         LowCardinality(String),
		raw_apdu        String,
		normalized_json String,
		inserted_at     DateTime64(3) DEFAULT now64(3)
	)
	ENGINE = MergeTree()
	PARTITION BY toYYYYMM(received_at)
	ORDER BY (type, unique_name, received_at)
	SETTINGS index_granularity = 8192`

	if err := c.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("archive: create schema: %w", err)
	}
	return nil
}

// Record is one normalized message as it looked the instant it left
// the normalize stage, before the harvester's digest check could have
// discarded it as an unchanged retransmission.
type Record struct {
	ReceivedAt time.Time
	Type       string
	UniqueName string
	Station    string
	RawAPDU    []byte // the raw APDU payload this record was decoded from
	Normalized any    // the normalized record itself, archived as JSON
}

// Insert appends one decoded record. RawAPDU is compressed with zstd
// before storage, the way oversized ACARS loadsheet payloads are
// compressed in the teacher's pipeline.
func (c *ClickHouse) Insert(ctx context.Context, r Record) error {
	normalizedJSON, err := json.Marshal(r.Normalized)
	if err != nil {
		return fmt.Errorf("archive: marshal normalized record: %w", err)
	}
	compressed := c.encoder.EncodeAll(r.RawAPDU, nil)

	return c.conn.Exec(ctx, `
		INSERT INTO decoded_records (received_at, type, unique_name, station, raw_apdu, normalized_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ReceivedAt, r.Type, r.UniqueName, r.Station, compressed, string(normalizedJSON))
}

// InsertBatch appends multiple decoded records in one round trip.
func (c *ClickHouse) InsertBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO decoded_records (received_at, type, unique_name, station, raw_apdu, normalized_json)
	`)
	if err != nil {
		return fmt.Errorf("archive: prepare batch: %w", err)
	}

	for _, r := range records {
		normalizedJSON, err := json.Marshal(r.Normalized)
		if err != nil {
			return fmt.Errorf("archive: marshal normalized record: %w", err)
		}
		compressed := c.encoder.EncodeAll(r.RawAPDU, nil)

		if err := batch.Append(r.ReceivedAt, r.Type, r.UniqueName, r.Station, compressed, string(normalizedJSON)); err != nil {
			return fmt.Errorf("archive: append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("archive: send batch: %w", err)
	}
	return nil
}

// StoredRecord is one row read back from the archive, with raw_apdu
// already decompressed.
type StoredRecord struct {
	ReceivedAt     time.Time
	Type           string
	UniqueName     string
	Station        string
	RawAPDU        []byte
	NormalizedJSON string
	InsertedAt     time.Time
}

// QueryByUniqueName retrieves every archived record for a given
// type/unique_name pair, most recent first — the replay path for
// auditing why the harvester currently holds what it holds.
func (c *ClickHouse) QueryByUniqueName(ctx context.Context, msgType, uniqueName string) ([]StoredRecord, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT received_at, type, unique_name, station, raw_apdu, normalized_json, inserted_at
		FROM decoded_records
		WHERE type = ? AND unique_name = ?
		ORDER BY received_at DESC
	`, msgType, uniqueName)
	if err != nil {
		return nil, fmt.Errorf("archive: query: %w", err)
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		var sr StoredRecord
		var compressed []byte
		if err := rows.Scan(&sr.ReceivedAt, &sr.Type, &sr.UniqueName, &sr.Station, &compressed, &sr.NormalizedJSON, &sr.InsertedAt); err != nil {
			return nil, fmt.Errorf("archive: scan row: %w", err)
		}
		raw, err := c.decoder.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("archive: decompress raw_apdu: %w", err)
		}
		sr.RawAPDU = raw
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: iterate rows: %w", err)
	}
	return out, nil
}

// Count returns the total number of archived records, optionally
// filtered by type.
func (c *ClickHouse) Count(ctx context.Context, msgType string) (uint64, error) {
	var count uint64
	var err error
	if msgType != "" {
		err = c.conn.QueryRow(ctx, "SELECT count() FROM decoded_records WHERE type = ?", msgType).Scan(&count)
	} else {
		err = c.conn.QueryRow(ctx, "SELECT count() FROM decoded_records").Scan(&count)
	}
	return count, err
}
