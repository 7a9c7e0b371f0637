// Package store is the keyed document store the harvester persists
// into: one JSONB-backed table addressed by collection and key,
// generalizing the teacher's typed-table Postgres layer to the spec's
// Store interface (upsert/delete/find_one/find_many/delete_many).
//
// Grounded on internal/storage/postgres.go's connection pooling and
// schema-creation pattern.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fisb/internal/config"
)

// Postgres backs the harvester's Store interface with a single JSONB
// document table, keeping every record, CRL report list, and IMAGE
// entry in one place the way the persisted state layout's MSG
// collection does.
type Postgres struct {
	pool *pgxpool.Pool
}

// Open opens a connection pool and ensures the document table exists.
func Open(ctx context.Context, cfg config.PostgresConfig) (*Postgres, error) {
	escapedPassword := url.QueryEscape(cfg.Password)
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, escapedPassword, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("store: parse postgres config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.createSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Close closes the underlying connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) createSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS msg_documents (
		collection      TEXT NOT NULL,
		key             TEXT NOT NULL,
		doc             JSONB NOT NULL,
		expiration_time TIMESTAMPTZ,
		PRIMARY KEY (collection, key)
	);

	CREATE INDEX IF NOT EXISTS idx_msg_documents_expiration
		ON msg_documents (collection, expiration_time);
	`
	_, err := p.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}
	return nil
}

// extractExpiration reads the doc's expiration_time field (a
// time.Time, per internal/harvest's convertDictISO) into its own
// column so DeleteMany's filter can use a plain index scan instead of
// a JSONB predicate.
func extractExpiration(doc map[string]any) *time.Time {
	switch t := doc["expiration_time"].(type) {
	case time.Time:
		return &t
	default:
		return nil
	}
}

// Upsert inserts or replaces the document at collection/key.
func (p *Postgres) Upsert(ctx context.Context, collection, key string, doc map[string]any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: marshal document: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO msg_documents (collection, key, doc, expiration_time)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, key) DO UPDATE SET
			doc = EXCLUDED.doc,
			expiration_time = EXCLUDED.expiration_time
	`, collection, key, raw, extractExpiration(doc))
	return err
}

// Delete removes the document at collection/key, if present.
func (p *Postgres) Delete(ctx context.Context, collection, key string) error {
	_, err := p.pool.Exec(ctx, `
		DELETE FROM msg_documents WHERE collection = $1 AND key = $2
	`, collection, key)
	return err
}

// FindOne retrieves the document at collection/key.
func (p *Postgres) FindOne(ctx context.Context, collection, key string) (map[string]any, bool, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx, `
		SELECT doc FROM msg_documents WHERE collection = $1 AND key = $2
	`, collection, key).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, fmt.Errorf("store: unmarshal document: %w", err)
	}
	return doc, true, nil
}

// FindMany returns every document in collection. filter is currently
// unused beyond DeleteMany's expiration_time_lte convention; callers
// needing richer querying should filter the returned slice, matching
// the way the original's find_many is used sparingly and mostly for
// small collections (CRL reports, service status).
func (p *Postgres) FindMany(ctx context.Context, collection string, filter map[string]any) ([]map[string]any, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT doc FROM msg_documents WHERE collection = $1
	`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []map[string]any
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("store: unmarshal document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteMany deletes every document in collection whose
// expiration_time is at or before filter["expiration_time_lte"],
// matching internal/harvest.Harvester.ExpireSweep's only caller
// convention. Returns the number of rows deleted.
func (p *Postgres) DeleteMany(ctx context.Context, collection string, filter map[string]any) (int, error) {
	cutoff, ok := filter["expiration_time_lte"].(time.Time)
	if !ok {
		return 0, fmt.Errorf("store: delete_many requires an expiration_time_lte time.Time filter")
	}

	tag, err := p.pool.Exec(ctx, `
		DELETE FROM msg_documents
		WHERE collection = $1 AND expiration_time IS NOT NULL AND expiration_time <= $2
	`, collection, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
