// Package reconstruct reassembles the two kinds of multi-part FIS-B
// messages that level0 decoding cannot resolve alone: APDUs split
// across several frames by product_file_id/apdu_number (Desegmenter),
// and TWGO text/graphics halves that arrive as separate messages and
// must be paired before they are meaningful (TwgoMatcher).
//
// Grounded on fisb/level1/Unsegmenter.py, fisb/level1/TwgoMatcher.py,
// and fisb/level1/L1Base.py.
package reconstruct

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS recon_state (
	bucket     TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (bucket, key)
);
`

// Store persists in-flight reconstruction state (pending segments and
// text/graphics match history) so a process restart does not silently
// drop a message that was half-assembled. Grounded on the in-memory
// cache + sqlite backing pattern in internal/state/tracker.go.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the sqlite database at dbPath.
// An empty dbPath opens a private in-memory database, useful for tests
// or single-process runs that don't need restart durability.
func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts value (JSON-encoded) under bucket/key, stamped with now.
func (s *Store) Save(bucket, key string, value any, now time.Time) error {
	buf, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO recon_state(bucket, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(bucket, key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		bucket, key, string(buf), now.Unix())
	return err
}

// Delete removes bucket/key, if present.
func (s *Store) Delete(bucket, key string) error {
	_, err := s.db.Exec(`DELETE FROM recon_state WHERE bucket = ? AND key = ?`, bucket, key)
	return err
}

// Load calls dest once for every bucket/key/value row, used at startup
// to repopulate the in-memory maps Desegmenter and TwgoMatcher keep.
func (s *Store) Load(bucket string, dest func(key string, raw []byte)) error {
	rows, err := s.db.Query(`SELECT key, value FROM recon_state WHERE bucket = ?`, bucket)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		dest(key, []byte(value))
	}
	return rows.Err()
}
