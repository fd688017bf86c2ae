package embedding

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver, registered as "sqlite"
)

// SQLiteStore persists embedding records in a local SQLite database,
// allowing production startup to load vectors from disk without issuing
// any embedding-provider API calls (spec.md §4.7 offline pre-generation).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) a SQLite-backed Store at path.
// Use ":memory:" for tests.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("embedding: open sqlite store: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("embedding: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS tool_embeddings (
	tool_key     TEXT PRIMARY KEY,
	content_hash INTEGER NOT NULL,
	vector       BLOB NOT NULL,
	model_id     TEXT NOT NULL,
	dims         INTEGER NOT NULL,
	generated_at INTEGER NOT NULL
);`

func (s *SQLiteStore) Get(toolKey string) (Record, bool, error) {
	row := s.db.QueryRow(
		`SELECT tool_key, content_hash, vector, model_id, dims, generated_at
		 FROM tool_embeddings WHERE tool_key = ?`, toolKey)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("embedding: get %q: %w", toolKey, err)
	}
	return rec, true, nil
}

func (s *SQLiteStore) Put(rec Record) error {
	vec, err := json.Marshal(rec.Vector)
	if err != nil {
		return fmt.Errorf("embedding: marshal vector: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO tool_embeddings (tool_key, content_hash, vector, model_id, dims, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tool_key) DO UPDATE SET
		   content_hash=excluded.content_hash, vector=excluded.vector,
		   model_id=excluded.model_id, dims=excluded.dims, generated_at=excluded.generated_at`,
		rec.ToolKey, rec.ContentHash, vec, rec.ModelID, rec.Dims, rec.GeneratedAt.Unix())
	if err != nil {
		return fmt.Errorf("embedding: put %q: %w", rec.ToolKey, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(toolKey string) error {
	_, err := s.db.Exec(`DELETE FROM tool_embeddings WHERE tool_key = ?`, toolKey)
	if err != nil {
		return fmt.Errorf("embedding: delete %q: %w", toolKey, err)
	}
	return nil
}

func (s *SQLiteStore) All() ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT tool_key, content_hash, vector, model_id, dims, generated_at FROM tool_embeddings`)
	if err != nil {
		return nil, fmt.Errorf("embedding: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("embedding: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(r rowScanner) (Record, error) {
	var (
		rec       Record
		vec       []byte
		generated int64
	)
	if err := r.Scan(&rec.ToolKey, &rec.ContentHash, &vec, &rec.ModelID, &rec.Dims, &generated); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(vec, &rec.Vector); err != nil {
		return Record{}, fmt.Errorf("unmarshal vector: %w", err)
	}
	rec.GeneratedAt = time.Unix(generated, 0).UTC()
	return rec, nil
}
