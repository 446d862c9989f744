// Package vectorindex persists entry embeddings in a sqlite-vec virtual
// table and answers approximate nearest-neighbor queries (TopK).
// memtier.Manager keeps it populated; the ranker (C7) does not query it and
// scores semantic similarity by a cosine scan over each candidate's
// embedding.
package vectorindex

import (
	"database/sql"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"aigent/internal/memtier"
)

// Store is a sqlite-vec-backed nearest-neighbor index over entry
// embeddings, keyed by entry id.
type Store struct {
	db  *sql.DB
	dim int
}

// Open creates (or reopens) a vector index at path, with vectors of the
// given dimensionality.
func Open(path string, dim int) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite-vec virtual tables don't tolerate concurrent writers

	schema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS entry_vectors USING vec0(
			embedding float[%d]
		);
		CREATE TABLE IF NOT EXISTS entry_vector_ids (
			rowid   INTEGER PRIMARY KEY,
			entry_id TEXT NOT NULL UNIQUE,
			tier     TEXT NOT NULL
		);
	`, dim)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("vectorindex: preparing schema: %w", err)
	}

	return &Store{db: db, dim: dim}, nil
}

// Close releases the underlying sqlite connection.
func (s *Store) Close() error { return s.db.Close() }

// Put upserts id's embedding, tagged with its tier so callers can filter
// neighbors by tier after the fact.
func (s *Store) Put(id string, tier memtier.Tier, embedding []float32) error {
	if len(embedding) != s.dim {
		return fmt.Errorf("vectorindex: embedding has %d dims, index expects %d", len(embedding), s.dim)
	}
	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return fmt.Errorf("vectorindex: serializing embedding: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("vectorindex: begin: %w", err)
	}
	defer tx.Rollback()

	if err := s.remove(tx, id); err != nil {
		return err
	}

	res, err := tx.Exec(`INSERT INTO entry_vectors(embedding) VALUES (?)`, blob)
	if err != nil {
		return fmt.Errorf("vectorindex: inserting vector: %w", err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("vectorindex: reading inserted rowid: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO entry_vector_ids(rowid, entry_id, tier) VALUES (?, ?, ?)`,
		rowID, id, tier.String()); err != nil {
		return fmt.Errorf("vectorindex: recording entry id mapping: %w", err)
	}

	return tx.Commit()
}

// Remove deletes id's embedding, if present.
func (s *Store) Remove(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("vectorindex: begin: %w", err)
	}
	defer tx.Rollback()
	if err := s.remove(tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) remove(tx *sql.Tx, id string) error {
	row := tx.QueryRow(`SELECT rowid FROM entry_vector_ids WHERE entry_id = ?`, id)
	var rowID int64
	if err := row.Scan(&rowID); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return fmt.Errorf("vectorindex: looking up existing rowid: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM entry_vectors WHERE rowid = ?`, rowID); err != nil {
		return fmt.Errorf("vectorindex: deleting vector: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM entry_vector_ids WHERE rowid = ?`, rowID); err != nil {
		return fmt.Errorf("vectorindex: deleting id mapping: %w", err)
	}
	return nil
}

// Neighbor is one nearest-neighbor hit: an entry id and its vector
// distance from the query (lower is closer).
type Neighbor struct {
	EntryID  string
	Distance float32
}

// TopK returns the k nearest neighbors to query, across every tier.
func (s *Store) TopK(query []float32, k int) ([]Neighbor, error) {
	if len(query) != s.dim {
		return nil, fmt.Errorf("vectorindex: query has %d dims, index expects %d", len(query), s.dim)
	}
	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: serializing query vector: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT m.entry_id, v.distance
		FROM entry_vectors v
		JOIN entry_vector_ids m ON m.rowid = v.rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, blob, k)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: nearest-neighbor query: %w", err)
	}
	defer rows.Close()

	var out []Neighbor
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.EntryID, &n.Distance); err != nil {
			return nil, fmt.Errorf("vectorindex: scanning neighbor row: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
