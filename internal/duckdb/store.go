// Package duckdb stores genotyping evidence in DuckDB so that sites can be
// queried after a run.
package duckdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Store manages a DuckDB connection holding site evidence.
type Store struct {
	db        *sql.DB
	path      string
	pending   []siteRow
	written   map[siteKey]bool
	batchSize int
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path, written: make(map[siteKey]bool), batchSize: defaultBatchSize}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// Close writes pending sites and closes the database connection.
func (s *Store) Close() error {
	err := s.Flush()
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	return err
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ensureSchema creates tables if they don't exist. Ratios without a
// denominator are stored as NULL.
func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS site_evidence (
			chrom VARCHAR,
			pos BIGINT,
			ref VARCHAR,
			alt VARCHAR,
			motif VARCHAR,
			dp INTEGER,
			ns_nref INTEGER,
			max_gq INTEGER,
			bqr DOUBLE,
			mqr DOUBLE,
			cyr DOUBLE,
			str DOUBLE,
			nmr DOUBLE,
			ior DOUBLE,
			nm0 DOUBLE,
			nm1 DOUBLE,
			abe DOUBLE,
			abh DOUBLE,
			PRIMARY KEY (chrom, pos, ref, alt)
		)`,
		`CREATE TABLE IF NOT EXISTS sample_calls (
			chrom VARCHAR,
			pos BIGINT,
			ref VARCHAR,
			alt VARCHAR,
			sample VARCHAR,
			gt VARCHAR,
			gq INTEGER,
			dp INTEGER,
			ad_ref INTEGER,
			ad_alt INTEGER,
			pl VARCHAR,
			PRIMARY KEY (chrom, pos, ref, alt, sample)
		)`,
		`CREATE TABLE IF NOT EXISTS inputs (
			path VARCHAR PRIMARY KEY,
			size BIGINT,
			mod_time TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
