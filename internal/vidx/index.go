// Package vidx implements a SQLite sidecar index (".vidx") that maps genomic
// positions of a plain-text VCF to byte ranges, giving random access to files
// that were not bgzip-compressed.
package vidx

import (
	"os"

	"github.com/carbocation/pfx"
	"github.com/jmoiron/sqlx"

	"github.com/SeqOne/vt/internal/genome"
)

// Suffix is appended to the VCF path to locate its sidecar index.
const Suffix = ".vidx"

// Index is an open sidecar index.
type Index struct {
	DB       *sqlx.DB
	Metadata *Metadata
}

// Entry conforms to a row of the "Variant" table.
type Entry struct {
	Chromosome        string
	Position          int64
	EndPosition       int64 `db:"end_position"`
	FileStartPosition int64 `db:"file_start_position"`
	SizeInBytes       int64 `db:"size_in_bytes"`
}

// Metadata conforms to the single row of the "Metadata" table.
type Metadata struct {
	Filename          string
	FileSize          int64 `db:"file_size"`
	IndexCreationTime int64 `db:"index_creation_time"`
}

// PathFor returns the sidecar path for a VCF.
func PathFor(vcfPath string) string {
	return vcfPath + Suffix
}

// Exists reports whether a sidecar index exists for the VCF.
func Exists(vcfPath string) bool {
	_, err := os.Stat(PathFor(vcfPath))
	return err == nil
}

// Close closes the database handle.
func (x *Index) Close() error {
	return x.DB.Close()
}

// Query returns entries overlapping the interval, ordered by position and
// then by file offset.
func (x *Index) Query(iv genome.Interval) ([]Entry, error) {
	var entries []Entry
	err := x.DB.Select(&entries, `SELECT chromosome, position, end_position, file_start_position, size_in_bytes
		FROM Variant
		WHERE chromosome = ? AND position <= ? AND end_position >= ?
		ORDER BY position, file_start_position`,
		iv.Seq, iv.End1, iv.Start1)
	if err != nil {
		return nil, pfx.Err(err)
	}
	return entries, nil
}

// Count returns the number of indexed records.
func (x *Index) Count() (int, error) {
	var n int
	if err := x.DB.Get(&n, "SELECT COUNT(*) FROM Variant"); err != nil {
		return 0, pfx.Err(err)
	}
	return n, nil
}
