package duckdb

import (
	"fmt"
	"os"
	"time"
)

// FileFingerprint holds stat-based identity for a file.
type FileFingerprint struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// StatFile creates a FileFingerprint from an on-disk file.
func StatFile(path string) (FileFingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileFingerprint{}, err
	}
	return FileFingerprint{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime().UTC().Truncate(time.Microsecond),
	}, nil
}

// RecordInputs stores the fingerprints of the files a run read, replacing
// earlier entries for the same paths.
func (s *Store) RecordInputs(fps ...FileFingerprint) error {
	for _, fp := range fps {
		if _, err := s.db.Exec("DELETE FROM inputs WHERE path=?", fp.Path); err != nil {
			return fmt.Errorf("replace input %s: %w", fp.Path, err)
		}
		if _, err := s.db.Exec("INSERT INTO inputs VALUES (?, ?, ?)", fp.Path, fp.Size, fp.ModTime); err != nil {
			return fmt.Errorf("record input %s: %w", fp.Path, err)
		}
	}
	return nil
}

// Inputs returns the recorded fingerprints ordered by path.
func (s *Store) Inputs() ([]FileFingerprint, error) {
	rows, err := s.db.Query("SELECT path, size, mod_time FROM inputs ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("query inputs: %w", err)
	}
	defer rows.Close()

	var fps []FileFingerprint
	for rows.Next() {
		var fp FileFingerprint
		if err := rows.Scan(&fp.Path, &fp.Size, &fp.ModTime); err != nil {
			return nil, fmt.Errorf("scan input: %w", err)
		}
		fps = append(fps, fp)
	}
	return fps, rows.Err()
}

// Matches reports whether the file at fp.Path still has the recorded size
// and modification time.
func (fp FileFingerprint) Matches() bool {
	cur, err := StatFile(fp.Path)
	if err != nil {
		return false
	}
	return cur.Size == fp.Size && cur.ModTime.Equal(fp.ModTime)
}
