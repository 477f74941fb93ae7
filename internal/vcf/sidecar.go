package vcf

import (
	"io"
	"os"
	"strings"

	"github.com/SeqOne/vt/internal/genome"
	"github.com/SeqOne/vt/internal/vidx"
)

// sidecarSource answers interval queries against a plain-text VCF through its
// SQLite offset index.
type sidecarSource struct {
	file *os.File
	idx  *vidx.Index
}

func openSidecar(path string) (*sidecarSource, error) {
	idx, err := vidx.Open(vidx.PathFor(path))
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		idx.Close()
		return nil, err
	}
	return &sidecarSource{file: f, idx: idx}, nil
}

func (s *sidecarSource) Query(iv genome.Interval) (regionQuery, error) {
	entries, err := s.idx.Query(iv)
	if err != nil {
		return nil, err
	}
	return &offsetQuery{file: s.file, entries: entries}, nil
}

func (s *sidecarSource) Close() error {
	s.idx.Close()
	return s.file.Close()
}

// offsetQuery reads one indexed line per entry.
type offsetQuery struct {
	file    *os.File
	entries []vidx.Entry
	buf     []byte
	next    int
}

func (q *offsetQuery) Next() (string, error) {
	if q.next >= len(q.entries) {
		return "", io.EOF
	}
	e := q.entries[q.next]
	q.next++

	if int64(cap(q.buf)) < e.SizeInBytes {
		q.buf = make([]byte, e.SizeInBytes)
	}
	buf := q.buf[:e.SizeInBytes]
	if _, err := q.file.ReadAt(buf, e.FileStartPosition); err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(string(buf), "\r\n"), nil
}

func (q *offsetQuery) Close() error {
	return nil
}
