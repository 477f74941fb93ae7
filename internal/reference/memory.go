package reference

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/vertgenlab/gonomics/dna"
	"github.com/vertgenlab/gonomics/fasta"
	"github.com/vertgenlab/gonomics/fileio"
)

// Memory is a map-backed reference. It is read-only after construction and
// safe for concurrent use.
type Memory struct {
	sequences map[string]string
}

// NewMemory builds a reference from name -> sequence pairs.
func NewMemory(seqs map[string]string) *Memory {
	m := &Memory{sequences: make(map[string]string, len(seqs))}
	for name, seq := range seqs {
		m.sequences[name] = strings.ToUpper(seq)
	}
	return m
}

// LoadFASTA reads a whole FASTA file (optionally gzipped) into memory.
func LoadFASTA(path string) (*Memory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open FASTA file: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	m := &Memory{sequences: make(map[string]string)}
	if err := m.readRecords(&fileio.EasyReader{File: f, BuffReader: bufio.NewReaderSize(reader, 1<<20)}); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// readRecords loads every record of file. The fasta reader panics on
// truncated input, so that is recovered into an error.
func (m *Memory) readRecords(file *fileio.EasyReader) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrMalformedFASTA, p)
		}
	}()

	peek, perr := fileio.EasyPeekReal(file, 1)
	if errors.Is(perr, io.EOF) {
		return nil
	}
	if perr != nil {
		return fmt.Errorf("read FASTA: %w", perr)
	}
	if peek[0] != '>' {
		return fmt.Errorf("%w: sequence before the first name line", ErrMalformedFASTA)
	}

	for rec, done := fasta.NextFastaForced(file); !done; rec, done = fasta.NextFastaForced(file) {
		name := parseName(rec.Name)
		if _, dup := m.sequences[name]; dup {
			return fmt.Errorf("%w: duplicate sequence %s", ErrMalformedFASTA, name)
		}
		dna.AllToUpper(rec.Seq)
		m.sequences[name] = dna.BasesToString(rec.Seq)
	}
	return nil
}

// parseName returns the first word of a FASTA header line.
func parseName(header string) string {
	header = strings.TrimPrefix(header, ">")
	if idx := strings.IndexAny(header, " \t"); idx != -1 {
		return header[:idx]
	}
	return header
}

// Fetch implements Sequencer.
func (m *Memory) Fetch(chrom string, start1, end1 int) (string, error) {
	seq, ok := m.sequences[chrom]
	if !ok {
		return "", fmt.Errorf("%s: %w", chrom, ErrUnknownSequence)
	}
	s, e, ok := clamp(start1, end1, len(seq))
	if !ok {
		return "", nil
	}
	return seq[s-1 : e], nil
}

// Length implements Sequencer.
func (m *Memory) Length(chrom string) (int, bool) {
	seq, ok := m.sequences[chrom]
	return len(seq), ok
}

// SequenceCount returns the number of loaded sequences.
func (m *Memory) SequenceCount() int {
	return len(m.sequences)
}
