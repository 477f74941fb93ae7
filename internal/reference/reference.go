// Package reference provides sequence-by-coordinate lookups over FASTA files.
package reference

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrUnknownSequence is returned when a sequence name is absent from the
// reference.
var ErrUnknownSequence = errors.New("unknown reference sequence")

// ErrMalformedFASTA reports a FASTA file that cannot be parsed.
var ErrMalformedFASTA = errors.New("malformed FASTA")

// Sequencer fetches reference bases by 1-based inclusive coordinates.
// Returned bases are upper-case; ranges are clamped to the sequence ends.
type Sequencer interface {
	Fetch(chrom string, start1, end1 int) (string, error)
	Length(chrom string) (int, bool)
}

// Base returns the single reference base at pos1.
func Base(s Sequencer, chrom string, pos1 int) (byte, error) {
	seq, err := s.Fetch(chrom, pos1, pos1)
	if err != nil {
		return 0, err
	}
	if len(seq) != 1 {
		return 0, fmt.Errorf("%s:%d: position outside reference", chrom, pos1)
	}
	return seq[0], nil
}

// Open opens a FASTA file for random access when a .fai index sits next to
// it, and loads it into memory otherwise.
func Open(path string) (Sequencer, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open reference: %w", err)
	}
	if !strings.HasSuffix(path, ".gz") {
		if _, err := os.Stat(path + ".fai"); err == nil {
			return OpenIndexed(path)
		}
	}
	return LoadFASTA(path)
}

// clamp restricts [start1, end1] to [1, length] and reports whether anything
// remains.
func clamp(start1, end1, length int) (int, int, bool) {
	if start1 < 1 {
		start1 = 1
	}
	if end1 > length {
		end1 = length
	}
	return start1, end1, start1 <= end1
}
