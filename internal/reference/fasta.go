package reference

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/vertgenlab/gonomics/dna"
	"github.com/vertgenlab/gonomics/fasta"
)

// Indexed serves random access into a FASTA file through its .fai index.
// The underlying seeker shares one file handle, so access is serialized.
type Indexed struct {
	mu      sync.Mutex
	seeker  *fasta.Seeker
	lengths map[string]int
}

// OpenIndexed opens path with the index at path + ".fai".
func OpenIndexed(path string) (*Indexed, error) {
	lengths, err := readFaiLengths(path + ".fai")
	if err != nil {
		return nil, err
	}
	return &Indexed{
		seeker:  fasta.NewSeeker(path, path+".fai"),
		lengths: lengths,
	}, nil
}

// readFaiLengths reads the sequence lengths from a .fai file. Rows are
// name, length, offset, bases per line, bytes per line.
func readFaiLengths(path string) (map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fasta index: %w", err)
	}
	defer f.Close()

	lengths := make(map[string]int)
	scanner := bufio.NewScanner(f)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if line == "" {
			continue
		}
		col := strings.Split(line, "\t")
		if len(col) != 5 {
			return nil, fmt.Errorf("malformed fasta index %s at line %d", path, lineNumber)
		}
		n, err := strconv.Atoi(col[1])
		if err != nil {
			return nil, fmt.Errorf("malformed fasta index %s at line %d: %w", path, lineNumber, err)
		}
		lengths[col[0]] = n
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan fasta index: %w", err)
	}
	return lengths, nil
}

// Fetch implements Sequencer.
func (x *Indexed) Fetch(chrom string, start1, end1 int) (string, error) {
	length, ok := x.lengths[chrom]
	if !ok {
		return "", fmt.Errorf("%s: %w", chrom, ErrUnknownSequence)
	}
	s, e, ok := clamp(start1, end1, length)
	if !ok {
		return "", nil
	}

	x.mu.Lock()
	bases, err := fasta.SeekByName(x.seeker, chrom, s-1, e)
	x.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("fetch %s:%d-%d: %w", chrom, s, e, err)
	}
	dna.AllToUpper(bases)
	return dna.BasesToString(bases), nil
}

// Length implements Sequencer.
func (x *Indexed) Length(chrom string) (int, bool) {
	n, ok := x.lengths[chrom]
	return n, ok
}

// Close releases the file handle.
func (x *Indexed) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.seeker.Close()
}
