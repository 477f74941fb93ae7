// Package genome provides genomic coordinate types shared by the readers and
// the normalizer.
package genome

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// MaxEnd is the end coordinate used for intervals that span a whole sequence.
const MaxEnd = math.MaxInt32

// Interval is a 1-based inclusive range on a named sequence.
type Interval struct {
	Seq    string
	Start1 int
	End1   int
}

// NewInterval validates and returns an interval.
func NewInterval(seq string, start1, end1 int) (Interval, error) {
	if seq == "" {
		return Interval{}, fmt.Errorf("interval has empty sequence name")
	}
	if start1 < 1 {
		return Interval{}, fmt.Errorf("interval %s:%d-%d: start must be >= 1", seq, start1, end1)
	}
	if end1 < start1 {
		return Interval{}, fmt.Errorf("interval %s:%d-%d: end before start", seq, start1, end1)
	}
	return Interval{Seq: seq, Start1: start1, End1: end1}, nil
}

func (iv Interval) String() string {
	if iv.End1 == MaxEnd {
		return fmt.Sprintf("%s:%d-", iv.Seq, iv.Start1)
	}
	return fmt.Sprintf("%s:%d-%d", iv.Seq, iv.Start1, iv.End1)
}

// Len returns the number of bases covered.
func (iv Interval) Len() int {
	return iv.End1 - iv.Start1 + 1
}

// Contains reports whether the 1-based position lies inside the interval.
func (iv Interval) Contains(seq string, pos1 int) bool {
	return iv.Seq == seq && pos1 >= iv.Start1 && pos1 <= iv.End1
}

// Overlaps reports whether [start1, end1] on seq intersects the interval.
func (iv Interval) Overlaps(seq string, start1, end1 int) bool {
	return iv.Seq == seq && start1 <= iv.End1 && end1 >= iv.Start1
}

// Equal compares by sequence and start.
func (iv Interval) Equal(o Interval) bool {
	return iv.Seq == o.Seq && iv.Start1 == o.Start1
}

// Less orders by sequence name then start.
func (iv Interval) Less(o Interval) bool {
	if iv.Seq != o.Seq {
		return iv.Seq < o.Seq
	}
	return iv.Start1 < o.Start1
}

// Parse parses "seq:start-end", "seq:pos" or a bare "seq".
// Thousands separators in coordinates are accepted.
func Parse(token string) (Interval, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Interval{}, fmt.Errorf("empty interval")
	}

	colon := strings.LastIndexByte(token, ':')
	if colon < 0 {
		return NewInterval(token, 1, MaxEnd)
	}

	seq := token[:colon]
	rng := strings.ReplaceAll(token[colon+1:], ",", "")

	startStr, endStr, hasDash := strings.Cut(rng, "-")
	start, err := strconv.Atoi(startStr)
	if err != nil {
		return Interval{}, fmt.Errorf("interval %q: invalid start %q", token, startStr)
	}
	end := start
	if hasDash {
		if endStr == "" {
			end = MaxEnd
		} else if end, err = strconv.Atoi(endStr); err != nil {
			return Interval{}, fmt.Errorf("interval %q: invalid end %q", token, endStr)
		}
	}

	return NewInterval(seq, start, end)
}

// ParseList parses a comma-separated list of intervals. Commas inside
// coordinates are not supported here; use the file form for those.
func ParseList(list string) ([]Interval, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	var out []Interval
	for _, tok := range strings.Split(list, ",") {
		if strings.TrimSpace(tok) == "" {
			continue
		}
		iv, err := Parse(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, nil
}

// ReadIntervalFile reads one interval per line. Blank lines and lines
// starting with '#' are skipped. Gzipped files are detected by extension.
func ReadIntervalFile(path string) ([]Interval, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open interval file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	return readIntervals(r)
}

func readIntervals(r io.Reader) ([]Interval, error) {
	var out []Interval
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// BED-like "seq start end" rows are accepted as well (0-based start).
		if fields := strings.Fields(line); len(fields) >= 3 {
			start, err1 := strconv.Atoi(fields[1])
			end, err2 := strconv.Atoi(fields[2])
			if err1 == nil && err2 == nil {
				iv, err := NewInterval(fields[0], start+1, end)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNumber, err)
				}
				out = append(out, iv)
				continue
			}
		}
		iv, err := Parse(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNumber, err)
		}
		out = append(out, iv)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan interval file: %w", err)
	}
	return out, nil
}

// Collect merges file-based and literal intervals into one sequence: file
// intervals first, then literal ones, each in the order given.
func Collect(intervalFile, literal string) ([]Interval, error) {
	var out []Interval
	if intervalFile != "" {
		ivs, err := ReadIntervalFile(intervalFile)
		if err != nil {
			return nil, err
		}
		out = append(out, ivs...)
	}
	ivs, err := ParseList(literal)
	if err != nil {
		return nil, err
	}
	return append(out, ivs...), nil
}
