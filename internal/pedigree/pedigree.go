// Package pedigree loads PED files describing families and the sex of
// their members.
package pedigree

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Sex of an individual.
type Sex int

const (
	SexOther Sex = iota
	SexMale
	SexFemale
)

func (s Sex) String() string {
	switch s {
	case SexMale:
		return "male"
	case SexFemale:
		return "female"
	default:
		return "other"
	}
}

// ParseSex accepts 1/male and 2/female in any case; everything else is
// other.
func ParseSex(s string) Sex {
	switch strings.ToLower(s) {
	case "1", "male":
		return SexMale
	case "2", "female":
		return SexFemale
	default:
		return SexOther
	}
}

// Record is one PED line. Individuals holds more than one name when the
// individual column lists aliases separated by commas.
type Record struct {
	FamilyID    string
	Individuals []string
	Father      string
	Mother      string
	Sex         Sex
}

// ParseError reports a malformed PED line.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("pedigree line %d: %s", e.Line, e.Message)
}

// Pedigree is the read-only content of a PED file.
type Pedigree struct {
	Records []Record
	byName  map[string]int
}

// Load reads a plain or gzipped PED file.
func Load(path string) (*Pedigree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pedigree: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var r io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip pedigree: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return Parse(r)
}

// Parse reads PED lines from r. Lines starting with # are skipped.
func Parse(r io.Reader) (*Pedigree, error) {
	p := &Pedigree{byName: make(map[string]int)}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" || text[0] == '#' {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 5 {
			return nil, &ParseError{Line: line, Message: fmt.Sprintf("expected at least 5 columns, found %d", len(fields))}
		}
		rec := Record{
			FamilyID:    fields[0],
			Individuals: strings.Split(fields[1], ","),
			Father:      fields[2],
			Mother:      fields[3],
			Sex:         ParseSex(fields[4]),
		}
		for _, name := range rec.Individuals {
			p.byName[name] = len(p.Records)
		}
		p.Records = append(p.Records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read pedigree: %w", err)
	}
	return p, nil
}

// Lookup returns the record listing name.
func (p *Pedigree) Lookup(name string) (Record, bool) {
	i, ok := p.byName[name]
	if !ok {
		return Record{}, false
	}
	return p.Records[i], true
}

// Contains reports whether name is one of the individuals.
func (p *Pedigree) Contains(name string) bool {
	_, ok := p.byName[name]
	return ok
}
