package vcf

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Parser reads VCF text from a stream: the header on construction, then one
// record per ReadInto call.
type Parser struct {
	reader     *bufio.Reader
	lineNumber int
	header     *Header
}

// NewParser creates a parser over decompressed VCF text and consumes the
// header.
func NewParser(r io.Reader) (*Parser, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, 64*1024)
	}
	p := &Parser{reader: br, header: &Header{}}
	if err := p.parseHeader(); err != nil {
		return nil, err
	}
	return p, nil
}

// parseHeader reads and stores VCF header lines.
func (p *Parser) parseHeader() error {
	for {
		line, err := p.reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("read header: %w", err)
		}
		p.lineNumber++

		line = strings.TrimRight(line, "\r\n")

		if strings.HasPrefix(line, "##") {
			p.header.Meta = append(p.header.Meta, line)
			continue
		}

		if strings.HasPrefix(line, "#CHROM") {
			p.header.setColumnLine(line)
			return nil
		}

		return &ParseError{
			Line:    p.lineNumber,
			Message: "expected #CHROM header line",
		}
	}

	return &ParseError{
		Line:    p.lineNumber,
		Message: "no #CHROM header line found",
	}
}

// ReadInto parses the next data line into rec. It returns io.EOF when the
// stream is exhausted.
func (p *Parser) ReadInto(rec *Record) error {
	for {
		line, err := p.reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF {
				return io.EOF
			}
			return fmt.Errorf("read variant line: %w", err)
		}
		p.lineNumber++

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		return parseLine(line, p.lineNumber, rec)
	}
}

// Header returns the parsed header.
func (p *Parser) Header() *Header {
	return p.header
}

// LineNumber returns the current line number being processed.
func (p *Parser) LineNumber() int {
	return p.lineNumber
}

// ParseLine parses a single VCF data line into rec.
func ParseLine(line string, rec *Record) error {
	return parseLine(line, 0, rec)
}

func parseLine(line string, lineNumber int, rec *Record) error {
	rec.Reset()

	// Split the eight fixed columns; the remainder is kept verbatim.
	var cols [8]string
	rest := line
	for i := 0; i < 8; i++ {
		var col string
		var found bool
		col, rest, found = strings.Cut(rest, "\t")
		cols[i] = col
		if !found {
			if i < 7 {
				return &ParseError{
					Line:    lineNumber,
					Message: fmt.Sprintf("expected at least 8 columns, found %d", i+1),
				}
			}
			rest = ""
			break
		}
	}

	pos, err := strconv.ParseInt(cols[1], 10, 64)
	if err != nil || pos < 0 {
		return &ParseError{
			Line:    lineNumber,
			Message: fmt.Sprintf("invalid position: %s", cols[1]),
		}
	}
	if cols[3] == "" || cols[3] == "." {
		return &ParseError{
			Line:    lineNumber,
			Message: "missing REF allele",
		}
	}

	rec.Chrom = cols[0]
	rec.Pos = pos
	rec.ID = dotless(cols[2])
	rec.Ref = cols[3]
	if cols[4] != "." && cols[4] != "" {
		rec.Alt = append(rec.Alt, strings.Split(cols[4], ",")...)
	}
	rec.Qual = dotless(cols[5])
	rec.Filter = dotless(cols[6])
	rec.Info.parse(cols[7])
	rec.SampleColumns = rest

	return nil
}

func dotless(s string) string {
	if s == "." {
		return ""
	}
	return s
}

// ParseError represents an error during VCF parsing with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("vcf parse error: %s", e.Message)
	}
	return fmt.Sprintf("vcf parse error at line %d: %s", e.Line, e.Message)
}
