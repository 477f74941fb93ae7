package vcf

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/SeqOne/vt/internal/genome"
	"github.com/SeqOne/vt/internal/vidx"
)

// Mode is the access strategy of an OrderedReader, fixed at open time.
type Mode int

const (
	// ModeSequential streams the container in its native order.
	ModeSequential Mode = iota
	// ModeTabix queries a bgzip-compressed VCF through its .tbi index.
	ModeTabix
	// ModeSidecar queries a plain-text VCF through its .vidx index.
	ModeSidecar
)

func (m Mode) String() string {
	switch m {
	case ModeTabix:
		return "tabix"
	case ModeSidecar:
		return "sidecar"
	default:
		return "sequential"
	}
}

// ErrClosed is returned by Read after Close.
var ErrClosed = errors.New("vcf: reader closed")

// FormatError reports an unreadable or unrecognized container, or a missing
// index when random access was requested.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// Option configures an OrderedReader.
type Option func(*OrderedReader)

// WithLogger sets the logger used for warnings.
func WithLogger(l *zap.Logger) Option {
	return func(r *OrderedReader) { r.logger = l }
}

// WithStrictIntervals drops records outside the intervals in sequential
// mode. By default sequential mode passes every record through.
func WithStrictIntervals(strict bool) Option {
	return func(r *OrderedReader) { r.strict = strict }
}

// WithPool shares a record pool with the reader.
func WithPool(p *Pool) Option {
	return func(r *OrderedReader) { r.pool = p }
}

// OrderedReader yields records in container order (sequential mode) or
// interval by interval in caller order (random-access modes).
type OrderedReader struct {
	path      string
	mode      Mode
	header    *Header
	pool      *Pool
	logger    *zap.Logger
	intervals []genome.Interval

	strict           bool
	filter           *genome.Tree
	intervalsIgnored bool

	parser  *Parser
	closers []io.Closer

	source  regionSource
	query   regionQuery
	current genome.Interval
	cursor  int

	closed bool
}

// regionSource answers index queries for one interval at a time.
type regionSource interface {
	Query(iv genome.Interval) (regionQuery, error)
	Close() error
}

// regionQuery yields raw data lines for one interval.
type regionQuery interface {
	Next() (string, error)
	Close() error
}

// container describes the outer encoding of the input file.
type container int

const (
	containerPlain container = iota
	containerGzip
	containerBGZF
)

// Open opens path ("-" or "" for stdin) for ordered reading over the given
// intervals. A nil or empty interval list reads the whole container.
func Open(path string, intervals []genome.Interval, opts ...Option) (*OrderedReader, error) {
	r := &OrderedReader{
		path:      path,
		intervals: intervals,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.pool == nil {
		r.pool = NewPool()
	}

	if path == "" || path == "-" {
		r.path = "-"
		if err := r.openStream(os.Stdin, containerPlain); err != nil {
			return nil, err
		}
		if len(intervals) > 0 {
			r.ignoreIntervals("standard input cannot be indexed")
		}
		return r, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vcf file: %w", err)
	}

	kind, err := sniffContainer(file)
	if err != nil {
		file.Close()
		return nil, err
	}

	r.closers = append(r.closers, file)
	if err := r.openStream(file, kind); err != nil {
		r.Close()
		return nil, err
	}

	if len(intervals) == 0 {
		return r, nil
	}

	switch {
	case kind == containerBGZF && fileExists(path+".tbi"):
		src, err := openTabix(path)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("open tabix index: %w", err)
		}
		r.switchToRandomAccess(ModeTabix, src)
	case kind == containerPlain && vidx.Exists(path):
		src, err := openSidecar(path)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("open sidecar index: %w", err)
		}
		r.switchToRandomAccess(ModeSidecar, src)
	default:
		r.ignoreIntervals("no index found")
	}

	return r, nil
}

// sniffContainer detects gzip and BGZF magic and rewinds the file.
func sniffContainer(f *os.File) (container, error) {
	buf := make([]byte, 18)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		if err == io.EOF {
			return 0, &FormatError{Path: f.Name(), Reason: "empty file"}
		}
		return 0, fmt.Errorf("read vcf header: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek vcf file: %w", err)
	}
	buf = buf[:n]

	if len(buf) < 2 || buf[0] != 0x1f || buf[1] != 0x8b {
		return containerPlain, nil
	}
	// BGZF: FEXTRA flag set and a "BC" extra subfield
	if len(buf) >= 14 && buf[3]&0x04 != 0 && buf[12] == 'B' && buf[13] == 'C' {
		return containerBGZF, nil
	}
	return containerGzip, nil
}

// openStream builds the decompressing parser and checks the content is VCF
// text.
func (r *OrderedReader) openStream(src io.Reader, kind container) error {
	var text io.Reader = src
	if kind != containerPlain {
		gz, err := gzip.NewReader(src)
		if err != nil {
			return &FormatError{Path: r.path, Reason: fmt.Sprintf("corrupt compressed stream: %v", err)}
		}
		r.closers = append(r.closers, gz)
		text = gz
	}

	br := bufio.NewReaderSize(text, 64*1024)
	head, err := br.Peek(16)
	if err != nil && len(head) == 0 {
		return &FormatError{Path: r.path, Reason: "empty variant container"}
	}
	switch {
	case bytes.HasPrefix(head, []byte("BCF")):
		return &FormatError{Path: r.path, Reason: "BCF containers are not supported; convert to VCF"}
	case bytes.HasPrefix(head, []byte("##fileformat=VCF")), bytes.HasPrefix(head, []byte("#CHROM")):
	default:
		return &FormatError{Path: r.path, Reason: "unrecognized variant container"}
	}

	p, err := NewParser(br)
	if err != nil {
		return err
	}
	r.parser = p
	r.header = p.Header()
	return nil
}

func (r *OrderedReader) switchToRandomAccess(mode Mode, src regionSource) {
	r.mode = mode
	r.source = src
	r.parser = nil
	r.logger.Debug("random access enabled",
		zap.String("path", r.path),
		zap.Stringer("mode", mode),
		zap.Int("intervals", len(r.intervals)))
}

// ignoreIntervals falls back to sequential reading and surfaces the fact.
func (r *OrderedReader) ignoreIntervals(reason string) {
	r.intervalsIgnored = true
	if r.strict {
		r.filter = genome.BuildTree(r.intervals)
		r.logger.Warn("intervals require an index; filtering sequentially",
			zap.String("path", r.path),
			zap.String("reason", reason))
		return
	}
	r.logger.Warn("intervals ignored; reading the whole file",
		zap.String("path", r.path),
		zap.String("reason", reason))
}

// Read returns the next record, or io.EOF when the stream or the interval
// list is exhausted. The caller owns the record until it is released.
func (r *OrderedReader) Read() (*Record, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if r.mode == ModeSequential {
		return r.readSequential()
	}
	return r.readRandom()
}

func (r *OrderedReader) readSequential() (*Record, error) {
	for {
		rec := r.pool.Acquire()
		if err := r.parser.ReadInto(rec); err != nil {
			r.pool.Release(rec)
			return nil, err
		}
		if r.filter != nil && !r.filter.Overlaps(rec.Chrom, int(rec.Pos), int(rec.End())) {
			r.pool.Release(rec)
			continue
		}
		return rec, nil
	}
}

func (r *OrderedReader) readRandom() (*Record, error) {
	for {
		if r.query == nil {
			if r.cursor >= len(r.intervals) {
				return nil, io.EOF
			}
			r.current = r.intervals[r.cursor]
			r.cursor++
			q, err := r.source.Query(r.current)
			if err != nil {
				return nil, fmt.Errorf("query %s: %w", r.current, err)
			}
			r.query = q
		}

		line, err := r.query.Next()
		if err == io.EOF {
			r.query.Close()
			r.query = nil
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", r.current, err)
		}
		if line == "" || line[0] == '#' {
			continue
		}

		rec := r.pool.Acquire()
		if err := ParseLine(line, rec); err != nil {
			r.pool.Release(rec)
			return nil, err
		}
		// index chunks may carry neighbouring records
		if !r.current.Overlaps(rec.Chrom, int(rec.Pos), int(rec.End())) {
			r.pool.Release(rec)
			continue
		}
		return rec, nil
	}
}

// Acquire returns an empty record from the reader's pool.
func (r *OrderedReader) Acquire() *Record {
	return r.pool.Acquire()
}

// Release returns a record to the reader's pool.
func (r *OrderedReader) Release(rec *Record) {
	r.pool.Release(rec)
}

// Pool returns the reader's record pool.
func (r *OrderedReader) Pool() *Pool {
	return r.pool
}

// Header returns the VCF header.
func (r *OrderedReader) Header() *Header {
	return r.header
}

// Mode returns the access mode chosen at open time.
func (r *OrderedReader) Mode() Mode {
	return r.mode
}

// IntervalsIgnored reports whether intervals were supplied but could not be
// honored through an index.
func (r *OrderedReader) IntervalsIgnored() bool {
	return r.intervalsIgnored
}

// LineNumber returns the current line in sequential mode, 0 otherwise.
func (r *OrderedReader) LineNumber() int {
	if r.parser == nil {
		return 0
	}
	return r.parser.LineNumber()
}

// Close releases file handles. It is idempotent.
func (r *OrderedReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var first error
	if r.query != nil {
		if err := r.query.Close(); err != nil && first == nil {
			first = err
		}
		r.query = nil
	}
	if r.source != nil {
		if err := r.source.Close(); err != nil && first == nil {
			first = err
		}
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	r.closers = nil
	return first
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
