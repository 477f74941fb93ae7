package genotype

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"go.uber.org/zap"
)

// Reads with any of these flags never contribute evidence.
const skipFlags = sam.Unmapped | sam.Secondary | sam.Duplicate | sam.QCFail | sam.Supplementary

var (
	tagNM = sam.NewTag("NM")
	tagSM = sam.NewTag("SM")
)

type bamFile struct {
	path   string
	f      *os.File
	r      *bam.Reader
	idx    *bam.Index
	refs   map[string]*sam.Reference
	sample string
}

// BAMSource reads evidence from one indexed BAM file per sample.
// It is not safe for concurrent use.
type BAMSource struct {
	files   []*bamFile
	samples []string
	minMapQ int
	logger  *zap.Logger
}

// OpenBAMs opens every path together with its .bai index. The sample name
// of a file is the SM of its first read group, or the file name without
// extension when there is none.
func OpenBAMs(paths []string, minMapQ int) (*BAMSource, error) {
	s := &BAMSource{minMapQ: minMapQ, logger: zap.NewNop()}
	for _, p := range paths {
		bf, err := openBAM(p)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.files = append(s.files, bf)
		s.samples = append(s.samples, bf.sample)
	}
	return s, nil
}

func openBAM(path string) (*bamFile, error) {
	idxPath, err := findIndex(path)
	if err != nil {
		return nil, err
	}
	fi, err := os.Open(idxPath)
	if err != nil {
		return nil, fmt.Errorf("open BAM index: %w", err)
	}
	defer fi.Close()
	idx, err := bam.ReadIndex(fi)
	if err != nil {
		return nil, fmt.Errorf("read BAM index %s: %w", idxPath, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open BAM: %w", err)
	}
	r, err := bam.NewReader(f, 1)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read BAM header %s: %w", path, err)
	}

	bf := &bamFile{path: path, f: f, r: r, idx: idx, refs: make(map[string]*sam.Reference)}
	for _, ref := range r.Header().Refs() {
		bf.refs[ref.Name()] = ref
	}
	for _, rg := range r.Header().RGs() {
		if sm := rg.Get(tagSM); sm != "" {
			bf.sample = sm
			break
		}
	}
	if bf.sample == "" {
		bf.sample = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return bf, nil
}

// findIndex looks for x.bam.bai, then x.bai.
func findIndex(path string) (string, error) {
	candidates := []string{path + ".bai", strings.TrimSuffix(path, ".bam") + ".bai"}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("BAM index not found for %s", path)
}

// Restrict closes the files whose sample keep rejects and returns the
// dropped sample names.
func (s *BAMSource) Restrict(keep func(sample string) bool) []string {
	var dropped []string
	files := s.files[:0]
	samples := s.samples[:0]
	for _, bf := range s.files {
		if keep(bf.sample) {
			files = append(files, bf)
			samples = append(samples, bf.sample)
			continue
		}
		bf.close()
		dropped = append(dropped, bf.sample)
	}
	s.files, s.samples = files, samples
	return dropped
}

// SetLogger sets the logger for debug messages.
func (s *BAMSource) SetLogger(l *zap.Logger) {
	s.logger = l
}

// Samples returns one sample name per BAM file.
func (s *BAMSource) Samples() []string {
	return s.samples
}

// Observe visits the usable reads of sample overlapping site.
func (s *BAMSource) Observe(sample int, site Site, visit func(Observation) error) error {
	if sample < 0 || sample >= len(s.files) {
		return fmt.Errorf("sample index %d out of range", sample)
	}
	bf := s.files[sample]
	ref, ok := bf.refs[site.Chrom]
	if !ok {
		return nil
	}

	// one base either side covers the indel anchor and the base after it
	beg := max(site.Pos1-2, 0)
	end := site.End1() + 1
	chunks, err := bf.idx.Chunks(ref, beg, end)
	if err != nil {
		s.logger.Debug("no indexed reads at site",
			zap.String("file", bf.path),
			zap.String("site", site.String()),
			zap.Error(err))
		return nil
	}

	it, err := bam.NewIterator(bf.r, chunks)
	if err != nil {
		return fmt.Errorf("query %s: %w", bf.path, err)
	}
	defer it.Close()

	for it.Next() {
		rec := it.Record()
		if rec.Ref == nil || rec.Ref.ID() != ref.ID() {
			continue
		}
		obs, ok := observe(rec, site, s.minMapQ)
		if !ok {
			continue
		}
		if err := visit(obs); err != nil {
			return err
		}
	}
	if err := it.Error(); err != nil {
		return fmt.Errorf("read %s: %w", bf.path, err)
	}
	return nil
}

// Close closes every BAM file.
func (s *BAMSource) Close() error {
	var errs []error
	for _, bf := range s.files {
		errs = append(errs, bf.close())
	}
	s.files = nil
	return errors.Join(errs...)
}

func (bf *bamFile) close() error {
	return errors.Join(bf.r.Close(), bf.f.Close())
}

// observe derives the evidence rec gives at site. Reads that are filtered
// out or do not span the site report false.
func observe(rec *sam.Record, site Site, minMapQ int) (Observation, bool) {
	if rec.Flags&skipFlags != 0 || int(rec.MapQ) < minMapQ || len(site.Alt) == 0 {
		return Observation{}, false
	}

	var (
		allele int
		qoff   int
		ok     bool
	)
	if len(site.Ref) == len(site.Alt[0]) {
		allele, qoff, ok = substitutionAllele(rec, site)
	} else {
		allele, qoff, ok = indelAllele(rec, site)
	}
	if !ok {
		return Observation{}, false
	}

	readLen := rec.Seq.Length
	obs := Observation{
		Allele:     allele,
		MapQual:    int(rec.MapQ),
		Reverse:    rec.Flags&sam.Reverse != 0,
		Cycle:      qoff,
		ReadLen:    readLen,
		Mismatches: editDistance(rec),
	}
	if qoff < len(rec.Qual) && rec.Qual[qoff] != 0xff {
		obs.BaseQual = int(rec.Qual[qoff])
	}
	if obs.Reverse && readLen > 0 {
		obs.Cycle = readLen - 1 - qoff
	}
	return obs, true
}

// queryOffset returns the read offset aligned to the 0-based reference
// position pos, or false when pos falls in a deletion, a skip or outside
// the alignment.
func queryOffset(rec *sam.Record, pos int) (int, bool) {
	ref, q := rec.Pos, 0
	for _, op := range rec.Cigar {
		n := op.Len()
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			if pos >= ref && pos < ref+n {
				return q + pos - ref, true
			}
		}
		c := op.Type().Consumes()
		ref += n * c.Reference
		q += n * c.Query
		if ref > pos {
			return 0, false
		}
	}
	return 0, false
}

// substitutionAllele compares the read bases over the REF span with the
// alleles. The quality is taken at the first base where REF and ALT differ.
func substitutionAllele(rec *sam.Record, site Site) (int, int, bool) {
	seq := rec.Seq.Expand()
	start := site.Pos1 - 1
	read := make([]byte, len(site.Ref))
	first := -1
	for i := range read {
		q, ok := queryOffset(rec, start+i)
		if !ok || q >= len(seq) {
			return 0, 0, false
		}
		read[i] = seq[q]
		if first < 0 && site.Ref[i] != site.Alt[0][i] {
			first = q
		}
	}
	if first < 0 {
		first, _ = queryOffset(rec, start)
	}

	switch {
	case bytes.EqualFold(read, []byte(site.Ref)):
		return alleleRef, first, true
	case bytes.EqualFold(read, []byte(site.Alt[0])):
		return alleleAlt, first, true
	default:
		return alleleOther, first, true
	}
}

type indelEvent struct {
	pos int // 0-based reference position of the first affected base
	ins bool
	len int
	q   int // read offset of inserted bases
}

// indelAllele decides whether the read carries the indel right after the
// anchor base, a different indel there, or the reference. The quality is
// taken at the anchor base.
func indelAllele(rec *sam.Record, site Site) (int, int, bool) {
	ref, alt := site.Ref, site.Alt[0]
	p := 0
	for p < len(ref) && p < len(alt) && strings.EqualFold(ref[p:p+1], alt[p:p+1]) {
		p++
	}
	event := site.Pos1 - 1 + p
	anchor := event - 1
	delLen := len(ref) - len(alt)
	span := event + max(delLen, 0)

	if rec.Pos > anchor || rec.End() <= span {
		return 0, 0, false
	}
	qAnchor, ok := queryOffset(rec, anchor)
	if !ok {
		return 0, 0, false
	}

	var events []indelEvent
	pos, q := rec.Pos, 0
	for _, op := range rec.Cigar {
		n := op.Len()
		switch op.Type() {
		case sam.CigarInsertion:
			events = append(events, indelEvent{pos: pos, ins: true, len: n, q: q})
		case sam.CigarDeletion:
			events = append(events, indelEvent{pos: pos, len: n})
		}
		c := op.Type().Consumes()
		pos += n * c.Reference
		q += n * c.Query
	}

	allele := alleleRef
	for _, e := range events {
		if e.pos < event || e.pos > span {
			continue
		}
		if e.pos == event && matchesIndel(rec, e, alt[p:], delLen) {
			return alleleAlt, qAnchor, true
		}
		allele = alleleOther
	}
	return allele, qAnchor, true
}

func matchesIndel(rec *sam.Record, e indelEvent, inserted string, delLen int) bool {
	if !e.ins {
		return delLen > 0 && e.len == delLen
	}
	if delLen >= 0 || e.len != -delLen {
		return false
	}
	seq := rec.Seq.Expand()
	if e.q+e.len > len(seq) {
		return false
	}
	return bytes.EqualFold(seq[e.q:e.q+e.len], []byte(inserted[:e.len]))
}

// editDistance returns the NM tag, or 0 when it is absent.
func editDistance(rec *sam.Record) int {
	aux, ok := rec.Tag(tagNM[:])
	if !ok {
		return 0
	}
	switch v := aux.Value().(type) {
	case uint8:
		return int(v)
	case int8:
		return int(v)
	case uint16:
		return int(v)
	case int16:
		return int(v)
	case uint32:
		return int(v)
	case int32:
		return int(v)
	default:
		return 0
	}
}
