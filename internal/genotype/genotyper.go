package genotype

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/SeqOne/vt/internal/normalize"
	"github.com/SeqOne/vt/internal/vcf"
)

// ReadSource supplies the reads of each sample overlapping a site.
type ReadSource interface {
	Samples() []string
	// Observe calls visit once per usable read of sample covering site.
	Observe(sample int, site Site, visit func(Observation) error) error
}

// ResultSink receives every finalized site in input order.
type ResultSink interface {
	Add(res *SiteResult) error
	Flush() error
}

// RecordWriter receives genotyped records in input order.
type RecordWriter interface {
	Write(rec *vcf.Record) error
	Flush() error
}

// Options configures a Genotyper.
type Options struct {
	// Contamination is the expected fraction of reads from another
	// individual, applied to every read without its own estimate.
	Contamination float64
	// MotifTag is the INFO field holding a repeat motif written by the
	// indel annotator; it is carried into SiteResult.Motif.
	MotifTag string
	// Normalizer, when set, left-aligns indel sites before reads are
	// matched against them. Records are written with their input alleles.
	Normalizer *normalize.Manipulator
}

// Stats counts what happened to the sites of one run.
type Stats struct {
	Sites        int
	Genotyped    int
	Skipped      int
	Observations int
}

// Genotyper drives sites through a SiteRecord one sample at a time.
type Genotyper struct {
	source ReadSource
	opts   Options
	pool   *Pool
	sinks  []ResultSink
	logger *zap.Logger
}

// NewGenotyper creates a genotyper reading evidence from source.
func NewGenotyper(source ReadSource, opts Options) *Genotyper {
	if opts.MotifTag == "" {
		opts.MotifTag = "MOTIF"
	}
	return &Genotyper{
		source: source,
		opts:   opts,
		pool:   NewPool(),
		logger: zap.NewNop(),
	}
}

// SetLogger sets the logger for warning and info messages.
func (g *Genotyper) SetLogger(l *zap.Logger) {
	g.logger = l
}

// AddSink registers an additional consumer of site results.
func (g *Genotyper) AddSink(s ResultSink) {
	g.sinks = append(g.sinks, s)
}

// PrepareHeader replaces the sample columns with the source's samples and
// adds the genotype definitions.
func (g *Genotyper) PrepareHeader(h *vcf.Header) {
	h.SetSamples(g.source.Samples())
	AddHeaderFields(h)
}

// Genotype computes the evidence of every sample at one site.
func (g *Genotyper) Genotype(site Site, motif string) (*SiteResult, int, error) {
	rec := g.pool.Acquire()
	// a record abandoned mid-site is not reused
	defer func() { _ = g.pool.Release(rec) }()

	nSamples := len(g.source.Samples())
	if err := rec.Open(site, motif, nSamples); err != nil {
		return nil, 0, err
	}

	var seen int
	for i := 0; i < nSamples; i++ {
		err := g.source.Observe(i, site, func(obs Observation) error {
			if obs.Contamination == 0 {
				obs.Contamination = g.opts.Contamination
			}
			seen++
			return rec.ProcessRead(i, obs)
		})
		if err != nil {
			return nil, seen, fmt.Errorf("sample %s: %w", g.source.Samples()[i], err)
		}
		if err := rec.FlushSample(i); err != nil {
			return nil, seen, err
		}
	}

	res, err := rec.FlushVariant()
	return res, seen, err
}

// Run genotypes every record of reader and writes it to writer with the
// sample columns replaced. Records without a sequence alternate allele are
// written with missing calls. Any error stops the run.
func (g *Genotyper) Run(reader vcf.RecordReader, writer RecordWriter) (Stats, error) {
	var stats Stats
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("read record: %w", err)
		}

		if err := g.process(rec, writer, &stats); err != nil {
			reader.Release(rec)
			return stats, err
		}
		reader.Release(rec)
	}

	for _, s := range g.sinks {
		if err := s.Flush(); err != nil {
			return stats, err
		}
	}

	g.logger.Info("genotyping complete",
		zap.Int("sites", stats.Sites),
		zap.Int("genotyped", stats.Genotyped),
		zap.Int("skipped", stats.Skipped),
		zap.Int("observations", stats.Observations))

	return stats, writer.Flush()
}

func (g *Genotyper) process(rec *vcf.Record, writer RecordWriter, stats *Stats) error {
	stats.Sites++

	if reason := notGenotypable(rec); reason != "" {
		g.logger.Warn("site not genotyped",
			zap.String("chrom", rec.Chrom),
			zap.Int64("pos", rec.Pos),
			zap.String("reason", reason))
		stats.Skipped++
		rec.SampleColumns = missingColumns(len(g.source.Samples()))
		return writeRecord(writer, rec)
	}

	site := g.siteOf(rec)
	motif, _ := rec.Info.Get(g.opts.MotifTag)

	res, n, err := g.Genotype(site, motif)
	stats.Observations += n
	if err != nil {
		return fmt.Errorf("%s: %w", site, err)
	}
	stats.Genotyped++

	res.Apply(rec)
	for _, s := range g.sinks {
		if err := s.Add(res); err != nil {
			return err
		}
	}
	return writeRecord(writer, rec)
}

// siteOf returns the site genotyped for rec, normalized when a normalizer
// is configured and rec is an indel.
func (g *Genotyper) siteOf(rec *vcf.Record) Site {
	site := Site{Chrom: rec.Chrom, Pos1: int(rec.Pos), Ref: rec.Ref, Alt: rec.Alt}
	if g.opts.Normalizer == nil || !rec.IsIndel() {
		return site
	}
	norm, err := g.opts.Normalizer.Normalize(rec.Chrom, site.Pos1, rec.Alleles())
	if err != nil {
		g.logger.Warn("site not normalized",
			zap.String("site", site.String()),
			zap.Error(err))
		return site
	}
	if norm.Changed {
		g.logger.Debug("site normalized",
			zap.String("from", site.String()),
			zap.Int("pos", norm.Pos1))
		site = Site{Chrom: rec.Chrom, Pos1: norm.Pos1, Ref: norm.Alleles[0], Alt: norm.Alleles[1:]}
	}
	return site
}

func writeRecord(w RecordWriter, rec *vcf.Record) error {
	if err := w.Write(rec); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// notGenotypable returns why rec cannot be genotyped, or "" when it can.
// Only biallelic sites with a sequence alternate are genotyped; AD and PL
// are written for exactly two alleles.
func notGenotypable(rec *vcf.Record) string {
	if rec.Ref == "" || len(rec.Alt) == 0 {
		return "no alternate allele"
	}
	if len(rec.Alt) > 1 {
		return "multi-allelic site"
	}
	alt := rec.Alt[0]
	if alt == "" || alt == "." || alt == "*" || strings.ContainsAny(alt, "<>[]") {
		return "no sequence alternate allele"
	}
	return ""
}
