// Package annotate runs the classify, normalize and repeat annotation chain
// over a stream of VCF records.
package annotate

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/SeqOne/vt/internal/normalize"
	"github.com/SeqOne/vt/internal/vcf"
	"github.com/SeqOne/vt/internal/vntr"
)

// OldVariantTag is the INFO ID recording the pre-normalization encoding.
const OldVariantTag = "OLD_VARIANT"

// Options configures an Annotator.
type Options struct {
	// Workers is the number of annotation goroutines; 0 means NumCPU and 1
	// is a strictly sequential chain.
	Workers int
	// NormalizeOnly skips repeat annotation.
	NormalizeOnly bool
	// AddVNTRRecord emits a companion <VNTR> record after each annotated
	// indel.
	AddVNTRRecord bool
}

// Stats counts what happened to the records of one run.
type Stats struct {
	Records     int
	Normalized  int
	Annotated   int
	Skipped     int
	VNTRRecords int
}

// Outcome is what Annotate did to a single record.
type Outcome struct {
	Normalized bool
	Annotated  bool
	VNTR       *vntr.Result // set when a companion record should follow
}

// RecordWriter receives records in input order.
type RecordWriter interface {
	Write(rec *vcf.Record) error
	Flush() error
}

// Annotator normalizes indels and describes their repeat context.
type Annotator struct {
	manip      *normalize.Manipulator
	repeats    *vntr.Annotator
	opts       Options
	oldVariant string
	logger     *zap.Logger
}

// NewAnnotator creates an annotator. repeats may be nil when
// opts.NormalizeOnly is set.
func NewAnnotator(m *normalize.Manipulator, repeats *vntr.Annotator, opts Options) *Annotator {
	return &Annotator{
		manip:      m,
		repeats:    repeats,
		opts:       opts,
		oldVariant: OldVariantTag,
		logger:     zap.NewNop(),
	}
}

// SetLogger sets the logger for warning and info messages.
func (a *Annotator) SetLogger(l *zap.Logger) {
	a.logger = l
	if a.repeats != nil {
		a.repeats.SetLogger(l)
	}
}

// PrepareHeader adds the INFO definitions this annotator writes to h.
func (a *Annotator) PrepareHeader(h *vcf.Header, override bool) {
	a.oldVariant = h.AddInfo(OldVariantTag, "1", "String", "Original chr:pos:ref:alt encoding", override)
	if a.repeats != nil && !a.opts.NormalizeOnly {
		a.repeats.RegisterHeader(h, override)
	}
}

// Annotate processes one record in place. SNPs, MNPs and reference records
// are left untouched. Indels are left-aligned and trimmed, with the old
// encoding kept in OLD_VARIANT when it changes, and then annotated with
// their repeat tract.
func (a *Annotator) Annotate(rec *vcf.Record) (Outcome, error) {
	var out Outcome
	v, err := a.manip.Classify(rec.Chrom, int(rec.Pos), rec.Alleles())
	if err != nil {
		return out, err
	}
	if !v.Type.IsIndel() {
		return out, nil
	}

	res, err := a.manip.Normalize(rec.Chrom, int(rec.Pos), rec.Alleles())
	if err != nil {
		return out, err
	}
	if res.Changed {
		rec.Info.Set(a.oldVariant, rec.Key())
		rec.Pos = int64(res.Pos1)
		rec.SetAlleles(res.Alleles)
		out.Normalized = true

		// the breakpoint offset moves with the alleles
		if v, err = a.manip.Classify(rec.Chrom, int(rec.Pos), rec.Alleles()); err != nil {
			return out, err
		}
	}

	if a.opts.NormalizeOnly || a.repeats == nil {
		return out, nil
	}

	vres, ok, err := a.repeats.Annotate(rec, v)
	if err != nil {
		return out, err
	}
	out.Annotated = ok
	if ok && a.opts.AddVNTRRecord {
		out.VNTR = &vres
	}
	return out, nil
}

// AnnotateAll reads every record from reader, annotates it and writes it to
// writer in input order. Records are released to the reader's pool once
// written. Records that cannot be classified or normalized are written
// unchanged and counted as skipped.
func (a *Annotator) AnnotateAll(reader vcf.RecordReader, writer RecordWriter) (Stats, error) {
	workers := workerCount(a.opts.Workers)
	items := make(chan *job, 2*workers)
	stop := make(chan struct{})
	var readErr error

	go func() {
		defer close(items)
		for seq := 0; ; seq++ {
			rec, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				readErr = fmt.Errorf("read record: %w", err)
				return
			}
			select {
			case items <- &job{seq: seq, rec: rec}:
			case <-stop:
				reader.Release(rec)
				return
			}
		}
	}()

	var stats Stats
	var once sync.Once
	halt := func() { once.Do(func() { close(stop) }) }

	done := a.annotateConcurrently(items, workers)
	err := collectInOrder(done, 4*workers, func(j *job) error {
		defer reader.Release(j.rec)
		if err := a.emit(j, reader, writer, &stats); err != nil {
			halt()
			return err
		}
		return nil
	})
	halt()
	if err != nil {
		return stats, err
	}

	if readErr != nil {
		return stats, readErr
	}

	a.logger.Info("annotation complete",
		zap.Int("records", stats.Records),
		zap.Int("normalized", stats.Normalized),
		zap.Int("annotated", stats.Annotated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("vntr_records", stats.VNTRRecords))

	return stats, writer.Flush()
}

// emit accounts for one result and writes it, followed by its companion
// VNTR record when there is one.
func (a *Annotator) emit(j *job, reader vcf.RecordReader, writer RecordWriter, stats *Stats) error {
	stats.Records++

	if j.err != nil {
		if !isRecordError(j.err) {
			return fmt.Errorf("%s:%d: %w", j.rec.Chrom, j.rec.Pos, j.err)
		}
		a.logger.Warn("record left unannotated",
			zap.String("chrom", j.rec.Chrom),
			zap.Int64("pos", j.rec.Pos),
			zap.Error(j.err))
		stats.Skipped++
	}
	if j.out.Normalized {
		stats.Normalized++
	}
	if j.out.Annotated {
		stats.Annotated++
	}

	if err := writer.Write(j.rec); err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	if j.out.VNTR == nil {
		return nil
	}
	companion := reader.Acquire()
	defer reader.Release(companion)
	if !a.repeats.VNTRRecord(companion, j.rec.Chrom, *j.out.VNTR) {
		return nil
	}
	if err := writer.Write(companion); err != nil {
		return fmt.Errorf("write VNTR record: %w", err)
	}
	stats.VNTRRecords++
	return nil
}

// isRecordError reports whether err concerns only the record at hand.
func isRecordError(err error) bool {
	var ce *normalize.CoordinateError
	var ie *normalize.InputError
	return errors.As(err, &ce) || errors.As(err, &ie)
}
