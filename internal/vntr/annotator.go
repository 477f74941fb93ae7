package vntr

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"go.uber.org/zap"

	"github.com/SeqOne/vt/internal/normalize"
	"github.com/SeqOne/vt/internal/vcf"
)

const (
	// window is how far a tract is followed on each side of the breakpoint.
	window = 1024
	// integratedMinPurity is the purity a fuzzy tract needs to replace the
	// exact one in ModeIntegrated.
	integratedMinPurity = 0.8
	// probeFlank is the minimum flank GenerateProbes must anchor.
	probeFlank = 8
)

// Tags holds the INFO IDs written by an Annotator. They differ from the
// defaults when the input header already defines a field and override was
// not requested.
type Tags struct {
	Motif  string
	RU     string
	RL     string
	Ref    string
	RefPos string
	Score  string
	TR     string
}

// DefaultTags returns the standard INFO IDs.
func DefaultTags() Tags {
	return Tags{
		Motif:  "MOTIF",
		RU:     "RU",
		RL:     "RL",
		Ref:    "REF",
		RefPos: "REFPOS",
		Score:  "SCORE",
		TR:     "TR",
	}
}

// Result describes the repeat context of one indel.
type Result struct {
	Motif    string // canonical motif
	RU       string // motif in the phase found at the tract start
	Tract    Tract
	Score    float64
	Resolved bool // false when flanking probes could not separate the alleles
}

// Copies returns the tract length in repeat units.
func (r Result) Copies() float64 {
	if r.RU == "" {
		return 0
	}
	return float64(r.Tract.Len()) / float64(len(r.RU))
}

// TR renders the tandem repeat as chrom:start-end:RUxRL.
func (r Result) TR(chrom string) string {
	return fmt.Sprintf("%s:%d-%d:%sx%s", chrom, r.Tract.Start1, r.Tract.End1(), r.RU, formatFloat(r.Copies()))
}

// Annotator writes repeat tract information onto indel records.
type Annotator struct {
	manip   *normalize.Manipulator
	mode    Mode
	penalty float64
	tags    Tags
	logger  *zap.Logger
}

// NewAnnotator creates an annotator; m must carry a reference.
func NewAnnotator(m *normalize.Manipulator, mode Mode) *Annotator {
	return &Annotator{
		manip:  m,
		mode:   mode,
		tags:   DefaultTags(),
		logger: zap.NewNop(),
	}
}

// SetPenalty sets the per-mismatch penalty used by ModePenalized.
func (a *Annotator) SetPenalty(p float64) {
	a.penalty = p
}

// SetLogger sets the logger for debug messages.
func (a *Annotator) SetLogger(l *zap.Logger) {
	a.logger = l
}

// Mode returns the tract delimiting mode.
func (a *Annotator) Mode() Mode {
	return a.mode
}

// Tags returns the INFO IDs in use.
func (a *Annotator) Tags() Tags {
	return a.tags
}

// RegisterHeader adds the INFO definitions to h and records the IDs chosen.
func (a *Annotator) RegisterHeader(h *vcf.Header, override bool) {
	a.tags = Tags{
		Motif:  h.AddInfo("MOTIF", "1", "String", "Canonical motif in a VNTR or homopolymer", override),
		RU:     h.AddInfo("RU", "1", "String", "Repeat unit in a VNTR or homopolymer", override),
		RL:     h.AddInfo("RL", "1", "Float", "Repeat tract length in repeat units", override),
		Ref:    h.AddInfo("REF", "1", "String", "Repeat tract on the reference sequence", override),
		RefPos: h.AddInfo("REFPOS", "1", "Integer", "Start position of repeat tract", override),
		Score:  h.AddInfo("SCORE", "1", "Float", "Score of repeat unit", override),
		TR:     h.AddInfo("TR", "1", "String", "Tandem repeat representation", override),
	}
}

// Describe locates the repeat tract around the indel in v, whose alleles sit
// at pos1 on chrom.
func (a *Annotator) Describe(chrom string, pos1 int, alleles []string, v normalize.Variant) (Result, error) {
	ref := a.manip.Reference()
	if ref == nil {
		return Result{}, errors.New("vntr: annotation needs a reference sequence")
	}
	if v.Motif == "" {
		return Result{}, fmt.Errorf("vntr: %s:%d has no indel motif", chrom, pos1)
	}

	bp1 := pos1 + v.Offset
	winStart := max(1, bp1-window)
	s, err := ref.Fetch(chrom, winStart, bp1+window-1)
	if err != nil {
		return Result{}, fmt.Errorf("fetch repeat window: %w", err)
	}
	b := min(bp1-winStart, len(s))

	exact := scanExact(s, b, v.Motif)
	sp := exact
	switch a.mode {
	case ModeFuzzy:
		sp = scanFuzzy(s, b, v.Motif)
	case ModePenalized:
		sp = scanPenalized(s, b, v.Motif, a.penalty)
	case ModeIntegrated:
		fuzzy := scanFuzzy(s, b, v.Motif)
		if n := fuzzy.hi - fuzzy.lo; n > exact.hi-exact.lo && float64(fuzzy.matches)/float64(n) >= integratedMinPurity {
			sp = fuzzy
		}
	}

	res := Result{
		Motif:    CanonicalMotif(v.Motif),
		Tract:    Tract{Start1: winStart + sp.lo, Seq: s[sp.lo:sp.hi], Matches: sp.matches},
		Resolved: true,
	}
	res.Score = res.Tract.Purity()

	ru := make([]byte, len(v.Motif))
	for i := range ru {
		ru[i] = unitBase(v.Motif, sp.lo-b+i)
	}
	res.RU = string(ru)

	if a.mode == ModeIntegrated {
		p, err := a.manip.GenerateProbes(chrom, pos1, alleles, probeFlank)
		var ie *normalize.InputError
		switch {
		case errors.As(err, &ie):
			a.logger.Debug("probes not generated", zap.String("chrom", chrom), zap.Int("pos", pos1), zap.Error(err))
		case err != nil:
			return Result{}, err
		case !p.Resolved:
			res.Resolved = false
			if res.Tract.Len() > 0 {
				res.Score = float64(exact.matches) / float64(res.Tract.Len())
			}
		}
	}

	a.logger.Debug("repeat tract",
		zap.String("chrom", chrom),
		zap.Int("pos", pos1),
		zap.String("motif", res.Motif),
		zap.Int("start", res.Tract.Start1),
		zap.Int("len", res.Tract.Len()),
		zap.Float64("score", res.Score))
	return res, nil
}

// Annotate describes the repeat context of an indel record and writes it to
// the record's INFO. Records that are not indels are left untouched and
// reported with ok == false.
func (a *Annotator) Annotate(rec *vcf.Record, v normalize.Variant) (Result, bool, error) {
	if !v.Type.IsIndel() || v.Motif == "" {
		return Result{}, false, nil
	}
	res, err := a.Describe(rec.Chrom, int(rec.Pos), rec.Alleles(), v)
	if err != nil {
		return Result{}, false, err
	}

	rec.Info.Set(a.tags.Motif, res.Motif)
	rec.Info.Set(a.tags.RU, res.RU)
	rec.Info.Set(a.tags.RL, formatFloat(res.Copies()))
	if res.Tract.Len() > 0 {
		rec.Info.Set(a.tags.Ref, res.Tract.Seq)
	}
	rec.Info.Set(a.tags.RefPos, strconv.Itoa(res.Tract.Start1))
	rec.Info.Set(a.tags.Score, formatFloat(res.Score))
	if res.Tract.Len() > 0 {
		rec.Info.Set(a.tags.TR, res.TR(rec.Chrom))
	}
	return res, true, nil
}

// VNTRRecord fills dst with a companion record spanning the whole tract,
// with ALT <VNTR>. It reports false when the tract is empty.
func (a *Annotator) VNTRRecord(dst *vcf.Record, chrom string, res Result) bool {
	if res.Tract.Len() == 0 {
		return false
	}
	dst.Reset()
	dst.Chrom = chrom
	dst.Pos = int64(res.Tract.Start1)
	dst.Ref = res.Tract.Seq
	dst.Alt = append(dst.Alt, "<VNTR>")
	dst.Info.Set(a.tags.Motif, res.Motif)
	dst.Info.Set(a.tags.RU, res.RU)
	dst.Info.Set(a.tags.RL, formatFloat(res.Copies()))
	dst.Info.Set(a.tags.Score, formatFloat(res.Score))
	dst.Info.Set(a.tags.TR, res.TR(chrom))
	return true
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(math.Round(f*1000)/1000, 'f', -1, 64)
}
