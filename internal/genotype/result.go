package genotype

import (
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/SeqOne/vt/internal/vcf"
)

const (
	maxPL = 255
	maxGQ = 99
)

// Ratio is a numerator/denominator pair summed across samples.
type Ratio struct {
	Num float64
	Den float64
}

// Add accumulates a sample's contribution.
func (r *Ratio) Add(num, den float64) {
	r.Num += num
	r.Den += den
}

// Value returns Num/Den, or ok == false when nothing was accumulated.
func (r Ratio) Value() (v float64, ok bool) {
	if r.Den == 0 {
		return 0, false
	}
	return r.Num / r.Den, true
}

// String renders the ratio with three decimals, or "." when missing.
func (r Ratio) String() string {
	v, ok := r.Value()
	if !ok {
		return "."
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// SampleCall is the genotype and summary of one sample at a site.
type SampleCall struct {
	Called bool // false when no reference or alternate read was seen
	GT     int  // number of alternate alleles: 0, 1 or 2
	PL     [3]int
	AD     [2]int
	DP     int
	GQ     int
	MeanBQ float64
	SDBQ   float64
	MeanMQ float64
	SDMQ   float64
}

// Genotype renders GT.
func (c SampleCall) Genotype() string {
	if !c.Called {
		return "./."
	}
	switch c.GT {
	case 0:
		return "0/0"
	case 1:
		return "0/1"
	default:
		return "1/1"
	}
}

// appendFormat writes the GT:PL:AD:DP:GQ column of the call.
func (c SampleCall) appendFormat(b *strings.Builder) {
	b.WriteString(c.Genotype())
	b.WriteByte(':')
	if c.Called {
		for i, pl := range c.PL {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Itoa(pl))
		}
	} else {
		b.WriteByte('.')
	}
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(c.AD[0]))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(c.AD[1]))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(c.DP))
	b.WriteByte(':')
	if c.Called {
		b.WriteString(strconv.Itoa(c.GQ))
	} else {
		b.WriteByte('.')
	}
}

// phredLikelihoods turns log10 genotype likelihoods into min-normalized
// phred-scaled PLs, the most likely genotype and its quality.
func phredLikelihoods(gl [3]float64) ([3]int, int, int) {
	raw := floats.ScaleTo(make([]float64, len(gl)), -10, gl[:])
	floats.AddConst(-floats.Min(raw), raw)
	best := floats.MinIdx(raw)

	var pl [3]int
	second := math.Inf(1)
	for i, v := range raw {
		pl[i] = int(math.Min(math.Round(v), maxPL))
		if i != best && v < second {
			second = v
		}
	}
	return pl, best, int(math.Min(math.Round(second), maxGQ))
}

// Metric is a named site-level ratio.
type Metric struct {
	ID          string
	Description string
	Ratio       Ratio
}

// SiteResult is the finalized evidence of one site.
type SiteResult struct {
	Site  Site
	Motif string
	Calls []SampleCall

	BQR Ratio // mean base quality
	MQR Ratio // mean mapping quality
	CYR Ratio // mean relative read cycle
	STR Ratio // forward strand fraction
	NMR Ratio // mean edit distance
	IOR Ratio // observed over expected other-allele reads
	NM0 Ratio // mean edit distance of reference reads
	NM1 Ratio // mean edit distance of alternate reads
	ABE Ratio // allele balance in heterozygotes
	ABH Ratio // alternate fraction in homozygous reference samples

	NSNonRef int
	DP       int
	MaxGQ    int
}

// Metrics returns the ratios in output order.
func (r *SiteResult) Metrics() []Metric {
	return []Metric{
		{"BQR", "Mean base quality of reads at the site", r.BQR},
		{"MQR", "Mean mapping quality of reads at the site", r.MQR},
		{"CYR", "Mean relative read cycle of the variant base", r.CYR},
		{"STR", "Fraction of reads on the forward strand", r.STR},
		{"NMR", "Mean edit distance of reads", r.NMR},
		{"IOR", "Observed over expected reads carrying neither allele, Q20 and above", r.IOR},
		{"NM0", "Mean edit distance of reference reads", r.NM0},
		{"NM1", "Mean edit distance of alternate reads", r.NM1},
		{"ABE", "Alternate allele fraction in heterozygous samples", r.ABE},
		{"ABH", "Alternate allele fraction in homozygous reference samples", r.ABH},
	}
}

// AddHeaderFields registers the INFO and FORMAT fields written by Apply.
func AddHeaderFields(h *vcf.Header) {
	var empty SiteResult
	for _, m := range empty.Metrics() {
		h.AddInfo(m.ID, "1", "Float", m.Description, true)
	}
	h.AddInfo("NS_NREF", "1", "Integer", "Number of samples with a non-reference genotype", true)
	h.AddInfo("DP", "1", "Integer", "Total read depth over all samples", true)
	h.AddInfo("MAX_GQ", "1", "Integer", "Highest genotype quality over all samples", true)

	h.AddFormat("GT", "1", "String", "Genotype")
	h.AddFormat("PL", "G", "Integer", "Phred-scaled genotype likelihoods")
	h.AddFormat("AD", "R", "Integer", "Allelic depths of reference and alternate alleles")
	h.AddFormat("DP", "1", "Integer", "Read depth")
	h.AddFormat("GQ", "1", "Integer", "Genotype quality")
}

// Apply writes the site metrics into rec's INFO and replaces its sample
// columns with the calls.
func (r *SiteResult) Apply(rec *vcf.Record) {
	for _, m := range r.Metrics() {
		rec.Info.Set(m.ID, m.Ratio.String())
	}
	rec.Info.Set("NS_NREF", strconv.Itoa(r.NSNonRef))
	rec.Info.Set("DP", strconv.Itoa(r.DP))
	rec.Info.Set("MAX_GQ", strconv.Itoa(r.MaxGQ))
	rec.SampleColumns = r.SampleColumns()
}

// missingColumns renders n entirely missing calls.
func missingColumns(n int) string {
	if n == 0 {
		return ""
	}
	return "GT:PL:AD:DP:GQ" + strings.Repeat("\t./.:.:.:.:.", n)
}

// SampleColumns renders the FORMAT column followed by one column per call.
func (r *SiteResult) SampleColumns() string {
	if len(r.Calls) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("GT:PL:AD:DP:GQ")
	for _, c := range r.Calls {
		b.WriteByte('\t')
		c.appendFormat(&b)
	}
	return b.String()
}
