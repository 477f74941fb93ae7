// Package genotype accumulates per-read evidence at variant sites into
// per-sample genotype calls and site-level bias metrics, one sample at a
// time and without buffering reads.
package genotype

import (
	"fmt"
	"math"
	"strings"
)

// Site identifies a variant being genotyped.
type Site struct {
	Chrom string
	Pos1  int
	Ref   string
	Alt   []string
}

// End1 returns the last reference base covered by the site.
func (s Site) End1() int {
	return s.Pos1 + len(s.Ref) - 1
}

func (s Site) String() string {
	return fmt.Sprintf("%s:%d:%s:%s", s.Chrom, s.Pos1, s.Ref, strings.Join(s.Alt, ","))
}

// State is the lifecycle position of a SiteRecord.
type State uint8

const (
	StateIdle State = iota
	StateOpen
	StateAccumulating
	StateSampleFlushed
	StateEmitted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateOpen:
		return "OPEN"
	case StateAccumulating:
		return "SAMPLE_ACCUMULATING"
	case StateSampleFlushed:
		return "SAMPLE_FLUSHED"
	case StateEmitted:
		return "EMITTED"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Observation is the evidence one aligned read gives at a site.
type Observation struct {
	Allele        int // 0 reference, 1 first alternate, anything else another allele
	BaseQual      int
	MapQual       int
	Reverse       bool
	Cycle         int // 0-based position in the read as sequenced
	ReadLen       int
	Mismatches    int     // NM
	Contamination float64 // fraction of reads expected from another individual
}

const (
	alleleRef   = 0
	alleleAlt   = 1
	alleleOther = 2

	maxBaseQual = 93
	q20         = 20
)

// altFractions are the alternate allele fractions of the diploid genotypes
// RR, RA and AA.
var altFractions = [3]float64{0, 0.5, 1}

// sampleSums are the per-sample accumulators, zeroed by every flush.
type sampleSums struct {
	depth      int
	counts     [3]int // ref, alt, other
	bqSum      float64
	bqSum2     float64
	mqSum      float64
	mqSum2     float64
	cySum      float64
	cyReads    int
	forward    int
	nmSum      float64
	nmByAllele [2]float64
	otherObs   float64 // other-allele reads at Q20+
	otherExp   float64 // other-allele reads expected from errors at Q20+
	gl         [3]float64
}

// siteSums fold sample contributions into depth-weighted pairs.
type siteSums struct {
	bqr, mqr, cyr, str, nmr, ior Ratio
	nm0, nm1, abe, abh           Ratio
	nsNonRef                     int
	dp                           int
	maxGQ                        int
}

// SiteRecord holds the sufficient statistics of one site across samples.
// Samples are processed one at a time: every read of a sample is passed to
// ProcessRead, then FlushSample finalizes it before the next sample starts.
type SiteRecord struct {
	site     Site
	motif    string
	state    State
	current  int
	flushed  []bool
	nFlushed int
	calls    []SampleCall
	tmp      sampleSums
	sums     siteSums
}

// NewSiteRecord returns an idle record.
func NewSiteRecord() *SiteRecord {
	return &SiteRecord{current: -1}
}

// State returns the lifecycle state.
func (r *SiteRecord) State() State { return r.state }

// Site returns the site being genotyped.
func (r *SiteRecord) Site() Site { return r.site }

// Open starts a new site with nSamples samples to process.
func (r *SiteRecord) Open(site Site, motif string, nSamples int) error {
	if r.state != StateIdle {
		return &SequenceError{Op: "open", Sample: -1, State: r.state, Reason: "record not cleared"}
	}
	if nSamples < 0 {
		return &SequenceError{Op: "open", Sample: -1, State: r.state, Reason: "negative sample count"}
	}
	r.site = Site{Chrom: site.Chrom, Pos1: site.Pos1, Ref: site.Ref, Alt: append(r.site.Alt[:0], site.Alt...)}
	r.motif = motif
	r.flushed = resizeBools(r.flushed, nSamples)
	r.calls = resizeCalls(r.calls, nSamples)
	r.nFlushed = 0
	r.current = -1
	r.tmp = sampleSums{}
	r.sums = siteSums{}
	r.state = StateOpen
	return nil
}

// ProcessRead adds one read of sample to the in-flight sums.
func (r *SiteRecord) ProcessRead(sample int, obs Observation) error {
	if err := r.checkSample("process read", sample); err != nil {
		return err
	}
	r.current = sample
	r.state = StateAccumulating

	t := &r.tmp
	idx := obs.Allele
	if idx != alleleRef && idx != alleleAlt {
		idx = alleleOther
	}
	t.depth++
	t.counts[idx]++

	bq := float64(obs.BaseQual)
	t.bqSum += bq
	t.bqSum2 += bq * bq
	mq := float64(obs.MapQual)
	t.mqSum += mq
	t.mqSum2 += mq * mq
	if obs.ReadLen > 0 {
		t.cySum += float64(obs.Cycle) / float64(obs.ReadLen)
		t.cyReads++
	}
	if !obs.Reverse {
		t.forward++
	}
	nm := float64(obs.Mismatches)
	t.nmSum += nm
	if idx != alleleOther {
		t.nmByAllele[idx] += nm
	}

	e := errorProb(obs.BaseQual)
	if obs.BaseQual >= q20 {
		t.otherExp += 2 * e / 3
		if idx == alleleOther {
			t.otherObs++
		}
	}

	if idx == alleleOther {
		return nil
	}
	c := math.Min(math.Max(obs.Contamination, 0), 1)
	for g, f := range altFractions {
		fc := (1-c)*f + c*0.5
		p := (1-fc)*(1-e) + fc*e/3
		if idx == alleleAlt {
			p = fc*(1-e) + (1-fc)*e/3
		}
		t.gl[g] += math.Log10(p)
	}
	return nil
}

// FlushSample derives the call of sample, folds its sums into the site pairs
// and zeroes the in-flight sums. A sample without reads may be flushed
// directly.
func (r *SiteRecord) FlushSample(sample int) error {
	if err := r.checkSample("flush sample", sample); err != nil {
		return err
	}

	t := &r.tmp
	s := &r.sums
	n := float64(t.depth)
	call := SampleCall{
		DP: t.depth,
		AD: [2]int{t.counts[alleleRef], t.counts[alleleAlt]},
	}
	if t.depth > 0 {
		call.MeanBQ = t.bqSum / n
		call.SDBQ = math.Sqrt(math.Max(0, t.bqSum2/n-call.MeanBQ*call.MeanBQ))
		call.MeanMQ = t.mqSum / n
		call.SDMQ = math.Sqrt(math.Max(0, t.mqSum2/n-call.MeanMQ*call.MeanMQ))
	}
	if ra := t.counts[alleleRef] + t.counts[alleleAlt]; ra > 0 {
		call.Called = true
		call.PL, call.GT, call.GQ = phredLikelihoods(t.gl)

		switch call.GT {
		case 0:
			s.abh.Add(float64(t.counts[alleleAlt]), float64(ra))
		case 1:
			s.abe.Add(float64(t.counts[alleleAlt]), float64(ra))
		}
		if call.GT != 0 {
			s.nsNonRef++
		}
		s.maxGQ = max(s.maxGQ, call.GQ)
	}

	s.bqr.Add(t.bqSum, n)
	s.mqr.Add(t.mqSum, n)
	s.cyr.Add(t.cySum, float64(t.cyReads))
	s.str.Add(float64(t.forward), n)
	s.nmr.Add(t.nmSum, n)
	s.ior.Add(t.otherObs, t.otherExp)
	s.nm0.Add(t.nmByAllele[alleleRef], float64(t.counts[alleleRef]))
	s.nm1.Add(t.nmByAllele[alleleAlt], float64(t.counts[alleleAlt]))
	s.dp += t.depth

	r.calls[sample] = call
	r.flushed[sample] = true
	r.nFlushed++
	r.tmp = sampleSums{}
	r.current = -1
	r.state = StateSampleFlushed
	return nil
}

// SampleCall returns the call of a flushed sample.
func (r *SiteRecord) SampleCall(sample int) (SampleCall, bool) {
	if sample < 0 || sample >= len(r.flushed) || !r.flushed[sample] {
		return SampleCall{}, false
	}
	return r.calls[sample], true
}

// FlushVariant finalizes the site once every sample is flushed. The result
// does not share memory with the record.
func (r *SiteRecord) FlushVariant() (*SiteResult, error) {
	switch {
	case r.state == StateIdle || r.state == StateEmitted:
		return nil, &SequenceError{Op: "flush variant", Sample: -1, State: r.state, Reason: "no open site"}
	case r.state == StateAccumulating:
		return nil, &SequenceError{Op: "flush variant", Sample: r.current, State: r.state, Reason: "sample not flushed"}
	case r.nFlushed != len(r.flushed):
		return nil, &SequenceError{Op: "flush variant", Sample: -1, State: r.state,
			Reason: fmt.Sprintf("%d of %d samples flushed", r.nFlushed, len(r.flushed))}
	}

	s := r.sums
	res := &SiteResult{
		Site:     Site{Chrom: r.site.Chrom, Pos1: r.site.Pos1, Ref: r.site.Ref, Alt: append([]string(nil), r.site.Alt...)},
		Motif:    r.motif,
		Calls:    append([]SampleCall(nil), r.calls...),
		BQR:      s.bqr,
		MQR:      s.mqr,
		CYR:      s.cyr,
		STR:      s.str,
		NMR:      s.nmr,
		IOR:      s.ior,
		NM0:      s.nm0,
		NM1:      s.nm1,
		ABE:      s.abe,
		ABH:      s.abh,
		NSNonRef: s.nsNonRef,
		DP:       s.dp,
		MaxGQ:    s.maxGQ,
	}
	r.state = StateEmitted
	return res, nil
}

// Clear returns an emitted record to the idle state.
func (r *SiteRecord) Clear() error {
	if r.state != StateEmitted {
		return &SequenceError{Op: "clear", Sample: -1, State: r.state, Reason: "site not emitted"}
	}
	r.site = Site{Alt: r.site.Alt[:0]}
	r.motif = ""
	r.flushed = r.flushed[:0]
	r.calls = r.calls[:0]
	r.nFlushed = 0
	r.current = -1
	r.tmp = sampleSums{}
	r.sums = siteSums{}
	r.state = StateIdle
	return nil
}

// checkSample enforces the one-sample-at-a-time protocol.
func (r *SiteRecord) checkSample(op string, sample int) error {
	switch r.state {
	case StateOpen, StateAccumulating, StateSampleFlushed:
	default:
		return &SequenceError{Op: op, Sample: sample, State: r.state, Reason: "no open site"}
	}
	if sample < 0 || sample >= len(r.flushed) {
		return &SequenceError{Op: op, Sample: sample, State: r.state,
			Reason: fmt.Sprintf("sample index out of range [0,%d)", len(r.flushed))}
	}
	if r.state == StateAccumulating && r.current != sample {
		return &SequenceError{Op: op, Sample: sample, State: r.state,
			Reason: fmt.Sprintf("sample %d has not been flushed", r.current)}
	}
	if r.flushed[sample] {
		return &SequenceError{Op: op, Sample: sample, State: r.state, Reason: "sample already flushed"}
	}
	return nil
}

func errorProb(q int) float64 {
	q = min(max(q, 0), maxBaseQual)
	return math.Pow(10, -float64(q)/10)
}

func resizeBools(b []bool, n int) []bool {
	if cap(b) < n {
		return make([]bool, n)
	}
	b = b[:n]
	clear(b)
	return b
}

func resizeCalls(c []SampleCall, n int) []SampleCall {
	if cap(c) < n {
		return make([]SampleCall, n)
	}
	c = c[:n]
	clear(c)
	return c
}

// Pool recycles SiteRecords. It is not safe for concurrent use; each
// goroutine genotyping sites keeps its own.
type Pool struct {
	free      []*SiteRecord
	allocated int
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{}
}

// Acquire returns an idle record.
func (p *Pool) Acquire() *SiteRecord {
	if n := len(p.free); n > 0 {
		r := p.free[n-1]
		p.free = p.free[:n-1]
		return r
	}
	p.allocated++
	return NewSiteRecord()
}

// Release clears r and keeps it for reuse. Records that were opened must
// have been emitted.
func (p *Pool) Release(r *SiteRecord) error {
	if r.state != StateIdle {
		if err := r.Clear(); err != nil {
			return err
		}
	}
	p.free = append(p.free, r)
	return nil
}

// Allocated returns the number of records created by the pool.
func (p *Pool) Allocated() int { return p.allocated }
