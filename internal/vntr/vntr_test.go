package vntr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SeqOne/vt/internal/normalize"
	"github.com/SeqOne/vt/internal/reference"
	"github.com/SeqOne/vt/internal/vcf"
)

// pure: CAG x4 at 7-18. impure: CAG CAG CTG CAG CAG at 7-21. edge: A x11 then T.
func newTestManipulator() *normalize.Manipulator {
	return normalize.NewManipulator(reference.NewMemory(map[string]string{
		"pure":   "TTGACTCAGCAGCAGCAGTTACGGTCA",
		"impure": "TTGACTCAGCAGCTGCAGCAGTTACGGTCA",
		"edge":   "AAAAAAAAAAAT",
	}))
}

func classify(t *testing.T, m *normalize.Manipulator, chrom string, pos int, alleles ...string) normalize.Variant {
	t.Helper()
	v, err := m.Classify(chrom, pos, alleles)
	require.NoError(t, err)
	return v
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"e", ModeExact},
		{"exact", ModeExact},
		{"f", ModeFuzzy},
		{"P", ModePenalized},
		{"x", ModeIntegrated},
		{"", ModeIntegrated},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseMode("z")
	var ce *ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "mode", ce.Option)
	assert.Equal(t, "z", ce.Value)

	assert.Equal(t, "x", ModeIntegrated.String())
	assert.Equal(t, "p", ModePenalized.String())
}

func TestCanonicalMotif(t *testing.T) {
	tests := map[string]string{
		"":    "",
		"A":   "A",
		"T":   "A",
		"CAG": "AGC",
		"GCA": "AGC",
		"CTG": "AGC",
		"CA":  "AC",
		"GT":  "AC",
		"CG":  "CG",
	}
	for in, want := range tests {
		assert.Equal(t, want, CanonicalMotif(in), "CanonicalMotif(%q)", in)
	}
}

func TestDescribe_Exact(t *testing.T) {
	m := newTestManipulator()
	a := NewAnnotator(m, ModeExact)

	for _, alleles := range [][]string{{"T", "TCAG"}, {"TCAG", "T"}} {
		v := classify(t, m, "pure", 6, alleles...)
		res, err := a.Describe("pure", 6, alleles, v)
		require.NoError(t, err)

		assert.Equal(t, "AGC", res.Motif)
		assert.Equal(t, "CAG", res.RU)
		assert.Equal(t, 7, res.Tract.Start1)
		assert.Equal(t, 18, res.Tract.End1())
		assert.Equal(t, "CAGCAGCAGCAG", res.Tract.Seq)
		assert.InDelta(t, 4.0, res.Copies(), 1e-9)
		assert.InDelta(t, 1.0, res.Score, 1e-9)
		assert.Equal(t, "pure:7-18:CAGx4", res.TR("pure"))
	}
}

func TestDescribe_Modes(t *testing.T) {
	m := newTestManipulator()
	alleles := []string{"T", "TCAG"}
	v := classify(t, m, "impure", 6, alleles...)

	tests := []struct {
		name    string
		mode    Mode
		penalty float64
		start   int
		end     int
		score   float64
	}{
		{name: "exact stops at first mismatch", mode: ModeExact, start: 7, end: 13, score: 1},
		{name: "fuzzy steps over isolated mismatch", mode: ModeFuzzy, start: 7, end: 21, score: 14.0 / 15.0},
		{name: "penalized without penalty", mode: ModePenalized, start: 7, end: 21, score: 14.0 / 15.0},
		{name: "penalized with heavy penalty", mode: ModePenalized, penalty: 10, start: 7, end: 13, score: 1},
		{name: "integrated keeps pure-enough fuzzy tract", mode: ModeIntegrated, start: 7, end: 21, score: 14.0 / 15.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnnotator(m, tt.mode)
			a.SetPenalty(tt.penalty)
			res, err := a.Describe("impure", 6, alleles, v)
			require.NoError(t, err)
			assert.Equal(t, tt.start, res.Tract.Start1)
			assert.Equal(t, tt.end, res.Tract.End1())
			assert.InDelta(t, tt.score, res.Score, 1e-9)
			assert.True(t, res.Resolved)
		})
	}
}

func TestDescribe_UnresolvedProbes(t *testing.T) {
	m := newTestManipulator()
	a := NewAnnotator(m, ModeIntegrated)
	alleles := []string{"A", "AA"}
	v := classify(t, m, "edge", 1, alleles...)

	res, err := a.Describe("edge", 1, alleles, v)
	require.NoError(t, err)
	assert.False(t, res.Resolved)
	assert.Equal(t, 1, res.Tract.Start1)
	assert.Equal(t, 11, res.Tract.Len())
	assert.InDelta(t, 1.0, res.Score, 1e-9)
}

func TestDescribe_NoReferenceTract(t *testing.T) {
	m := newTestManipulator()
	a := NewAnnotator(m, ModeExact)
	alleles := []string{"T", "TGA"}
	v := classify(t, m, "pure", 19, alleles...)

	res, err := a.Describe("pure", 19, alleles, v)
	require.NoError(t, err)
	assert.Equal(t, "AG", res.Motif)
	assert.Equal(t, "GA", res.RU)
	assert.Zero(t, res.Tract.Len())
	assert.Equal(t, 20, res.Tract.Start1)
	assert.Zero(t, res.Copies())
}

func TestAnnotate_WritesInfo(t *testing.T) {
	m := newTestManipulator()
	a := NewAnnotator(m, ModeExact)

	rec := &vcf.Record{Chrom: "pure", Pos: 6, Ref: "T", Alt: []string{"TCAG"}}
	rec.Info.Set("DP", "30")
	v := classify(t, m, "pure", 6, rec.Alleles()...)

	_, ok, err := a.Annotate(rec, v)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "DP=30;MOTIF=AGC;RU=CAG;RL=4;REF=CAGCAGCAGCAG;REFPOS=7;SCORE=1;TR=pure:7-18:CAGx4", rec.Info.String())
}

func TestAnnotate_SkipsNonIndels(t *testing.T) {
	m := newTestManipulator()
	a := NewAnnotator(m, ModeIntegrated)

	rec := &vcf.Record{Chrom: "pure", Pos: 9, Ref: "G", Alt: []string{"A"}}
	v := classify(t, m, "pure", 9, rec.Alleles()...)

	_, ok, err := a.Annotate(rec, v)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, rec.Info.Len())
}

func TestRegisterHeader_BackupNaming(t *testing.T) {
	h := vcf.NewHeader("S1")
	h.AddInfo("REF", "1", "String", "existing", false)

	a := NewAnnotator(newTestManipulator(), ModeExact)
	a.RegisterHeader(h, false)
	assert.Equal(t, "REF_1", a.Tags().Ref)
	assert.Equal(t, "MOTIF", a.Tags().Motif)
	assert.True(t, h.HasInfo("REF_1"))

	h2 := vcf.NewHeader("S1")
	h2.AddInfo("REF", "1", "String", "existing", false)
	a.RegisterHeader(h2, true)
	assert.Equal(t, "REF", a.Tags().Ref)
	assert.False(t, h2.HasInfo("REF_1"))
}

func TestVNTRRecord(t *testing.T) {
	m := newTestManipulator()
	a := NewAnnotator(m, ModeExact)
	alleles := []string{"T", "TCAG"}
	v := classify(t, m, "pure", 6, alleles...)
	res, err := a.Describe("pure", 6, alleles, v)
	require.NoError(t, err)

	var dst vcf.Record
	require.True(t, a.VNTRRecord(&dst, "pure", res))
	assert.Equal(t, int64(7), dst.Pos)
	assert.Equal(t, "CAGCAGCAGCAG", dst.Ref)
	assert.Equal(t, []string{"<VNTR>"}, dst.Alt)
	motif, _ := dst.Info.Get("MOTIF")
	assert.Equal(t, "AGC", motif)

	assert.False(t, a.VNTRRecord(&dst, "pure", Result{}))
}
