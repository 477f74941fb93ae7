package genotype

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReference(t *testing.T) *sam.Reference {
	t.Helper()
	ref, err := sam.NewReference("1", "", "", 1000, nil, nil)
	require.NoError(t, err)
	return ref
}

// testRef returns a reference attached to a header, as records require.
func testRef(t *testing.T) *sam.Reference {
	t.Helper()
	ref := newReference(t)
	_, err := sam.NewHeader(nil, []*sam.Reference{ref})
	require.NoError(t, err)
	return ref
}

type readSpec struct {
	pos   int // 0-based
	cigar []sam.CigarOp
	seq   string
	flags sam.Flags
	mapQ  byte
	nm    int
}

func cigar(ops ...any) []sam.CigarOp {
	var out []sam.CigarOp
	for i := 0; i < len(ops); i += 2 {
		out = append(out, sam.NewCigarOp(ops[i].(sam.CigarOpType), ops[i+1].(int)))
	}
	return out
}

func newRead(t *testing.T, ref *sam.Reference, rs readSpec) *sam.Record {
	t.Helper()
	qual := bytes.Repeat([]byte{30}, len(rs.seq))
	var aux []sam.Aux
	if rs.nm > 0 {
		a, err := sam.NewAux(tagNM, uint8(rs.nm))
		require.NoError(t, err)
		aux = append(aux, a)
	}
	mapQ := rs.mapQ
	if mapQ == 0 {
		mapQ = 60
	}
	rec, err := sam.NewRecord("r", ref, nil, rs.pos, -1, 0, mapQ, rs.cigar, []byte(rs.seq), qual, aux)
	require.NoError(t, err)
	rec.Flags = rs.flags
	return rec
}

// withBase returns n copies of A with b at offset i.
func withBase(n, i int, b byte) string {
	s := bytes.Repeat([]byte{'A'}, n)
	s[i] = b
	return string(s)
}

func TestObserve_Substitution(t *testing.T) {
	ref := testRef(t)
	site := Site{Chrom: "1", Pos1: 100, Ref: "A", Alt: []string{"T"}}

	tests := []struct {
		name   string
		read   readSpec
		ok     bool
		allele int
		cycle  int
	}{
		{name: "reference", read: readSpec{pos: 90, cigar: cigar(sam.CigarMatch, 20), seq: withBase(20, 0, 'A')}, ok: true, allele: alleleRef, cycle: 9},
		{name: "alternate", read: readSpec{pos: 90, cigar: cigar(sam.CigarMatch, 20), seq: withBase(20, 9, 'T')}, ok: true, allele: alleleAlt, cycle: 9},
		{name: "reverse strand cycle", read: readSpec{pos: 90, cigar: cigar(sam.CigarMatch, 20), seq: withBase(20, 9, 'T'), flags: sam.Reverse}, ok: true, allele: alleleAlt, cycle: 10},
		{name: "other base", read: readSpec{pos: 90, cigar: cigar(sam.CigarMatch, 20), seq: withBase(20, 9, 'G')}, ok: true, allele: alleleOther, cycle: 9},
		{name: "soft clipped", read: readSpec{pos: 95, cigar: cigar(sam.CigarSoftClipped, 5, sam.CigarMatch, 15), seq: withBase(20, 9, 'T')}, ok: true, allele: alleleAlt, cycle: 9},
		{name: "not covering", read: readSpec{pos: 0, cigar: cigar(sam.CigarMatch, 20), seq: withBase(20, 0, 'A')}},
		{name: "site in deletion", read: readSpec{pos: 90, cigar: cigar(sam.CigarMatch, 5, sam.CigarDeletion, 10, sam.CigarMatch, 15), seq: withBase(20, 0, 'A')}},
		{name: "duplicate", read: readSpec{pos: 90, cigar: cigar(sam.CigarMatch, 20), seq: withBase(20, 9, 'T'), flags: sam.Duplicate}},
		{name: "secondary", read: readSpec{pos: 90, cigar: cigar(sam.CigarMatch, 20), seq: withBase(20, 9, 'T'), flags: sam.Secondary}},
		{name: "low mapping quality", read: readSpec{pos: 90, cigar: cigar(sam.CigarMatch, 20), seq: withBase(20, 9, 'T'), mapQ: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, ok := observe(newRead(t, ref, tt.read), site, 10)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.allele, obs.Allele)
			assert.Equal(t, tt.cycle, obs.Cycle)
			assert.Equal(t, 20, obs.ReadLen)
			assert.Equal(t, 30, obs.BaseQual)
		})
	}
}

func TestObserve_MNP(t *testing.T) {
	ref := testRef(t)
	site := Site{Chrom: "1", Pos1: 100, Ref: "AA", Alt: []string{"AG"}}

	seq := []byte(withBase(20, 10, 'G'))
	obs, ok := observe(newRead(t, ref, readSpec{pos: 90, cigar: cigar(sam.CigarMatch, 20), seq: string(seq)}), site, 0)
	require.True(t, ok)
	assert.Equal(t, alleleAlt, obs.Allele)
	assert.Equal(t, 10, obs.Cycle)

	seq[9] = 'C'
	obs, ok = observe(newRead(t, ref, readSpec{pos: 90, cigar: cigar(sam.CigarMatch, 20), seq: string(seq)}), site, 0)
	require.True(t, ok)
	assert.Equal(t, alleleOther, obs.Allele)
}

func TestObserve_Insertion(t *testing.T) {
	ref := testRef(t)
	site := Site{Chrom: "1", Pos1: 100, Ref: "A", Alt: []string{"ACG"}}
	inserted := func(ins string) string {
		return withBase(10, 0, 'A') + ins + withBase(10, 0, 'A')
	}

	tests := []struct {
		name   string
		read   readSpec
		ok     bool
		allele int
		cycle  int
	}{
		{name: "carries insertion", read: readSpec{pos: 90, cigar: cigar(sam.CigarMatch, 10, sam.CigarInsertion, 2, sam.CigarMatch, 10), seq: inserted("CG")}, ok: true, allele: alleleAlt, cycle: 9},
		{name: "different inserted bases", read: readSpec{pos: 90, cigar: cigar(sam.CigarMatch, 10, sam.CigarInsertion, 2, sam.CigarMatch, 10), seq: inserted("TT")}, ok: true, allele: alleleOther, cycle: 9},
		{name: "longer insertion", read: readSpec{pos: 90, cigar: cigar(sam.CigarMatch, 10, sam.CigarInsertion, 3, sam.CigarMatch, 10), seq: inserted("CGC")}, ok: true, allele: alleleOther, cycle: 9},
		{name: "reference", read: readSpec{pos: 90, cigar: cigar(sam.CigarMatch, 20), seq: withBase(20, 0, 'A')}, ok: true, allele: alleleRef, cycle: 9},
		{name: "insertion elsewhere", read: readSpec{pos: 90, cigar: cigar(sam.CigarMatch, 5, sam.CigarInsertion, 2, sam.CigarMatch, 15), seq: inserted("CG")}, ok: true, allele: alleleRef, cycle: 11},
		{name: "ends at anchor", read: readSpec{pos: 80, cigar: cigar(sam.CigarMatch, 20), seq: withBase(20, 0, 'A')}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, ok := observe(newRead(t, ref, tt.read), site, 0)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.allele, obs.Allele)
				assert.Equal(t, tt.cycle, obs.Cycle)
			}
		})
	}
}

func TestObserve_Deletion(t *testing.T) {
	ref := testRef(t)
	site := Site{Chrom: "1", Pos1: 100, Ref: "ACG", Alt: []string{"A"}}

	obs, ok := observe(newRead(t, ref, readSpec{
		pos: 90, cigar: cigar(sam.CigarMatch, 10, sam.CigarDeletion, 2, sam.CigarMatch, 10), seq: withBase(20, 0, 'A'), nm: 2,
	}), site, 0)
	require.True(t, ok)
	assert.Equal(t, alleleAlt, obs.Allele)
	assert.Equal(t, 2, obs.Mismatches)

	obs, ok = observe(newRead(t, ref, readSpec{
		pos: 90, cigar: cigar(sam.CigarMatch, 10, sam.CigarDeletion, 1, sam.CigarMatch, 10), seq: withBase(20, 0, 'A'),
	}), site, 0)
	require.True(t, ok)
	assert.Equal(t, alleleOther, obs.Allele)

	obs, ok = observe(newRead(t, ref, readSpec{pos: 90, cigar: cigar(sam.CigarMatch, 20), seq: withBase(20, 0, 'A')}), site, 0)
	require.True(t, ok)
	assert.Equal(t, alleleRef, obs.Allele)
	assert.Zero(t, obs.Mismatches)
}

// writeIndexedBAM writes records sorted by position and their .bai.
func writeIndexedBAM(t *testing.T, dir string, header []byte, specs []readSpec) string {
	t.Helper()
	ref := newReference(t)
	h, err := sam.NewHeader(header, []*sam.Reference{ref})
	require.NoError(t, err)

	path := filepath.Join(dir, "sample.bam")
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := bam.NewWriter(f, h, 1)
	require.NoError(t, err)
	for _, rs := range specs {
		require.NoError(t, w.Write(newRead(t, ref, rs)))
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	f, err = os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r, err := bam.NewReader(f, 1)
	require.NoError(t, err)
	defer r.Close()

	var idx bam.Index
	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		require.NoError(t, idx.Add(rec, r.LastChunk()))
	}

	fi, err := os.Create(path + ".bai")
	require.NoError(t, err)
	require.NoError(t, bam.WriteIndex(fi, &idx))
	require.NoError(t, fi.Close())
	return path
}

func TestBAMSource_Observe(t *testing.T) {
	dir := t.TempDir()
	path := writeIndexedBAM(t, dir, []byte("@RG\tID:rg1\tSM:NA12878\n"), []readSpec{
		{pos: 10, cigar: cigar(sam.CigarMatch, 20), seq: withBase(20, 0, 'A')},
		{pos: 85, cigar: cigar(sam.CigarMatch, 20), seq: withBase(20, 14, 'T')},
		{pos: 90, cigar: cigar(sam.CigarMatch, 20), seq: withBase(20, 9, 'T')},
		{pos: 92, cigar: cigar(sam.CigarMatch, 20), seq: withBase(20, 0, 'A'), flags: sam.Duplicate},
		{pos: 95, cigar: cigar(sam.CigarMatch, 20), seq: withBase(20, 0, 'A')},
	})

	src, err := OpenBAMs([]string{path}, 20)
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, []string{"NA12878"}, src.Samples())

	var got []int
	err = src.Observe(0, Site{Chrom: "1", Pos1: 100, Ref: "A", Alt: []string{"T"}}, func(o Observation) error {
		got = append(got, o.Allele)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{alleleAlt, alleleAlt, alleleRef}, got)

	got = nil
	require.NoError(t, src.Observe(0, Site{Chrom: "2", Pos1: 100, Ref: "A", Alt: []string{"T"}}, func(o Observation) error {
		got = append(got, o.Allele)
		return nil
	}))
	assert.Empty(t, got)

	require.Error(t, src.Observe(1, Site{Chrom: "1", Pos1: 100}, nil))
}

func TestOpenBAMs_SampleFromFileName(t *testing.T) {
	dir := t.TempDir()
	path := writeIndexedBAM(t, dir, nil, []readSpec{
		{pos: 10, cigar: cigar(sam.CigarMatch, 20), seq: withBase(20, 0, 'A')},
	})

	src, err := OpenBAMs([]string{path}, 0)
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, []string{"sample"}, src.Samples())
}

func TestOpenBAMs_MissingIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.bam")
	require.NoError(t, os.WriteFile(path, []byte("not a bam"), 0o644))

	_, err := OpenBAMs([]string{path}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index not found")
}

func TestBAMSource_Restrict(t *testing.T) {
	reads := []readSpec{{pos: 10, cigar: cigar(sam.CigarMatch, 20), seq: withBase(20, 0, 'A')}}
	child := writeIndexedBAM(t, t.TempDir(), []byte("@RG\tID:a\tSM:child\n"), reads)
	other := writeIndexedBAM(t, t.TempDir(), []byte("@RG\tID:b\tSM:other\n"), reads)

	src, err := OpenBAMs([]string{child, other}, 0)
	require.NoError(t, err)
	defer src.Close()

	dropped := src.Restrict(func(s string) bool { return s == "child" })
	assert.Equal(t, []string{"other"}, dropped)
	assert.Equal(t, []string{"child"}, src.Samples())

	var n int
	require.NoError(t, src.Observe(0, Site{Chrom: "1", Pos1: 15, Ref: "A", Alt: []string{"T"}}, func(Observation) error {
		n++
		return nil
	}))
	assert.Equal(t, 1, n)
}
