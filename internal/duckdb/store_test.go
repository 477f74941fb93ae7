package duckdb

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SeqOne/vt/internal/genotype"
)

func openInMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func siteResult(pos int, alt string) *genotype.SiteResult {
	res := &genotype.SiteResult{
		Site:     genotype.Site{Chrom: "1", Pos1: pos, Ref: "A", Alt: []string{alt}},
		Motif:    "A",
		DP:       20,
		NSNonRef: 1,
		MaxGQ:    30,
		Calls: []genotype.SampleCall{
			{Called: true, GT: 2, PL: [3]int{255, 30, 0}, AD: [2]int{0, 10}, DP: 10, GQ: 30},
			{DP: 0},
		},
	}
	res.BQR.Add(600, 20)
	res.STR.Add(10, 20)
	return res
}

func TestOpenClose(t *testing.T) {
	s := openInMemory(t)
	assert.NotNil(t, s.DB())
}

func TestWriteAndLookupSite(t *testing.T) {
	s := openInMemory(t)
	samples := []string{"S1", "S2"}

	sink := s.Sink(samples)
	require.NoError(t, sink.Add(siteResult(100, "AT")))
	require.NoError(t, sink.Add(siteResult(100, "AC")))
	require.NoError(t, sink.Add(siteResult(200, "G")))
	require.NoError(t, sink.Flush())

	sites, err := s.LookupSite("1", 100)
	require.NoError(t, err)
	require.Len(t, sites, 2)

	e := sites[1]
	assert.Equal(t, "AT", e.Alt)
	assert.Equal(t, "A", e.Motif)
	assert.Equal(t, 20, e.DP)
	assert.Equal(t, 1, e.NSNonRef)
	assert.Equal(t, 30, e.MaxGQ)
	require.NotNil(t, e.Metrics["BQR"])
	assert.InDelta(t, 30.0, *e.Metrics["BQR"], 1e-9)
	require.NotNil(t, e.Metrics["STR"])
	assert.InDelta(t, 0.5, *e.Metrics["STR"], 1e-9)
	assert.Nil(t, e.Metrics["ABE"])

	require.Len(t, e.Calls, 2)
	assert.Equal(t, "S1", e.Calls[0].Sample)
	assert.Equal(t, "1/1", e.Calls[0].GT)
	assert.Equal(t, "255,30,0", e.Calls[0].PL)
	assert.True(t, e.Calls[0].GQ.Valid)
	assert.Equal(t, int64(30), e.Calls[0].GQ.Int64)
	assert.Equal(t, [2]int{0, 10}, e.Calls[0].AD)
	assert.Equal(t, "./.", e.Calls[1].GT)
	assert.False(t, e.Calls[1].GQ.Valid)
}

func TestLookupSiteEmpty(t *testing.T) {
	s := openInMemory(t)
	sites, err := s.LookupSite("1", 100)
	require.NoError(t, err)
	assert.Empty(t, sites)
}

func TestAdd_BatchesAndDeduplicates(t *testing.T) {
	s := openInMemory(t)
	s.SetBatchSize(2)
	samples := []string{"S1", "S2"}

	require.NoError(t, s.Add(siteResult(100, "AT"), samples))
	assert.Len(t, s.pending, 1)
	require.NoError(t, s.Add(siteResult(100, "AT"), samples))
	assert.Empty(t, s.pending, "batch written when full")
	require.NoError(t, s.Add(siteResult(100, "AT"), samples))
	require.NoError(t, s.Flush())

	var n int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM site_evidence").Scan(&n))
	assert.Equal(t, 1, n)
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM sample_calls").Scan(&n))
	assert.Equal(t, 2, n)
}

func TestAdd_SampleMismatch(t *testing.T) {
	s := openInMemory(t)
	require.Error(t, s.Add(siteResult(100, "AT"), []string{"S1"}))
}

func TestClear(t *testing.T) {
	s := openInMemory(t)
	samples := []string{"S1", "S2"}
	require.NoError(t, s.Add(siteResult(100, "AT"), samples))
	require.NoError(t, s.Flush())

	require.NoError(t, s.Clear())
	sites, err := s.LookupSite("1", 100)
	require.NoError(t, err)
	assert.Empty(t, sites)

	// cleared sites can be written again
	require.NoError(t, s.Add(siteResult(100, "AT"), samples))
	require.NoError(t, s.Flush())
	sites, err = s.LookupSite("1", 100)
	require.NoError(t, err)
	assert.Len(t, sites, 1)
}

func TestRecordInputs(t *testing.T) {
	s := openInMemory(t)
	path := filepath.Join(t.TempDir(), "sites.vcf")
	require.NoError(t, os.WriteFile(path, []byte("##fileformat=VCFv4.2\n"), 0o644))

	fp, err := StatFile(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordInputs(fp))
	require.NoError(t, s.RecordInputs(fp))

	fps, err := s.Inputs()
	require.NoError(t, err)
	require.Len(t, fps, 1)
	assert.Equal(t, path, fps[0].Path)
	assert.Equal(t, fp.Size, fps[0].Size)
	assert.True(t, fps[0].Matches())

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	assert.False(t, fps[0].Matches())

	_, err = StatFile(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "evidence.duckdb")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Add(siteResult(100, "AT"), []string{"S1", "S2"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	sites, err := s.LookupSite("1", 100)
	require.NoError(t, err)
	assert.Len(t, sites, 1)
}
