package output

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/biogo/hts/bgzf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SeqOne/vt/internal/vcf"
)

func record(chrom string, pos int64, ref, alt string) *vcf.Record {
	return &vcf.Record{Chrom: chrom, Pos: pos, Ref: ref, Alt: []string{alt}, Filter: "PASS"}
}

func dataLines(s string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		if !strings.HasPrefix(line, "#") {
			out = append(out, line)
		}
	}
	return out
}

func TestVCFWriter_HeaderAndRecords(t *testing.T) {
	h := vcf.NewHeader("S1")
	h.AddInfo("MOTIF", "1", "String", "Canonical motif", false)

	var buf bytes.Buffer
	w := NewVCFWriter(&buf, h)
	require.NoError(t, w.WriteHeader())

	rec := record("1", 100, "A", "AT")
	rec.Info.Set("MOTIF", "A")
	rec.SampleColumns = "GT\t0/1"
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Flush())

	want := "##fileformat=VCFv4.2\n" +
		"##INFO=<ID=MOTIF,Number=1,Type=String,Description=\"Canonical motif\">\n" +
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tS1\n" +
		"1\t100\t.\tA\tAT\t.\tPASS\tMOTIF=A\tGT\t0/1\n"
	assert.Equal(t, want, buf.String())
	assert.Equal(t, 1, w.Written())
}

func TestVCFWriter_SortWindow(t *testing.T) {
	var buf bytes.Buffer
	w := NewVCFWriter(&buf, vcf.NewHeader())
	w.SetSortWindow(10)

	// the caller reuses its record, as the annotation pipeline does
	rec := &vcf.Record{}
	for _, r := range []*vcf.Record{
		record("1", 100, "A", "G"),
		record("1", 105, "C", "T"),
		record("1", 98, "AT", "A"), // left-shifted deletion
		record("1", 200, "G", "C"),
		record("2", 5, "T", "A"),
		record("2", 1, "G", "T"),
	} {
		rec.CopyFrom(r)
		require.NoError(t, w.Write(rec))
		rec.Reset()
	}

	require.NoError(t, w.Flush())

	var positions []string
	for _, line := range dataLines(buf.String()) {
		f := strings.Split(line, "\t")
		positions = append(positions, f[0]+":"+f[1])
	}
	assert.Equal(t, []string{"1:98", "1:100", "1:105", "1:200", "2:1", "2:5"}, positions)
	assert.Equal(t, 6, w.Written())
}

func TestVCFWriter_NoWindowKeepsInputOrder(t *testing.T) {
	var buf bytes.Buffer
	w := NewVCFWriter(&buf, vcf.NewHeader())
	require.NoError(t, w.Write(record("1", 100, "A", "G")))
	require.NoError(t, w.Write(record("1", 98, "AT", "A")))
	require.NoError(t, w.Flush())

	lines := dataLines(buf.String())
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "1\t100\t"))
}

func TestCreateVCF(t *testing.T) {
	dir := t.TempDir()
	h := vcf.NewHeader()

	t.Run("plain", func(t *testing.T) {
		path := filepath.Join(dir, "out.vcf")
		w, err := CreateVCF(path, h)
		require.NoError(t, err)
		require.NoError(t, w.WriteHeader())
		require.NoError(t, w.Write(record("1", 10, "A", "C")))
		require.NoError(t, w.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"1\t10\t.\tA\tC\t.\tPASS\t."}, dataLines(string(data)))
	})

	t.Run("bgzf", func(t *testing.T) {
		path := filepath.Join(dir, "out.vcf.gz")
		w, err := CreateVCF(path, h)
		require.NoError(t, err)
		require.NoError(t, w.WriteHeader())
		require.NoError(t, w.Write(record("1", 10, "A", "C")))
		require.NoError(t, w.Close())

		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()
		bg, err := bgzf.NewReader(f, 1)
		require.NoError(t, err)
		defer bg.Close()

		var lines []string
		scanner := bufio.NewScanner(bg)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		require.NoError(t, scanner.Err())
		assert.Equal(t, []string{"##fileformat=VCFv4.2", "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO", "1\t10\t.\tA\tC\t.\tPASS\t."}, lines)
	})

	t.Run("unwritable", func(t *testing.T) {
		_, err := CreateVCF(filepath.Join(dir, "missing", "out.vcf"), h)
		require.Error(t, err)
	})
}
