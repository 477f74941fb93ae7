package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SeqOne/vt/internal/genotype"
)

func TestSummaryWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewSummaryWriter(&buf)

	res := &genotype.SiteResult{
		Site:     genotype.Site{Chrom: "1", Pos1: 100, Ref: "A", Alt: []string{"AT"}},
		Motif:    "A",
		DP:       20,
		NSNonRef: 1,
		MaxGQ:    30,
	}
	res.BQR.Add(600, 20)
	res.STR.Add(11, 20)
	require.NoError(t, w.Add(res))

	res2 := &genotype.SiteResult{Site: genotype.Site{Chrom: "1", Pos1: 200, Ref: "C", Alt: []string{"G", "T"}}}
	require.NoError(t, w.Add(res2))
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "#CHROM\tPOS\tREF\tALT\tMOTIF\tDP\tNS_NREF\tMAX_GQ\tBQR\tMQR\tCYR\tSTR\tNMR\tIOR\tNM0\tNM1\tABE\tABH", lines[0])
	assert.Equal(t, "1\t100\tA\tAT\tA\t20\t1\t30\t30.000\t.\t.\t0.550\t.\t.\t.\t.\t.\t.", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "1\t200\tC\tG,T\t-\t0\t0\t0\t."))
}
