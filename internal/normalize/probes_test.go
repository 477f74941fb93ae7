package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateProbes_SNP(t *testing.T) {
	m := newTestManipulator()

	p, err := m.GenerateProbes("1", 9, []string{"T", "C"}, 3)
	require.NoError(t, err)
	assert.True(t, p.Resolved)
	assert.Equal(t, 3, p.Preamble)
	assert.Equal(t, []string{"CATTGAC", "CATCGAC"}, p.Seqs)
}

func TestGenerateProbes_GrowsFlankInRepeat(t *testing.T) {
	m := newTestManipulator()

	p, err := m.GenerateProbes("1", 1, []string{"G", "GCA"}, 2)
	require.NoError(t, err)
	assert.True(t, p.Resolved)
	assert.Equal(t, 0, p.Preamble)
	assert.Equal(t, "GCACACATT", p.Seqs[0])
	assert.Equal(t, "GCACACACATT", p.Seqs[1])
}

func TestGenerateProbes_UnresolvedAtSequenceEdges(t *testing.T) {
	m := newTestManipulator()

	p, err := m.GenerateProbes("2", 1, []string{"AA", "A"}, 2)
	require.NoError(t, err)
	assert.False(t, p.Resolved)
	assert.Equal(t, []string{"AAAAT", "AAAT"}, p.Seqs)
}

func TestGenerateProbes_Errors(t *testing.T) {
	m := newTestManipulator()
	var ie *InputError

	_, err := m.GenerateProbes("1", 9, []string{"T", "<INS>"}, 3)
	assert.True(t, errors.As(err, &ie))

	_, err = m.GenerateProbes("1", 9, []string{"T", "T"}, 3)
	assert.True(t, errors.As(err, &ie))

	_, err = NewManipulator(nil).GenerateProbes("1", 9, []string{"T", "C"}, 3)
	assert.ErrorIs(t, err, errNoReference)
}

func TestDistinguishable(t *testing.T) {
	assert.True(t, distinguishable([]string{"AAXCC", "AAYCC"}, 2))
	assert.False(t, distinguishable([]string{"AAXCC", "AAYCC"}, 3))
	assert.False(t, distinguishable([]string{"AAA", "AAA"}, 1))
	assert.Equal(t, 2, commonPrefix("ACGT", "ACTT"))
	assert.Equal(t, 2, commonSuffix("ACGT", "TTGT"))
}
