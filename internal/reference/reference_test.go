package reference

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFASTA = `>chr1 test sequence
ACGTACGTAC
gtacgtac
>chr2
NNNNCAGCAG
`

func TestLoadFASTA(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.fa")
	require.NoError(t, os.WriteFile(path, []byte(testFASTA), 0644))

	ref, err := LoadFASTA(path)
	require.NoError(t, err)
	assert.Equal(t, 2, ref.SequenceCount())

	n, ok := ref.Length("chr1")
	assert.True(t, ok)
	assert.Equal(t, 18, n)

	seq, err := ref.Fetch("chr1", 9, 12)
	require.NoError(t, err)
	assert.Equal(t, "ACGT", seq, "lower-case input is upper-cased")
}

func TestLoadFASTA_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.fa.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(testFASTA))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	ref, err := LoadFASTA(path)
	require.NoError(t, err)
	seq, err := ref.Fetch("chr2", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, "NNNNCAGCAG", seq)
}

func TestLoadFASTA_Records(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    map[string]string
		wantErr bool
	}{
		{"empty file", "", map[string]string{}, false},
		{"comment lines", "#made by hand\n>1 first\nACGT\n", map[string]string{"1": "ACGT"}, false},
		{"ambiguity codes masked", ">1\nACRYgt\n", map[string]string{"1": "ACNNGT"}, false},
		{"windows line endings", ">1\r\nAC\r\nGT\r\n", map[string]string{"1": "ACGT"}, false},
		{"sequence before name", "ACGT\n>1\nACGT\n", nil, true},
		{"duplicate name", ">1\nAC\n>1 again\nGT\n", nil, true},
		{"no final newline", ">1\nACGT", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "ref.fa")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			ref, err := LoadFASTA(path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedFASTA)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), ref.SequenceCount())
			for name, want := range tt.want {
				got, err := ref.Fetch(name, 1, len(want))
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestMemory_FetchClamps(t *testing.T) {
	ref := NewMemory(map[string]string{"1": "ACGTN"})

	tests := []struct {
		name       string
		start, end int
		want       string
	}{
		{"inside", 2, 3, "CG"},
		{"left edge", -5, 2, "AC"},
		{"right edge", 4, 100, "TN"},
		{"outside", 10, 20, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ref.Fetch("1", tt.start, tt.end)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemory_UnknownSequence(t *testing.T) {
	ref := NewMemory(map[string]string{"1": "ACGT"})
	_, err := ref.Fetch("2", 1, 1)
	assert.True(t, errors.Is(err, ErrUnknownSequence))

	_, ok := ref.Length("2")
	assert.False(t, ok)
}

func TestBase(t *testing.T) {
	ref := NewMemory(map[string]string{"1": "ACGT"})
	b, err := Base(ref, "1", 3)
	require.NoError(t, err)
	assert.Equal(t, byte('G'), b)

	_, err = Base(ref, "1", 5)
	assert.Error(t, err)
}

func TestReadFaiLengths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.fa.fai")
	require.NoError(t, os.WriteFile(path, []byte("chr1\t18\t21\t10\t11\nchr2\t10\t50\t10\t11\n"), 0644))

	lengths, err := readFaiLengths(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"chr1": 18, "chr2": 10}, lengths)

	require.NoError(t, os.WriteFile(path, []byte("chr1\t18\n"), 0644))
	_, err = readFaiLengths(path)
	assert.ErrorContains(t, err, "malformed")
}

func TestOpen_PicksImplementation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ref.fa")
	require.NoError(t, os.WriteFile(path, []byte(">1\nACGTACGTAC\nGT\n"), 0644))

	ref, err := Open(path)
	require.NoError(t, err)
	_, isMemory := ref.(*Memory)
	assert.True(t, isMemory, "no .fai loads into memory")

	require.NoError(t, os.WriteFile(path+".fai", []byte("1\t12\t3\t10\t11\n"), 0644))
	ref, err = Open(path)
	require.NoError(t, err)
	idx, isIndexed := ref.(*Indexed)
	require.True(t, isIndexed)
	t.Cleanup(func() { idx.Close() })

	seq, err := ref.Fetch("1", 9, 12)
	require.NoError(t, err)
	assert.Equal(t, "ACGT", seq)
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "none.fa"))
	assert.Error(t, err)
}
