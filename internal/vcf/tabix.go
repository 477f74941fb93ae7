package vcf

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/biogo/hts/bgzf"
	"github.com/biogo/hts/bgzf/index"
	"github.com/biogo/hts/tabix"
	"github.com/klauspost/compress/gzip"

	"github.com/SeqOne/vt/internal/genome"
)

// tabixSource answers interval queries against a bgzip-compressed VCF.
type tabixSource struct {
	file *os.File
	bg   *bgzf.Reader
	idx  *tabix.Index
}

// maxTabixEnd is the largest coordinate the binning scheme addresses.
const maxTabixEnd = 1 << 29

func openTabix(path string) (*tabixSource, error) {
	idxFile, err := os.Open(path + ".tbi")
	if err != nil {
		return nil, err
	}
	defer idxFile.Close()

	gz, err := gzip.NewReader(idxFile)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	idx, err := tabix.ReadFrom(gz)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	bg, err := bgzf.NewReader(f, 1)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &tabixSource{file: f, bg: bg, idx: idx}, nil
}

func (s *tabixSource) Query(iv genome.Interval) (regionQuery, error) {
	chunks, err := s.idx.Chunks(iv.Seq, iv.Start1-1, min(iv.End1, maxTabixEnd))
	if err != nil {
		// sequence absent from the index: nothing to return for this interval
		return emptyQuery{}, nil
	}
	if len(chunks) == 0 {
		return emptyQuery{}, nil
	}

	cr, err := index.NewChunkReader(s.bg, chunks)
	if err != nil {
		return nil, err
	}
	return &lineQuery{reader: bufio.NewReader(cr), closer: cr}, nil
}

func (s *tabixSource) Close() error {
	s.bg.Close()
	return s.file.Close()
}

// lineQuery yields newline-terminated lines from a reader.
type lineQuery struct {
	reader *bufio.Reader
	closer io.Closer
}

func (q *lineQuery) Next() (string, error) {
	line, err := q.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (q *lineQuery) Close() error {
	if q.closer == nil {
		return nil
	}
	return q.closer.Close()
}

type emptyQuery struct{}

func (emptyQuery) Next() (string, error) { return "", io.EOF }
func (emptyQuery) Close() error          { return nil }
