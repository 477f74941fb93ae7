package output

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/SeqOne/vt/internal/genotype"
)

// SummaryWriter writes one tab-delimited line per genotyped site.
type SummaryWriter struct {
	w       *bufio.Writer
	columns []string
	header  bool
}

// NewSummaryWriter creates a summary writer. The header line is written
// with the first site.
func NewSummaryWriter(w io.Writer) *SummaryWriter {
	columns := []string{"#CHROM", "POS", "REF", "ALT", "MOTIF", "DP", "NS_NREF", "MAX_GQ"}
	var empty genotype.SiteResult
	for _, m := range empty.Metrics() {
		columns = append(columns, m.ID)
	}
	return &SummaryWriter{w: bufio.NewWriter(w), columns: columns}
}

// WriteHeader writes the column line.
func (sw *SummaryWriter) WriteHeader() error {
	sw.header = true
	_, err := sw.w.WriteString(strings.Join(sw.columns, "\t") + "\n")
	return err
}

// Add writes res as one line.
func (sw *SummaryWriter) Add(res *genotype.SiteResult) error {
	if !sw.header {
		if err := sw.WriteHeader(); err != nil {
			return err
		}
	}

	motif := res.Motif
	if motif == "" {
		motif = "-"
	}
	values := make([]string, 0, len(sw.columns))
	values = append(values,
		res.Site.Chrom,
		strconv.Itoa(res.Site.Pos1),
		res.Site.Ref,
		strings.Join(res.Site.Alt, ","),
		motif,
		strconv.Itoa(res.DP),
		strconv.Itoa(res.NSNonRef),
		strconv.Itoa(res.MaxGQ),
	)
	for _, m := range res.Metrics() {
		values = append(values, m.Ratio.String())
	}

	_, err := sw.w.WriteString(strings.Join(values, "\t") + "\n")
	return err
}

// Flush flushes any buffered data to the underlying writer.
func (sw *SummaryWriter) Flush() error {
	return sw.w.Flush()
}
