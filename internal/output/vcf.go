// Package output writes processed records as VCF and per-site summaries.
package output

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/biogo/hts/bgzf"

	"github.com/SeqOne/vt/internal/vcf"
)

// VCFWriter writes a header and one line per record. With a sort window,
// records that moved left by up to window bases are put back in position
// order before they are written.
type VCFWriter struct {
	w      *bufio.Writer
	closer io.Closer
	header *vcf.Header

	window  int64
	pool    *vcf.Pool
	pending []*vcf.Record
	chrom   string
	maxPos  int64
	line    strings.Builder
	written int
}

// NewVCFWriter creates a writer on w. The header is written by WriteHeader.
func NewVCFWriter(w io.Writer, header *vcf.Header) *VCFWriter {
	return &VCFWriter{
		w:      bufio.NewWriter(w),
		header: header,
		pool:   vcf.NewPool(),
	}
}

// CreateVCF opens path for writing: "-" is stdout and a .gz or .bgz suffix
// selects BGZF compression.
func CreateVCF(path string, header *vcf.Header) (*VCFWriter, error) {
	if path == "-" || path == "" {
		vw := NewVCFWriter(os.Stdout, header)
		return vw, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".gz") || strings.HasSuffix(path, ".bgz") {
		bg := bgzf.NewWriter(f, 1)
		vw := NewVCFWriter(bg, header)
		vw.closer = closeBoth{bg, f}
		return vw, nil
	}
	vw := NewVCFWriter(f, header)
	vw.closer = f
	return vw, nil
}

type closeBoth struct {
	inner io.Closer
	outer io.Closer
}

func (c closeBoth) Close() error {
	err := c.inner.Close()
	if cerr := c.outer.Close(); err == nil {
		err = cerr
	}
	return err
}

// SetSortWindow enables local re-sorting of records within window bases.
func (vw *VCFWriter) SetSortWindow(window int) {
	vw.window = int64(window)
}

// WriteHeader writes every header line, #CHROM last.
func (vw *VCFWriter) WriteHeader() error {
	for _, line := range vw.header.Lines() {
		if _, err := vw.w.WriteString(line); err != nil {
			return err
		}
		if err := vw.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return nil
}

// Write renders rec or, with a sort window, buffers a copy of it. The caller
// keeps ownership of rec.
func (vw *VCFWriter) Write(rec *vcf.Record) error {
	if vw.window <= 0 {
		return vw.writeLine(rec)
	}

	if rec.Chrom != vw.chrom {
		if err := vw.drain(len(vw.pending)); err != nil {
			return err
		}
		vw.chrom = rec.Chrom
		vw.maxPos = 0
	}

	cp := vw.pool.Acquire()
	cp.CopyFrom(rec)
	i := sort.Search(len(vw.pending), func(i int) bool { return vw.pending[i].Pos > cp.Pos })
	vw.pending = append(vw.pending, nil)
	copy(vw.pending[i+1:], vw.pending[i:])
	vw.pending[i] = cp
	vw.maxPos = max(vw.maxPos, cp.Pos)

	n := 0
	for n < len(vw.pending) && vw.pending[n].Pos < vw.maxPos-vw.window {
		n++
	}
	return vw.drain(n)
}

// drain writes and releases the first n buffered records.
func (vw *VCFWriter) drain(n int) error {
	for i := 0; i < n; i++ {
		if err := vw.writeLine(vw.pending[i]); err != nil {
			return err
		}
		vw.pool.Release(vw.pending[i])
		vw.pending[i] = nil
	}
	vw.pending = append(vw.pending[:0], vw.pending[n:]...)
	return nil
}

func (vw *VCFWriter) writeLine(rec *vcf.Record) error {
	vw.line.Reset()
	rec.AppendTo(&vw.line)
	vw.line.WriteByte('\n')
	if _, err := vw.w.WriteString(vw.line.String()); err != nil {
		return err
	}
	vw.written++
	return nil
}

// Written returns the number of record lines written so far.
func (vw *VCFWriter) Written() int {
	return vw.written
}

// Flush writes buffered records and flushes the underlying writer.
func (vw *VCFWriter) Flush() error {
	if err := vw.drain(len(vw.pending)); err != nil {
		return err
	}
	return vw.w.Flush()
}

// Close flushes and closes the file opened by CreateVCF.
func (vw *VCFWriter) Close() error {
	err := vw.Flush()
	if vw.closer != nil {
		if cerr := vw.closer.Close(); err == nil {
			err = cerr
		}
		vw.closer = nil
	}
	return err
}
