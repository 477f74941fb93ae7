package vcf

import (
	"fmt"
	"strings"
)

// Header holds the meta-information lines and the #CHROM column line.
type Header struct {
	Meta    []string // "##" lines in file order
	Samples []string // sample names from the #CHROM line
	columns string
}

const fixedColumns = "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO"

// NewHeader returns a minimal VCFv4.2 header with the given samples.
func NewHeader(samples ...string) *Header {
	h := &Header{Meta: []string{"##fileformat=VCFv4.2"}}
	h.SetSamples(samples)
	return h
}

// Lines returns all header lines, #CHROM last.
func (h *Header) Lines() []string {
	lines := make([]string, 0, len(h.Meta)+1)
	lines = append(lines, h.Meta...)
	return append(lines, h.ColumnLine())
}

// ColumnLine returns the #CHROM line.
func (h *Header) ColumnLine() string {
	if h.columns == "" {
		h.SetSamples(h.Samples)
	}
	return h.columns
}

// SetSamples rewrites the #CHROM line for the given samples.
func (h *Header) SetSamples(samples []string) {
	h.Samples = samples
	if len(samples) == 0 {
		h.columns = fixedColumns
		return
	}
	h.columns = fixedColumns + "\tFORMAT\t" + strings.Join(samples, "\t")
}

func (h *Header) setColumnLine(line string) {
	h.columns = line
	fields := strings.Split(line, "\t")
	if len(fields) > 9 {
		h.Samples = fields[9:]
	} else {
		h.Samples = nil
	}
}

// HasInfo reports whether an INFO definition with the given ID exists.
func (h *Header) HasInfo(id string) bool {
	return h.findDefinition("INFO", id) >= 0
}

// HasFormat reports whether a FORMAT definition with the given ID exists.
func (h *Header) HasFormat(id string) bool {
	return h.findDefinition("FORMAT", id) >= 0
}

// AddInfo registers an INFO definition and returns the ID actually used.
// When id is already defined and override is false the first free id_N is
// used instead; with override the existing definition is replaced.
func (h *Header) AddInfo(id, number, typ, description string, override bool) string {
	return h.addDefinition("INFO", id, number, typ, description, override)
}

// AddFormat registers a FORMAT definition, replacing any existing one.
func (h *Header) AddFormat(id, number, typ, description string) string {
	return h.addDefinition("FORMAT", id, number, typ, description, true)
}

// AddMeta inserts a raw "##" line before the #CHROM line.
func (h *Header) AddMeta(line string) {
	h.Meta = append(h.Meta, line)
}

func (h *Header) addDefinition(kind, id, number, typ, description string, override bool) string {
	chosen := id
	if idx := h.findDefinition(kind, id); idx >= 0 {
		if override {
			h.Meta[idx] = definitionLine(kind, id, number, typ, description)
			return id
		}
		for n := 1; ; n++ {
			chosen = fmt.Sprintf("%s_%d", id, n)
			if h.findDefinition(kind, chosen) < 0 {
				break
			}
		}
	}
	h.Meta = append(h.Meta, definitionLine(kind, chosen, number, typ, description))
	return chosen
}

func definitionLine(kind, id, number, typ, description string) string {
	return fmt.Sprintf("##%s=<ID=%s,Number=%s,Type=%s,Description=\"%s\">", kind, id, number, typ, description)
}

func (h *Header) findDefinition(kind, id string) int {
	prefix := "##" + kind + "=<ID=" + id + ","
	for i, line := range h.Meta {
		if strings.HasPrefix(line, prefix) {
			return i
		}
	}
	return -1
}

// Clone returns an independent copy of the header.
func (h *Header) Clone() *Header {
	c := &Header{
		Meta:    append([]string(nil), h.Meta...),
		Samples: append([]string(nil), h.Samples...),
		columns: h.columns,
	}
	return c
}
