// Package vcf provides VCF record types, parsing and ordered, optionally
// index-accelerated reading.
package vcf

import (
	"strconv"
	"strings"
)

// Record is a single VCF data line. Records are owned by exactly one stage at
// a time and are recycled through a Pool.
type Record struct {
	Chrom         string   // Chromosome name (e.g., "12", "chr12")
	Pos           int64    // 1-based position of the first REF base
	ID            string   // Variant identifier (e.g., rs ID)
	Ref           string   // Reference allele
	Alt           []string // Alternate alleles in file order
	Qual          string   // QUAL column, kept verbatim
	Filter        string   // FILTER column
	Info          Info     // INFO key/value pairs in file order
	SampleColumns string   // FORMAT + sample columns, tab-joined
}

// Alleles returns REF followed by the ALT alleles as a new slice.
func (r *Record) Alleles() []string {
	alleles := make([]string, 0, len(r.Alt)+1)
	alleles = append(alleles, r.Ref)
	return append(alleles, r.Alt...)
}

// SetAlleles replaces REF and ALT from a REF-first allele list.
func (r *Record) SetAlleles(alleles []string) {
	if len(alleles) == 0 {
		return
	}
	r.Ref = alleles[0]
	r.Alt = append(r.Alt[:0], alleles[1:]...)
}

// End returns the 1-based position of the last REF base.
func (r *Record) End() int64 {
	if len(r.Ref) == 0 {
		return r.Pos
	}
	return r.Pos + int64(len(r.Ref)) - 1
}

// IsSNV returns true if REF and every ALT are single bases.
func (r *Record) IsSNV() bool {
	if len(r.Ref) != 1 || len(r.Alt) == 0 {
		return false
	}
	for _, a := range r.Alt {
		if len(a) != 1 {
			return false
		}
	}
	return true
}

// IsIndel returns true if any ALT differs in length from REF.
func (r *Record) IsIndel() bool {
	for _, a := range r.Alt {
		if isSymbolic(a) {
			continue
		}
		if len(a) != len(r.Ref) {
			return true
		}
	}
	return false
}

// Key returns the chr:pos:ref:alt encoding of the record.
func (r *Record) Key() string {
	var b strings.Builder
	b.WriteString(r.Chrom)
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(r.Pos, 10))
	b.WriteByte(':')
	b.WriteString(r.Ref)
	b.WriteByte(':')
	b.WriteString(strings.Join(r.Alt, ","))
	return b.String()
}

// Reset clears the record, keeping allocated capacity.
func (r *Record) Reset() {
	r.Chrom = ""
	r.Pos = 0
	r.ID = ""
	r.Ref = ""
	r.Alt = r.Alt[:0]
	r.Qual = ""
	r.Filter = ""
	r.Info.Reset()
	r.SampleColumns = ""
}

// CopyFrom makes r a deep copy of o.
func (r *Record) CopyFrom(o *Record) {
	r.Chrom = o.Chrom
	r.Pos = o.Pos
	r.ID = o.ID
	r.Ref = o.Ref
	r.Alt = append(r.Alt[:0], o.Alt...)
	r.Qual = o.Qual
	r.Filter = o.Filter
	r.Info.fields = append(r.Info.fields[:0], o.Info.fields...)
	r.SampleColumns = o.SampleColumns
}

// String renders the record as a VCF data line without the trailing newline.
func (r *Record) String() string {
	var b strings.Builder
	b.Grow(128)
	r.AppendTo(&b)
	return b.String()
}

// AppendTo writes the record's VCF data line to b.
func (r *Record) AppendTo(b *strings.Builder) {
	b.WriteString(r.Chrom)
	b.WriteByte('\t')
	b.WriteString(strconv.FormatInt(r.Pos, 10))
	b.WriteByte('\t')
	writeOrDot(b, r.ID)
	b.WriteByte('\t')
	b.WriteString(r.Ref)
	b.WriteByte('\t')
	if len(r.Alt) == 0 {
		b.WriteByte('.')
	} else {
		for i, a := range r.Alt {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(a)
		}
	}
	b.WriteByte('\t')
	writeOrDot(b, r.Qual)
	b.WriteByte('\t')
	writeOrDot(b, r.Filter)
	b.WriteByte('\t')
	r.Info.appendTo(b)
	if r.SampleColumns != "" {
		b.WriteByte('\t')
		b.WriteString(r.SampleColumns)
	}
}

func writeOrDot(b *strings.Builder, s string) {
	if s == "" {
		b.WriteByte('.')
		return
	}
	b.WriteString(s)
}

func isSymbolic(allele string) bool {
	return allele == "*" || allele == "." || strings.HasPrefix(allele, "<") || strings.ContainsAny(allele, "[]")
}

// InfoField is one INFO entry. Flags carry no value.
type InfoField struct {
	Key   string
	Value string
	Flag  bool
}

// Info is an ordered INFO column.
type Info struct {
	fields []InfoField
}

// ParseInfo parses a raw INFO column.
func ParseInfo(raw string) Info {
	var in Info
	in.parse(raw)
	return in
}

func (in *Info) parse(raw string) {
	in.fields = in.fields[:0]
	if raw == "" || raw == "." {
		return
	}
	for rest := raw; rest != ""; {
		var kv string
		kv, rest, _ = strings.Cut(rest, ";")
		if kv == "" {
			continue
		}
		key, value, hasValue := strings.Cut(kv, "=")
		in.fields = append(in.fields, InfoField{Key: key, Value: value, Flag: !hasValue})
	}
}

// Len returns the number of fields.
func (in *Info) Len() int {
	return len(in.fields)
}

// Fields returns the fields in order. The slice must not be modified.
func (in *Info) Fields() []InfoField {
	return in.fields
}

// Get returns the value stored under key.
func (in *Info) Get(key string) (string, bool) {
	for _, f := range in.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Has reports whether key is present, as a flag or with a value.
func (in *Info) Has(key string) bool {
	_, ok := in.Get(key)
	return ok
}

// Set replaces the value under key or appends a new field.
func (in *Info) Set(key, value string) {
	for i := range in.fields {
		if in.fields[i].Key == key {
			in.fields[i].Value = value
			in.fields[i].Flag = false
			return
		}
	}
	in.fields = append(in.fields, InfoField{Key: key, Value: value})
}

// SetFlag sets a valueless flag.
func (in *Info) SetFlag(key string) {
	for i := range in.fields {
		if in.fields[i].Key == key {
			in.fields[i].Value = ""
			in.fields[i].Flag = true
			return
		}
	}
	in.fields = append(in.fields, InfoField{Key: key, Flag: true})
}

// Delete removes key if present.
func (in *Info) Delete(key string) {
	for i := range in.fields {
		if in.fields[i].Key == key {
			in.fields = append(in.fields[:i], in.fields[i+1:]...)
			return
		}
	}
}

// Reset removes all fields.
func (in *Info) Reset() {
	in.fields = in.fields[:0]
}

func (in Info) String() string {
	var b strings.Builder
	in.appendTo(&b)
	return b.String()
}

func (in *Info) appendTo(b *strings.Builder) {
	if len(in.fields) == 0 {
		b.WriteByte('.')
		return
	}
	for i, f := range in.fields {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(f.Key)
		if !f.Flag {
			b.WriteByte('=')
			b.WriteString(f.Value)
		}
	}
}
