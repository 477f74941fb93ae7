// Package normalize classifies variants and rewrites indels into their
// canonical left-aligned, parsimonious form.
package normalize

import (
	"fmt"
	"strings"
)

// Type is a bitmask describing the variant classes present at a site.
type Type uint8

const (
	TypeRef       Type = 0
	TypeSNP       Type = 1
	TypeMNP       Type = 2
	TypeInsertion Type = 4
	TypeDeletion  Type = 8
	TypeIndel          = TypeInsertion | TypeDeletion
	TypeClump     Type = 64
)

// Has reports whether every bit of t2 is set in t.
func (t Type) Has(t2 Type) bool {
	return t2 != 0 && t&t2 == t2
}

// IsIndel reports whether the insertion or deletion bit is set.
func (t Type) IsIndel() bool {
	return t&TypeIndel != 0
}

func (t Type) String() string {
	if t == TypeRef {
		return "REF"
	}
	var parts []string
	if t&TypeSNP != 0 {
		parts = append(parts, "SNP")
	}
	if t&TypeMNP != 0 {
		parts = append(parts, "MNP")
	}
	switch {
	case t&TypeIndel == TypeIndel:
		parts = append(parts, "INDEL")
	case t&TypeInsertion != 0:
		parts = append(parts, "INSERTION")
	case t&TypeDeletion != 0:
		parts = append(parts, "DELETION")
	}
	if t&TypeClump != 0 {
		parts = append(parts, "CLUMP")
	}
	if len(parts) == 0 {
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
	return strings.Join(parts, "/")
}

// Allele describes one alternate allele relative to the reference allele.
type Allele struct {
	Type Type
	// Len is the signed length change for indels (positive for insertions)
	// and the number of differing bases for SNPs and MNPs.
	Len      int
	Motif    string // minimal repeat unit of the inserted/deleted bases
	MotifLen int
	TractLen int // reference bases covered by the motif around the indel
	Offset   int // bases shared by REF and ALT before the indel breakpoint
}

// Variant is the classification of a whole site.
type Variant struct {
	Type     Type
	Len      int
	Motif    string
	MotifLen int
	TractLen int
	Offset   int
	Alleles  []Allele // one per alternate allele
}

// Repeat is a tandem repeat tract on the reference.
type Repeat struct {
	Motif    string
	Start1   int
	TractLen int
}

// End1 returns the last base of the tract.
func (r Repeat) End1() int {
	return r.Start1 + r.TractLen - 1
}

// Copies returns the tract length in motif units.
func (r Repeat) Copies() float64 {
	if len(r.Motif) == 0 {
		return 0
	}
	return float64(r.TractLen) / float64(len(r.Motif))
}

// Probes are reference haplotypes built around each allele.
type Probes struct {
	Seqs     []string // left flank + allele + right flank, one per allele
	Preamble int      // length of the left flank
	Resolved bool     // false when MaxFlank was reached without separating all probes
}
