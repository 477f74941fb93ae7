package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/SeqOne/vt/internal/reference"
)

var errNoReference = errors.New("normalize: operation needs a reference sequence")

// Manipulator classifies and normalizes variants against a reference.
// It holds no mutable state; safe for concurrent use when the reference is.
type Manipulator struct {
	ref reference.Sequencer
}

// NewManipulator returns a Manipulator over ref. A nil ref restricts the
// Manipulator to reference-free operations (Classify without tract lengths,
// LeftTrim).
func NewManipulator(ref reference.Sequencer) *Manipulator {
	return &Manipulator{ref: ref}
}

// Reference returns the underlying sequencer.
func (m *Manipulator) Reference() reference.Sequencer {
	return m.ref
}

// validate checks alleles and the REF span against the reference.
func (m *Manipulator) validate(chrom string, pos1 int, alleles []string) error {
	if len(alleles) == 0 {
		return &InputError{Reason: "empty allele list"}
	}
	seen := make(map[string]struct{}, len(alleles))
	for _, a := range alleles {
		if a == "" {
			return &InputError{Reason: "empty allele"}
		}
		if _, dup := seen[a]; dup {
			return &InputError{Reason: fmt.Sprintf("duplicate allele %q", a)}
		}
		seen[a] = struct{}{}
	}
	if isSymbolic(alleles[0]) {
		return &InputError{Reason: fmt.Sprintf("symbolic reference allele %q", alleles[0])}
	}
	if pos1 < 1 {
		return &CoordinateError{Chrom: chrom, Pos1: pos1, Reason: "position before sequence start"}
	}
	if m.ref == nil {
		return nil
	}
	length, ok := m.ref.Length(chrom)
	if !ok {
		return &CoordinateError{Chrom: chrom, Pos1: pos1, Reason: "sequence not in reference"}
	}
	if end := pos1 + len(alleles[0]) - 1; end > length {
		return &CoordinateError{Chrom: chrom, Pos1: pos1, Reason: fmt.Sprintf("reference allele ends at %d beyond sequence length %d", end, length)}
	}
	return nil
}

// lengthClass groups alleles for clump detection.
type lengthClass uint8

const (
	classSubstitution lengthClass = 1 << iota
	classInsertion
	classDeletion
)

// Classify determines the variant type of a REF-first allele list and, for
// indels, the repeat motif of the inserted or deleted bases.
func (m *Manipulator) Classify(chrom string, pos1 int, alleles []string) (Variant, error) {
	if err := m.validate(chrom, pos1, alleles); err != nil {
		return Variant{}, err
	}

	v := Variant{Alleles: make([]Allele, 0, len(alleles)-1)}
	var classes lengthClass
	bestIndel := -1

	for i := 1; i < len(alleles); i++ {
		a, class, err := m.classifyAllele(chrom, pos1, alleles[0], alleles[i])
		if err != nil {
			return Variant{}, err
		}
		classes |= class
		v.Type |= a.Type
		v.Alleles = append(v.Alleles, a)
		if a.Type.IsIndel() && (bestIndel < 0 || a.TractLen > v.Alleles[bestIndel].TractLen) {
			bestIndel = len(v.Alleles) - 1
		}
	}

	if len(alleles) > 2 && countBits(uint8(classes)) > 1 {
		v.Type |= TypeClump
	}

	switch {
	case bestIndel >= 0:
		a := v.Alleles[bestIndel]
		v.Len, v.Motif, v.MotifLen, v.TractLen, v.Offset = a.Len, a.Motif, a.MotifLen, a.TractLen, a.Offset
	case len(v.Alleles) > 0:
		v.Len = v.Alleles[0].Len
	}
	return v, nil
}

func (m *Manipulator) classifyAllele(chrom string, pos1 int, ref, alt string) (Allele, lengthClass, error) {
	if isSymbolic(alt) {
		return Allele{Type: TypeRef}, 0, nil
	}

	r, a, leftTrimmed := trimPair(ref, alt)

	if len(r) == len(a) {
		mismatches := 0
		for i := 0; i < len(r); i++ {
			if r[i] != a[i] {
				mismatches++
			}
		}
		switch mismatches {
		case 0:
			return Allele{Type: TypeRef}, 0, nil
		case 1:
			return Allele{Type: TypeSNP, Len: 1}, classSubstitution, nil
		default:
			return Allele{Type: TypeMNP, Len: mismatches}, classSubstitution, nil
		}
	}

	al := Allele{Len: len(a) - len(r), Offset: leftTrimmed}
	class := classInsertion
	indelSeq := a
	if al.Len > 0 {
		al.Type = TypeInsertion
	} else {
		al.Type = TypeDeletion
		class = classDeletion
		indelSeq = r
	}

	al.Motif = minimalPeriod(indelSeq)
	al.MotifLen = len(al.Motif)

	if m.ref != nil {
		// the indel sits between pos1+leftTrimmed-1 and pos1+leftTrimmed
		tract, err := m.tractAround(chrom, pos1+leftTrimmed, al.Motif)
		if err != nil {
			return Allele{}, 0, err
		}
		al.TractLen = tract.TractLen
	}
	return al, class, nil
}

// trimPair strips the shared suffix and then the shared prefix of two
// alleles, returning the remainders and the number of prefix bases removed.
func trimPair(ref, alt string) (string, string, int) {
	for len(ref) > 0 && len(alt) > 0 && ref[len(ref)-1] == alt[len(alt)-1] {
		ref, alt = ref[:len(ref)-1], alt[:len(alt)-1]
	}
	n := 0
	for len(ref) > 0 && len(alt) > 0 && ref[0] == alt[0] {
		ref, alt = ref[1:], alt[1:]
		n++
	}
	return ref, alt, n
}

// LeftTrim removes bases shared by the end of all alleles, then bases shared
// by their start, never emptying an allele. The position moves forward by the
// number of bases removed from the left.
func (m *Manipulator) LeftTrim(alleles []string, pos1 int) ([]string, int, int) {
	out := append([]string(nil), alleles...)
	if len(out) == 0 {
		return out, pos1, 0
	}

	for allLongerThanOne(out) && shareLastBase(out) {
		for i := range out {
			out[i] = out[i][:len(out[i])-1]
		}
	}

	trimmed := 0
	for allLongerThanOne(out) && shareFirstBase(out) {
		for i := range out {
			out[i] = out[i][1:]
		}
		trimmed++
	}
	return out, pos1 + trimmed, trimmed
}

// LeftAlign shifts an indel to its leftmost equivalent position: while all
// alleles end in the same base the base is dropped, and an allele emptied in
// the process is re-anchored on the preceding reference base. It returns the
// new alleles and position, the number of left shifts and the number of right
// truncations.
func (m *Manipulator) LeftAlign(chrom string, alleles []string, pos1 int) ([]string, int, int, int, error) {
	if m.ref == nil {
		return nil, 0, 0, 0, errNoReference
	}
	if err := m.validate(chrom, pos1, alleles); err != nil {
		return nil, 0, 0, 0, err
	}
	for _, a := range alleles {
		if isSymbolic(a) {
			return nil, 0, 0, 0, &InputError{Reason: fmt.Sprintf("symbolic allele %q cannot be aligned", a)}
		}
	}

	out := append([]string(nil), alleles...)
	aligned, rightTrimmed := 0, 0

	// reference bases to the left of pos1 are fetched in blocks
	var block string
	blockStart := pos1

	for shareLastBase(out) {
		if !allLongerThanOne(out) && pos1 <= 1 {
			break
		}
		for i := range out {
			out[i] = out[i][:len(out[i])-1]
		}
		rightTrimmed++

		if anyEmpty(out) {
			pos1--
			if pos1 < blockStart {
				blockStart = max(1, pos1-127)
				seq, err := m.ref.Fetch(chrom, blockStart, pos1)
				if err != nil {
					return nil, 0, 0, 0, err
				}
				if len(seq) != pos1-blockStart+1 {
					return nil, 0, 0, 0, &CoordinateError{Chrom: chrom, Pos1: pos1, Reason: "reference truncated"}
				}
				block = seq
			}
			b := block[pos1-blockStart]
			for i := range out {
				out[i] = string(b) + out[i]
			}
			aligned++
		}
	}
	return out, pos1, aligned, rightTrimmed, nil
}

// Result is the outcome of Normalize.
type Result struct {
	Alleles      []string
	Pos1         int
	Aligned      int // bases shifted left
	RightTrimmed int
	LeftTrimmed  int
	Changed      bool // position or alleles differ from the input
}

// Normalize left-aligns and then left-trims a variant.
func (m *Manipulator) Normalize(chrom string, pos1 int, alleles []string) (Result, error) {
	out, pos, aligned, rightTrimmed, err := m.LeftAlign(chrom, alleles, pos1)
	if err != nil {
		return Result{}, err
	}
	out, pos, leftTrimmed := m.LeftTrim(out, pos)

	res := Result{
		Alleles:      out,
		Pos1:         pos,
		Aligned:      aligned,
		RightTrimmed: rightTrimmed,
		LeftTrimmed:  leftTrimmed,
		Changed:      pos != pos1 || !equalAlleles(out, alleles),
	}
	return res, nil
}

func equalAlleles(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func shareLastBase(alleles []string) bool {
	if len(alleles) < 2 {
		return false
	}
	for _, a := range alleles {
		if a == "" {
			return false
		}
	}
	last := alleles[0][len(alleles[0])-1]
	for _, a := range alleles[1:] {
		if a[len(a)-1] != last {
			return false
		}
	}
	return true
}

func shareFirstBase(alleles []string) bool {
	if len(alleles) < 2 {
		return false
	}
	for _, a := range alleles {
		if a == "" || a[0] != alleles[0][0] {
			return false
		}
	}
	return true
}

func allLongerThanOne(alleles []string) bool {
	for _, a := range alleles {
		if len(a) <= 1 {
			return false
		}
	}
	return true
}

func anyEmpty(alleles []string) bool {
	for _, a := range alleles {
		if a == "" {
			return true
		}
	}
	return false
}

func isSymbolic(allele string) bool {
	return allele == "*" || allele == "." || strings.HasPrefix(allele, "<") || strings.ContainsAny(allele, "[]")
}

func countBits(x uint8) int {
	n := 0
	for ; x != 0; x &= x - 1 {
		n++
	}
	return n
}
