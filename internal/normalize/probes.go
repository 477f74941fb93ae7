package normalize

import "fmt"

// MaxFlank bounds the flank length GenerateProbes will grow to.
const MaxFlank = 2048

// GenerateProbes builds one haplotype per allele by wrapping it in reference
// flanks. The flank starts at minFlank and doubles until every pair of probes
// differs with at least minFlank shared bases on each side of the differing
// segment, or MaxFlank is reached.
func (m *Manipulator) GenerateProbes(chrom string, pos1 int, alleles []string, minFlank int) (Probes, error) {
	if m.ref == nil {
		return Probes{}, errNoReference
	}
	if err := m.validate(chrom, pos1, alleles); err != nil {
		return Probes{}, err
	}
	for _, a := range alleles {
		if isSymbolic(a) {
			return Probes{}, &InputError{Reason: fmt.Sprintf("symbolic allele %q has no sequence", a)}
		}
	}
	if minFlank < 1 {
		minFlank = 1
	}

	length, _ := m.ref.Length(chrom)
	refEnd := pos1 + len(alleles[0]) - 1

	for flank := minFlank; ; flank *= 2 {
		flank = min(flank, MaxFlank)

		left, err := m.ref.Fetch(chrom, pos1-flank, pos1-1)
		if err != nil {
			return Probes{}, err
		}
		right, err := m.ref.Fetch(chrom, refEnd+1, refEnd+flank)
		if err != nil {
			return Probes{}, err
		}

		p := Probes{Seqs: make([]string, len(alleles)), Preamble: len(left)}
		for i, a := range alleles {
			p.Seqs[i] = left + a + right
		}
		if distinguishable(p.Seqs, minFlank) {
			p.Resolved = true
			return p, nil
		}

		atEdges := pos1-flank <= 1 && refEnd+flank >= length
		if flank >= MaxFlank || atEdges {
			return p, nil
		}
	}
}

// distinguishable reports whether every pair of probes differs and the
// differing segment is bracketed by at least anchor shared bases on both
// sides.
func distinguishable(seqs []string, anchor int) bool {
	for i := 0; i < len(seqs); i++ {
		for j := i + 1; j < len(seqs); j++ {
			p, q := seqs[i], seqs[j]
			if p == q {
				return false
			}
			lcp := commonPrefix(p, q)
			lcs := commonSuffix(p[lcp:], q[lcp:])
			if lcp < anchor || lcs < anchor {
				return false
			}
		}
	}
	return true
}

func commonPrefix(a, b string) int {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func commonSuffix(a, b string) int {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[len(a)-1-i] == b[len(b)-1-i] {
		i++
	}
	return i
}
