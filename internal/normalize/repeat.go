package normalize

import "strings"

const (
	// MaxMotifLen is the longest repeat unit DetectSTR considers.
	MaxMotifLen = 6
	// repeatWindow bounds how far a tract is followed in each direction.
	repeatWindow = 1024
)

// kmpFailure computes the Knuth-Morris-Pratt failure function:
// failure[i] is the length of the longest proper prefix of s[:i+1] that is
// also its suffix.
func kmpFailure(s string) []int {
	failure := make([]int, len(s))
	length := 0
	for i := 1; i < len(s); {
		if s[i] == s[length] {
			length++
			failure[i] = length
			i++
		} else if length > 0 {
			length = failure[length-1]
		} else {
			failure[i] = 0
			i++
		}
	}
	return failure
}

// minimalPeriod returns the shortest unit u such that s is u repeated a
// whole number of times, or s itself.
func minimalPeriod(s string) string {
	if len(s) < 2 {
		return s
	}
	failure := kmpFailure(s)
	p := len(s) - failure[len(s)-1]
	if len(s)%p != 0 {
		return s
	}
	return s[:p]
}

// tractAround follows motif through the reference in both directions from
// the breakpoint just before bp1, keeping the motif phase anchored at bp1.
func (m *Manipulator) tractAround(chrom string, bp1 int, motif string) (Repeat, error) {
	k := len(motif)
	if k == 0 {
		return Repeat{}, nil
	}
	winStart := max(1, bp1-repeatWindow)
	s, err := m.ref.Fetch(chrom, winStart, bp1+repeatWindow-1)
	if err != nil {
		return Repeat{}, err
	}
	b := bp1 - winStart

	j := b
	for j < len(s) && s[j] == motif[(j-b)%k] {
		j++
	}
	i := b - 1
	for i >= 0 && s[i] == motif[((i-b)%k+k)%k] {
		i--
	}
	return Repeat{Motif: motif, Start1: winStart + i + 1, TractLen: j - (i + 1)}, nil
}

// DetectRepeat looks for a short tandem repeat whose unit starts at pos1.
// Unit lengths 1..MaxMotifLen are tried in order and the first one repeated
// at least twice from pos1 onwards wins; the tract is then extended to the
// left as well.
func (m *Manipulator) DetectRepeat(chrom string, pos1 int) (Repeat, bool, error) {
	if m.ref == nil {
		return Repeat{}, false, errNoReference
	}
	length, ok := m.ref.Length(chrom)
	if !ok {
		return Repeat{}, false, &CoordinateError{Chrom: chrom, Pos1: pos1, Reason: "sequence not in reference"}
	}
	if pos1 < 1 || pos1 > length {
		return Repeat{}, false, &CoordinateError{Chrom: chrom, Pos1: pos1, Reason: "position outside sequence"}
	}

	winStart := max(1, pos1-repeatWindow)
	s, err := m.ref.Fetch(chrom, winStart, pos1+repeatWindow-1)
	if err != nil {
		return Repeat{}, false, err
	}
	b := pos1 - winStart

	for k := 1; k <= MaxMotifLen && b+k <= len(s); k++ {
		motif := s[b : b+k]
		if strings.IndexByte(motif, 'N') >= 0 {
			continue
		}
		j := b + k
		for j < len(s) && s[j] == s[j-k] {
			j++
		}
		if j-b < 2*k {
			continue
		}
		i := b - 1
		for i >= 0 && s[i] == s[i+k] {
			i--
		}
		return Repeat{Motif: motif, Start1: winStart + i + 1, TractLen: j - (i + 1)}, true, nil
	}
	return Repeat{}, false, nil
}

// DetectSTR reports the shortest repeat unit starting at pos1 and the length
// of the reference tract it forms.
func (m *Manipulator) DetectSTR(chrom string, pos1 int) (string, int, bool, error) {
	r, ok, err := m.DetectRepeat(chrom, pos1)
	if err != nil || !ok {
		return "", 0, false, err
	}
	return r.Motif, r.TractLen, true, nil
}

// TractAround exposes the motif-anchored tract scan used by Classify.
func (m *Manipulator) TractAround(chrom string, bp1 int, motif string) (Repeat, error) {
	if m.ref == nil {
		return Repeat{}, errNoReference
	}
	return m.tractAround(chrom, bp1, motif)
}
