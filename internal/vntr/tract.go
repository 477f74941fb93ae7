package vntr

import (
	"github.com/vertgenlab/gonomics/dna"
)

// Tract is a stretch of reference covered by a repeat motif.
type Tract struct {
	Start1  int
	Seq     string
	Matches int // bases agreeing with the motif phase
}

// Len returns the tract length in bases.
func (t Tract) Len() int { return len(t.Seq) }

// End1 returns the last base of the tract.
func (t Tract) End1() int { return t.Start1 + len(t.Seq) - 1 }

// Purity is the fraction of tract bases that agree with the motif.
func (t Tract) Purity() float64 {
	if len(t.Seq) == 0 {
		return 0
	}
	return float64(t.Matches) / float64(len(t.Seq))
}

// span is a half-open window range found by a scan.
type span struct {
	lo, hi  int
	matches int
}

// unitBase returns the motif base expected off bases away from the
// breakpoint; negative offsets walk left.
func unitBase(motif string, off int) byte {
	k := len(motif)
	return motif[((off%k)+k)%k]
}

// scanExact extends motif from breakpoint b in both directions until the
// first mismatch.
func scanExact(s string, b int, motif string) span {
	j := b
	for j < len(s) && s[j] == unitBase(motif, j-b) {
		j++
	}
	i := b
	for i > 0 && s[i-1] == unitBase(motif, i-1-b) {
		i--
	}
	return span{lo: i, hi: j, matches: j - i}
}

// scanFuzzy extends like scanExact but steps over single mismatching bases.
// Two mismatches in a row end the tract, which never ends on a mismatch.
func scanFuzzy(s string, b int, motif string) span {
	right, mr := extendFuzzy(len(s)-b, func(n int) bool { return s[b+n] == unitBase(motif, n) })
	left, ml := extendFuzzy(b, func(n int) bool { return s[b-1-n] == unitBase(motif, -1-n) })
	return span{lo: b - left, hi: b + right, matches: ml + mr}
}

func extendFuzzy(limit int, match func(int) bool) (int, int) {
	end, matches, kept := 0, 0, 0
	mismatch := false
	for n := 0; n < limit; n++ {
		if match(n) {
			matches++
			end, kept = n+1, matches
			mismatch = false
			continue
		}
		if mismatch {
			break
		}
		mismatch = true
	}
	return end, kept
}

// scanPenalized scores +1 per match and -(1+penalty) per mismatch, keeps the
// best-scoring extent and stops once the score falls more than one motif
// length below the best.
func scanPenalized(s string, b int, motif string, penalty float64) span {
	xdrop := float64(len(motif))
	right, mr := extendPenalized(len(s)-b, penalty, xdrop, func(n int) bool { return s[b+n] == unitBase(motif, n) })
	left, ml := extendPenalized(b, penalty, xdrop, func(n int) bool { return s[b-1-n] == unitBase(motif, -1-n) })
	return span{lo: b - left, hi: b + right, matches: ml + mr}
}

func extendPenalized(limit int, penalty, xdrop float64, match func(int) bool) (int, int) {
	var score, best float64
	end, matches, kept := 0, 0, 0
	for n := 0; n < limit; n++ {
		if match(n) {
			score++
			matches++
		} else {
			score -= 1 + penalty
		}
		if score > best {
			best = score
			end, kept = n+1, matches
		} else if best-score > xdrop {
			break
		}
	}
	return end, kept
}

// CanonicalMotif returns the lexicographically smallest rotation of motif
// or of its reverse complement, so that every phase and strand of a repeat
// shares one name.
func CanonicalMotif(motif string) string {
	if motif == "" {
		return ""
	}
	best := smallestRotation(motif)
	if rc := smallestRotation(reverseComplement(motif)); rc < best {
		best = rc
	}
	return best
}

func smallestRotation(s string) string {
	best := s
	for i := 1; i < len(s); i++ {
		if r := s[i:] + s[:i]; r < best {
			best = r
		}
	}
	return best
}

func reverseComplement(s string) string {
	bases := dna.StringToBases(s)
	dna.ReverseComplement(bases)
	return dna.BasesToString(bases)
}
