package normalize

import "fmt"

// CoordinateError reports a position before the start or beyond the end of
// the reference sequence.
type CoordinateError struct {
	Chrom  string
	Pos1   int
	Reason string
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("invalid coordinate %s:%d: %s", e.Chrom, e.Pos1, e.Reason)
}

// InputError reports alleles that cannot be normalized.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string {
	return "invalid alleles: " + e.Reason
}
