package genotype

import "fmt"

// SequenceError reports a call that breaks the site lifecycle, such as
// reads for a second sample arriving before the first one was flushed.
type SequenceError struct {
	Op     string
	Sample int // -1 when the call is not about a sample
	State  State
	Reason string
}

func (e *SequenceError) Error() string {
	if e.Sample < 0 {
		return fmt.Sprintf("genotype: %s in state %s: %s", e.Op, e.State, e.Reason)
	}
	return fmt.Sprintf("genotype: %s for sample %d in state %s: %s", e.Op, e.Sample, e.State, e.Reason)
}
