package genome

import "sort"

// Tree answers overlap queries against a fixed set of intervals using a
// per-sequence sorted slice with a suffix-max array. Built once, read-only.
type Tree struct {
	bySeq map[string]*seqIntervals
}

type seqIntervals struct {
	intervals []Interval
	maxEnd    []int // maxEnd[i] = max(End1) for intervals[i:]
}

// BuildTree creates a tree from the given intervals.
func BuildTree(intervals []Interval) *Tree {
	t := &Tree{bySeq: make(map[string]*seqIntervals)}
	for _, iv := range intervals {
		s, ok := t.bySeq[iv.Seq]
		if !ok {
			s = &seqIntervals{}
			t.bySeq[iv.Seq] = s
		}
		s.intervals = append(s.intervals, iv)
	}

	for _, s := range t.bySeq {
		sort.Slice(s.intervals, func(i, j int) bool {
			return s.intervals[i].Start1 < s.intervals[j].Start1
		})
		n := len(s.intervals)
		s.maxEnd = make([]int, n)
		s.maxEnd[n-1] = s.intervals[n-1].End1
		for i := n - 2; i >= 0; i-- {
			s.maxEnd[i] = max(s.intervals[i].End1, s.maxEnd[i+1])
		}
	}
	return t
}

// Len returns the number of intervals in the tree.
func (t *Tree) Len() int {
	n := 0
	for _, s := range t.bySeq {
		n += len(s.intervals)
	}
	return n
}

// Overlaps reports whether any interval intersects [start1, end1] on seq.
func (t *Tree) Overlaps(seq string, start1, end1 int) bool {
	return len(t.find(seq, start1, end1, true)) > 0
}

// FindOverlaps returns every interval that intersects [start1, end1] on seq.
func (t *Tree) FindOverlaps(seq string, start1, end1 int) []Interval {
	return t.find(seq, start1, end1, false)
}

func (t *Tree) find(seq string, start1, end1 int, first bool) []Interval {
	s, ok := t.bySeq[seq]
	if !ok {
		return nil
	}

	// candidates are intervals[0:hi), all with Start1 <= end1
	hi := sort.Search(len(s.intervals), func(i int) bool {
		return s.intervals[i].Start1 > end1
	})

	var result []Interval
	for i := hi - 1; i >= 0; i-- {
		if s.maxEnd[i] < start1 {
			break
		}
		if s.intervals[i].End1 >= start1 {
			result = append(result, s.intervals[i])
			if first {
				return result
			}
		}
	}
	return result
}
