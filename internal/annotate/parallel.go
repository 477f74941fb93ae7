package annotate

import (
	"runtime"
	"sync"

	"github.com/SeqOne/vt/internal/vcf"
)

// job is one record in flight, numbered in read order.
type job struct {
	seq int
	rec *vcf.Record
	out Outcome
	err error
}

func workerCount(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// annotateConcurrently runs Annotate on jobs from in using n goroutines.
// Jobs come back in completion order; the channel closes once in is
// closed and every job is done.
func (a *Annotator) annotateConcurrently(in <-chan *job, n int) <-chan *job {
	done := make(chan *job, 2*n)

	var wg sync.WaitGroup
	wg.Add(n)
	for w := 0; w < n; w++ {
		go func() {
			defer wg.Done()
			for j := range in {
				j.out, j.err = a.Annotate(j.rec)
				done <- j
			}
		}()
	}

	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// reorderBuffer hands jobs to a callback in sequence order. Early jobs are
// parked in a ring indexed by seq; the ring doubles when a job lands
// beyond it.
type reorderBuffer struct {
	next  int
	slots []*job
}

func newReorderBuffer(size int) *reorderBuffer {
	return &reorderBuffer{slots: make([]*job, max(size, 1))}
}

func (b *reorderBuffer) park(j *job) {
	for j.seq-b.next >= len(b.slots) {
		grown := make([]*job, 2*len(b.slots))
		for _, p := range b.slots {
			if p != nil {
				grown[p.seq%len(grown)] = p
			}
		}
		b.slots = grown
	}
	b.slots[j.seq%len(b.slots)] = j
}

// push parks j and releases every job that is now in order.
func (b *reorderBuffer) push(j *job, fn func(*job) error) error {
	b.park(j)
	for {
		i := b.next % len(b.slots)
		ready := b.slots[i]
		if ready == nil || ready.seq != b.next {
			return nil
		}
		b.slots[i] = nil
		b.next++
		if err := fn(ready); err != nil {
			return err
		}
	}
}

// collectInOrder calls fn for every job of done in sequence order. After
// fn fails the remaining jobs are drained so workers can exit.
func collectInOrder(done <-chan *job, window int, fn func(*job) error) error {
	buf := newReorderBuffer(window)
	for j := range done {
		if err := buf.push(j, fn); err != nil {
			for range done {
			}
			return err
		}
	}
	return nil
}
