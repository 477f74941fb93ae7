package vcf

import "sync"

// Pool is a free-list of records. Acquire hands out a reset record and
// Release takes it back; a record must not be used after it is released.
// The mutex lets a producer goroutine acquire while a collector releases.
type Pool struct {
	mu        sync.Mutex
	free      []*Record
	allocated int
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{}
}

// Acquire returns a pooled record or constructs a new one.
func (p *Pool) Acquire() *Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		r := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		return r
	}
	p.allocated++
	return &Record{}
}

// Release resets r and returns it to the free-list.
func (p *Pool) Release(r *Record) {
	if r == nil {
		return
	}
	r.Reset()
	p.mu.Lock()
	p.free = append(p.free, r)
	p.mu.Unlock()
}

// Allocated reports how many records were ever constructed by the pool.
func (p *Pool) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated
}

// Available reports how many records sit on the free-list.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
