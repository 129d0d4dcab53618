// Package ports implements C1: a contiguous-range integer port allocator.
package ports

import (
	"sync"

	"github.com/The404Studios/zsdu-backend/internal/apierr"
)

// Pool allocates and releases ports from [base, base+size).
type Pool struct {
	mu       sync.Mutex
	base     int
	size     int
	inUse    map[int]bool
}

// New creates a pool covering [base, base+size).
func New(base, size int) *Pool {
	return &Pool{
		base:  base,
		size:  size,
		inUse: make(map[int]bool, size),
	}
}

// Allocate returns the smallest unused port in range, or ErrPortsExhausted.
func (p *Pool) Allocate() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for offset := 0; offset < p.size; offset++ {
		port := p.base + offset
		if !p.inUse[port] {
			p.inUse[port] = true
			return port, nil
		}
	}
	return 0, apierr.ErrPortsExhausted
}

// Release marks port as free. Releasing a port that isn't allocated (or
// is outside the pool's range) is a silent no-op.
func (p *Pool) Release(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inUse, port)
}

// InUseCount reports how many ports are currently allocated.
func (p *Pool) InUseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}

// Capacity reports the total size of the pool.
func (p *Pool) Capacity() int {
	return p.size
}
