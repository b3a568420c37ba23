package pix2pix

import (
	"fmt"
	"sync"
)

// PoolAllocator is an Allocator that recycles pixel buffers of freed
// textures. A pipeline allocates textures of the same few sizes every
// cycle, so after the first cycle no new buffers are needed.
//
// Buffers are grouped by size. Reused buffers are cleared.
// PoolAllocator is safe for concurrent use.
type PoolAllocator struct {
	mu      sync.Mutex
	buckets map[poolKey][][]uint8
	maxSize int // max buffers per bucket
	reused  uint64
}

type poolKey struct {
	width, height int
}

// NewPoolAllocator creates a pool keeping at most maxPerBucket buffers of
// each size. Zero or negative means unlimited.
func NewPoolAllocator(maxPerBucket int) *PoolAllocator {
	return &PoolAllocator{
		buckets: make(map[poolKey][][]uint8),
		maxSize: maxPerBucket,
	}
}

// Allocate implements Allocator.
func (p *PoolAllocator) Allocate(width, height int) (*Texture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %w: width=%d, height=%d", ErrResourceAcquisition, ErrInvalidDimensions, width, height)
	}
	key := poolKey{width, height}

	p.mu.Lock()
	bucket := p.buckets[key]
	if len(bucket) > 0 {
		buf := bucket[len(bucket)-1]
		p.buckets[key] = bucket[:len(bucket)-1]
		p.reused++
		p.mu.Unlock()

		clear(buf)
		return &Texture{width: width, height: height, data: buf, alloc: p}, nil
	}
	p.mu.Unlock()

	return NewTexture(width, height, p, nil)
}

// Free implements Allocator. The texture's buffer goes back to the pool
// unless its bucket is full.
func (p *PoolAllocator) Free(t *Texture) {
	buf := t.Data()
	if buf == nil {
		return
	}
	key := poolKey{t.Width(), t.Height()}

	p.mu.Lock()
	defer p.mu.Unlock()
	bucket := p.buckets[key]
	if p.maxSize > 0 && len(bucket) >= p.maxSize {
		return
	}
	p.buckets[key] = append(bucket, buf)
}

// Reused returns how many allocations were served from the pool.
func (p *PoolAllocator) Reused() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reused
}

// Pooled returns the number of idle buffers of the given size.
func (p *PoolAllocator) Pooled(width, height int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets[poolKey{width, height}])
}
