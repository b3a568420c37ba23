package pix2pix

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestPoolAllocatorReuse(t *testing.T) {
	pool := NewPoolAllocator(4)

	a, err := pool.Allocate(8, 8)
	if err != nil {
		t.Fatal(err)
	}
	a.Fill(1, 2, 3, 4)
	buf := a.Data()
	a.Release()
	if pool.Pooled(8, 8) != 1 {
		t.Fatalf("Pooled = %d, want 1", pool.Pooled(8, 8))
	}

	b, err := pool.Allocate(8, 8)
	if err != nil {
		t.Fatal(err)
	}
	if &b.Data()[0] != &buf[0] {
		t.Error("buffer not reused")
	}
	for i, v := range b.Data() {
		if v != 0 {
			t.Fatalf("reused buffer not cleared at %d", i)
		}
	}
	if pool.Reused() != 1 {
		t.Errorf("Reused = %d, want 1", pool.Reused())
	}

	// Different size: fresh buffer.
	c, _ := pool.Allocate(4, 8)
	if len(c.Data()) != 4*8*4 {
		t.Errorf("len = %d, want 128", len(c.Data()))
	}
}

func TestPoolAllocatorBucketLimit(t *testing.T) {
	pool := NewPoolAllocator(2)
	var texs []*Texture
	for range 4 {
		tex, _ := pool.Allocate(2, 2)
		texs = append(texs, tex)
	}
	for _, tex := range texs {
		tex.Release()
	}
	if got := pool.Pooled(2, 2); got != 2 {
		t.Errorf("Pooled = %d, want 2", got)
	}
}

func TestPoolAllocatorInvalid(t *testing.T) {
	pool := NewPoolAllocator(0)
	if _, err := pool.Allocate(0, 1); !errors.Is(err, ErrInvalidDimensions) || !errors.Is(err, ErrResourceAcquisition) {
		t.Errorf("err = %v, want ErrResourceAcquisition and ErrInvalidDimensions", err)
	}
}

func TestPoolAllocatorConcurrent(t *testing.T) {
	pool := NewPoolAllocator(0)
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				tex, err := pool.Allocate(4, 4)
				if err != nil {
					t.Error(err)
					return
				}
				tex.Release()
			}
		}()
	}
	wg.Wait()
}

func TestPipelineOnPool(t *testing.T) {
	pool := NewPoolAllocator(4)
	cfg := DefaultConfig()
	cfg.InferenceResolution = 4
	cfg.HideRenderLayer = false

	p, err := New(cfg, &fakeCamera{paint: gradient}, IdentityEngine, &fakeMaterial{}, WithAllocator(pool))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	ctx := context.Background()
	for range 3 {
		if _, err := p.Request(ctx); err != nil {
			t.Fatal(err)
		}
		if err := p.Update(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if pool.Reused() == 0 {
		t.Error("steady-state cycles should reuse buffers")
	}
}
