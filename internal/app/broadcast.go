package app

import (
	"context"
	"sync"
)

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Broadcast is a single-slot, latest-value-wins channel. Publishing overwrites
// the slot; a slow subscriber only ever observes the newest value.
type Broadcast[T any] struct {
	mu      sync.Mutex
	value   T
	version uint64
	changed chan struct{}
}

func NewBroadcast[T any](initial T) *Broadcast[T] {
	return &Broadcast[T]{value: initial, changed: make(chan struct{})}
}

func (b *Broadcast[T]) Publish(value T) {
	b.mu.Lock()
	b.value = value
	b.version++
	close(b.changed)
	b.changed = make(chan struct{})
	b.mu.Unlock()
}

func (b *Broadcast[T]) Load() (T, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value, b.version
}

// Changed is closed once a version newer than seen exists.
func (b *Broadcast[T]) Changed(seen uint64) <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.version != seen {
		return closedCh
	}
	return b.changed
}

// Wait blocks until a value newer than seen is published.
func (b *Broadcast[T]) Wait(ctx context.Context, seen uint64) (T, uint64, error) {
	select {
	case <-b.Changed(seen):
		value, version := b.Load()
		return value, version, nil
	case <-ctx.Done():
		var zero T
		return zero, seen, ctx.Err()
	}
}
