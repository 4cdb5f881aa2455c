// Package freelist implements the lock-free node recycler backing the
// lock-free stack and queue. Nodes are minted on demand, handed out as bare
// values, and recycled through a tagged LIFO when freed. Idle nodes are
// owned exclusively by the free list; a node handed out by Alloc is owned
// exclusively by the caller until Free.
package freelist

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/grafana/lockfree/pkg/tagged"
)

// ErrOutOfMemory is returned by Alloc when the list was constructed with a
// node cap and the cap is exhausted.
var ErrOutOfMemory = errors.New("freelist: out of memory")

// node wraps one T with the intrusive link used while the node sits on the
// free list. data MUST stay the first field: Free recovers the node from a
// *T by address identity.
type node[T any] struct {
	data T
	next *node[T]
}

// Stats is a point-in-time snapshot of the recycler's counters. All three
// are hints: they are read individually and may be mutually inconsistent
// under contention.
type Stats struct {
	// Alloc is the total number of nodes ever minted.
	Alloc int64
	// Use is the number of nodes currently handed out.
	Use int64
	// Unique is the tag churn of the head cell, for debugging.
	Unique int64
}

func (s Stats) String() string {
	return fmt.Sprintf("alloc=%s use=%s unique=%s",
		humanize.Comma(s.Alloc), humanize.Comma(s.Use), humanize.Comma(s.Unique))
}

// Option configures a FreeList.
type Option[T any] func(*FreeList[T])

// WithConstructor enables placement mode: fn produces the contained value
// each time a node is handed out, instead of the value persisting across
// recycling.
func WithConstructor[T any](fn func() T) Option[T] {
	return func(f *FreeList[T]) {
		f.construct = fn
		f.placement = true
	}
}

// WithDestructor sets the finalizer run on the contained value when the node
// is freed in placement mode.
func WithDestructor[T any](fn func(*T)) Option[T] {
	return func(f *FreeList[T]) {
		f.destroy = fn
		f.placement = true
	}
}

// WithMaxNodes caps the number of nodes the list will ever mint. Alloc fails
// with ErrOutOfMemory once the cap is reached and no recycled node is
// available.
func WithMaxNodes[T any](n int64) Option[T] {
	return func(f *FreeList[T]) {
		f.maxNodes = n
	}
}

// FreeList recycles fixed-type nodes between goroutines without locking.
type FreeList[T any] struct {
	top *tagged.Cell[node[T]]

	allocSize   *atomic.Int64
	useSize     *atomic.Int64
	uniqueCount *atomic.Int64

	maxNodes  int64
	placement bool
	construct func() T
	destroy   func(*T)
}

// New constructs an empty free list.
func New[T any](opts ...Option[T]) *FreeList[T] {
	f := &FreeList[T]{
		top:         tagged.NewCell[node[T]](nil),
		allocSize:   atomic.NewInt64(0),
		useSize:     atomic.NewInt64(0),
		uniqueCount: atomic.NewInt64(0),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Alloc returns a pointer to an unused T, recycling a freed node when one is
// available and minting a fresh one otherwise.
//
// The speculative useSize increment reserves a recycled node before the pop:
// frees link their node in before decrementing useSize, and allocs increment
// useSize before popping, so observing allocSize >= useSize guarantees the
// LIFO holds a node for this caller.
func (f *FreeList[T]) Alloc() (*T, error) {
	useSize := f.useSize.Inc()

	if f.allocSize.Load() >= useSize {
		uniqueCount := f.uniqueCount.Inc()

		var n *node[T]
		for {
			top := f.top.Load()
			if top.Ptr == nil {
				// The reserving increment raced a concurrent free that has
				// linked in but whose counter update is not yet visible.
				runtime.Gosched()
				continue
			}
			if f.top.CompareAndSwap(top, top.Ptr.next, uint64(uniqueCount)) {
				n = top.Ptr
				break
			}
			runtime.Gosched()
		}

		n.next = nil
		if f.placement && f.construct != nil {
			n.data = f.construct()
		}
		return &n.data, nil
	}

	if f.maxNodes > 0 && f.allocSize.Load() >= f.maxNodes {
		f.useSize.Dec()
		return nil, errors.Wrapf(ErrOutOfMemory, "cap %d reached", f.maxNodes)
	}

	n := &node[T]{}
	if f.construct != nil {
		n.data = f.construct()
	}
	f.allocSize.Inc()
	return &n.data, nil
}

// Free returns a previously allocated T to the pool. The pointer must have
// been obtained from Alloc on this list, and the caller must not touch the
// value afterwards.
func (f *FreeList[T]) Free(p *T) {
	// data is the node's first field, so the *T is also the *node.
	n := (*node[T])(unsafe.Pointer(p))

	if f.placement && f.destroy != nil {
		f.destroy(&n.data)
	}

	for {
		top := f.top.Load()
		n.next = top.Ptr
		if f.top.CompareAndSwap(top, n, top.Tag+1) {
			break
		}
		runtime.Gosched()
	}

	f.useSize.Dec()
}

// Stats reports the recycler's counters.
func (f *FreeList[T]) Stats() Stats {
	return Stats{
		Alloc:  f.allocSize.Load(),
		Use:    f.useSize.Load(),
		Unique: f.uniqueCount.Load(),
	}
}
