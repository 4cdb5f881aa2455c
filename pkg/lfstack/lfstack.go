// Package lfstack implements a lock-free LIFO of caller values. Nodes cycle
// through the shared recycler in pkg/freelist, and the head cell is the
// tagged pair from pkg/tagged, so pops stay correct while freed nodes
// re-enter circulation.
package lfstack

import (
	"runtime"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/grafana/lockfree/pkg/freelist"
	"github.com/grafana/lockfree/pkg/tagged"
)

type node[T any] struct {
	value T
	next  *node[T]
}

// Stats is a point-in-time snapshot of the stack's hint counters plus the
// counters of its backing recycler.
type Stats struct {
	// Size is the number of values on the stack. Hint only.
	Size int64
	// Unique is the pop-side tag churn, for debugging.
	Unique int64
	// FreeList reports the backing recycler.
	FreeList freelist.Stats
}

// Stack is a lock-free LIFO. Construct with New.
type Stack[T any] struct {
	top  *tagged.Cell[node[T]]
	free *freelist.FreeList[node[T]]

	useSize     *atomic.Int64
	uniqueCount *atomic.Int64
}

// Option configures a Stack.
type Option[T any] func(*Stack[T])

// WithMaxNodes caps the number of nodes the backing recycler will mint;
// Push fails once the cap is reached.
func WithMaxNodes[T any](n int64) Option[T] {
	return func(s *Stack[T]) {
		s.free = freelist.New[node[T]](freelist.WithMaxNodes[node[T]](n))
	}
}

// New constructs an empty stack with its own node recycler.
func New[T any](opts ...Option[T]) *Stack[T] {
	s := &Stack[T]{
		free:        freelist.New[node[T]](),
		top:         tagged.NewCell[node[T]](nil),
		useSize:     atomic.NewInt64(0),
		uniqueCount: atomic.NewInt64(0),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Push inserts v as the new top. The only failure is recycler exhaustion
// when a node cap is configured.
//
// The linking CAS bumps the observed tag by one rather than drawing from
// the pop-side unique counter: the pushed node is freshly owned, so the
// pointer change alone already rules out ABA on this path.
func (s *Stack[T]) Push(v T) error {
	n, err := s.free.Alloc()
	if err != nil {
		return errors.Wrap(err, "lfstack: push")
	}
	n.value = v

	for {
		top := s.top.Load()
		n.next = top.Ptr
		if s.top.CompareAndSwap(top, n, top.Tag+1) {
			break
		}
		runtime.Gosched()
	}

	s.useSize.Inc()
	return nil
}

// Pop removes and returns the top value. ok is false when the stack is
// observably empty.
func (s *Stack[T]) Pop() (v T, ok bool) {
	// Speculative decrement: a transiently negative size means we raced a
	// pusher whose size increment has not retired yet. Reconcile and only
	// then report empty.
	if s.useSize.Dec() < 0 {
		if s.useSize.Inc() <= 0 {
			return v, false
		}
	}

	uniqueCount := s.uniqueCount.Inc()

	var n *node[T]
	for {
		top := s.top.Load()
		if top.Ptr == nil {
			// Size said non-empty but the winning pusher has not linked in
			// yet; the reconciliation above guarantees one will.
			runtime.Gosched()
			continue
		}
		if s.top.CompareAndSwap(top, top.Ptr.next, uint64(uniqueCount)) {
			n = top.Ptr
			break
		}
		runtime.Gosched()
	}

	v = n.value
	s.free.Free(n)
	return v, true
}

// IsEmpty reports whether the stack is observably empty. Hint only.
func (s *Stack[T]) IsEmpty() bool {
	return s.useSize.Load() == 0
}

// Size returns the number of values on the stack. Hint only.
func (s *Stack[T]) Size() int64 {
	return s.useSize.Load()
}

// Stats reports the stack's counters.
func (s *Stack[T]) Stats() Stats {
	return Stats{
		Size:     s.useSize.Load(),
		Unique:   s.uniqueCount.Load(),
		FreeList: s.free.Stats(),
	}
}
