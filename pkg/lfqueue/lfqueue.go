// Package lfqueue implements a lock-free FIFO in the Michael–Scott style: a
// permanent dummy node between two tagged cells, cooperative tail advance,
// and nodes recycled through pkg/freelist. Enqueuers and dequeuers make
// progress independently; neither ever blocks on the other.
package lfqueue

import (
	"runtime"

	"github.com/pkg/errors"
	uatomic "go.uber.org/atomic"

	"github.com/grafana/lockfree/pkg/freelist"
	"github.com/grafana/lockfree/pkg/tagged"
)

// node carries one value and the forward link. next only ever transitions
// nil -> node while the node is reachable, which is why a pointer-only CAS
// is sufficient on the linking path.
type node[T any] struct {
	value T
	next  uatomic.Pointer[node[T]]
}

// Stats is a point-in-time snapshot of the queue's hint counters plus the
// counters of its backing recycler.
type Stats struct {
	// Size is the number of values in the queue. Hint only.
	Size int64
	// HeadUnique is the dequeue-side tag churn.
	HeadUnique int64
	// TailUnique counts tail-advance passes, including cooperative helps.
	// Observational only.
	TailUnique int64
	// FreeList reports the backing recycler.
	FreeList freelist.Stats
}

// Queue is a lock-free FIFO. Construct with New.
type Queue[T any] struct {
	head *tagged.Cell[node[T]]
	tail *tagged.Cell[node[T]]
	free *freelist.FreeList[node[T]]

	useSize         *uatomic.Int64
	headUniqueCount *uatomic.Int64
	tailUniqueCount *uatomic.Int64
}

// Option configures a Queue.
type Option[T any] func(*Queue[T])

// WithMaxNodes caps the number of nodes the backing recycler will mint;
// Enqueue fails once the cap is reached. The permanent dummy occupies one
// node of the cap.
func WithMaxNodes[T any](n int64) Option[T] {
	return func(q *Queue[T]) {
		q.free = freelist.New[node[T]](freelist.WithMaxNodes[node[T]](n))
	}
}

// New constructs an empty queue: a single dummy node referenced by both the
// head and tail cells.
func New[T any](opts ...Option[T]) *Queue[T] {
	q := &Queue[T]{
		free:            freelist.New[node[T]](),
		useSize:         uatomic.NewInt64(0),
		headUniqueCount: uatomic.NewInt64(0),
		tailUniqueCount: uatomic.NewInt64(0),
	}
	for _, o := range opts {
		o(q)
	}

	dummy, err := q.free.Alloc()
	if err != nil {
		// Unreachable: a fresh recycler admits at least one node under any
		// cap, and a cap of zero or less disables the cap.
		panic(err)
	}
	dummy.next.Store(nil)

	q.head = tagged.NewCell(dummy)
	q.tail = tagged.NewCell(dummy)
	return q
}

// Enqueue appends v at the tail. The only failure is recycler exhaustion
// when a node cap is configured.
func (q *Queue[T]) Enqueue(v T) error {
	n, err := q.free.Alloc()
	if err != nil {
		return errors.Wrap(err, "lfqueue: enqueue")
	}
	n.value = v
	n.next.Store(nil)

	tailUnique := q.tailUniqueCount.Inc()

	for {
		tail := q.tail.Load()
		next := tail.Ptr.next.Load()

		// Another enqueuer has linked its node but not yet advanced the
		// tail. Help it along and retry; no thread's progress may depend on
		// the winner being scheduled.
		if next != nil {
			tailUnique = q.tailUniqueCount.Inc()
			q.tail.CompareAndSwap(tail, next, uint64(tailUnique))
			continue
		}

		if tail.Ptr.next.CompareAndSwap(nil, n) {
			// Linked: the enqueue has happened. Advancing the tail is best
			// effort; a helper fixes it if this CAS loses.
			q.tail.CompareAndSwap(tail, n, uint64(tailUnique))
			break
		}
	}

	q.useSize.Inc()
	return nil
}

// Dequeue removes and returns the value at the head. ok is false when no
// real nodes exist.
func (q *Queue[T]) Dequeue() (v T, ok bool) {
	// Speculative decrement, as in the stack: reconcile a negative dip
	// before reporting empty so a racing enqueuer's pending increment is
	// tolerated.
	if q.useSize.Dec() < 0 {
		if q.useSize.Inc() <= 0 {
			return v, false
		}
	}

	headUnique := q.headUniqueCount.Inc()

	for {
		tail := q.tail.Load()
		tailNext := tail.Ptr.next.Load()

		// Tail has fallen behind a committed link; help before touching the
		// head so head can never overtake tail.
		if tailNext != nil {
			tailUnique := q.tailUniqueCount.Inc()
			q.tail.CompareAndSwap(tail, tailNext, uint64(tailUnique))
			continue
		}

		head := q.head.Load()
		first := head.Ptr.next.Load()

		// Size said non-empty but the link is not visible yet. Keep looping;
		// the speculative-decrement reservation guarantees a node arrives.
		if first == nil {
			runtime.Gosched()
			continue
		}

		v = first.value
		if q.head.CompareAndSwap(head, first, uint64(headUnique)) {
			// The old dummy retires to the recycler; first is the new dummy
			// and stays referenced by the queue.
			q.free.Free(head.Ptr)
			return v, true
		}
	}
}

// Clear drains the queue back to the recycler and resets all counters.
// Callers must externally serialize Clear against all concurrent
// operations, as with teardown.
func (q *Queue[T]) Clear() {
	dummy := q.head.Load().Ptr
	for {
		first := dummy.next.Load()
		if first == nil {
			break
		}
		dummy.next.Store(first.next.Load())
		q.free.Free(first)
	}

	q.head.Reset(dummy, 0)
	q.tail.Reset(dummy, 0)
	q.useSize.Store(0)
	q.headUniqueCount.Store(0)
	q.tailUniqueCount.Store(0)
}

// IsEmpty reports whether the queue is observably empty. Hint only.
func (q *Queue[T]) IsEmpty() bool {
	return q.useSize.Load() == 0
}

// Size returns the number of values in the queue. Hint only.
func (q *Queue[T]) Size() int64 {
	return q.useSize.Load()
}

// Stats reports the queue's counters.
func (q *Queue[T]) Stats() Stats {
	return Stats{
		Size:       q.useSize.Load(),
		HeadUnique: q.headUniqueCount.Load(),
		TailUnique: q.tailUniqueCount.Load(),
		FreeList:   q.free.Stats(),
	}
}
