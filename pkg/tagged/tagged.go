// Package tagged provides the {pointer, tag} cell shared by the lock-free
// containers. Every successful mutation installs a new tag chosen by the
// mutating caller; the tag is kept for observability. The ABA problem is
// defeated by snapshot identity, described below: a compare-and-swap
// against a stale observation fails even if the pointer half has cycled
// back to the same node.
//
// The hardware shape of this cell is a 16-byte-aligned pair mutated by a
// double-width CAS. Go exposes no 128-bit CAS, and splitting the pair into
// two adjacent 64-bit atomics would reintroduce ABA, so the cell is a single
// atomic pointer to an immutable 16-byte snapshot. A Load observes pointer
// and tag as one unit, and a CompareAndSwap succeeds only against the exact
// snapshot the caller observed — the same all-or-nothing compare over both
// halves. Because every successful swap installs a freshly allocated
// snapshot, a superseded observation can never match again.
package tagged

import (
	"go.uber.org/atomic"
)

// Value is one observation of a cell: the node pointer and the tag that was
// current when the observation was made. Values are immutable once
// published; mutating a published Value is a data race.
type Value[T any] struct {
	Ptr *T
	Tag uint64
}

// Cell is a tagged head cell. The zero value is not usable; construct with
// NewCell.
type Cell[T any] struct {
	v atomic.Pointer[Value[T]]
}

// NewCell returns a cell initialized to {ptr, 0}.
func NewCell[T any](ptr *T) *Cell[T] {
	c := &Cell[T]{}
	c.v.Store(&Value[T]{Ptr: ptr})
	return c
}

// Load observes the cell's pointer and tag as a single unit. The returned
// Value is the token to pass to a subsequent CompareAndSwap.
func (c *Cell[T]) Load() *Value[T] {
	return c.v.Load()
}

// CompareAndSwap installs {ptr, tag} iff the cell still holds exactly the
// observation old — both pointer and tag. On failure the caller reloads the
// cell to learn the current value. The swap is exact whatever tag is
// passed; the tag only feeds Tag and debugging. The containers in this
// module pass either old.Tag+1 or a value from their own monotone counter,
// which can be lower than old.Tag.
func (c *Cell[T]) CompareAndSwap(old *Value[T], ptr *T, tag uint64) bool {
	return c.v.CompareAndSwap(old, &Value[T]{Ptr: ptr, Tag: tag})
}

// Reset stores {ptr, tag} unconditionally. Callers must externally serialize
// Reset against all concurrent operations; it exists for container Clear and
// teardown paths only.
func (c *Cell[T]) Reset(ptr *T, tag uint64) {
	c.v.Store(&Value[T]{Ptr: ptr, Tag: tag})
}

// Tag returns the current tag. Hint only.
func (c *Cell[T]) Tag() uint64 {
	return c.v.Load().Tag
}
