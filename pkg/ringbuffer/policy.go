package ringbuffer

import "sync"

// Policy is the locking discipline a Buffer is constructed with. The
// concrete policy is a type parameter rather than a runtime value so the
// no-op policy costs nothing: calls on NoopPolicy inline to no instruction.
type Policy interface {
	sync.Locker
}

// NoopPolicy serializes nothing. For single-threaded use, or where the
// caller guarantees at most one writer and one reader and external
// serialization of each side.
type NoopPolicy struct{}

func (NoopPolicy) Lock()   {}
func (NoopPolicy) Unlock() {}

// MutexPolicy holds an exclusive mutex across each composite operation, for
// multiple writers and/or multiple readers. The whole operation runs under
// the lock so all-or-nothing semantics survive contention.
type MutexPolicy struct {
	mu sync.Mutex
}

func (p *MutexPolicy) Lock()   { p.mu.Lock() }
func (p *MutexPolicy) Unlock() { p.mu.Unlock() }
