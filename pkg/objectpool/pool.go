// Package objectpool amortizes contention on the node recycler with
// per-worker hot/cold caches over sharded global free lists. It is the
// shaped-storage equivalent of pkg/freelist for callers that can hold a
// handle per worker.
//
// Two guarantees are required of callers beyond the recycler's contract: a
// pointer passed to Put was obtained from the same pool, and the pool
// outlives all its outstanding pointers.
package objectpool

import (
	"encoding/binary"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.uber.org/atomic"

	"github.com/grafana/lockfree/pkg/freelist"
	"github.com/grafana/lockfree/pkg/lfstack"
	lflog "github.com/grafana/lockfree/pkg/util/log"
)

// Stats aggregates the pool's counters.
type Stats struct {
	// Parked is the number of objects currently idle in the global shards.
	// Hint only; objects held by Local caches are not counted.
	Parked int64
	// FreeList reports the backing allocator.
	FreeList freelist.Stats
}

// Pool hands out objects of type T. Construct with New; use Get/Put
// directly, or obtain a Local handle per worker to batch shard traffic.
type Pool[T any] struct {
	cfg    Config
	shards []*lfstack.Stack[*T]
	free   *freelist.FreeList[T]
	logger kitlog.Logger

	// nextShard scatters refills that have no pointer to hash.
	nextShard *atomic.Uint64
}

// Option configures a Pool.
type Option[T any] func(*options[T])

type options[T any] struct {
	logger kitlog.Logger
	flOpts []freelist.Option[T]
}

// WithLogger sets the logger used for debug logging on flush and refill
// paths. Lines are rate limited.
func WithLogger[T any](l kitlog.Logger) Option[T] {
	return func(o *options[T]) { o.logger = l }
}

// WithConstructor forwards a placement-mode constructor to the backing
// allocator: the value is built each time the backing allocator hands out
// an object. Objects parked with Put and handed out again by Get keep their
// value.
func WithConstructor[T any](fn func() T) Option[T] {
	return func(o *options[T]) {
		o.flOpts = append(o.flOpts, freelist.WithConstructor(fn))
	}
}

// New constructs a pool from cfg.
func New[T any](cfg Config, opts ...Option[T]) (*Pool[T], error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := &options[T]{logger: lflog.Logger}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = lflog.Logger
	}

	if cfg.MaxObjects > 0 {
		o.flOpts = append(o.flOpts, freelist.WithMaxNodes[T](cfg.MaxObjects))
	}

	p := &Pool[T]{
		cfg:       cfg,
		shards:    make([]*lfstack.Stack[*T], cfg.Shards),
		free:      freelist.New(o.flOpts...),
		logger:    lflog.NewRateLimitedLogger(10, o.logger),
		nextShard: atomic.NewUint64(0),
	}
	for i := range p.shards {
		p.shards[i] = lfstack.New[*T]()
	}
	return p, nil
}

// Get returns an object, reusing a parked one when possible. Fails only
// with the allocator's out-of-memory error when MaxObjects is set.
func (p *Pool[T]) Get() (*T, error) {
	start := p.nextShard.Inc()
	for i := 0; i < len(p.shards); i++ {
		shard := p.shards[(start+uint64(i))%uint64(len(p.shards))]
		if x, ok := shard.Pop(); ok {
			return x, nil
		}
	}
	return p.free.Alloc()
}

// Put parks an object for reuse. The shard is chosen by hashing the object's
// address so frees spread evenly regardless of the calling pattern.
func (p *Pool[T]) Put(x *T) {
	// Unbounded shard stacks: Push can only fail on a capped recycler, and
	// shard stacks are never capped.
	_ = p.shard(x).Push(x)
}

func (p *Pool[T]) shard(x *T) *lfstack.Stack[*T] {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(uintptr(unsafe.Pointer(x))))
	return p.shards[xxhash.Sum64(b[:])%uint64(len(p.shards))]
}

// Stats reports the pool's counters.
func (p *Pool[T]) Stats() Stats {
	var parked int64
	for _, s := range p.shards {
		parked += s.Size()
	}
	return Stats{
		Parked:   parked,
		FreeList: p.free.Stats(),
	}
}

// Local returns a handle with private hot/cold caches. Locals are not safe
// for concurrent use; hold one per worker.
func (p *Pool[T]) Local() *Local[T] {
	return &Local[T]{
		pool: p,
		hot:  make([]*T, 0, p.cfg.LocalCapacity),
		cold: make([]*T, 0, p.cfg.LocalCapacity),
	}
}

// Local is a per-worker cache over the pool. Gets drain the hot cache, then
// the cold cache, then batch-refill from a global shard; Puts fill the hot
// cache and batch-flush through the cold cache. Batching bounds how often
// the shards are touched: a flush happens at most once per LocalCapacity
// Puts and pushes each cold object individually, and a refill pops up to
// half a cache's worth from one shard.
type Local[T any] struct {
	pool *Pool[T]
	hot  []*T
	cold []*T
}

// Get returns an object from the local caches, refilling from the pool when
// both are empty.
func (l *Local[T]) Get() (*T, error) {
	if n := len(l.hot); n > 0 {
		x := l.hot[n-1]
		l.hot = l.hot[:n-1]
		return x, nil
	}

	if len(l.cold) > 0 {
		l.hot, l.cold = l.cold, l.hot[:0]
		x := l.hot[len(l.hot)-1]
		l.hot = l.hot[:len(l.hot)-1]
		return x, nil
	}

	l.refill()
	if n := len(l.hot); n > 0 {
		x := l.hot[n-1]
		l.hot = l.hot[:n-1]
		return x, nil
	}

	return l.pool.Get()
}

// Put parks an object in the local caches, flushing the cold cache to the
// global shards when both are full.
func (l *Local[T]) Put(x *T) {
	if len(l.hot) < cap(l.hot) {
		l.hot = append(l.hot, x)
		return
	}

	l.flush()
	l.hot, l.cold = l.cold[:0], l.hot
	l.hot = append(l.hot, x)
}

// refill pops up to half a cache's worth of objects from one shard into the
// hot cache.
func (l *Local[T]) refill() {
	shard := l.pool.shards[l.pool.nextShard.Inc()%uint64(len(l.pool.shards))]

	want := cap(l.hot) / 2
	if want == 0 {
		want = 1
	}
	for i := 0; i < want; i++ {
		x, ok := shard.Pop()
		if !ok {
			break
		}
		l.hot = append(l.hot, x)
	}

	level.Debug(l.pool.logger).Log("msg", "refilled local cache", "objects", len(l.hot))
}

// flush pushes the cold cache back to the global shards.
func (l *Local[T]) flush() {
	for _, x := range l.cold {
		l.pool.Put(x)
	}
	level.Debug(l.pool.logger).Log("msg", "flushed cold cache", "objects", len(l.cold))
	l.cold = l.cold[:0]
}
