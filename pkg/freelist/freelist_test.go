package freelist

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAllocFreeRecycles(t *testing.T) {
	f := New[int]()

	p, err := f.Alloc()
	require.NoError(t, err)
	*p = 42

	f.Free(p)

	q, err := f.Alloc()
	require.NoError(t, err)
	assert.Same(t, p, q, "expected the freed node back")
	assert.Equal(t, 42, *q, "value persists outside placement mode")

	s := f.Stats()
	assert.Equal(t, int64(1), s.Alloc)
	assert.Equal(t, int64(1), s.Use)
}

func TestStatsCounters(t *testing.T) {
	f := New[int]()

	ptrs := make([]*int, 0, 10)
	for i := 0; i < 10; i++ {
		p, err := f.Alloc()
		require.NoError(t, err)
		ptrs = append(ptrs, p)
	}

	s := f.Stats()
	assert.Equal(t, int64(10), s.Alloc)
	assert.Equal(t, int64(10), s.Use)

	for _, p := range ptrs {
		f.Free(p)
	}

	s = f.Stats()
	assert.Equal(t, int64(10), s.Alloc)
	assert.Equal(t, int64(0), s.Use)

	// Recycled allocations mint nothing new.
	for i := 0; i < 10; i++ {
		_, err := f.Alloc()
		require.NoError(t, err)
	}
	assert.Equal(t, int64(10), f.Stats().Alloc)
}

func TestPlacementMode(t *testing.T) {
	constructed := 0
	destroyed := 0

	f := New(
		WithConstructor(func() int { constructed++; return 7 }),
		WithDestructor[int](func(p *int) { destroyed++; *p = 0 }),
	)

	p, err := f.Alloc()
	require.NoError(t, err)
	assert.Equal(t, 7, *p)
	assert.Equal(t, 1, constructed)

	*p = 99
	f.Free(p)
	assert.Equal(t, 1, destroyed)

	// The recycled node is constructed again, not handed back stale.
	q, err := f.Alloc()
	require.NoError(t, err)
	assert.Same(t, p, q)
	assert.Equal(t, 7, *q)
	assert.Equal(t, 2, constructed)
}

func TestMaxNodes(t *testing.T) {
	f := New(WithMaxNodes[int](2))

	a, err := f.Alloc()
	require.NoError(t, err)
	b, err := f.Alloc()
	require.NoError(t, err)

	_, err = f.Alloc()
	require.ErrorIs(t, err, ErrOutOfMemory)

	// The failed attempt must not corrupt the use count.
	assert.Equal(t, int64(2), f.Stats().Use)

	// Freed capacity is allocatable again.
	f.Free(a)
	c, err := f.Alloc()
	require.NoError(t, err)
	assert.Same(t, a, c)

	f.Free(b)
	f.Free(c)
}

func TestStatsString(t *testing.T) {
	s := Stats{Alloc: 1500, Use: 1000, Unique: 2000000}
	assert.Equal(t, "alloc=1,500 use=1,000 unique=2,000,000", s.String())
}

// Live nodes are never concurrently owned: each goroutine writes a sentinel
// into its allocation, pauses, and verifies it survived.
func TestConcurrentIntegrity(t *testing.T) {
	const (
		goroutines = 8
		iterations = 5_000
	)

	f := New[int64]()

	g := errgroup.Group{}
	for w := 0; w < goroutines; w++ {
		sentinel := int64(w + 1)
		g.Go(func() error {
			for i := 0; i < iterations; i++ {
				p, err := f.Alloc()
				if err != nil {
					return err
				}

				*p = sentinel
				if i%1024 == 0 {
					time.Sleep(time.Microsecond)
				}
				assert.Equal(t, sentinel, *p)

				*p = 0
				assert.Equal(t, int64(0), *p)

				f.Free(p)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	s := f.Stats()
	assert.Equal(t, int64(0), s.Use)
	assert.LessOrEqual(t, s.Alloc, int64(goroutines*iterations))
}

func TestConcurrentFreeAndAlloc(t *testing.T) {
	const handoffs = 10_000

	f := New[int]()
	ch := make(chan *int, 64)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < handoffs; i++ {
			p, err := f.Alloc()
			if err != nil {
				t.Error(err)
				return
			}
			*p = i
			ch <- p
		}
		close(ch)
	}()
	go func() {
		defer wg.Done()
		for p := range ch {
			f.Free(p)
		}
	}()
	wg.Wait()

	assert.Equal(t, int64(0), f.Stats().Use)
}
