package objectpool

import (
	"testing"

	"github.com/go-kit/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type payload struct {
	id   string
	used bool
}

func TestGetPutReuses(t *testing.T) {
	p, err := New[payload](Config{})
	require.NoError(t, err)

	x, err := p.Get()
	require.NoError(t, err)
	x.id = uuid.NewString()

	p.Put(x)
	assert.Equal(t, int64(1), p.Stats().Parked)

	y, err := p.Get()
	require.NoError(t, err)
	assert.Same(t, x, y)
	assert.Equal(t, int64(0), p.Stats().Parked)
}

func TestMaxObjects(t *testing.T) {
	p, err := New[payload](Config{MaxObjects: 2})
	require.NoError(t, err)

	a, err := p.Get()
	require.NoError(t, err)
	_, err = p.Get()
	require.NoError(t, err)

	_, err = p.Get()
	require.Error(t, err)

	// Parked objects satisfy Gets without minting.
	p.Put(a)
	b, err := p.Get()
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestConstructor(t *testing.T) {
	built := 0
	p, err := New(Config{}, WithConstructor(func() payload {
		built++
		return payload{used: true}
	}))
	require.NoError(t, err)

	x, err := p.Get()
	require.NoError(t, err)
	assert.True(t, x.used)
	assert.Equal(t, 1, built)
}

func TestConfigValidate(t *testing.T) {
	_, err := New[payload](Config{MaxObjects: -1})
	require.Error(t, err)
}

func TestLocalBatchesShardTraffic(t *testing.T) {
	p, err := New[payload](Config{LocalCapacity: 4}, WithLogger[payload](log.NewNopLogger()))
	require.NoError(t, err)

	l := p.Local()

	objs := make([]*payload, 0, 12)
	for i := 0; i < 12; i++ {
		x, err := l.Get()
		require.NoError(t, err)
		objs = append(objs, x)
	}

	// Twelve puts into capacity-4 hot/cold caches spill one batch of four
	// to the global shards.
	for _, x := range objs {
		l.Put(x)
	}
	assert.Equal(t, int64(4), p.Stats().Parked)

	// Gets drain hot, then cold, then refill from the shards.
	for i := 0; i < 12; i++ {
		_, err := l.Get()
		require.NoError(t, err)
	}
	assert.Equal(t, int64(0), p.Stats().Parked)
	assert.LessOrEqual(t, p.Stats().FreeList.Alloc, int64(12))
}

func TestLocalGetFallsBackToAllocator(t *testing.T) {
	p, err := New[payload](Config{LocalCapacity: 2})
	require.NoError(t, err)

	l := p.Local()
	x, err := l.Get()
	require.NoError(t, err)
	require.NotNil(t, x)
	assert.Equal(t, int64(1), p.Stats().FreeList.Alloc)
}

// No object is ever handed to two holders at once: every holder stamps its
// objects and verifies the stamp before returning them.
func TestConcurrentIntegrity(t *testing.T) {
	const (
		workers    = 8
		iterations = 10_000
	)

	p, err := New[int64](Config{Shards: 4, LocalCapacity: 8})
	require.NoError(t, err)

	g := errgroup.Group{}
	for w := 0; w < workers; w++ {
		sentinel := int64(w + 1)
		g.Go(func() error {
			l := p.Local()
			held := make([]*int64, 0, 4)
			for i := 0; i < iterations; i++ {
				x, err := l.Get()
				if err != nil {
					return err
				}
				*x = sentinel
				held = append(held, x)

				if len(held) == cap(held) {
					for _, h := range held {
						assert.Equal(t, sentinel, *h)
						l.Put(h)
					}
					held = held[:0]
				}
			}
			for _, h := range held {
				assert.Equal(t, sentinel, *h)
				l.Put(h)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func BenchmarkLocalGetPut(b *testing.B) {
	p, err := New[int64](Config{})
	require.NoError(b, err)

	b.RunParallel(func(pb *testing.PB) {
		l := p.Local()
		for pb.Next() {
			x, err := l.Get()
			if err != nil {
				b.Fatal(err)
			}
			l.Put(x)
		}
	})
}
