// Package instrument exposes the containers' stats surfaces as prometheus
// collectors. Collectors are handed a registry by the caller rather than
// registering globally, so embedding applications control naming and
// lifecycle.
package instrument

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/lockfree/pkg/freelist"
	"github.com/grafana/lockfree/pkg/lfqueue"
	"github.com/grafana/lockfree/pkg/lfstack"
	"github.com/grafana/lockfree/pkg/objectpool"
)

// RingStats is the subset of the ring buffer surface the collector reads.
// Both Buffer instantiations satisfy it.
type RingStats interface {
	DataSize() int
	FreeSize() int
}

type gaugeDesc struct {
	desc *prometheus.Desc
	read func() float64
}

type collector struct {
	gauges []gaugeDesc
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range c.gauges {
		ch <- g.desc
	}
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	for _, g := range c.gauges {
		ch <- prometheus.MustNewConstMetric(g.desc, prometheus.GaugeValue, g.read())
	}
}

func desc(namespace, subsystem, name, help string, labels prometheus.Labels) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, nil, labels)
}

func freelistGauges(namespace, subsystem string, labels prometheus.Labels, stats func() freelist.Stats) []gaugeDesc {
	return []gaugeDesc{
		{
			desc: desc(namespace, subsystem, "freelist_allocated_nodes", "Total nodes ever minted by the recycler.", labels),
			read: func() float64 { return float64(stats().Alloc) },
		},
		{
			desc: desc(namespace, subsystem, "freelist_in_use", "Nodes currently handed out by the recycler.", labels),
			read: func() float64 { return float64(stats().Use) },
		},
		{
			desc: desc(namespace, subsystem, "freelist_unique_count", "Tag churn of the recycler head cell.", labels),
			read: func() float64 { return float64(stats().Unique) },
		},
	}
}

// NewFreeListCollector collects the recycler counters. name becomes the
// collector's "name" label so several recyclers can share a registry.
func NewFreeListCollector(namespace, name string, stats func() freelist.Stats) prometheus.Collector {
	labels := prometheus.Labels{"name": name}
	return &collector{gauges: freelistGauges(namespace, "", labels, stats)}
}

// NewStackCollector collects a stack's size and tag churn plus its backing
// recycler's counters.
func NewStackCollector[T any](namespace, name string, s *lfstack.Stack[T]) prometheus.Collector {
	labels := prometheus.Labels{"name": name}
	gauges := []gaugeDesc{
		{
			desc: desc(namespace, "stack", "size", "Values currently on the stack. Hint.", labels),
			read: func() float64 { return float64(s.Stats().Size) },
		},
		{
			desc: desc(namespace, "stack", "unique_count", "Pop-side tag churn.", labels),
			read: func() float64 { return float64(s.Stats().Unique) },
		},
	}
	gauges = append(gauges, freelistGauges(namespace, "stack", labels, func() freelist.Stats { return s.Stats().FreeList })...)
	return &collector{gauges: gauges}
}

// NewQueueCollector collects a queue's size and endpoint tag churn plus its
// backing recycler's counters.
func NewQueueCollector[T any](namespace, name string, q *lfqueue.Queue[T]) prometheus.Collector {
	labels := prometheus.Labels{"name": name}
	gauges := []gaugeDesc{
		{
			desc: desc(namespace, "queue", "size", "Values currently in the queue. Hint.", labels),
			read: func() float64 { return float64(q.Stats().Size) },
		},
		{
			desc: desc(namespace, "queue", "head_unique_count", "Dequeue-side tag churn.", labels),
			read: func() float64 { return float64(q.Stats().HeadUnique) },
		},
		{
			desc: desc(namespace, "queue", "tail_unique_count", "Tail-advance passes, including cooperative helps.", labels),
			read: func() float64 { return float64(q.Stats().TailUnique) },
		},
	}
	gauges = append(gauges, freelistGauges(namespace, "queue", labels, func() freelist.Stats { return q.Stats().FreeList })...)
	return &collector{gauges: gauges}
}

// NewRingCollector collects a byte ring's buffered and free byte counts.
func NewRingCollector(namespace, name string, ring RingStats) prometheus.Collector {
	labels := prometheus.Labels{"name": name}
	return &collector{gauges: []gaugeDesc{
		{
			desc: desc(namespace, "ring", "data_bytes", "Bytes currently buffered. Hint.", labels),
			read: func() float64 { return float64(ring.DataSize()) },
		},
		{
			desc: desc(namespace, "ring", "free_bytes", "Bytes currently enqueueable. Hint.", labels),
			read: func() float64 { return float64(ring.FreeSize()) },
		},
	}}
}

// NewPoolCollector collects an object pool's parked count and its backing
// allocator's counters.
func NewPoolCollector[T any](namespace, name string, p *objectpool.Pool[T]) prometheus.Collector {
	labels := prometheus.Labels{"name": name}
	gauges := []gaugeDesc{
		{
			desc: desc(namespace, "objectpool", "parked", "Objects idle in the global shards. Hint.", labels),
			read: func() float64 { return float64(p.Stats().Parked) },
		},
	}
	gauges = append(gauges, freelistGauges(namespace, "objectpool", labels, func() freelist.Stats { return p.Stats().FreeList })...)
	return &collector{gauges: gauges}
}
