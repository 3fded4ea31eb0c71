package bufferpool

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
)

// Stats is a snapshot of the pool's counters.
type Stats struct {
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	WriteBacks uint64

	// clock steps taken by the most recent frame allocation
	LastSweep uint64
}

type metrics struct {
	stats Stats

	hits       metric.Int64Counter
	misses     metric.Int64Counter
	evictions  metric.Int64Counter
	writeBacks metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	m := &metrics{}

	var err error
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.hits, "bufferpool.hits", "Fetches served from a resident frame"},
		{&m.misses, "bufferpool.misses", "Fetches that had to load the page"},
		{&m.evictions, "bufferpool.evictions", "Pages evicted by the clock sweep"},
		{&m.writeBacks, "bufferpool.writebacks", "Dirty pages written back to their file"},
	}

	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, errors.Wrapf(err, "register %s", c.name)
		}
	}

	return m, nil
}

func (m *metrics) hit() {
	m.stats.Hits++
	m.hits.Add(context.Background(), 1)
}

func (m *metrics) miss() {
	m.stats.Misses++
	m.misses.Add(context.Background(), 1)
}

func (m *metrics) eviction() {
	m.stats.Evictions++
	m.evictions.Add(context.Background(), 1)
}

func (m *metrics) writeBack() {
	m.stats.WriteBacks++
	m.writeBacks.Add(context.Background(), 1)
}

func (m *metrics) sweep(steps uint64) {
	m.stats.LastSweep = steps
}
