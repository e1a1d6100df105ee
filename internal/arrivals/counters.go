package arrivals

import "sync/atomic"

// cycleCounters accumulates per-cycle totals across the worker pool.
type cycleCounters struct {
	visited    atomic.Int64
	failed     atomic.Int64
	stored     atomic.Int64
	suppressed atomic.Int64
	discarded  atomic.Int64
}

func (c *cycleCounters) fill(stats *CycleStats) {
	stats.StopsVisited = int(c.visited.Load())
	stats.StopsFailed = int(c.failed.Load())
	stats.SamplesStored = int(c.stored.Load())
	stats.SamplesSuppressed = int(c.suppressed.Load())
	stats.SamplesDiscarded = int(c.discarded.Load())
}
