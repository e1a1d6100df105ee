// Package arrivals implements the live arrival collector: a recurring cycle
// that polls every known stop's arrival feed through a bounded worker pool
// and appends qualifying ETA samples to the store.
package arrivals

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bustracker-data/internal/common/discord"
	"github.com/bustracker-data/internal/common/logger"
	"github.com/bustracker-data/internal/datamall"
	"github.com/bustracker-data/internal/store"
)

// SampleStore is the slice of the storage layer the collector needs.
type SampleStore interface {
	StopCodes(ctx context.Context) ([]string, error)
	AppendSample(ctx context.Context, sample store.Sample) error
	LatestSamples(ctx context.Context) ([]store.Sample, error)
}

type Config struct {
	Interval        time.Duration
	Workers         int
	RateLimitPerMin int
	ChangeThreshold float64
}

func DefaultConfig() Config {
	return Config{
		Interval:        time.Minute,
		Workers:         4,
		RateLimitPerMin: 150,
		ChangeThreshold: 0.3,
	}
}

// CycleStats summarizes one completed collection cycle.
type CycleStats struct {
	ID                string    `json:"id"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	StopsVisited      int       `json:"stops_visited"`
	StopsFailed       int       `json:"stops_failed"`
	SamplesStored     int       `json:"samples_stored"`
	SamplesSuppressed int       `json:"samples_suppressed"`
	SamplesDiscarded  int       `json:"samples_discarded"`
}

type etaKey struct {
	stopCode string
	service  string
}

// Collector runs the recurring collection loop. It is designed to run for
// the lifetime of the process: per-stop failures are logged and skipped, and
// a failed cycle never prevents the next one from being scheduled.
type Collector struct {
	cfg      Config
	store    SampleStore
	fetcher  datamall.ArrivalFetcher
	logger   logger.Logger
	notifier *discord.Notifier
	limiter  *rateLimiter
	nowFn    func() time.Time

	// lastETA is the change-detection map: the most recently stored ETA per
	// (stop, service), updated alongside each store write.
	etaMu   sync.Mutex
	lastETA map[etaKey]float64

	mu        sync.RWMutex
	isRunning bool
	lastCycle CycleStats
}

func New(cfg Config, st SampleStore, fetcher datamall.ArrivalFetcher, notifier *discord.Notifier, log logger.Logger) *Collector {
	return &Collector{
		cfg:      cfg,
		store:    st,
		fetcher:  fetcher,
		logger:   log,
		notifier: notifier,
		limiter:  newRateLimiter(cfg.RateLimitPerMin, time.Minute),
		nowFn:    time.Now,
		lastETA:  make(map[etaKey]float64),
	}
}

// Start seeds the change-detection map and runs cycles until the context is
// cancelled. Cycles never overlap: the next one is only considered once the
// current one has finished.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return fmt.Errorf("collector is already running")
	}
	c.isRunning = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.isRunning = false
		c.mu.Unlock()
	}()

	if err := c.seedLastETAs(ctx); err != nil {
		c.logger.Warn("Failed to seed change-detection map, starting empty", "error", err)
	}

	go c.limiter.refillLoop(ctx)

	c.logger.Info("Starting arrival collector",
		"interval", c.cfg.Interval,
		"workers", c.cfg.Workers,
		"rate_limit_per_min", c.cfg.RateLimitPerMin)

	c.runCycle(ctx)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Arrival collector stopped")
			return nil
		case <-ticker.C:
			c.runCycle(ctx)
		}
	}
}

// Status returns whether the collector is running and the last cycle's stats.
func (c *Collector) Status() (bool, CycleStats) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isRunning, c.lastCycle
}

func (c *Collector) seedLastETAs(ctx context.Context) error {
	samples, err := c.store.LatestSamples(ctx)
	if err != nil {
		return err
	}
	c.etaMu.Lock()
	for _, sample := range samples {
		c.lastETA[etaKey{stopCode: sample.StopCode, service: sample.Service}] = sample.ETAMinutes
	}
	c.etaMu.Unlock()
	c.logger.Info("Seeded change-detection map", "entries", len(samples))
	return nil
}

// runCycle visits every known stop once. A panic in the feeding or stats code
// is recovered here so the loop keeps running; per-stop panics are recovered
// on the worker side.
func (c *Collector) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Collection cycle panicked", "panic", r)
			if err := c.notifier.Alert("Collector cycle failed", fmt.Sprint(r)); err != nil {
				c.logger.Warn("Failed to send alert", "error", err)
			}
		}
	}()

	stats := CycleStats{
		ID:        uuid.NewString(),
		StartedAt: c.nowFn(),
	}

	codes, err := c.store.StopCodes(ctx)
	if err != nil {
		c.logger.Error("Failed to list stops for cycle", "cycle_id", stats.ID, "error", err)
		return
	}

	var (
		counters cycleCounters
		wg       sync.WaitGroup
	)
	jobs := make(chan string)

	for w := 0; w < c.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for code := range jobs {
				if ctx.Err() != nil {
					continue
				}
				if err := c.limiter.wait(ctx); err != nil {
					continue
				}
				c.collectStopSafely(ctx, code, &counters)
			}
		}()
	}

	for _, code := range codes {
		if ctx.Err() != nil {
			break
		}
		jobs <- code
	}
	close(jobs)
	wg.Wait()

	stats.FinishedAt = c.nowFn()
	counters.fill(&stats)

	c.mu.Lock()
	c.lastCycle = stats
	c.mu.Unlock()

	c.logger.Info("Collection cycle complete",
		"cycle_id", stats.ID,
		"stops_visited", stats.StopsVisited,
		"stops_failed", stats.StopsFailed,
		"samples_stored", stats.SamplesStored,
		"samples_suppressed", stats.SamplesSuppressed,
		"samples_discarded", stats.SamplesDiscarded,
		"duration", stats.FinishedAt.Sub(stats.StartedAt))
}

// collectStopSafely confines a panic in the per-stop handler to that stop.
// Workers run outside runCycle's goroutine, so its recover cannot catch this.
func (c *Collector) collectStopSafely(ctx context.Context, code string, counters *cycleCounters) {
	defer func() {
		if r := recover(); r != nil {
			counters.failed.Add(1)
			c.logger.Error("Stop collection panicked", "stop_code", code, "panic", r)
		}
	}()
	c.collectStop(ctx, code, counters)
}

// collectStop fetches one stop's live arrivals and appends qualifying
// samples. Failures are confined to the stop.
func (c *Collector) collectStop(ctx context.Context, code string, counters *cycleCounters) {
	counters.visited.Add(1)

	services, err := c.fetcher.Arrivals(ctx, code)
	if err != nil {
		counters.failed.Add(1)
		c.logger.Warn("Failed to fetch arrivals", "stop_code", code, "error", err)
		return
	}

	now := c.nowFn()
	for _, service := range services {
		if service.ServiceNo == "" {
			continue
		}
		vehicleType := service.VehicleType()

		for _, slot := range service.Slots() {
			if slot.EstimatedArrival.IsZero() {
				continue
			}
			eta := slot.EstimatedArrival.Sub(now).Minutes()
			if eta < 0 {
				// Already departed or stale prediction.
				counters.discarded.Add(1)
				continue
			}
			eta = math.Round(eta*10) / 10

			key := etaKey{stopCode: code, service: service.ServiceNo}
			if c.suppressed(key, eta) {
				counters.suppressed.Add(1)
				continue
			}

			sample := store.Sample{
				StopCode:    code,
				Service:     service.ServiceNo,
				ETAMinutes:  eta,
				VehicleType: vehicleType,
				CapturedAt:  now,
			}
			if err := c.store.AppendSample(ctx, sample); err != nil {
				c.logger.Warn("Failed to store sample", "stop_code", code, "service", service.ServiceNo, "error", err)
				continue
			}
			c.recordETA(key, eta)
			counters.stored.Add(1)
		}
	}
}

// suppressed applies the change-detection filter: a new ETA within the
// threshold of the last stored one for the same (stop, service) is dropped.
func (c *Collector) suppressed(key etaKey, eta float64) bool {
	c.etaMu.Lock()
	defer c.etaMu.Unlock()
	prev, ok := c.lastETA[key]
	return ok && math.Abs(prev-eta) <= c.cfg.ChangeThreshold
}

func (c *Collector) recordETA(key etaKey, eta float64) {
	c.etaMu.Lock()
	c.lastETA[key] = eta
	c.etaMu.Unlock()
}
