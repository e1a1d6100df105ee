// Package retention trims the arrival sample log on a schedule. Retention is
// a first-class responsibility here rather than an afterthought of the store.
package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bustracker-data/internal/common/logger"
)

// SampleDeleter is the slice of the storage layer the sweeper needs.
type SampleDeleter interface {
	DeleteSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Config struct {
	Window        time.Duration
	SweepInterval time.Duration
	InitialDelay  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Window:        7 * 24 * time.Hour,
		SweepInterval: 24 * time.Hour,
		InitialDelay:  time.Minute,
	}
}

// Status describes the sweeper's most recent run.
type Status struct {
	Running     bool      `json:"running"`
	LastSweepAt time.Time `json:"last_sweep_at"`
	LastDeleted int64     `json:"last_deleted"`
}

type Sweeper struct {
	store  SampleDeleter
	cfg    Config
	logger logger.Logger

	mu        sync.RWMutex
	isRunning bool
	lastSweep time.Time
	deleted   int64

	nowFn func() time.Time
}

func NewSweeper(store SampleDeleter, cfg Config, log logger.Logger) *Sweeper {
	return &Sweeper{
		store:  store,
		cfg:    cfg,
		logger: log,
		nowFn:  time.Now,
	}
}

// Start runs the sweep loop until the context is cancelled. The first sweep
// happens after a short delay so startup work settles first.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("retention sweeper is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	s.logger.Info("Starting retention sweeper",
		"window", s.cfg.Window,
		"sweep_interval", s.cfg.SweepInterval)

	initialDelay := time.NewTimer(s.cfg.InitialDelay)
	defer initialDelay.Stop()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Retention sweeper stopped")
			return nil
		case <-initialDelay.C:
			s.sweep(ctx)
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Trigger runs a sweep immediately.
func (s *Sweeper) Trigger(ctx context.Context) error {
	return s.sweep(ctx)
}

// Status returns the sweeper's current status.
func (s *Sweeper) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Running:     s.isRunning,
		LastSweepAt: s.lastSweep,
		LastDeleted: s.deleted,
	}
}

func (s *Sweeper) sweep(ctx context.Context) error {
	cutoff := s.nowFn().Add(-s.cfg.Window)
	start := time.Now()

	n, err := s.store.DeleteSamplesBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("Retention sweep failed", "cutoff", cutoff, "error", err)
		return fmt.Errorf("retention sweep: %w", err)
	}

	s.mu.Lock()
	s.lastSweep = s.nowFn()
	s.deleted = n
	s.mu.Unlock()

	s.logger.Info("Retention sweep complete",
		"cutoff", cutoff,
		"deleted", n,
		"duration", time.Since(start))
	return nil
}
