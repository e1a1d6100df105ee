package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bustracker-data/internal/common/logger"
)

type fakeDeleter struct {
	cutoff  time.Time
	deleted int64
	err     error
	calls   int
}

func (f *fakeDeleter) DeleteSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	return f.deleted, f.err
}

func TestSweepDeletesBeforeWindow(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	deleter := &fakeDeleter{deleted: 42}

	s := NewSweeper(deleter, Config{
		Window:        7 * 24 * time.Hour,
		SweepInterval: 24 * time.Hour,
		InitialDelay:  time.Minute,
	}, logger.New())
	s.nowFn = func() time.Time { return now }

	if err := s.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	wantCutoff := now.Add(-7 * 24 * time.Hour)
	if !deleter.cutoff.Equal(wantCutoff) {
		t.Errorf("Expected cutoff %v, got %v", wantCutoff, deleter.cutoff)
	}

	status := s.Status()
	if status.LastDeleted != 42 {
		t.Errorf("Expected 42 deleted in status, got %d", status.LastDeleted)
	}
	if !status.LastSweepAt.Equal(now) {
		t.Errorf("Expected last sweep at %v, got %v", now, status.LastSweepAt)
	}
}

func TestSweepErrorIsReportedNotFatal(t *testing.T) {
	deleter := &fakeDeleter{err: errors.New("disk full")}

	s := NewSweeper(deleter, DefaultConfig(), logger.New())

	if err := s.Trigger(context.Background()); err == nil {
		t.Fatal("Expected an error from a failing sweep")
	}

	// A failed sweep must not poison the next one.
	deleter.err = nil
	if err := s.Trigger(context.Background()); err != nil {
		t.Fatalf("Second sweep failed: %v", err)
	}
	if deleter.calls != 2 {
		t.Errorf("Expected 2 sweep attempts, got %d", deleter.calls)
	}
}
