package history

import (
	"context"
	"testing"
	"time"

	"github.com/bustracker-data/internal/common/logger"
	"github.com/bustracker-data/internal/store"
)

type fakeSource struct {
	samples []store.Sample
}

func (f *fakeSource) SamplesSince(ctx context.Context, stopCode, service string, since time.Time) ([]store.Sample, error) {
	var out []store.Sample
	for _, s := range f.samples {
		if stopCode != "" && s.StopCode != stopCode {
			continue
		}
		if service != "" && s.Service != service {
			continue
		}
		if s.CapturedAt.Before(since) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func testAggregator(samples []store.Sample, now time.Time) *Aggregator {
	a := NewAggregator(&fakeSource{samples: samples}, logger.New())
	a.nowFn = func() time.Time { return now }
	return a
}

func sampleAt(stop, service string, eta float64, at time.Time) store.Sample {
	return store.Sample{StopCode: stop, Service: service, ETAMinutes: eta, CapturedAt: at}
}

func TestHourlyAverages(t *testing.T) {
	now := time.Date(2026, 8, 29, 15, 30, 0, 0, time.UTC)
	day := func(hour, minute int) time.Time {
		return time.Date(2026, 8, 29, hour, minute, 0, 0, time.UTC)
	}

	a := testAggregator([]store.Sample{
		sampleAt("97009", "36", 4.0, day(8, 5)),
		sampleAt("97009", "36", 6.0, day(8, 40)),
		sampleAt("97009", "36", 10.0, day(9, 10)),
		sampleAt("97009", "155", 3.0, day(8, 15)),
	}, now)

	series, err := a.HourlyAverages(context.Background(), "97009", 24*time.Hour)
	if err != nil {
		t.Fatalf("HourlyAverages failed: %v", err)
	}

	svc36 := series["36"]
	if len(svc36) != 2 {
		t.Fatalf("Expected 2 hourly buckets for service 36, got %d", len(svc36))
	}
	if svc36[0].Hour != 8 || svc36[0].AvgETA != 5.0 {
		t.Errorf("Hour 8: expected average 5.0, got %+v", svc36[0])
	}
	if svc36[1].Hour != 9 || svc36[1].AvgETA != 10.0 {
		t.Errorf("Hour 9: expected average 10.0, got %+v", svc36[1])
	}

	svc155 := series["155"]
	if len(svc155) != 1 || svc155[0].AvgETA != 3.0 {
		t.Errorf("Expected one bucket averaging 3.0 for service 155, got %+v", svc155)
	}
}

func TestHourlyAveragesRespectsWindow(t *testing.T) {
	now := time.Date(2026, 8, 29, 15, 0, 0, 0, time.UTC)
	a := testAggregator([]store.Sample{
		sampleAt("97009", "36", 4.0, now.Add(-2*time.Hour)),
		sampleAt("97009", "36", 99.0, now.Add(-48*time.Hour)), // outside window
	}, now)

	series, err := a.HourlyAverages(context.Background(), "97009", 24*time.Hour)
	if err != nil {
		t.Fatalf("HourlyAverages failed: %v", err)
	}
	if len(series["36"]) != 1 {
		t.Fatalf("Expected the stale sample to be excluded, got %d buckets", len(series["36"]))
	}
}

func TestNetworkHourlyAverages(t *testing.T) {
	now := time.Date(2026, 8, 29, 15, 0, 0, 0, time.UTC)
	at := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	a := testAggregator([]store.Sample{
		sampleAt("11111", "10", 2.0, at),
		sampleAt("22222", "20", 4.0, at.Add(10*time.Minute)),
	}, now)

	points, err := a.NetworkHourlyAverages(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("NetworkHourlyAverages failed: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("Expected 1 bucket, got %d", len(points))
	}
	if points[0].Hour != 10 || points[0].AvgETA != 3.0 {
		t.Errorf("Expected hour 10 averaging 3.0 across stops, got %+v", points[0])
	}
}

func TestDelayTrendDriftComputation(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	base := now.Add(-time.Hour)

	// Sample 1: ETA 10 at t0. Sample 2 five minutes later: a bus on schedule
	// would show ETA 5; ETA 7 means 2 minutes of drift.
	a := testAggregator([]store.Sample{
		sampleAt("97009", "36", 10.0, base),
		sampleAt("97009", "36", 7.0, base.Add(5*time.Minute)),
	}, now)

	trend, err := a.DelayTrend(context.Background(), "97009", "36", 30*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("DelayTrend failed: %v", err)
	}
	if len(trend) != 1 {
		t.Fatalf("Expected 1 trend bucket, got %d", len(trend))
	}
	if trend[0].AvgDelay != 2.0 {
		t.Errorf("Expected 2.0 minutes of drift, got %v", trend[0].AvgDelay)
	}
	if trend[0].Status != StatusMinorDelay {
		t.Errorf("Expected minor delay, got %s", trend[0].Status)
	}
	if trend[0].Samples != 1 {
		t.Errorf("Expected 1 contributing sample, got %d", trend[0].Samples)
	}
}

func TestDelayTrendIgnoresFarPredictions(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	base := now.Add(-time.Hour)

	// Next-cycle ETAs (>= 25 min) say nothing about the bus being tracked.
	a := testAggregator([]store.Sample{
		sampleAt("97009", "36", 30.0, base),
		sampleAt("97009", "36", 28.0, base.Add(5*time.Minute)),
	}, now)

	trend, err := a.DelayTrend(context.Background(), "97009", "36", 30*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("DelayTrend failed: %v", err)
	}
	if len(trend) != 0 {
		t.Fatalf("Expected no trend buckets from far predictions, got %d", len(trend))
	}
}

func TestDelayTrendFiltersUnrealisticDrift(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	base := now.Add(-time.Hour)

	// A jump from 1 to 20 minutes in one cycle is a different vehicle, not
	// drift.
	a := testAggregator([]store.Sample{
		sampleAt("97009", "36", 1.0, base),
		sampleAt("97009", "36", 20.0, base.Add(time.Minute)),
	}, now)

	trend, err := a.DelayTrend(context.Background(), "97009", "36", 30*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("DelayTrend failed: %v", err)
	}
	if len(trend) != 0 {
		t.Fatalf("Expected the outlier to be filtered, got %d buckets", len(trend))
	}
}

func TestClassifyDelay(t *testing.T) {
	cases := []struct {
		delay float64
		want  TrendStatus
	}{
		{-2.0, StatusOnTime},
		{0.5, StatusOnTime},
		{1.0, StatusMinorDelay},
		{2.9, StatusMinorDelay},
		{3.0, StatusSevereDelay},
		{10.0, StatusSevereDelay},
	}
	for _, tc := range cases {
		if got := ClassifyDelay(tc.delay); got != tc.want {
			t.Errorf("ClassifyDelay(%v): expected %s, got %s", tc.delay, tc.want, got)
		}
	}
}
