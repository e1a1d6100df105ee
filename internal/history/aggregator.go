// Package history computes rollups over the arrival sample log: hourly ETA
// averages for the dashboard and a delay trend derived from consecutive
// samples.
package history

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/bustracker-data/internal/common/logger"
	"github.com/bustracker-data/internal/store"
)

// SampleSource is the slice of the storage layer the aggregator reads.
type SampleSource interface {
	SamplesSince(ctx context.Context, stopCode, service string, since time.Time) ([]store.Sample, error)
}

// HourlyPoint is one hour-of-day bucket in an average-ETA series. The field
// names match the chart payload the dashboard consumes.
type HourlyPoint struct {
	Hour   float64 `json:"x"`
	AvgETA float64 `json:"y"`
}

// TrendStatus classifies schedule drift.
type TrendStatus string

const (
	StatusOnTime      TrendStatus = "On time"
	StatusMinorDelay  TrendStatus = "Minor delay"
	StatusSevereDelay TrendStatus = "Severe delay"
)

// TrendBucket is one delay-trend window.
type TrendBucket struct {
	Window   time.Time   `json:"window"`
	AvgDelay float64     `json:"avg_delay"`
	Samples  int         `json:"samples"`
	Status   TrendStatus `json:"status"`
}

const (
	// etaHorizonMinutes drops next-cycle predictions (a bus 30+ minutes out
	// says nothing about the current one).
	etaHorizonMinutes = 25
	minDelayMinutes   = -5
	maxDelayMinutes   = 15
)

type Aggregator struct {
	store  SampleSource
	logger logger.Logger
	nowFn  func() time.Time
}

func NewAggregator(src SampleSource, log logger.Logger) *Aggregator {
	return &Aggregator{store: src, logger: log, nowFn: time.Now}
}

// HourlyAverages buckets a stop's samples by hour of day and returns the mean
// ETA per bucket, keyed by service. An empty stopCode aggregates the whole
// network.
func (a *Aggregator) HourlyAverages(ctx context.Context, stopCode string, window time.Duration) (map[string][]HourlyPoint, error) {
	since := a.nowFn().Add(-window)
	samples, err := a.store.SamplesSince(ctx, stopCode, "", since)
	if err != nil {
		return nil, fmt.Errorf("loading samples: %w", err)
	}

	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[string]map[int]*bucket)
	for _, sample := range samples {
		hour := sample.CapturedAt.Hour()
		if buckets[sample.Service] == nil {
			buckets[sample.Service] = make(map[int]*bucket)
		}
		b := buckets[sample.Service][hour]
		if b == nil {
			b = &bucket{}
			buckets[sample.Service][hour] = b
		}
		b.sum += sample.ETAMinutes
		b.count++
	}

	series := make(map[string][]HourlyPoint, len(buckets))
	for service, hours := range buckets {
		points := make([]HourlyPoint, 0, len(hours))
		for hour, b := range hours {
			points = append(points, HourlyPoint{
				Hour:   float64(hour),
				AvgETA: round2(b.sum / float64(b.count)),
			})
		}
		sort.Slice(points, func(i, j int) bool { return points[i].Hour < points[j].Hour })
		series[service] = points
	}
	return series, nil
}

// NetworkHourlyAverages returns one hour-of-day series across every stop and
// service.
func (a *Aggregator) NetworkHourlyAverages(ctx context.Context, window time.Duration) ([]HourlyPoint, error) {
	since := a.nowFn().Add(-window)
	samples, err := a.store.SamplesSince(ctx, "", "", since)
	if err != nil {
		return nil, fmt.Errorf("loading samples: %w", err)
	}

	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, sample := range samples {
		hour := sample.CapturedAt.Hour()
		sums[hour] += sample.ETAMinutes
		counts[hour]++
	}

	points := make([]HourlyPoint, 0, len(sums))
	for hour, sum := range sums {
		points = append(points, HourlyPoint{Hour: float64(hour), AvgETA: round2(sum / float64(counts[hour]))})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Hour < points[j].Hour })
	return points, nil
}

// DelayTrend estimates schedule drift: each sample's ETA is compared against
// the previous sample for the same (stop, service), linearly extrapolated to
// the new capture time. Positive drift means the bus is slipping.
func (a *Aggregator) DelayTrend(ctx context.Context, stopCode, service string, bucketSize, window time.Duration) ([]TrendBucket, error) {
	if bucketSize <= 0 {
		bucketSize = 30 * time.Minute
	}
	since := a.nowFn().Add(-window)
	samples, err := a.store.SamplesSince(ctx, stopCode, service, since)
	if err != nil {
		return nil, fmt.Errorf("loading samples: %w", err)
	}

	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[time.Time]*bucket)
	prev := make(map[etaPrevKey]store.Sample)

	for _, sample := range samples {
		if sample.ETAMinutes >= etaHorizonMinutes {
			continue
		}
		key := etaPrevKey{stop: sample.StopCode, service: sample.Service}
		last, ok := prev[key]
		prev[key] = sample
		if !ok {
			continue
		}

		elapsed := sample.CapturedAt.Sub(last.CapturedAt).Minutes()
		expected := math.Max(last.ETAMinutes-elapsed, 0)
		delay := sample.ETAMinutes - expected
		if delay < minDelayMinutes || delay > maxDelayMinutes {
			continue
		}

		window := sample.CapturedAt.Truncate(bucketSize)
		b := buckets[window]
		if b == nil {
			b = &bucket{}
			buckets[window] = b
		}
		b.sum += delay
		b.count++
	}

	trend := make([]TrendBucket, 0, len(buckets))
	for window, b := range buckets {
		avg := b.sum / float64(b.count)
		trend = append(trend, TrendBucket{
			Window:   window,
			AvgDelay: round2(avg),
			Samples:  b.count,
			Status:   ClassifyDelay(avg),
		})
	}
	sort.Slice(trend, func(i, j int) bool { return trend[i].Window.Before(trend[j].Window) })
	return trend, nil
}

type etaPrevKey struct {
	stop    string
	service string
}

// ClassifyDelay maps average drift in minutes to a severity label.
func ClassifyDelay(avgDelay float64) TrendStatus {
	switch {
	case avgDelay < 1:
		return StatusOnTime
	case avgDelay < 3:
		return StatusMinorDelay
	default:
		return StatusSevereDelay
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
