package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bustracker-data/internal/common/logger"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "test.db"), logger.New())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertStopsIsIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	stops := []Stop{
		{Code: "01012", Name: "Hotel Grand Pacific", Road: "Victoria St", Lat: 1.296, Lon: 103.852},
		{Code: "01013", Name: "St. Joseph's Ch", Road: "Victoria St", Lat: 1.297, Lon: 103.853},
	}
	if err := s.UpsertStops(ctx, stops); err != nil {
		t.Fatalf("UpsertStops failed: %v", err)
	}

	// Replaying the same load must not duplicate rows.
	stops[0].Name = "Renamed Stop"
	if err := s.UpsertStops(ctx, stops); err != nil {
		t.Fatalf("Second UpsertStops failed: %v", err)
	}

	n, err := s.CountStops(ctx)
	if err != nil {
		t.Fatalf("CountStops failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("Expected 2 stops, got %d", n)
	}

	found, err := s.SearchStops(ctx, "renamed")
	if err != nil {
		t.Fatalf("SearchStops failed: %v", err)
	}
	if len(found) != 1 || found[0].Code != "01012" {
		t.Errorf("Expected the renamed stop to be searchable, got %+v", found)
	}
}

func TestSearchStopsMatchesCodeNameRoad(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.UpsertStops(ctx, []Stop{
		{Code: "97009", Name: "Blk 401", Road: "Bedok North Ave 3"},
		{Code: "01012", Name: "Hotel Grand Pacific", Road: "Victoria St"},
	}); err != nil {
		t.Fatalf("UpsertStops failed: %v", err)
	}

	cases := []struct {
		query string
		want  string
	}{
		{"bedok", "97009"},
		{"pacific", "01012"},
		{"9700", "97009"},
	}
	for _, tc := range cases {
		found, err := s.SearchStops(ctx, tc.query)
		if err != nil {
			t.Fatalf("SearchStops(%q) failed: %v", tc.query, err)
		}
		if len(found) != 1 || found[0].Code != tc.want {
			t.Errorf("SearchStops(%q): expected %s, got %+v", tc.query, tc.want, found)
		}
	}

	all, err := s.SearchStops(ctx, "")
	if err != nil {
		t.Fatalf("SearchStops(\"\") failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected empty query to return all stops, got %d", len(all))
	}
}

func TestRouteEdgesRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	edges := []RouteEdge{
		{Service: "10", Direction: 1, Sequence: 1, StopCode: "01012", DistanceKM: 0},
		{Service: "10", Direction: 1, Sequence: 2, StopCode: "01013", DistanceKM: 0.6},
		{Service: "10", Direction: 2, Sequence: 1, StopCode: "01013", DistanceKM: 0},
	}
	if err := s.UpsertRouteEdges(ctx, edges); err != nil {
		t.Fatalf("UpsertRouteEdges failed: %v", err)
	}
	// Exact replays are upserts, not duplicates.
	if err := s.UpsertRouteEdges(ctx, edges); err != nil {
		t.Fatalf("Second UpsertRouteEdges failed: %v", err)
	}

	got, err := s.AllRouteEdges(ctx)
	if err != nil {
		t.Fatalf("AllRouteEdges failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 edges, got %d", len(got))
	}
	if got[0].Service != "10" || got[0].Sequence != 1 || got[0].StopCode != "01012" {
		t.Errorf("Unexpected first edge: %+v", got[0])
	}
}

func TestSamplesAppendAndLatest(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	samples := []Sample{
		{StopCode: "97009", Service: "36", ETAMinutes: 5.0, VehicleType: "SD", CapturedAt: base},
		{StopCode: "97009", Service: "36", ETAMinutes: 3.2, VehicleType: "SD", CapturedAt: base.Add(2 * time.Minute)},
		{StopCode: "97009", Service: "155", ETAMinutes: 8.0, VehicleType: "DD", CapturedAt: base.Add(time.Minute)},
	}
	for _, sample := range samples {
		if err := s.AppendSample(ctx, sample); err != nil {
			t.Fatalf("AppendSample failed: %v", err)
		}
	}

	latest, err := s.LatestSamples(ctx)
	if err != nil {
		t.Fatalf("LatestSamples failed: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("Expected one latest sample per (stop, service), got %d", len(latest))
	}

	byService := make(map[string]Sample)
	for _, sample := range latest {
		byService[sample.Service] = sample
	}
	if byService["36"].ETAMinutes != 3.2 {
		t.Errorf("Expected latest ETA 3.2 for service 36, got %v", byService["36"].ETAMinutes)
	}
	if byService["155"].ETAMinutes != 8.0 {
		t.Errorf("Expected latest ETA 8.0 for service 155, got %v", byService["155"].ETAMinutes)
	}
}

func TestSamplesSinceFiltersAndOrders(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	for _, sample := range []Sample{
		{StopCode: "97009", Service: "36", ETAMinutes: 5.0, VehicleType: "SD", CapturedAt: base},
		{StopCode: "97009", Service: "36", ETAMinutes: 7.0, VehicleType: "SD", CapturedAt: base.Add(time.Minute)},
		{StopCode: "11111", Service: "36", ETAMinutes: 2.0, VehicleType: "SD", CapturedAt: base},
		{StopCode: "97009", Service: "36", ETAMinutes: 9.0, VehicleType: "SD", CapturedAt: base.Add(-2 * time.Hour)},
	} {
		if err := s.AppendSample(ctx, sample); err != nil {
			t.Fatalf("AppendSample failed: %v", err)
		}
	}

	got, err := s.SamplesSince(ctx, "97009", "36", base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("SamplesSince failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 samples in window for stop 97009, got %d", len(got))
	}
	if got[0].ETAMinutes != 5.0 || got[1].ETAMinutes != 7.0 {
		t.Errorf("Expected samples ordered oldest first, got %v then %v", got[0].ETAMinutes, got[1].ETAMinutes)
	}
}

func TestDeleteSamplesBefore(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	for _, sample := range []Sample{
		{StopCode: "97009", Service: "36", ETAMinutes: 5.0, VehicleType: "SD", CapturedAt: base.Add(-8 * 24 * time.Hour)},
		{StopCode: "97009", Service: "36", ETAMinutes: 6.0, VehicleType: "SD", CapturedAt: base},
	} {
		if err := s.AppendSample(ctx, sample); err != nil {
			t.Fatalf("AppendSample failed: %v", err)
		}
	}

	deleted, err := s.DeleteSamplesBefore(ctx, base.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteSamplesBefore failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted sample, got %d", deleted)
	}

	n, err := s.CountSamples(ctx)
	if err != nil {
		t.Fatalf("CountSamples failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 remaining sample, got %d", n)
	}
}

func TestSyncStateRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	zero, err := s.RefreshedAt(ctx, "topology")
	if err != nil {
		t.Fatalf("RefreshedAt failed: %v", err)
	}
	if !zero.IsZero() {
		t.Errorf("Expected zero time before any sync, got %v", zero)
	}

	at := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	if err := s.SetRefreshedAt(ctx, "topology", at); err != nil {
		t.Fatalf("SetRefreshedAt failed: %v", err)
	}
	got, err := s.RefreshedAt(ctx, "topology")
	if err != nil {
		t.Fatalf("RefreshedAt failed: %v", err)
	}
	if !got.Equal(at) {
		t.Errorf("Expected %v, got %v", at, got)
	}

	// Overwrites, not duplicates.
	later := at.Add(time.Hour)
	if err := s.SetRefreshedAt(ctx, "topology", later); err != nil {
		t.Fatalf("SetRefreshedAt failed: %v", err)
	}
	got, err = s.RefreshedAt(ctx, "topology")
	if err != nil {
		t.Fatalf("RefreshedAt failed: %v", err)
	}
	if !got.Equal(later) {
		t.Errorf("Expected %v after overwrite, got %v", later, got)
	}
}
