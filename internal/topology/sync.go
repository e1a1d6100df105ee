// Package topology populates the stop/route repository from the upstream
// feed. The load is idempotent: an already-populated repository is left alone
// unless a resync is forced.
package topology

import (
	"context"
	"fmt"
	"time"

	"github.com/bustracker-data/internal/common/logger"
	"github.com/bustracker-data/internal/datamall"
	"github.com/bustracker-data/internal/store"
)

// SyncName keys the topology refresh timestamp in the store.
const SyncName = "topology"

type Syncer struct {
	store  *store.Store
	stops  datamall.StopSource
	routes datamall.RouteSource
	logger logger.Logger
}

func NewSyncer(st *store.Store, stops datamall.StopSource, routes datamall.RouteSource, log logger.Logger) *Syncer {
	return &Syncer{
		store:  st,
		stops:  stops,
		routes: routes,
		logger: log,
	}
}

// EnsureLoaded syncs the topology only when the repository is empty.
func (s *Syncer) EnsureLoaded(ctx context.Context) error {
	stopCount, err := s.store.CountStops(ctx)
	if err != nil {
		return fmt.Errorf("checking stop count: %w", err)
	}
	edgeCount, err := s.store.CountRouteEdges(ctx)
	if err != nil {
		return fmt.Errorf("checking route edge count: %w", err)
	}

	if stopCount > 0 && edgeCount > 0 {
		s.logger.Info("Topology already cached, skipping sync", "stops", stopCount, "route_edges", edgeCount)
		return nil
	}

	return s.Resync(ctx)
}

// Resync reloads stops and route edges from the upstream feed. Malformed rows
// are logged and skipped; the sync only fails when a whole listing cannot be
// fetched or stored.
func (s *Syncer) Resync(ctx context.Context) error {
	s.logger.Info("Starting topology sync")
	start := time.Now()

	feedStops, err := s.stops.Stops(ctx)
	if err != nil {
		return fmt.Errorf("loading stop listing: %w", err)
	}

	stops := make([]store.Stop, 0, len(feedStops))
	known := make(map[string]bool, len(feedStops))
	for _, fs := range feedStops {
		if fs.BusStopCode == "" {
			s.logger.Warn("Skipping stop without code", "name", fs.Description)
			continue
		}
		stops = append(stops, store.Stop{
			Code: fs.BusStopCode,
			Name: fs.Description,
			Road: fs.RoadName,
			Lat:  fs.Latitude,
			Lon:  fs.Longitude,
		})
		known[fs.BusStopCode] = true
	}

	if err := s.store.UpsertStops(ctx, stops); err != nil {
		return fmt.Errorf("storing stops: %w", err)
	}

	feedRoutes, err := s.routes.Routes(ctx)
	if err != nil {
		return fmt.Errorf("loading route listing: %w", err)
	}

	edges := make([]store.RouteEdge, 0, len(feedRoutes))
	skipped := 0
	for _, fr := range feedRoutes {
		if !validEdge(fr.ServiceNo, fr.Direction, fr.StopSequence, fr.BusStopCode, fr.Distance) {
			s.logger.Warn("Skipping malformed route edge",
				"service", fr.ServiceNo,
				"direction", fr.Direction,
				"sequence", fr.StopSequence,
				"stop_code", fr.BusStopCode)
			skipped++
			continue
		}
		if !known[fr.BusStopCode] {
			s.logger.Warn("Skipping route edge for unknown stop",
				"service", fr.ServiceNo,
				"stop_code", fr.BusStopCode)
			skipped++
			continue
		}
		edges = append(edges, store.RouteEdge{
			Service:    fr.ServiceNo,
			Direction:  fr.Direction,
			Sequence:   fr.StopSequence,
			StopCode:   fr.BusStopCode,
			DistanceKM: fr.Distance,
		})
	}

	if err := s.store.UpsertRouteEdges(ctx, edges); err != nil {
		return fmt.Errorf("storing route edges: %w", err)
	}

	if err := s.store.SetRefreshedAt(ctx, SyncName, time.Now()); err != nil {
		s.logger.Warn("Failed to record topology refresh time", "error", err)
	}

	s.logger.Info("Topology sync complete",
		"stops", len(stops),
		"route_edges", len(edges),
		"skipped_edges", skipped,
		"duration", time.Since(start))
	return nil
}

func validEdge(service string, direction, sequence int, stopCode string, distance float64) bool {
	if service == "" || stopCode == "" {
		return false
	}
	if direction != 1 && direction != 2 {
		return false
	}
	if sequence < 1 || distance < 0 {
		return false
	}
	return true
}
