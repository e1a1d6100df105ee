// Package api exposes the downstream contract over HTTP: route resolution,
// live arrivals, stop search, history rollups, and service status.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/bustracker-data/internal/arrivals"
	"github.com/bustracker-data/internal/common/logger"
	"github.com/bustracker-data/internal/datamall"
	"github.com/bustracker-data/internal/history"
	"github.com/bustracker-data/internal/retention"
	"github.com/bustracker-data/internal/routing"
	"github.com/bustracker-data/internal/store"
)

// Resolver answers origin/destination itinerary queries.
type Resolver interface {
	Resolve(origin, destination string) ([]routing.Itinerary, error)
}

// StopSearcher finds stops and reports topology freshness.
type StopSearcher interface {
	SearchStops(ctx context.Context, query string) ([]store.Stop, error)
	RefreshedAt(ctx context.Context, name string) (time.Time, error)
	Ping(ctx context.Context) error
}

// Aggregator computes history rollups.
type Aggregator interface {
	HourlyAverages(ctx context.Context, stopCode string, window time.Duration) (map[string][]history.HourlyPoint, error)
	NetworkHourlyAverages(ctx context.Context, window time.Duration) ([]history.HourlyPoint, error)
	DelayTrend(ctx context.Context, stopCode, service string, bucketSize, window time.Duration) ([]history.TrendBucket, error)
}

// CollectorStatus reports the collector's last cycle.
type CollectorStatus interface {
	Status() (bool, arrivals.CycleStats)
}

// SweeperStatus reports the retention sweeper's last run.
type SweeperStatus interface {
	Status() retention.Status
}

// Handler bundles the core components the HTTP boundary fronts.
type Handler struct {
	resolver  Resolver
	index     *routing.Index
	store     StopSearcher
	fetcher   datamall.ArrivalFetcher
	history   Aggregator
	collector CollectorStatus
	sweeper   SweeperStatus
	logger    logger.Logger
	nowFn     func() time.Time
}

func NewHandler(
	resolver Resolver,
	index *routing.Index,
	st StopSearcher,
	fetcher datamall.ArrivalFetcher,
	aggregator Aggregator,
	collector CollectorStatus,
	sweeper SweeperStatus,
	log logger.Logger,
) *Handler {
	return &Handler{
		resolver:  resolver,
		index:     index,
		store:     st,
		fetcher:   fetcher,
		history:   aggregator,
		collector: collector,
		sweeper:   sweeper,
		logger:    log,
		nowFn:     time.Now,
	}
}

// NewRouter wires the HTTP routes.
func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/route", h.handleResolve)
		r.Get("/bus_stops", h.handleStops)
		r.Get("/bus_arrivals/{code}", h.handleLiveArrivals)
		r.Get("/history", h.handleNetworkHistory)
		r.Get("/history/{code}", h.handleHistory)
		r.Get("/delay_trend/{code}", h.handleDelayTrend)
		r.Get("/status", h.handleStatus)
	})

	return r
}
