package datamall

import (
	"context"

	"github.com/bustracker-data/pkg/datamall/models"
)

// StopSource lists every stop the upstream feed knows about.
type StopSource interface {
	Stops(ctx context.Context) ([]models.BusStop, error)
}

// RouteSource lists every route edge the upstream feed knows about.
type RouteSource interface {
	Routes(ctx context.Context) ([]models.BusRoute, error)
}

// ArrivalFetcher looks up the live arrivals for one stop.
type ArrivalFetcher interface {
	Arrivals(ctx context.Context, stopCode string) ([]models.ArrivalService, error)
}
