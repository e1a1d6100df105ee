package routing

import (
	"errors"
	"math"
	"sort"
)

// ErrNoRoute signals that no itinerary connects the requested stops. It is a
// normal outcome, not a failure.
var ErrNoRoute = errors.New("no route found")

// Options holds the resolution heuristics. The estimates are deliberately
// coarse: a fixed per-stop travel time and a fixed transfer wait.
type Options struct {
	MinutesPerStop  float64
	TransferPenalty float64
	MaxResults      int
	// PreferDirect skips the transfer search entirely whenever a direct
	// itinerary exists, whatever its travel time.
	PreferDirect bool
}

func DefaultOptions() Options {
	return Options{
		MinutesPerStop:  1.5,
		TransferPenalty: 3,
		MaxResults:      3,
		PreferDirect:    true,
	}
}

// Leg is one traversal of a single service within an itinerary.
type Leg struct {
	Service   string
	Direction int
	From      string
	To        string
	Stops     int
}

// Itinerary is a transient resolution result: a single direct traversal or
// two legs joined at a transfer stop.
type Itinerary struct {
	Transfer         bool
	Service          string // direct only
	Direction        int    // direct only
	Stops            int    // direct only
	Legs             []Leg  // transfer only
	EstimatedMinutes float64
}

// Resolver answers origin/destination queries against the current graph
// snapshot. It is stateless and safe for concurrent use.
type Resolver struct {
	index *Index
	opts  Options
}

func NewResolver(index *Index, opts Options) *Resolver {
	return &Resolver{index: index, opts: opts}
}

// Resolve returns up to MaxResults itineraries from origin to destination,
// sorted ascending by estimated minutes. Unknown stop codes and unreachable
// destinations both yield ErrNoRoute.
func (r *Resolver) Resolve(origin, destination string) ([]Itinerary, error) {
	graph := r.index.Snapshot()
	if graph == nil {
		return nil, ErrNoRoute
	}

	candidates := r.directItineraries(graph, origin, destination)
	if len(candidates) == 0 || !r.opts.PreferDirect {
		candidates = append(candidates, r.transferItineraries(graph, origin, destination)...)
	}

	if len(candidates) == 0 {
		return nil, ErrNoRoute
	}

	// Stable sort: ties keep enumeration order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].EstimatedMinutes < candidates[j].EstimatedMinutes
	})
	if len(candidates) > r.opts.MaxResults {
		candidates = candidates[:r.opts.MaxResults]
	}
	return candidates, nil
}

// directItineraries finds every (service, direction) covering origin before
// destination.
func (r *Resolver) directItineraries(graph *Graph, origin, destination string) []Itinerary {
	var out []Itinerary
	for _, sd := range graph.ServingStop(origin) {
		originSeq, _ := graph.Position(sd, origin)
		destSeq, ok := graph.Position(sd, destination)
		if !ok || originSeq >= destSeq {
			continue
		}
		stops := destSeq - originSeq
		out = append(out, Itinerary{
			Service:          sd.Service,
			Direction:        sd.Direction,
			Stops:            stops,
			EstimatedMinutes: round1(float64(stops) * r.opts.MinutesPerStop),
		})
	}
	return out
}

// transferItineraries enumerates service pairs joined at a common stop. Every
// valid (service1, service2, transfer stop) combination yields one candidate;
// multiple transfer stops for the same pair are not collapsed.
func (r *Resolver) transferItineraries(graph *Graph, origin, destination string) []Itinerary {
	var out []Itinerary
	for _, sd1 := range graph.ServingStop(origin) {
		originSeq, _ := graph.Position(sd1, origin)
		leg1Stops := graph.Sequence(sd1)

		for _, sd2 := range graph.ServingStop(destination) {
			destSeq, _ := graph.Position(sd2, destination)

			visited := make(map[string]bool, len(leg1Stops))
			for _, gs := range leg1Stops {
				if visited[gs.Code] {
					continue
				}
				visited[gs.Code] = true

				transferSeq2, ok := graph.Position(sd2, gs.Code)
				if !ok {
					continue
				}
				if originSeq >= gs.Sequence || transferSeq2 >= destSeq {
					continue
				}

				leg1 := gs.Sequence - originSeq
				leg2 := destSeq - transferSeq2
				out = append(out, Itinerary{
					Transfer: true,
					Legs: []Leg{
						{Service: sd1.Service, Direction: sd1.Direction, From: origin, To: gs.Code, Stops: leg1},
						{Service: sd2.Service, Direction: sd2.Direction, From: gs.Code, To: destination, Stops: leg2},
					},
					EstimatedMinutes: round1(float64(leg1+leg2)*r.opts.MinutesPerStop + r.opts.TransferPenalty),
				})
			}
		}
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
