// Package routing holds the route graph index and the resolution engine.
package routing

import (
	"fmt"
	"sort"

	"github.com/bustracker-data/internal/store"
)

// ServiceDirection identifies one directional variant of one service.
type ServiceDirection struct {
	Service   string
	Direction int
}

// GraphStop is one position along a directional stop sequence.
type GraphStop struct {
	Code     string
	Sequence int
}

// Graph is an immutable projection of the route repository: for each
// (service, direction), the ordered stop sequence, plus inverse lookups.
// Graphs are rebuilt wholesale and swapped, never mutated.
type Graph struct {
	order     []ServiceDirection
	sequences map[ServiceDirection][]GraphStop
	byStop    map[string][]ServiceDirection
	positions map[ServiceDirection]map[string]int
}

// BuildGraph groups route edges by (service, direction), deduplicates by
// sequence number keeping the first-seen row, and sorts each group by
// sequence. First-wins on duplicates is deliberate: the feed occasionally
// repeats exact rows.
func BuildGraph(edges []store.RouteEdge) (*Graph, error) {
	g := &Graph{
		sequences: make(map[ServiceDirection][]GraphStop),
		byStop:    make(map[string][]ServiceDirection),
		positions: make(map[ServiceDirection]map[string]int),
	}

	seen := make(map[ServiceDirection]map[int]bool)
	for _, edge := range edges {
		sd := ServiceDirection{Service: edge.Service, Direction: edge.Direction}
		if seen[sd] == nil {
			seen[sd] = make(map[int]bool)
			g.order = append(g.order, sd)
		}
		if seen[sd][edge.Sequence] {
			continue
		}
		seen[sd][edge.Sequence] = true
		g.sequences[sd] = append(g.sequences[sd], GraphStop{Code: edge.StopCode, Sequence: edge.Sequence})
	}

	for _, sd := range g.order {
		seq := g.sequences[sd]
		if len(seq) == 0 {
			return nil, fmt.Errorf("data integrity: empty stop sequence for service %s direction %d", sd.Service, sd.Direction)
		}
		sort.Slice(seq, func(i, j int) bool { return seq[i].Sequence < seq[j].Sequence })

		pos := make(map[string]int, len(seq))
		for _, gs := range seq {
			// Loop services can revisit a stop; keep the earliest position.
			if _, ok := pos[gs.Code]; !ok {
				pos[gs.Code] = gs.Sequence
				g.byStop[gs.Code] = append(g.byStop[gs.Code], sd)
			}
		}
		g.positions[sd] = pos
	}

	return g, nil
}

// Sequence returns the ordered stop sequence for a (service, direction).
func (g *Graph) Sequence(sd ServiceDirection) []GraphStop {
	return g.sequences[sd]
}

// ServingStop returns every (service, direction) passing through a stop, in
// deterministic first-seen order.
func (g *Graph) ServingStop(code string) []ServiceDirection {
	return g.byStop[code]
}

// Position returns the sequence number of a stop within a (service,
// direction), if present.
func (g *Graph) Position(sd ServiceDirection, code string) (int, bool) {
	seq, ok := g.positions[sd][code]
	return seq, ok
}

// HasStop reports whether any service serves the stop.
func (g *Graph) HasStop(code string) bool {
	return len(g.byStop[code]) > 0
}

// Pairs returns every (service, direction) in the graph, in first-seen order.
func (g *Graph) Pairs() []ServiceDirection {
	return g.order
}
