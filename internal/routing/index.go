package routing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bustracker-data/internal/common/logger"
	"github.com/bustracker-data/internal/store"
)

// Index holds the current route graph. Rebuild constructs a fresh graph from
// the repository and swaps it in whole, so concurrent readers always observe
// either the previous or the new graph in full.
type Index struct {
	store  *store.Store
	logger logger.Logger

	mu        sync.RWMutex
	graph     *Graph
	rebuiltAt time.Time
}

func NewIndex(st *store.Store, log logger.Logger) *Index {
	return &Index{store: st, logger: log}
}

// Rebuild reads every route edge and replaces the current graph. It is
// idempotent and safe to call concurrently with Snapshot.
func (i *Index) Rebuild(ctx context.Context) error {
	edges, err := i.store.AllRouteEdges(ctx)
	if err != nil {
		return fmt.Errorf("loading route edges: %w", err)
	}

	graph, err := BuildGraph(edges)
	if err != nil {
		return fmt.Errorf("building route graph: %w", err)
	}

	i.mu.Lock()
	i.graph = graph
	i.rebuiltAt = time.Now()
	i.mu.Unlock()

	i.logger.Info("Route graph rebuilt",
		"service_directions", len(graph.Pairs()),
		"edges", len(edges))
	return nil
}

// Snapshot returns the current graph, or nil before the first rebuild.
func (i *Index) Snapshot() *Graph {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.graph
}

// RebuiltAt returns when the current graph was built.
func (i *Index) RebuiltAt() time.Time {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.rebuiltAt
}
