// Package retrieval assembles the context block injected ahead of each
// conversation: a top-k query against every registered collection, joined in
// registry-enumeration order.
package retrieval

import (
	"context"
	"log/slog"
	"strings"

	"github.com/contextlabs/ragway/internal/metadata"
	"github.com/contextlabs/ragway/internal/vectorstore"
)

// Registry enumerates the collections known to the metadata store.
type Registry interface {
	ListCollections(ctx context.Context) ([]metadata.Collection, error)
}

// Metrics receives per-collection retrieval outcomes. Satisfied by
// telemetry.Metrics; nil-safe at the call sites via the noop default.
type Metrics interface {
	RecordRetrieval(collection string, passages int)
	RecordRetrievalFailure(collection string)
}

type noopMetrics struct{}

func (noopMetrics) RecordRetrieval(string, int)   {}
func (noopMetrics) RecordRetrievalFailure(string) {}

// Aggregator queries the vector store across all known collections and
// concatenates the retrieved passages into one context string.
type Aggregator struct {
	registry Registry
	store    vectorstore.Searcher
	topK     int
	metrics  Metrics
}

func NewAggregator(registry Registry, store vectorstore.Searcher, topK int, metrics Metrics) *Aggregator {
	if topK <= 0 {
		topK = 2
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Aggregator{
		registry: registry,
		store:    store,
		topK:     topK,
		metrics:  metrics,
	}
}

// RetrieveContext returns the concatenated content of every passage retrieved
// for query, in collection-enumeration order then passage-rank order,
// separated by blank lines. A failing collection is skipped — one stale or
// deleted collection must not take retrieval down for the rest — and zero
// collections (or all failing) yields "". No deduplication, re-ranking, or
// length capping is applied.
func (a *Aggregator) RetrieveContext(ctx context.Context, query string) string {
	collections, err := a.registry.ListCollections(ctx)
	if err != nil {
		slog.Warn("collection registry unavailable, skipping retrieval", "error", err)
		return ""
	}

	var contents []string
	for _, c := range collections {
		passages, err := a.store.TopK(ctx, c.ID, query, a.topK)
		if err != nil {
			slog.Warn("collection query failed, skipping",
				"collection", c.ID,
				"error", err,
			)
			a.metrics.RecordRetrievalFailure(c.ID)
			continue
		}
		a.metrics.RecordRetrieval(c.ID, len(passages))
		for _, p := range passages {
			contents = append(contents, p.Content)
		}
	}
	return strings.Join(contents, "\n\n")
}
