package events

import (
	"context"
	"encoding/json"
	"sync"

	"parasearch/pkg/kafka"
)

// AggregatedStats holds running totals over the event stream.
type AggregatedStats struct {
	ParagraphsStored int64            `json:"paragraphs_stored"`
	Searches         int64            `json:"searches"`
	SearchesByPath   map[string]int64 `json:"searches_by_path"`
	Rebuilds         int64            `json:"rebuilds"`
	ZeroHitSearches  int64            `json:"zero_hit_searches"`
}

// Aggregator consumes the event topic and maintains AggregatedStats.
type Aggregator struct {
	mu    sync.Mutex
	stats AggregatedStats
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		stats: AggregatedStats{SearchesByPath: make(map[string]int64)},
	}
}

// HandleMessage is a kafka.MessageHandler that folds one event into the
// running stats.
func (a *Aggregator) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	switch env.Type {
	case EventParagraphStored:
		a.stats.ParagraphsStored++
	case EventSearch:
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			return err
		}
		a.stats.Searches++
		a.stats.SearchesByPath[event.Path]++
		if event.Hits == 0 {
			a.stats.ZeroHitSearches++
		}
	case EventRebuild:
		a.stats.Rebuilds++
	}
	return nil
}

// Stats returns a copy of the current totals.
func (a *Aggregator) Stats() AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	stats := a.stats
	stats.SearchesByPath = make(map[string]int64, len(a.stats.SearchesByPath))
	for path, count := range a.stats.SearchesByPath {
		stats.SearchesByPath[path] = count
	}
	return stats
}
