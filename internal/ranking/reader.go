// Package ranking reads the global word-frequency ranking, from the index
// cache when it is healthy and by scanning and counting the whole store when
// it is not. Both paths rank identically: descending frequency, ties broken
// lexically ascending.
package ranking

import (
	"context"
	"fmt"
	"log/slog"

	"parasearch/internal/index"
	"parasearch/internal/index/tokenizer"
	"parasearch/internal/search"
	"parasearch/internal/store"
)

// Reader serves top-N frequent word queries.
type Reader struct {
	cache  *index.Cache
	src    store.Store
	logger *slog.Logger
}

// NewReader creates a Reader over the index cache and the authoritative
// store.
func NewReader(cache *index.Cache, src store.Store) *Reader {
	return &Reader{
		cache:  cache,
		src:    src,
		logger: slog.Default().With("component", "ranking-reader"),
	}
}

// TopFrequentWords returns the n most frequent words across the corpus and
// the path that produced them. Cache errors degrade to the store scan; only
// store errors propagate.
func (r *Reader) TopFrequentWords(ctx context.Context, n int) ([]index.WordCount, search.Path, error) {
	if n <= 0 {
		return nil, search.PathCache, nil
	}

	if r.cache.IsAvailable(ctx) {
		words, err := r.cache.TopWords(ctx, n)
		if err == nil {
			return words, search.PathCache, nil
		}
		r.logger.Warn("cache ranking read failed, degrading to store scan", "error", err)
	}

	words, err := r.scanTopWords(ctx, n)
	if err != nil {
		return nil, search.PathScan, fmt.Errorf("scan ranking: %w", err)
	}
	return words, search.PathScan, nil
}

// scanTopWords tokenizes every paragraph and accumulates counts, then ranks
// with the same order as the cache path.
func (r *Reader) scanTopWords(ctx context.Context, n int) ([]index.WordCount, error) {
	counts := make(map[string]int64)
	err := r.src.ScanAll(ctx, func(p store.Paragraph) error {
		for word, c := range tokenizer.Counts(p.Content) {
			counts[word] += c
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return nil, nil
	}

	entries := make([]index.WordCount, 0, len(counts))
	for word, count := range counts {
		entries = append(entries, index.WordCount{Word: word, Count: count})
	}
	index.SortRanking(entries)
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}
