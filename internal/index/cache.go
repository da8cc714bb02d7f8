// Package index maintains the searchable projection of the paragraph store:
// an inverted index (one set of paragraph ids per word) and a global word
// frequency ranking, both held in the cache backend and updated in real time
// as paragraphs are ingested.
//
// The cache is derived state. It can be discarded at any point and
// reconstructed with Rebuild, and every operation tracks backend health so
// callers can fall back to scanning the authoritative store.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"parasearch/internal/index/tokenizer"
	"parasearch/internal/store"
	"parasearch/pkg/config"
	apperrors "parasearch/pkg/errors"
	pkgredis "parasearch/pkg/redis"
	"parasearch/pkg/resilience"
)

const (
	// frequencyKey is the sorted-set counter of word occurrences across the
	// whole corpus.
	frequencyKey = "word_frequencies"
	// postingPrefix prefixes the per-word sets of paragraph ids.
	postingPrefix = "word_index:"
	// bulkOpTimeout bounds operations that touch every posting set.
	bulkOpTimeout = 30 * time.Second
)

// WordCount is one entry of the frequency ranking.
type WordCount struct {
	Word  string `json:"word"`
	Count int64  `json:"frequency"`
}

// Stats summarises the current index contents.
type Stats struct {
	UniqueWords int64   `json:"unique_words"`
	Mappings    int64   `json:"word_paragraph_mappings"`
	AvgPerWord  float64 `json:"average_paragraphs_per_word"`
	Available   bool    `json:"available"`
}

// Cache is the dual-structure index over the cache backend.
type Cache struct {
	backend   Backend
	cfg       config.IndexConfig
	opTimeout time.Duration
	available atomic.Bool
	logger    *slog.Logger
}

// New creates a Cache. The backend is assumed healthy until an operation
// proves otherwise.
func New(backend Backend, cfg config.IndexConfig, opTimeout time.Duration) *Cache {
	if opTimeout <= 0 {
		opTimeout = 2 * time.Second
	}
	c := &Cache{
		backend:   backend,
		cfg:       cfg,
		opTimeout: opTimeout,
		logger:    slog.Default().With("component", "index-cache"),
	}
	c.available.Store(true)
	return c
}

// IsAvailable probes the backend with a bounded PING and updates the
// availability flag. It never returns an error: an unreachable backend just
// reads as unavailable.
func (c *Cache) IsAvailable(ctx context.Context) bool {
	err := resilience.WithTimeout(ctx, c.opTimeout, "index-ping", func(ctx context.Context) error {
		return c.backend.Ping(ctx)
	})
	if err != nil {
		c.markDown(err)
		return false
	}
	c.markUp()
	return true
}

// Available reports the last observed availability without touching the
// backend.
func (c *Cache) Available() bool {
	return c.available.Load()
}

// IndexDocument adds the paragraph to every posting set of its words and
// increments each word's frequency by its occurrence count. The whole write
// is a single backend transaction, retried with backoff; it is never
// partially applied. On exhausted retries the error wraps
// ErrCacheUnavailable and the next Rebuild corrects the index.
func (c *Cache) IndexDocument(ctx context.Context, id int64, text string) error {
	counts := tokenizer.Counts(text)
	if len(counts) == 0 {
		return nil
	}
	setKeys := make([]string, 0, len(counts))
	for word := range counts {
		setKeys = append(setKeys, postingPrefix+word)
	}
	member := strconv.FormatInt(id, 10)

	err := resilience.Retry(ctx, "index-write", resilience.RetryConfig{
		MaxAttempts:  c.cfg.WriteAttempts,
		InitialDelay: c.cfg.WriteBackoff,
	}, func() error {
		return resilience.WithTimeout(ctx, c.opTimeout, "index-write", func(ctx context.Context) error {
			return c.backend.SetAddBatch(ctx, member, setKeys, frequencyKey, counts)
		})
	})
	if err != nil {
		c.markDown(err)
		return fmt.Errorf("%w: indexing paragraph %d: %v", apperrors.ErrCacheUnavailable, id, err)
	}
	c.markUp()
	return nil
}

// LookupOR returns the ids of paragraphs containing at least one of the
// words. Words that normalise to nothing are skipped; missing words
// contribute an empty set.
func (c *Cache) LookupOR(ctx context.Context, words []string) ([]int64, error) {
	keys := postingKeys(words, false)
	if len(keys) == 0 {
		return nil, nil
	}
	var members []string
	err := resilience.WithTimeout(ctx, c.opTimeout, "index-union", func(ctx context.Context) error {
		var err error
		members, err = c.backend.SetUnion(ctx, keys...)
		return err
	})
	if err != nil {
		c.markDown(err)
		return nil, fmt.Errorf("%w: union lookup: %v", apperrors.ErrCacheUnavailable, err)
	}
	c.markUp()
	return parseIDs(members)
}

// LookupAND returns the ids of paragraphs containing all of the words. A
// word with no posting set anywhere makes the result empty; that is a
// correct answer, not an error.
func (c *Cache) LookupAND(ctx context.Context, words []string) ([]int64, error) {
	keys := postingKeys(words, true)
	if len(keys) == 0 {
		return nil, nil
	}
	var members []string
	err := resilience.WithTimeout(ctx, c.opTimeout, "index-intersection", func(ctx context.Context) error {
		var err error
		members, err = c.backend.SetInter(ctx, keys...)
		return err
	})
	if err != nil {
		c.markDown(err)
		return nil, fmt.Errorf("%w: intersection lookup: %v", apperrors.ErrCacheUnavailable, err)
	}
	c.markUp()
	return parseIDs(members)
}

// TopWords returns the n most frequent words, highest first. Equal
// frequencies are ordered lexically ascending; the backend's own tie order
// is deliberately ignored so the result is deterministic.
func (c *Cache) TopWords(ctx context.Context, n int) ([]WordCount, error) {
	if n <= 0 {
		return nil, nil
	}
	var top []pkgredis.ScoredMember
	err := resilience.WithTimeout(ctx, c.opTimeout, "index-ranking", func(ctx context.Context) error {
		var err error
		top, err = c.backend.CounterTop(ctx, frequencyKey, int64(n))
		return err
	})
	if err != nil {
		c.markDown(err)
		return nil, fmt.Errorf("%w: reading frequency ranking: %v", apperrors.ErrCacheUnavailable, err)
	}
	if len(top) == 0 {
		c.markUp()
		return nil, nil
	}

	// The backend truncates at n, so members tied with the last returned
	// score may have been cut off in backend order rather than ours. Fetch
	// the full tie group at the boundary score and re-rank.
	candidates := make([]WordCount, 0, len(top))
	boundary := top[len(top)-1].Score
	for _, m := range top {
		if m.Score > boundary {
			candidates = append(candidates, WordCount{Word: m.Member, Count: m.Score})
		}
	}
	var ties []string
	err = resilience.WithTimeout(ctx, c.opTimeout, "index-ranking-ties", func(ctx context.Context) error {
		var err error
		ties, err = c.backend.CounterMembersAt(ctx, frequencyKey, boundary)
		return err
	})
	if err != nil {
		c.markDown(err)
		return nil, fmt.Errorf("%w: reading frequency ties: %v", apperrors.ErrCacheUnavailable, err)
	}
	for _, word := range ties {
		candidates = append(candidates, WordCount{Word: word, Count: boundary})
	}
	c.markUp()

	SortRanking(candidates)
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates, nil
}

// WordFrequency returns the total occurrence count of one normalised word.
func (c *Cache) WordFrequency(ctx context.Context, word string) (int64, error) {
	word = tokenizer.NormalizeWord(word)
	if word == "" {
		return 0, nil
	}
	var score int64
	err := resilience.WithTimeout(ctx, c.opTimeout, "index-frequency", func(ctx context.Context) error {
		var err error
		score, err = c.backend.CounterScore(ctx, frequencyKey, word)
		return err
	})
	if err != nil {
		c.markDown(err)
		return 0, fmt.Errorf("%w: reading word frequency: %v", apperrors.ErrCacheUnavailable, err)
	}
	c.markUp()
	return score, nil
}

// Rebuild discards both structures and re-indexes every paragraph from a
// full store scan, with bounded concurrency. Replay order does not matter:
// postings are sets and frequencies are sums, so any interleaving with
// concurrent ingestion converges to the same state.
func (c *Cache) Rebuild(ctx context.Context, src store.Store) error {
	start := time.Now()
	if err := c.Clear(ctx); err != nil {
		return err
	}

	workers := c.cfg.RebuildWorkers
	if workers <= 0 {
		workers = 4
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var replayed atomic.Int64
	scanErr := src.ScanAll(ctx, func(p store.Paragraph) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		g.Go(func() error {
			if err := c.IndexDocument(gctx, p.ID, p.Content); err != nil {
				return err
			}
			replayed.Add(1)
			return nil
		})
		return nil
	})
	indexErr := g.Wait()
	// A failed worker cancels the group context and aborts the scan, so the
	// replay error is the root cause when both are set.
	if indexErr != nil {
		return fmt.Errorf("rebuild replay failed: %w", indexErr)
	}
	if scanErr != nil {
		return fmt.Errorf("rebuild scan failed: %w", scanErr)
	}

	c.logger.Info("index rebuilt",
		"paragraphs", replayed.Load(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// Clear removes the frequency counter and every posting set.
func (c *Cache) Clear(ctx context.Context) error {
	var deleted int64
	err := resilience.WithTimeout(ctx, bulkOpTimeout, "index-clear", func(ctx context.Context) error {
		if err := c.backend.Del(ctx, frequencyKey); err != nil {
			return fmt.Errorf("clearing frequency counter: %w", err)
		}
		var err error
		deleted, err = c.backend.DeleteByPattern(ctx, postingPrefix+"*")
		if err != nil {
			return fmt.Errorf("clearing posting sets: %w", err)
		}
		return nil
	})
	if err != nil {
		c.markDown(err)
		return fmt.Errorf("%w: %v", apperrors.ErrCacheUnavailable, err)
	}
	c.markUp()
	c.logger.Info("index cleared", "posting_sets_deleted", deleted)
	return nil
}

// Empty reports whether the index currently holds no words. Used to decide
// whether a rebuild is needed at startup or after cache loss.
func (c *Cache) Empty(ctx context.Context) (bool, error) {
	var card int64
	err := resilience.WithTimeout(ctx, c.opTimeout, "index-size", func(ctx context.Context) error {
		var err error
		card, err = c.backend.CounterCard(ctx, frequencyKey)
		return err
	})
	if err != nil {
		c.markDown(err)
		return false, fmt.Errorf("%w: checking index size: %v", apperrors.ErrCacheUnavailable, err)
	}
	c.markUp()
	return card == 0, nil
}

// IndexStats walks the posting sets and reports index size figures.
func (c *Cache) IndexStats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := resilience.WithTimeout(ctx, bulkOpTimeout, "index-stats", func(ctx context.Context) error {
		keys, err := c.backend.ScanKeys(ctx, postingPrefix+"*")
		if err != nil {
			return fmt.Errorf("scanning posting sets: %w", err)
		}
		stats = Stats{UniqueWords: int64(len(keys)), Available: true}
		for _, key := range keys {
			count, err := c.backend.SetCount(ctx, key)
			if err != nil {
				return fmt.Errorf("counting posting set %s: %w", key, err)
			}
			stats.Mappings += count
		}
		if stats.UniqueWords > 0 {
			stats.AvgPerWord = float64(stats.Mappings) / float64(stats.UniqueWords)
		}
		return nil
	})
	if err != nil {
		c.markDown(err)
		return Stats{}, fmt.Errorf("%w: %v", apperrors.ErrCacheUnavailable, err)
	}
	c.markUp()
	return stats, nil
}

func (c *Cache) markDown(err error) {
	if c.available.Swap(false) {
		c.logger.Warn("index cache marked unavailable", "error", err)
	}
}

func (c *Cache) markUp() {
	if !c.available.Swap(true) {
		c.logger.Info("index cache available again")
	}
}

// SortRanking orders entries by descending count, ties lexically ascending.
// Both the cache path and the store-scan path rank with this exact order.
func SortRanking(entries []WordCount) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Word < entries[j].Word
	})
}

// postingKeys normalises query words into posting-set keys. For AND
// lookups a word that normalises to nothing can match no paragraph, so the
// whole lookup is short-circuited by returning no keys paired with the
// caller treating that as empty; strict=false (OR) just drops such words.
func postingKeys(words []string, strict bool) []string {
	keys := make([]string, 0, len(words))
	for _, w := range words {
		norm := tokenizer.NormalizeWord(w)
		if norm == "" {
			if strict {
				return nil
			}
			continue
		}
		keys = append(keys, postingPrefix+norm)
	}
	return keys
}

func parseIDs(members []string) ([]int64, error) {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("non-numeric posting member %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
