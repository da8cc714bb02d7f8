// Package paragraphs orchestrates the core flows: fetch-and-store with
// real-time indexing, two-path search, ranked words with definitions, and
// index rebuilds. The index cache is updated after the store write and its
// failures never reject a request; the store stays the source of truth.
package paragraphs

import (
	"context"
	"log/slog"
	"time"

	"parasearch/internal/dictionary"
	"parasearch/internal/events"
	"parasearch/internal/fetcher"
	"parasearch/internal/index"
	"parasearch/internal/index/tokenizer"
	"parasearch/internal/ranking"
	"parasearch/internal/search"
	"parasearch/internal/store"
)

// defNotFound is returned in place of definitions we could not resolve.
const defNotFound = "Definition not found"

// StoreResult reports a stored paragraph and whether it made it into the
// index. Indexed=false means the index will lag until the next rebuild.
type StoreResult struct {
	Paragraph *store.Paragraph `json:"paragraph"`
	Indexed   bool             `json:"indexed"`
}

// SearchResult is the outcome of one search.
type SearchResult struct {
	Count      int               `json:"count"`
	Path       search.Path       `json:"path"`
	Paragraphs []store.Paragraph `json:"paragraphs"`
}

// RankedWord is a frequency-ranked word with its dictionary definitions.
type RankedWord struct {
	Word        string   `json:"word"`
	Frequency   int64    `json:"frequency"`
	Definitions []string `json:"definitions"`
}

// Service wires the collaborators together.
type Service struct {
	store     store.Store
	cache     *index.Cache
	engine    *search.Engine
	rank      *ranking.Reader
	fetcher   *fetcher.Client
	definer   dictionary.Definer
	collector *events.Collector
	topN      int
	logger    *slog.Logger
}

// New creates a Service. collector may be nil when the event stream is
// disabled.
func New(
	src store.Store,
	cache *index.Cache,
	engine *search.Engine,
	rankreader *ranking.Reader,
	fetch *fetcher.Client,
	definer dictionary.Definer,
	collector *events.Collector,
	topN int,
) *Service {
	if topN <= 0 {
		topN = 10
	}
	return &Service{
		store:     src,
		cache:     cache,
		engine:    engine,
		rank:      rankreader,
		fetcher:   fetch,
		definer:   definer,
		collector: collector,
		topN:      topN,
		logger:    slog.Default().With("component", "paragraph-service"),
	}
}

// FetchAndStore pulls a fresh paragraph from the generator, persists it, and
// indexes it.
func (s *Service) FetchAndStore(ctx context.Context) (*StoreResult, error) {
	content, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return s.StoreParagraph(ctx, content)
}

// StoreParagraph persists content and updates the index in real time. An
// index write failure is downgraded to a warning: the paragraph is accepted
// and the index self-heals on the next rebuild.
func (s *Service) StoreParagraph(ctx context.Context, content string) (*StoreResult, error) {
	p, err := s.store.Insert(ctx, content)
	if err != nil {
		return nil, err
	}

	indexed := true
	if err := s.cache.IndexDocument(ctx, p.ID, p.Content); err != nil {
		indexed = false
		s.logger.Warn("paragraph stored but not indexed",
			"paragraph_id", p.ID,
			"error", err,
		)
	}

	s.track(events.ParagraphStoredEvent{
		Type:        events.EventParagraphStored,
		ParagraphID: p.ID,
		Words:       len(tokenizer.Tokenize(p.Content)),
		SizeBytes:   len(p.Content),
		Indexed:     indexed,
		Timestamp:   time.Now().UTC(),
	})
	return &StoreResult{Paragraph: p, Indexed: indexed}, nil
}

// Search finds paragraphs matching words under rawOperator and fetches them
// from the store ordered by id. When a cache-path search finds nothing and
// the index turns out to be empty (lost cache), the index is rebuilt and the
// search retried once.
func (s *Service) Search(ctx context.Context, words []string, rawOperator string) (*SearchResult, error) {
	op, err := search.ParseOperator(rawOperator)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	ids, path, err := s.engine.Search(ctx, words, op)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 && path == search.PathCache {
		if empty, eerr := s.cache.Empty(ctx); eerr == nil && empty {
			if rerr := s.Rebuild(ctx); rerr != nil {
				s.logger.Warn("rebuild after empty index failed", "error", rerr)
			} else {
				ids, path, err = s.engine.Search(ctx, words, op)
				if err != nil {
					return nil, err
				}
			}
		}
	}

	result := &SearchResult{Path: path, Paragraphs: []store.Paragraph{}}
	if len(ids) > 0 {
		paragraphs, err := s.store.GetByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		result.Paragraphs = paragraphs
	}
	result.Count = len(result.Paragraphs)

	s.track(events.SearchEvent{
		Type:      events.EventSearch,
		Words:     words,
		Operator:  string(op),
		Path:      string(path),
		Hits:      result.Count,
		LatencyMs: time.Since(start).Milliseconds(),
		Timestamp: time.Now().UTC(),
	})
	return result, nil
}

// TopWords returns the n most frequent words with definitions, and the path
// that served the ranking. n<=0 uses the configured default. An empty index
// on the cache path triggers the same rebuild-once behaviour as Search.
func (s *Service) TopWords(ctx context.Context, n int) ([]RankedWord, search.Path, error) {
	if n <= 0 {
		n = s.topN
	}
	words, path, err := s.rank.TopFrequentWords(ctx, n)
	if err != nil {
		return nil, path, err
	}
	if len(words) == 0 && path == search.PathCache {
		if empty, eerr := s.cache.Empty(ctx); eerr == nil && empty {
			if rerr := s.Rebuild(ctx); rerr != nil {
				s.logger.Warn("rebuild after empty index failed", "error", rerr)
			} else {
				words, path, err = s.rank.TopFrequentWords(ctx, n)
				if err != nil {
					return nil, path, err
				}
			}
		}
	}

	ranked := make([]RankedWord, 0, len(words))
	for _, wc := range words {
		definitions, err := s.definer.Definitions(ctx, wc.Word)
		if err != nil {
			s.logger.Warn("definition lookup failed", "word", wc.Word, "error", err)
			definitions = nil
		}
		if len(definitions) == 0 {
			definitions = []string{defNotFound}
		}
		ranked = append(ranked, RankedWord{
			Word:        wc.Word,
			Frequency:   wc.Count,
			Definitions: definitions,
		})
	}
	return ranked, path, nil
}

// Rebuild reconstructs the whole index from the store.
func (s *Service) Rebuild(ctx context.Context) error {
	start := time.Now()
	if err := s.cache.Rebuild(ctx, s.store); err != nil {
		return err
	}
	count, err := s.store.Count(ctx)
	if err != nil {
		s.logger.Warn("counting paragraphs after rebuild failed", "error", err)
		count = -1
	}
	s.track(events.RebuildEvent{
		Type:       events.EventRebuild,
		Paragraphs: count,
		DurationMs: time.Since(start).Milliseconds(),
		Timestamp:  time.Now().UTC(),
	})
	return nil
}

// EnsureIndex rebuilds at startup when the cache is reachable but holds no
// data (first boot, or the cache was flushed while the service was down).
func (s *Service) EnsureIndex(ctx context.Context) error {
	if !s.cache.IsAvailable(ctx) {
		s.logger.Warn("index cache unreachable at startup, serving from store scans until it recovers")
		return nil
	}
	empty, err := s.cache.Empty(ctx)
	if err != nil {
		return err
	}
	if !empty {
		return nil
	}
	s.logger.Info("index cache empty, rebuilding from store")
	return s.Rebuild(ctx)
}

// Status reports current index health and size.
type Status struct {
	CacheAvailable bool        `json:"cache_available"`
	Paragraphs     int64       `json:"paragraphs"`
	Index          index.Stats `json:"index"`
}

// Status gathers store and index figures for the status endpoint.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	status := &Status{CacheAvailable: s.cache.IsAvailable(ctx)}
	count, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	status.Paragraphs = count
	if status.CacheAvailable {
		stats, err := s.cache.IndexStats(ctx)
		if err != nil {
			s.logger.Warn("reading index stats failed", "error", err)
			status.CacheAvailable = s.cache.Available()
		} else {
			status.Index = stats
		}
	}
	return status, nil
}

// CacheAvailable exposes the last observed cache availability.
func (s *Service) CacheAvailable() bool {
	return s.cache.Available()
}

func (s *Service) track(event interface{}) {
	if s.collector != nil {
		s.collector.Track(event)
	}
}
