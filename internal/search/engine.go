// Package search evaluates multi-word AND/OR queries. Each call resolves to
// one of two strategies with identical contracts: a lookup against the index
// cache, or a full scan of the authoritative store when the cache is
// unavailable. Both return the same id set for the same corpus state.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"parasearch/internal/index"
	"parasearch/internal/index/tokenizer"
	"parasearch/internal/store"
	apperrors "parasearch/pkg/errors"
)

// Operator combines multiple query words.
type Operator string

const (
	OperatorAND Operator = "and"
	OperatorOR  Operator = "or"
)

// ParseOperator validates a user-supplied operator string.
func ParseOperator(s string) (Operator, error) {
	switch Operator(strings.ToLower(strings.TrimSpace(s))) {
	case OperatorAND:
		return OperatorAND, nil
	case OperatorOR:
		return OperatorOR, nil
	default:
		return "", apperrors.Newf(apperrors.ErrInvalidQuery, 400, "operator must be %q or %q", OperatorAND, OperatorOR)
	}
}

// Path identifies which strategy served a query.
type Path string

const (
	PathCache Path = "cache"
	PathScan  Path = "scan"
)

// finder is the contract both strategies implement.
type finder interface {
	find(ctx context.Context, words []string, op Operator) ([]int64, error)
}

// Engine resolves each search to the cache path or the scan path.
type Engine struct {
	cache  *index.Cache
	scan   finder
	logger *slog.Logger
}

// NewEngine creates a query engine over the index cache and the
// authoritative store.
func NewEngine(cache *index.Cache, src store.Store) *Engine {
	return &Engine{
		cache:  cache,
		scan:   &scanFinder{src: src},
		logger: slog.Default().With("component", "search-engine"),
	}
}

// Search returns the ids of paragraphs matching words under op, and the path
// that produced them. Empty input (or input where no word survives
// normalisation, for OR) yields the empty set for both operators; there is
// no implicit match-everything. Cache errors are absorbed by degrading to
// the scan path; only store errors propagate.
func (e *Engine) Search(ctx context.Context, words []string, op Operator) ([]int64, Path, error) {
	if op != OperatorAND && op != OperatorOR {
		return nil, "", apperrors.Newf(apperrors.ErrInvalidQuery, 400, "unsupported operator %q", op)
	}
	if len(words) == 0 {
		return nil, PathCache, nil
	}

	if e.cache.IsAvailable(ctx) {
		ids, err := (&cacheFinder{cache: e.cache}).find(ctx, words, op)
		if err == nil {
			return ids, PathCache, nil
		}
		e.logger.Warn("cache lookup failed, degrading to store scan", "error", err)
	}

	ids, err := e.scan.find(ctx, words, op)
	if err != nil {
		return nil, PathScan, fmt.Errorf("scan search: %w", err)
	}
	return ids, PathScan, nil
}

// cacheFinder serves queries from the inverted index.
type cacheFinder struct {
	cache *index.Cache
}

func (f *cacheFinder) find(ctx context.Context, words []string, op Operator) ([]int64, error) {
	if op == OperatorAND {
		return f.cache.LookupAND(ctx, words)
	}
	return f.cache.LookupOR(ctx, words)
}

// scanFinder serves queries by tokenizing every stored paragraph and testing
// it against the normalised query words.
type scanFinder struct {
	src store.Store
}

func (f *scanFinder) find(ctx context.Context, words []string, op Operator) ([]int64, error) {
	normalized := make([]string, 0, len(words))
	for _, w := range words {
		norm := tokenizer.NormalizeWord(w)
		if norm == "" {
			// A word that normalises away occurs in zero paragraphs: it can
			// never satisfy AND, and contributes nothing to OR.
			if op == OperatorAND {
				return nil, nil
			}
			continue
		}
		normalized = append(normalized, norm)
	}
	if len(normalized) == 0 {
		return nil, nil
	}

	var ids []int64
	err := f.src.ScanAll(ctx, func(p store.Paragraph) error {
		if matches(tokenizer.UniqueSet(p.Content), normalized, op) {
			ids = append(ids, p.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func matches(wordSet map[string]struct{}, words []string, op Operator) bool {
	for _, w := range words {
		_, ok := wordSet[w]
		if op == OperatorOR && ok {
			return true
		}
		if op == OperatorAND && !ok {
			return false
		}
	}
	return op == OperatorAND
}
