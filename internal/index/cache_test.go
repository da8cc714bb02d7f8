package index

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"parasearch/internal/index/indextest"
	"parasearch/pkg/config"
	apperrors "parasearch/pkg/errors"
)

var _ Backend = (*indextest.MemBackend)(nil)

func newTestCache(backend Backend) *Cache {
	return New(backend, config.IndexConfig{
		WriteAttempts:  2,
		WriteBackoff:   time.Millisecond,
		RebuildWorkers: 2,
	}, time.Second)
}

func TestIndexDocumentAccumulatesFrequencies(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(indextest.NewMemBackend())

	if err := cache.IndexDocument(ctx, 1, "the cat the dog"); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	if err := cache.IndexDocument(ctx, 2, "the bird"); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}

	freq, err := cache.WordFrequency(ctx, "the")
	if err != nil {
		t.Fatalf("WordFrequency: %v", err)
	}
	if freq != 3 {
		t.Errorf("frequency of %q = %d, want 3", "the", freq)
	}

	ids, err := cache.LookupOR(ctx, []string{"the"})
	if err != nil {
		t.Fatalf("LookupOR: %v", err)
	}
	if !reflect.DeepEqual(ids, []int64{1, 2}) {
		t.Errorf("posting set for %q = %v, want [1 2]", "the", ids)
	}
}

func TestIndexDocumentEmptyText(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(indextest.NewMemBackend())

	if err := cache.IndexDocument(ctx, 1, "! ? a"); err != nil {
		t.Fatalf("IndexDocument on unindexable text: %v", err)
	}
	empty, err := cache.Empty(ctx)
	if err != nil {
		t.Fatalf("Empty: %v", err)
	}
	if !empty {
		t.Error("index should remain empty after unindexable document")
	}
}

func seedCorpus(t *testing.T, cache *Cache) {
	t.Helper()
	ctx := context.Background()
	corpus := map[int64]string{
		1: "red fox",
		2: "blue fox",
		3: "red dog",
	}
	for id, text := range corpus {
		if err := cache.IndexDocument(ctx, id, text); err != nil {
			t.Fatalf("IndexDocument(%d): %v", id, err)
		}
	}
}

func TestLookupSetAlgebra(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(indextest.NewMemBackend())
	seedCorpus(t, cache)

	tests := []struct {
		name  string
		words []string
		and   bool
		want  []int64
	}{
		{"and intersection", []string{"red", "fox"}, true, []int64{1}},
		{"or union", []string{"red", "fox"}, false, []int64{1, 2, 3}},
		{"and with missing word", []string{"red", "cat"}, true, nil},
		{"or with missing word", []string{"dog", "cat"}, false, []int64{3}},
		{"and with unindexable word", []string{"red", "!"}, true, nil},
		{"or skips unindexable word", []string{"!", "red"}, false, []int64{1, 3}},
		{"case folding", []string{"RED"}, false, []int64{1, 3}},
		{"no words", nil, false, nil},
		{"only unindexable words", []string{"!", "a"}, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				ids []int64
				err error
			)
			if tt.and {
				ids, err = cache.LookupAND(ctx, tt.words)
			} else {
				ids, err = cache.LookupOR(ctx, tt.words)
			}
			if err != nil {
				t.Fatalf("lookup: %v", err)
			}
			if len(ids) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(ids, tt.want) {
				t.Errorf("lookup(%v) = %v, want %v", tt.words, ids, tt.want)
			}
		})
	}
}

func TestTopWordsDeterministicTieOrder(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(indextest.NewMemBackend())

	// zebra, apple and mango all end up with frequency 2; the ranking must
	// order them lexically, not in the backend's reverse-lex tie order.
	docs := map[int64]string{
		1: "common common common zebra apple",
		2: "common zebra apple mango",
		3: "mango",
	}
	for id, text := range docs {
		if err := cache.IndexDocument(ctx, id, text); err != nil {
			t.Fatalf("IndexDocument(%d): %v", id, err)
		}
	}

	top, err := cache.TopWords(ctx, 3)
	if err != nil {
		t.Fatalf("TopWords: %v", err)
	}
	want := []WordCount{
		{Word: "common", Count: 4},
		{Word: "apple", Count: 2},
		{Word: "mango", Count: 2},
	}
	if !reflect.DeepEqual(top, want) {
		t.Errorf("TopWords(3) = %v, want %v", top, want)
	}

	// All tied members must appear when n covers them.
	top, err = cache.TopWords(ctx, 4)
	if err != nil {
		t.Fatalf("TopWords: %v", err)
	}
	want = append(want, WordCount{Word: "zebra", Count: 2})
	if !reflect.DeepEqual(top, want) {
		t.Errorf("TopWords(4) = %v, want %v", top, want)
	}
}

func TestTopWordsEdgeCases(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(indextest.NewMemBackend())

	top, err := cache.TopWords(ctx, 0)
	if err != nil || top != nil {
		t.Errorf("TopWords(0) = %v, %v, want nil, nil", top, err)
	}

	top, err = cache.TopWords(ctx, 5)
	if err != nil {
		t.Fatalf("TopWords on empty index: %v", err)
	}
	if len(top) != 0 {
		t.Errorf("TopWords on empty index = %v, want empty", top)
	}

	if err := cache.IndexDocument(ctx, 1, "only words here"); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	top, err = cache.TopWords(ctx, 10)
	if err != nil {
		t.Fatalf("TopWords: %v", err)
	}
	if len(top) != 3 {
		t.Errorf("TopWords(10) returned %d entries, want 3", len(top))
	}
}

func TestIndexDocumentRetriesTransientFailure(t *testing.T) {
	ctx := context.Background()
	backend := indextest.NewMemBackend()
	cache := newTestCache(backend)

	backend.FailWrites(1)
	if err := cache.IndexDocument(ctx, 1, "persistent words"); err != nil {
		t.Fatalf("IndexDocument should succeed on retry: %v", err)
	}

	// The write must have been applied exactly once.
	freq, err := cache.WordFrequency(ctx, "persistent")
	if err != nil {
		t.Fatalf("WordFrequency: %v", err)
	}
	if freq != 1 {
		t.Errorf("frequency after retried write = %d, want 1", freq)
	}
}

func TestIndexDocumentExhaustedRetries(t *testing.T) {
	ctx := context.Background()
	backend := indextest.NewMemBackend()
	cache := newTestCache(backend)

	backend.FailWrites(5)
	err := cache.IndexDocument(ctx, 1, "doomed words")
	if !errors.Is(err, apperrors.ErrCacheUnavailable) {
		t.Fatalf("error = %v, want ErrCacheUnavailable", err)
	}
	if cache.Available() {
		t.Error("cache should be marked unavailable after exhausted retries")
	}

	// Nothing from the failed write may be visible.
	backend.FailWrites(0)
	freq, err := cache.WordFrequency(ctx, "doomed")
	if err != nil {
		t.Fatalf("WordFrequency: %v", err)
	}
	if freq != 0 {
		t.Errorf("failed write leaked state: frequency = %d, want 0", freq)
	}
	if !cache.Available() {
		t.Error("successful operation should mark the cache available again")
	}
}

func TestAvailabilityProbe(t *testing.T) {
	ctx := context.Background()
	backend := indextest.NewMemBackend()
	cache := newTestCache(backend)

	if !cache.IsAvailable(ctx) {
		t.Fatal("healthy backend should probe available")
	}

	backend.SetDown(true)
	if cache.IsAvailable(ctx) {
		t.Fatal("downed backend should probe unavailable")
	}
	if cache.Available() {
		t.Error("availability flag should reflect the failed probe")
	}

	backend.SetDown(false)
	if !cache.IsAvailable(ctx) {
		t.Fatal("recovered backend should probe available")
	}
	if !cache.Available() {
		t.Error("availability flag should reflect the recovery")
	}
}

func TestRebuildReplacesStaleState(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(indextest.NewMemBackend())

	// Stale state from paragraphs that no longer exist.
	if err := cache.IndexDocument(ctx, 99, "stale leftover words"); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}

	src := indextest.NewMemStore("red fox", "blue fox", "red dog")
	if err := cache.Rebuild(ctx, src); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	freq, err := cache.WordFrequency(ctx, "stale")
	if err != nil {
		t.Fatalf("WordFrequency: %v", err)
	}
	if freq != 0 {
		t.Error("rebuild should discard stale entries")
	}

	ids, err := cache.LookupAND(ctx, []string{"red", "fox"})
	if err != nil {
		t.Fatalf("LookupAND: %v", err)
	}
	if !reflect.DeepEqual(ids, []int64{1}) {
		t.Errorf("post-rebuild AND lookup = %v, want [1]", ids)
	}
}

func TestRebuildIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(indextest.NewMemBackend())

	src := indextest.NewMemStore()
	for i := 0; i < 20; i++ {
		if _, err := src.Insert(ctx, fmt.Sprintf("paragraph number %d has shared words", i)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	if err := cache.Rebuild(ctx, src); err != nil {
		t.Fatalf("first Rebuild: %v", err)
	}
	first, err := cache.WordFrequency(ctx, "shared")
	if err != nil {
		t.Fatalf("WordFrequency: %v", err)
	}

	if err := cache.Rebuild(ctx, src); err != nil {
		t.Fatalf("second Rebuild: %v", err)
	}
	second, err := cache.WordFrequency(ctx, "shared")
	if err != nil {
		t.Fatalf("WordFrequency: %v", err)
	}

	if first != second || first != 20 {
		t.Errorf("frequencies diverged across rebuilds: %d then %d, want 20", first, second)
	}
}

func TestIndexDocumentOrderCommutes(t *testing.T) {
	ctx := context.Background()
	docs := map[int64]string{
		1: "the red fox the fox",
		2: "the blue dog",
		3: "red dog red",
	}
	words := []string{"the", "red", "fox", "blue", "dog"}
	orders := [][]int64{{1, 2, 3}, {3, 2, 1}, {2, 3, 1}}

	// Postings are sets and frequencies are sums, so every indexing order
	// must converge to the same index.
	var wantTop []WordCount
	var wantPostings map[string][]int64
	for i, order := range orders {
		cache := newTestCache(indextest.NewMemBackend())
		for _, id := range order {
			if err := cache.IndexDocument(ctx, id, docs[id]); err != nil {
				t.Fatalf("IndexDocument(%d): %v", id, err)
			}
		}

		top, err := cache.TopWords(ctx, 10)
		if err != nil {
			t.Fatalf("TopWords: %v", err)
		}
		postings := make(map[string][]int64, len(words))
		for _, w := range words {
			ids, err := cache.LookupOR(ctx, []string{w})
			if err != nil {
				t.Fatalf("LookupOR(%q): %v", w, err)
			}
			postings[w] = ids
		}

		if i == 0 {
			wantTop, wantPostings = top, postings
			continue
		}
		if !reflect.DeepEqual(top, wantTop) {
			t.Errorf("order %v: TopWords = %v, want %v", order, top, wantTop)
		}
		if !reflect.DeepEqual(postings, wantPostings) {
			t.Errorf("order %v: postings = %v, want %v", order, postings, wantPostings)
		}
	}
}

func TestRebuildReportsReplayFailure(t *testing.T) {
	ctx := context.Background()
	backend := indextest.NewMemBackend()
	cache := newTestCache(backend)

	src := indextest.NewMemStore("red fox", "blue fox", "red dog")
	backend.FailWrites(100)

	// The failing index write is the root cause; the cancellation it forces
	// on the store scan must not mask it.
	err := cache.Rebuild(ctx, src)
	if !errors.Is(err, apperrors.ErrCacheUnavailable) {
		t.Fatalf("Rebuild error = %v, want ErrCacheUnavailable", err)
	}
}

func TestClearAndEmpty(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(indextest.NewMemBackend())
	seedCorpus(t, cache)

	empty, err := cache.Empty(ctx)
	if err != nil {
		t.Fatalf("Empty: %v", err)
	}
	if empty {
		t.Fatal("seeded index should not be empty")
	}

	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	empty, err = cache.Empty(ctx)
	if err != nil {
		t.Fatalf("Empty: %v", err)
	}
	if !empty {
		t.Error("cleared index should be empty")
	}

	ids, err := cache.LookupOR(ctx, []string{"red"})
	if err != nil {
		t.Fatalf("LookupOR: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("lookup after clear = %v, want empty", ids)
	}
}

func TestIndexStats(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(indextest.NewMemBackend())
	seedCorpus(t, cache)

	stats, err := cache.IndexStats(ctx)
	if err != nil {
		t.Fatalf("IndexStats: %v", err)
	}
	// Corpus words: red{1,3} fox{1,2} blue{2} dog{3}.
	if stats.UniqueWords != 4 {
		t.Errorf("UniqueWords = %d, want 4", stats.UniqueWords)
	}
	if stats.Mappings != 6 {
		t.Errorf("Mappings = %d, want 6", stats.Mappings)
	}
	if stats.AvgPerWord != 1.5 {
		t.Errorf("AvgPerWord = %v, want 1.5", stats.AvgPerWord)
	}
}

func TestSortRanking(t *testing.T) {
	entries := []WordCount{
		{Word: "banana", Count: 2},
		{Word: "apple", Count: 2},
		{Word: "cherry", Count: 5},
	}
	SortRanking(entries)
	want := []WordCount{
		{Word: "cherry", Count: 5},
		{Word: "apple", Count: 2},
		{Word: "banana", Count: 2},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("SortRanking = %v, want %v", entries, want)
	}
}
