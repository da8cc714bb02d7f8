package ranking

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"parasearch/internal/index"
	"parasearch/internal/index/indextest"
	"parasearch/internal/search"
	"parasearch/pkg/config"
	apperrors "parasearch/pkg/errors"
)

func newTestReader(t *testing.T) (*Reader, *indextest.MemBackend, *indextest.MemStore) {
	t.Helper()
	backend := indextest.NewMemBackend()
	cache := index.New(backend, config.IndexConfig{
		WriteAttempts: 1,
		WriteBackoff:  time.Millisecond,
	}, time.Second)
	src := indextest.NewMemStore(
		"apple apple apple banana",
		"banana cherry apple",
		"cherry banana",
	)
	if err := cache.Rebuild(context.Background(), src); err != nil {
		t.Fatalf("seeding index: %v", err)
	}
	return NewReader(cache, src), backend, src
}

// apple=4 banana=3 cherry=2 in both paths.
var wantRanking = []index.WordCount{
	{Word: "apple", Count: 4},
	{Word: "banana", Count: 3},
	{Word: "cherry", Count: 2},
}

func TestTopFrequentWordsCachePath(t *testing.T) {
	reader, _, _ := newTestReader(t)

	words, path, err := reader.TopFrequentWords(context.Background(), 3)
	if err != nil {
		t.Fatalf("TopFrequentWords: %v", err)
	}
	if path != search.PathCache {
		t.Errorf("path = %q, want %q", path, search.PathCache)
	}
	if !reflect.DeepEqual(words, wantRanking) {
		t.Errorf("ranking = %v, want %v", words, wantRanking)
	}
}

func TestTopFrequentWordsScanPath(t *testing.T) {
	reader, backend, _ := newTestReader(t)
	backend.SetDown(true)

	words, path, err := reader.TopFrequentWords(context.Background(), 3)
	if err != nil {
		t.Fatalf("TopFrequentWords: %v", err)
	}
	if path != search.PathScan {
		t.Errorf("path = %q, want %q", path, search.PathScan)
	}
	if !reflect.DeepEqual(words, wantRanking) {
		t.Errorf("scan ranking = %v, want %v", words, wantRanking)
	}
}

func TestTopFrequentWordsTruncates(t *testing.T) {
	reader, _, _ := newTestReader(t)

	words, _, err := reader.TopFrequentWords(context.Background(), 1)
	if err != nil {
		t.Fatalf("TopFrequentWords: %v", err)
	}
	if !reflect.DeepEqual(words, wantRanking[:1]) {
		t.Errorf("ranking = %v, want %v", words, wantRanking[:1])
	}
}

func TestTopFrequentWordsZeroN(t *testing.T) {
	reader, _, _ := newTestReader(t)

	words, _, err := reader.TopFrequentWords(context.Background(), 0)
	if err != nil || words != nil {
		t.Errorf("TopFrequentWords(0) = %v, %v, want nil, nil", words, err)
	}
}

func TestTopFrequentWordsStoreErrorPropagates(t *testing.T) {
	reader, backend, src := newTestReader(t)
	backend.SetDown(true)
	src.SetDown(true)

	_, _, err := reader.TopFrequentWords(context.Background(), 3)
	if !errors.Is(err, apperrors.ErrStoreUnavailable) {
		t.Errorf("error = %v, want ErrStoreUnavailable", err)
	}
}
