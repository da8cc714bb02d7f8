package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"parasearch/internal/dictionary"
	"parasearch/internal/fetcher"
	"parasearch/internal/index"
	"parasearch/internal/index/indextest"
	"parasearch/internal/paragraphs"
	"parasearch/internal/ranking"
	"parasearch/internal/search"
	"parasearch/pkg/config"
)

type stubDefiner struct {
	defs map[string][]string
}

func (s *stubDefiner) Definitions(ctx context.Context, word string) ([]string, error) {
	return s.defs[word], nil
}

var _ dictionary.Definer = (*stubDefiner)(nil)

type testEnv struct {
	server  *httptest.Server
	backend *indextest.MemBackend
	src     *indextest.MemStore
}

// newTestEnv wires the full handler stack over in-memory fakes, with an
// httptest server standing in for the paragraph generator.
func newTestEnv(t *testing.T, fetchPerMinute int, contents ...string) *testEnv {
	t.Helper()
	ctx := context.Background()

	backend := indextest.NewMemBackend()
	cache := index.New(backend, config.IndexConfig{
		WriteAttempts: 1,
		WriteBackoff:  time.Millisecond,
	}, time.Second)
	src := indextest.NewMemStore(contents...)
	if err := cache.Rebuild(ctx, src); err != nil {
		t.Fatalf("seeding index: %v", err)
	}

	generator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("freshly generated paragraph text"))
	}))
	t.Cleanup(generator.Close)

	fetchClient := fetcher.New(config.SourcesConfig{
		ParagraphURL:   generator.URL,
		RequestTimeout: time.Second,
	})
	definer := &stubDefiner{defs: map[string][]string{
		"red": {"a warm color"},
		"fox": {"a small wild canine"},
	}}

	svc := paragraphs.New(src, cache,
		search.NewEngine(cache, src),
		ranking.NewReader(cache, src),
		fetchClient, definer, nil, 10,
	)

	mux := http.NewServeMux()
	New(svc, nil, fetchPerMinute).Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testEnv{server: server, backend: backend, src: src}
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func postSearch(t *testing.T, env *testEnv, req SearchRequest) *http.Response {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	resp, err := http.Post(env.server.URL+"/search", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /search: %v", err)
	}
	return resp
}

func TestFetchStoresAndIndexes(t *testing.T) {
	env := newTestEnv(t, 0)

	resp, err := http.Get(env.server.URL + "/fetch")
	if err != nil {
		t.Fatalf("GET /fetch: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var result paragraphs.StoreResult
	decodeBody(t, resp, &result)
	if result.Paragraph == nil || result.Paragraph.ID == 0 {
		t.Fatal("expected a stored paragraph with an id")
	}
	if !result.Indexed {
		t.Error("paragraph should have been indexed in real time")
	}

	// The new paragraph must be searchable immediately.
	resp = postSearch(t, env, SearchRequest{Words: []string{"freshly", "generated"}, Operator: "and"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search status = %d, want 200", resp.StatusCode)
	}
	var found paragraphs.SearchResult
	decodeBody(t, resp, &found)
	if found.Count != 1 {
		t.Errorf("search hits = %d, want 1", found.Count)
	}
}

func TestFetchAcceptedWhenIndexWriteFails(t *testing.T) {
	env := newTestEnv(t, 0)
	env.backend.SetDown(true)

	resp, err := http.Get(env.server.URL + "/fetch")
	if err != nil {
		t.Fatalf("GET /fetch: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var result paragraphs.StoreResult
	decodeBody(t, resp, &result)
	if result.Indexed {
		t.Error("indexed should be false when the index write fails")
	}
}

func TestFetchRateLimit(t *testing.T) {
	env := newTestEnv(t, 2)

	for i := 0; i < 2; i++ {
		resp, err := http.Get(env.server.URL + "/fetch")
		if err != nil {
			t.Fatalf("GET /fetch: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, resp.StatusCode)
		}
	}

	resp, err := http.Get(env.server.URL + "/fetch")
	if err != nil {
		t.Fatalf("GET /fetch: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
}

func TestSearchValidation(t *testing.T) {
	env := newTestEnv(t, 0, "red fox")

	tests := []struct {
		name string
		req  SearchRequest
	}{
		{"no words", SearchRequest{Operator: "and"}},
		{"blank word", SearchRequest{Words: []string{" "}, Operator: "and"}},
		{"no operator", SearchRequest{Words: []string{"red"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postSearch(t, env, tt.req)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestSearchInvalidOperator(t *testing.T) {
	env := newTestEnv(t, 0, "red fox")

	resp := postSearch(t, env, SearchRequest{Words: []string{"red"}, Operator: "nand"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSearchInvalidJSON(t *testing.T) {
	env := newTestEnv(t, 0)

	resp, err := http.Post(env.server.URL+"/search", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("POST /search: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSearchServesCacheAndScanPaths(t *testing.T) {
	env := newTestEnv(t, 0, "red fox", "blue fox", "red dog")

	resp := postSearch(t, env, SearchRequest{Words: []string{"red", "fox"}, Operator: "or"})
	var fromCache paragraphs.SearchResult
	decodeBody(t, resp, &fromCache)
	if fromCache.Path != search.PathCache {
		t.Errorf("path = %q, want %q", fromCache.Path, search.PathCache)
	}
	if fromCache.Count != 3 {
		t.Errorf("hits = %d, want 3", fromCache.Count)
	}

	env.backend.SetDown(true)
	resp = postSearch(t, env, SearchRequest{Words: []string{"red", "fox"}, Operator: "or"})
	var fromScan paragraphs.SearchResult
	decodeBody(t, resp, &fromScan)
	if fromScan.Path != search.PathScan {
		t.Errorf("path = %q, want %q", fromScan.Path, search.PathScan)
	}
	if fromScan.Count != fromCache.Count {
		t.Errorf("scan path found %d hits, cache path found %d", fromScan.Count, fromCache.Count)
	}
}

func TestSearchStoreDownReturns503(t *testing.T) {
	env := newTestEnv(t, 0, "red fox")
	env.backend.SetDown(true)
	env.src.SetDown(true)

	resp := postSearch(t, env, SearchRequest{Words: []string{"red"}, Operator: "or"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestDictionaryEndpoint(t *testing.T) {
	env := newTestEnv(t, 0, "red red fox")

	resp, err := http.Get(env.server.URL + "/dictionary?n=2")
	if err != nil {
		t.Fatalf("GET /dictionary: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body DictionaryResponse
	decodeBody(t, resp, &body)
	if len(body.TopWords) != 2 {
		t.Fatalf("top words = %d, want 2", len(body.TopWords))
	}
	if body.TopWords[0].Word != "red" || body.TopWords[0].Frequency != 2 {
		t.Errorf("first word = %+v, want red with frequency 2", body.TopWords[0])
	}
	if len(body.TopWords[0].Definitions) == 0 || body.TopWords[0].Definitions[0] != "a warm color" {
		t.Errorf("definitions = %v, want stubbed definition", body.TopWords[0].Definitions)
	}
	// fox has a stubbed definition too; unknown words get the fallback text.
	if body.TopWords[1].Word != "fox" {
		t.Errorf("second word = %q, want fox", body.TopWords[1].Word)
	}
}

func TestDictionaryFallbackDefinition(t *testing.T) {
	env := newTestEnv(t, 0, "obscureword obscureword")

	resp, err := http.Get(env.server.URL + "/dictionary")
	if err != nil {
		t.Fatalf("GET /dictionary: %v", err)
	}
	var body DictionaryResponse
	decodeBody(t, resp, &body)
	if len(body.TopWords) != 1 {
		t.Fatalf("top words = %d, want 1", len(body.TopWords))
	}
	defs := body.TopWords[0].Definitions
	if len(defs) != 1 || defs[0] != "Definition not found" {
		t.Errorf("definitions = %v, want the not-found fallback", defs)
	}
}

func TestDictionaryRejectsBadN(t *testing.T) {
	env := newTestEnv(t, 0)

	for _, n := range []string{"0", "-3", "abc"} {
		resp, err := http.Get(env.server.URL + "/dictionary?n=" + n)
		if err != nil {
			t.Fatalf("GET /dictionary: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("n=%s status = %d, want 400", n, resp.StatusCode)
		}
	}
}

func TestRebuildEndpoint(t *testing.T) {
	env := newTestEnv(t, 0, "red fox")

	resp, err := http.Post(env.server.URL+"/rebuild", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /rebuild: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, 0, "red fox", "blue dog")

	resp, err := http.Get(env.server.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body paragraphs.Status
	decodeBody(t, resp, &body)
	if !body.CacheAvailable {
		t.Error("cache should be available")
	}
	if body.Paragraphs != 2 {
		t.Errorf("paragraphs = %d, want 2", body.Paragraphs)
	}
	if body.Index.UniqueWords != 4 {
		t.Errorf("unique words = %d, want 4", body.Index.UniqueWords)
	}
}
