package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"parasearch/pkg/config"
	apperrors "parasearch/pkg/errors"
)

func newTestClient(url string) *Client {
	return New(config.SourcesConfig{
		ParagraphURL:   url,
		RequestTimeout: time.Second,
	})
}

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("  A paragraph about nothing in particular.\n"))
	}))
	defer server.Close()

	text, err := newTestClient(server.URL).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if text != "A paragraph about nothing in particular." {
		t.Errorf("text = %q, want trimmed paragraph", text)
	}
}

func TestFetchUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Fetch(context.Background())
	if !errors.Is(err, apperrors.ErrSourceUnavailable) {
		t.Errorf("error = %v, want ErrSourceUnavailable", err)
	}
}

func TestFetchEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("   \n  "))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Fetch(context.Background())
	if !errors.Is(err, apperrors.ErrSourceUnavailable) {
		t.Errorf("error = %v, want ErrSourceUnavailable", err)
	}
}

func TestFetchUnreachableSource(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:1").Fetch(context.Background())
	if !errors.Is(err, apperrors.ErrSourceUnavailable) {
		t.Errorf("error = %v, want ErrSourceUnavailable", err)
	}
}
