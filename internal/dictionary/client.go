// Package dictionary looks up word definitions from dictionaryapi.dev and
// caches them in Redis, since the top-frequency words barely change between
// requests.
package dictionary

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"parasearch/pkg/config"
)

// Definer resolves a word to its definitions. An unknown word yields
// (nil, nil), not an error.
type Definer interface {
	Definitions(ctx context.Context, word string) ([]string, error)
}

// Client calls the dictionary API directly.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// entry mirrors the fragment of the dictionaryapi.dev response we consume.
type entry struct {
	Meanings []struct {
		Definitions []struct {
			Definition string `json:"definition"`
		} `json:"definitions"`
	} `json:"meanings"`
}

// NewClient creates a dictionary API client.
func NewClient(cfg config.SourcesConfig) *Client {
	return &Client{
		baseURL: cfg.DictionaryURL,
		http: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: slog.Default().With("component", "dictionary-client"),
	}
}

// Definitions fetches every definition across all meanings of word.
func (c *Client) Definitions(ctx context.Context, word string) ([]string, error) {
	reqURL := fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(word))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching definition for %q: %w", word, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dictionary API returned status %d for %q", resp.StatusCode, word)
	}

	var entries []entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding definition response for %q: %w", word, err)
	}
	var definitions []string
	if len(entries) > 0 {
		for _, meaning := range entries[0].Meanings {
			for _, def := range meaning.Definitions {
				if def.Definition != "" {
					definitions = append(definitions, def.Definition)
				}
			}
		}
	}
	return definitions, nil
}
