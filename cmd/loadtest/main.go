// Command loadtest drives the paragraph search service with a mixed
// fetch/search/dictionary workload and reports latency percentiles.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	FetchRatio  int
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
	pathCounts    map[string]*atomic.Int64
	pathCountsMu  sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
		pathCounts:  make(map[string]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

func (s *Stats) RecordPath(path string) {
	if path == "" {
		return
	}
	s.pathCountsMu.Lock()
	if _, ok := s.pathCounts[path]; !ok {
		s.pathCounts[path] = &atomic.Int64{}
	}
	s.pathCounts[path].Add(1)
	s.pathCountsMu.Unlock()
}

type searchRequest struct {
	Words    []string `json:"words"`
	Operator string   `json:"operator"`
}

type searchResponse struct {
	Path string `json:"path"`
}

var searchQueries = []searchRequest{
	{Words: []string{"the", "and"}, Operator: "or"},
	{Words: []string{"paragraph", "sentence"}, Operator: "and"},
	{Words: []string{"time", "world"}, Operator: "or"},
	{Words: []string{"people", "place"}, Operator: "and"},
	{Words: []string{"first", "last", "only"}, Operator: "or"},
	{Words: []string{"something", "nothing"}, Operator: "or"},
	{Words: []string{"house", "water"}, Operator: "and"},
	{Words: []string{"little", "great"}, Operator: "or"},
	{Words: []string{"thought", "found"}, Operator: "and"},
	{Words: []string{"before", "after"}, Operator: "or"},
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the paragraph service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	fetchRatio := flag.Int("fetch-ratio", 10, "issue one fetch per this many requests")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		FetchRatio:  *fetchRatio,
	}

	fmt.Println("=== Paragraph Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Fetch ratio: 1/%d\n", cfg.FetchRatio)
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			iter := workerID

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				switch {
				case cfg.FetchRatio > 0 && iter%cfg.FetchRatio == 0:
					doFetch(ctx, client, cfg.BaseURL, stats)
				case iter%5 == 4:
					doDictionary(ctx, client, cfg.BaseURL, stats)
				default:
					doSearch(ctx, client, cfg.BaseURL, stats, searchQueries[iter%len(searchQueries)])
				}
				iter++
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func doFetch(ctx context.Context, client *http.Client, baseURL string, stats *Stats) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/fetch", nil)
	if err != nil {
		stats.RecordRequest(0, 0, err)
		return
	}
	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		stats.RecordRequest(duration, 0, err)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	stats.RecordRequest(duration, resp.StatusCode, nil)
}

func doSearch(ctx context.Context, client *http.Client, baseURL string, stats *Stats, query searchRequest) {
	body, err := json.Marshal(query)
	if err != nil {
		stats.RecordRequest(0, 0, err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		stats.RecordRequest(0, 0, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		stats.RecordRequest(duration, 0, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var parsed searchResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err == nil {
			stats.RecordPath(parsed.Path)
		}
	}
	io.Copy(io.Discard, resp.Body)
	stats.RecordRequest(duration, resp.StatusCode, nil)
}

func doDictionary(ctx context.Context, client *http.Client, baseURL string, stats *Stats) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/dictionary?n=10", nil)
	if err != nil {
		stats.RecordRequest(0, 0, err)
		return
	}
	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		stats.RecordRequest(duration, 0, err)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	stats.RecordRequest(duration, resp.StatusCode, nil)
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Println()
	fmt.Println("=== Search Paths ===")
	stats.pathCountsMu.Lock()
	paths := make([]string, 0, len(stats.pathCounts))
	for path := range stats.pathCounts {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		fmt.Printf("  %s: %d\n", path, stats.pathCounts[path].Load())
	}
	stats.pathCountsMu.Unlock()

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		count := stats.statusCodes[code].Load()
		fmt.Printf("  %d: %d\n", code, count)
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
