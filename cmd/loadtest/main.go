// Command loadtest drives concurrent candidate lookups against a running
// search service and reports latency, status codes and the mix of plan kinds
// the terms produced.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080 -terms "Oli,Jo,Smith"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

var defaultTerms = []string{
	"Jo", "Ol", "a", "Oli", "Smith", "Olivia", "@example.com", "Mug",
	"Teapot", "555-01", "Main St", "Springfield", "john.doe", "Blue",
}

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Terms       []string
}

type searchResponse struct {
	Kind  string `json:"kind"`
	Total int    `json:"total"`
}

// Stats is shared by every worker.
type Stats struct {
	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int
	kinds       map[string]int
	candidates  int
	transport   int
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int),
		kinds:       make(map[string]int),
	}
}

func (s *Stats) Record(d time.Duration, status int, resp *searchResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies = append(s.latencies, d)
	s.statusCodes[status]++
	if resp != nil {
		s.kinds[resp.Kind]++
		s.candidates += resp.Total
	}
}

func (s *Stats) RecordTransportError() {
	s.mu.Lock()
	s.transport++
	s.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	terms := flag.String("terms", "", "comma separated search terms (default: built-in list)")
	flag.Parse()

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		Terms:       defaultTerms,
	}
	if *terms != "" {
		cfg.Terms = strings.Split(*terms, ",")
	}

	fmt.Println("=== textdex Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Terms:       %d unique\n", len(cfg.Terms))
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()
	stats := run(ctx, cfg, &http.Client{Timeout: 10 * time.Second})
	if !report(os.Stdout, stats, cfg.Duration) {
		os.Exit(1)
	}
}

// run issues lookups from cfg.Concurrency workers until ctx is done.
func run(ctx context.Context, cfg Config, client *http.Client) *Stats {
	stats := NewStats()
	var wg sync.WaitGroup
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(next int) {
			defer wg.Done()
			for ctx.Err() == nil {
				term := cfg.Terms[next%len(cfg.Terms)]
				next++
				lookup(ctx, client, cfg.BaseURL, term, stats)
			}
		}(w)
	}
	wg.Wait()
	return stats
}

func lookup(ctx context.Context, client *http.Client, baseURL, term string, stats *Stats) {
	target := fmt.Sprintf("%s/api/v1/search?q=%s", baseURL, url.QueryEscape(term))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		stats.RecordTransportError()
		return
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			stats.RecordTransportError()
		}
		return
	}
	defer resp.Body.Close()

	var body *searchResponse
	if resp.StatusCode == http.StatusOK {
		body = &searchResponse{}
		if json.NewDecoder(resp.Body).Decode(body) != nil {
			body = nil
		}
	}
	io.Copy(io.Discard, resp.Body)
	stats.Record(time.Since(start), resp.StatusCode, body)
}

// report prints the results and reports whether any request completed.
func report(w io.Writer, stats *Stats, duration time.Duration) bool {
	stats.mu.Lock()
	defer stats.mu.Unlock()

	total := len(stats.latencies)
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Completed:        %d\n", total)
	fmt.Fprintf(w, "Transport errors: %d\n", stats.transport)
	if total == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "WARNING: No requests completed. Is the service running?")
		return false
	}
	fmt.Fprintf(w, "Requests/sec:     %.2f\n", float64(total)/duration.Seconds())
	if ok := stats.statusCodes[http.StatusOK]; ok > 0 {
		fmt.Fprintf(w, "Avg candidates:   %.1f\n", float64(stats.candidates)/float64(ok))
	}

	latencies := slices.Clone(stats.latencies)
	slices.Sort(latencies)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Latency ===")
	fmt.Fprintf(w, "Min:  %s\n", latencies[0])
	fmt.Fprintf(w, "P50:  %s\n", percentile(latencies, 50))
	fmt.Fprintf(w, "P95:  %s\n", percentile(latencies, 95))
	fmt.Fprintf(w, "P99:  %s\n", percentile(latencies, 99))
	fmt.Fprintf(w, "Max:  %s\n", latencies[len(latencies)-1])

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	for _, code := range sortedKeys(stats.statusCodes) {
		fmt.Fprintf(w, "  %d: %d\n", code, stats.statusCodes[code])
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Plan Kinds ===")
	for _, kind := range sortedKeys(stats.kinds) {
		fmt.Fprintf(w, "  %s: %d\n", kind, stats.kinds[kind])
	}
	return true
}

func sortedKeys[K int | string](m map[K]int) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// percentile picks the nearest-rank value from sorted.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = min(max(idx, 0), len(sorted)-1)
	return sorted[idx]
}
