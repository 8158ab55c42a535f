package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Documents   int
	WordsPerDoc int
	Seed        uint64
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	cachedCount   atomic.Int64
	latencies     []float64
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]float64, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, cached bool, err error) {
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
	if cached {
		s.cachedCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration.Seconds())
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

var vocabulary = strings.Fields(`
	vector space model term frequency inverse document weight cosine angle
	token stem lemma corpus dictionary index similarity matrix sparse dense
	norm dot product query ranking retrieval stream kafka redis snapshot
	cluster shard replica latency throughput cache eviction warm cold`)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the vectorizer service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	documents := flag.Int("documents", 200, "documents to index before querying")
	words := flag.Int("words", 50, "words per generated document")
	seed := flag.Uint64("seed", 1, "random seed for generated documents")
	flag.Parse()

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		Documents:   *documents,
		WordsPerDoc: *words,
		Seed:        *seed,
	}

	fmt.Println("=== termvec Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Documents:   %d x %d words\n", cfg.Documents, cfg.WordsPerDoc)
	fmt.Println()

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ids, err := seedDocuments(context.Background(), client, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seeding documents: %v\n", err)
		os.Exit(1)
	}
	stats := runLoadTest(client, cfg, ids)
	if !printReport(stats, cfg.Duration) {
		os.Exit(1)
	}
}

// seedDocuments indexes generated documents. IDs carry the run's start time
// so repeated runs against one service do not collide.
func seedDocuments(ctx context.Context, client *http.Client, cfg Config) ([]string, error) {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	run := time.Now().UTC().Format("20060102T150405")
	ids := make([]string, cfg.Documents)
	bodies := make([][]byte, cfg.Documents)
	for i := range ids {
		words := make([]string, cfg.WordsPerDoc)
		for j := range words {
			words[j] = vocabulary[rng.IntN(len(vocabulary))]
		}
		ids[i] = fmt.Sprintf("load-%s-%05d", run, i)
		bodies[i], _ = json.Marshal(map[string]string{"document_id": ids[i], "text": strings.Join(words, " ")})
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for i := range ids {
		g.Go(func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/api/v1/documents", bytes.NewReader(bodies[i]))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			io.Copy(io.Discard, resp.Body)
			if resp.StatusCode != http.StatusCreated {
				return fmt.Errorf("indexing %s: status %d", ids[i], resp.StatusCode)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	fmt.Printf("Indexed %d documents\n", len(ids))
	return ids, nil
}

func runLoadTest(client *http.Client, cfg Config, ids []string) *Stats {
	stats := NewStats()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := range cfg.Concurrency {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(cfg.Seed, uint64(workerID)))
			for ctx.Err() == nil {
				a := ids[rng.IntN(len(ids))]
				var target string
				if rng.IntN(4) == 0 {
					target = fmt.Sprintf("%s/api/v1/documents/%s/similar?k=10", cfg.BaseURL, url.PathEscape(a))
				} else {
					b := ids[rng.IntN(len(ids))]
					target = fmt.Sprintf("%s/api/v1/similarity?a=%s&b=%s", cfg.BaseURL, url.QueryEscape(a), url.QueryEscape(b))
				}

				start := time.Now()
				resp, err := client.Do(mustNewRequest(ctx, target))
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats.RecordRequest(elapsed, 0, false, err)
					}
					continue
				}
				var body struct {
					Cached bool `json:"cached"`
				}
				json.NewDecoder(resp.Body).Decode(&body)
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.RecordRequest(elapsed, resp.StatusCode, body.Cached, nil)
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

func mustNewRequest(ctx context.Context, rawURL string) *http.Request {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	return req
}

func printReport(stats *Stats, duration time.Duration) bool {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)
	fmt.Printf("Cached:          %d\n", stats.cachedCount.Load())
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(errors)/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.latenciesMu.Lock()
	latencies := slices.Clone(stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		mean, stddev := stat.MeanStdDev(latencies, nil)
		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", seconds(latencies[0]))
		fmt.Printf("Avg:    %s\n", seconds(mean))
		for _, p := range []float64{0.5, 0.9, 0.95, 0.99} {
			fmt.Printf("P%-3.0f   %s\n", p*100, seconds(stat.Quantile(p, stat.Empirical, latencies, nil)))
		}
		fmt.Printf("Max:    %s\n", seconds(latencies[len(latencies)-1]))
		fmt.Printf("StdDev: %s\n", seconds(stddev))
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		return false
	}
	return true
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Round(time.Microsecond)
}
