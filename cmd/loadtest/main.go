// Command loadtest drives /api/v1/search the way a launcher does: every
// worker types words one keystroke at a time and issues a search per prefix.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Limit       int
	Words       []string
}

var defaultWords = []string{
	"firefox",
	"terminal",
	"files",
	"settings",
	"calculator",
	"text editor",
	"system monitor",
	"screenshot",
	"software",
	"vlc",
	"gimp",
	"code",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the fuzzy search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent typists")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	limit := flag.Int("limit", 10, "results requested per search")
	wordsFile := flag.String("words", "", "file with one query word per line (default: built-in list)")
	flag.Parse()

	words := defaultWords
	if *wordsFile != "" {
		loaded, err := readWords(*wordsFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading words: %v\n", err)
			os.Exit(1)
		}
		words = loaded
	}

	cfg := Config{
		BaseURL:     strings.TrimSuffix(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		Limit:       *limit,
		Words:       words,
	}

	fmt.Println("=== Fuzzy Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d keystroke prefixes\n", len(Keystrokes(cfg.Words)))
	fmt.Println()

	stats := runLoadTest(cfg)
	if !printReport(os.Stdout, stats, cfg.Duration) {
		os.Exit(1)
	}
}

// Keystrokes expands each word into the prefixes typed on the way to it.
func Keystrokes(words []string) []string {
	var out []string
	for _, w := range words {
		for i := 1; i <= len(w); i++ {
			out = append(out, w[:i])
		}
	}
	return out
}

func readWords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var words []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if w := strings.TrimSpace(sc.Text()); w != "" {
			words = append(words, w)
		}
	}
	if len(words) == 0 && sc.Err() == nil {
		return nil, fmt.Errorf("%s has no words", path)
	}
	return words, sc.Err()
}

type searchResponse struct {
	TotalMatches int  `json:"total_matches"`
	CacheHit     bool `json:"cache_hit"`
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	queries := Keystrokes(cfg.Words)
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

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()
	fmt.Print("Running")

	var g errgroup.Group
	for w := 0; w < cfg.Concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				query := queries[i%len(queries)]
				searchURL := fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d", cfg.BaseURL, url.QueryEscape(query), cfg.Limit)
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
				if err != nil {
					return err
				}

				start := time.Now()
				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() == nil {
						stats.RecordRequest(time.Since(start), 0, err)
					}
					continue
				}
				var body searchResponse
				decodeErr := json.NewDecoder(resp.Body).Decode(&body)
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				elapsed := time.Since(start)

				stats.RecordRequest(elapsed, resp.StatusCode, nil)
				if decodeErr == nil && resp.StatusCode == http.StatusOK {
					stats.RecordSearch(body.CacheHit, body.TotalMatches)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "\nload test aborted: %v\n", err)
	}
	fmt.Println(" done!")
	fmt.Println()
	return stats
}
