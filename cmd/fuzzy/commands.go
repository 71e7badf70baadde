package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/internal/haystack"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/fuzzy"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/rpc"
)

type searchReport struct {
	Query   string         `json:"query"`
	Stats   fuzzy.Stats    `json:"stats"`
	Vector  bool           `json:"vector"`
	Results []fuzzy.Result `json:"results"`
}

func searchCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("usage: fuzzy search [--file FILE] QUERY")
	}
	query := c.Args().First()
	if addr := c.String("remote"); addr != "" {
		return remoteSearch(c, addr, query)
	}

	var src haystack.Source = haystack.ReaderSource{R: c.App.Reader, Label: "stdin"}
	if path := c.String("file"); path != "" {
		src = haystack.FileSource{Path: path}
	}
	candidates, err := src.Load(c.Context)
	if err != nil {
		return fmt.Errorf("loading candidates from %s: %w", src.Name(), err)
	}

	m := fuzzy.NewMatcher(fuzzy.Options{
		Workers:       c.Int("workers"),
		DisableVector: c.Bool("no-vector"),
	})
	results, stats, err := m.SearchContext(c.Context, query, candidates)
	if err != nil {
		return err
	}
	slog.Debug("search finished",
		"candidates", stats.Scanned,
		"matched", stats.Matched,
		"chunks", stats.Chunks,
		"elapsed", stats.Elapsed,
		"vector", m.Capability().Vector,
	)
	if n := c.Int("limit"); n > 0 && len(results) > n {
		results = results[:n]
	}

	w := c.App.Writer
	if c.Bool("json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(searchReport{Query: query, Stats: stats, Vector: m.Capability().Vector, Results: results})
	}
	for _, r := range results {
		if c.Bool("scores") {
			fmt.Fprintf(w, "%s\t%s\n", formatScore(r.Score), r.Text)
		} else {
			fmt.Fprintln(w, r.Text)
		}
	}
	return nil
}

// remoteSearch sends the query to fuzzyd over its RPC listener and prints
// the response in the same formats as a local search.
func remoteSearch(c *cli.Context, addr, query string) error {
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	client, err := rpc.Dial(ctx, addr)
	if err != nil {
		return err
	}
	defer client.Close()

	// The server clamps the limit to its matcher.maxResults, so "all" asks
	// for as many as it will return rather than its default page.
	limit := c.Int("limit")
	if limit <= 0 {
		limit = math.MaxInt32
	}
	var resp proto.SearchResponse
	if err := client.Call(ctx, proto.MethodSearch, proto.SearchRequest{Query: query, Limit: limit}, &resp); err != nil {
		return err
	}
	slog.Debug("remote search finished",
		"addr", addr,
		"matched", resp.TotalMatches,
		"scanned", resp.Scanned,
		"cache_hit", resp.CacheHit,
		"took_us", resp.TookUs,
	)

	w := c.App.Writer
	if c.Bool("json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	for _, r := range resp.Results {
		if c.Bool("scores") {
			fmt.Fprintf(w, "%s\t%s\n", formatScore(r.Score), r.Text)
		} else {
			fmt.Fprintln(w, r.Text)
		}
	}
	return nil
}

func scoreCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("usage: fuzzy score QUERY TEXT")
	}
	m := fuzzy.NewMatcher(fuzzy.Options{Workers: 1})
	score, positions := m.Positions(c.Args().Get(0), c.Args().Get(1))
	fmt.Fprintln(c.App.Writer, formatScore(score))
	if c.Bool("positions") {
		parts := make([]string, len(positions))
		for i, p := range positions {
			parts[i] = strconv.Itoa(p)
		}
		fmt.Fprintln(c.App.Writer, strings.Join(parts, " "))
	}
	return nil
}

func capabilityCommand(c *cli.Context) error {
	m := fuzzy.NewMatcher(fuzzy.Options{})
	capability := m.Capability()
	if c.Bool("json") {
		return json.NewEncoder(c.App.Writer).Encode(map[string]any{
			"capability": capability,
			"workers":    m.Workers(),
		})
	}
	w := c.App.Writer
	fmt.Fprintf(w, "vector:   %t\n", capability.Vector)
	fmt.Fprintf(w, "arch:     %s\n", capability.Arch)
	fmt.Fprintf(w, "features: %s\n", strings.Join(capability.Features, " "))
	fmt.Fprintf(w, "workers:  %d\n", m.Workers())
	return nil
}

func formatScore(s float32) string {
	return strconv.FormatFloat(float64(s), 'f', 4, 32)
}
