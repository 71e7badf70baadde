//go:build e2e

// Package e2e exercises a running fuzzyd over HTTP and, when configured,
// its RPC listener. The service is expected to serve a haystack containing
// at least one candidate matching E2E_QUERY.
//
// Run with:
//
//	E2E_RPC_ADDR=unix:/run/user/1000/fuzzyd.sock go test -v -tags=e2e -timeout=60s ./test/e2e/...
package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/rpc"
)

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

type e2eConfig struct {
	BaseURL string
	RPCAddr string
	Query   string
}

func loadE2EConfig() e2eConfig {
	return e2eConfig{
		BaseURL: envOrDefault("E2E_FUZZYD_URL", "http://localhost:8080"),
		RPCAddr: os.Getenv("E2E_RPC_ADDR"),
		Query:   envOrDefault("E2E_QUERY", "fx"),
	}
}

func getJSON(t *testing.T, client *http.Client, target string, v any) int {
	t.Helper()
	resp, err := client.Get(target)
	if err != nil {
		t.Skipf("fuzzyd unavailable: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if v != nil {
		if err := json.Unmarshal(body, v); err != nil {
			t.Fatalf("decoding %s: %v: %s", target, err, body)
		}
	}
	return resp.StatusCode
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// TestHealth verifies both probes answer.
func TestHealth(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 5 * time.Second}
	for _, path := range []string{"/health/live", "/health/ready"} {
		t.Run(path, func(t *testing.T) {
			var body map[string]any
			if code := getJSON(t, client, cfg.BaseURL+path, &body); code != http.StatusOK {
				t.Errorf("expected 200, got %d: %v", code, body)
			}
		})
	}
}

// TestSearchRanking checks the response contract: descending scores,
// limit respected, highlight positions present.
func TestSearchRanking(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 5 * time.Second}

	var resp proto.SearchResponse
	target := cfg.BaseURL + "/api/v1/search?limit=5&highlight=true&q=" + url.QueryEscape(cfg.Query)
	if code := getJSON(t, client, target, &resp); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp.TotalMatches == 0 {
		t.Skipf("haystack has no match for %q", cfg.Query)
	}
	if len(resp.Results) > 5 {
		t.Errorf("limit ignored: %d results", len(resp.Results))
	}
	for i, r := range resp.Results {
		if r.Score <= 0 || len(r.Positions) == 0 {
			t.Errorf("result %d = %+v", i, r)
		}
		if i > 0 && r.Score > resp.Results[i-1].Score {
			t.Errorf("scores not descending at %d", i)
		}
	}
}

// TestSearchAnalytics verifies that searches reach the analytics endpoint.
// With Kafka enabled the count lags behind, so a miss is only logged.
func TestSearchAnalytics(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 5 * time.Second}

	getJSON(t, client, cfg.BaseURL+"/api/v1/search?q="+url.QueryEscape(cfg.Query), nil)
	time.Sleep(2 * time.Second)

	var stats map[string]any
	getJSON(t, client, cfg.BaseURL+"/api/v1/analytics", &stats)
	if total, _ := stats["total_searches"].(float64); total < 1 {
		t.Logf("expected at least 1 search recorded, got %v", stats["total_searches"])
	}
}

// TestRPCMatchesHTTP compares the RPC listener's answer with the HTTP API.
func TestRPCMatchesHTTP(t *testing.T) {
	cfg := loadE2EConfig()
	if cfg.RPCAddr == "" {
		t.Skip("E2E_RPC_ADDR not set")
	}
	client := &http.Client{Timeout: 5 * time.Second}
	var viaHTTP proto.SearchResponse
	getJSON(t, client, cfg.BaseURL+"/api/v1/search?limit=5&q="+url.QueryEscape(cfg.Query), &viaHTTP)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := rpc.Dial(ctx, cfg.RPCAddr)
	if err != nil {
		t.Skipf("rpc listener unavailable: %v", err)
	}
	defer c.Close()

	var viaRPC proto.SearchResponse
	if err := c.Call(ctx, proto.MethodSearch, proto.SearchRequest{Query: cfg.Query, Limit: 5}, &viaRPC); err != nil {
		t.Fatal(err)
	}
	if len(viaRPC.Results) != len(viaHTTP.Results) {
		t.Fatalf("rpc returned %d results, http %d", len(viaRPC.Results), len(viaHTTP.Results))
	}
	for i := range viaRPC.Results {
		if viaRPC.Results[i].Text != viaHTTP.Results[i].Text {
			t.Errorf("result %d: rpc %q, http %q", i, viaRPC.Results[i].Text, viaHTTP.Results[i].Text)
		}
	}
}

// ---------------------------------------------------------------------------
// Env helpers
// ---------------------------------------------------------------------------

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
