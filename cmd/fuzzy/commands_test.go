package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/fuzzy"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/rpc"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp(strings.NewReader(stdin), &out, &errOut)
	err := app.Run(append([]string{"fuzzy"}, args...))
	return out.String(), err
}

func TestSearchFromStdin(t *testing.T) {
	out, err := run(t, "firefox\nfax\nnginx\n", "search", "fx")
	if err != nil {
		t.Fatal(err)
	}
	if out != "fax\nfirefox\n" {
		t.Errorf("output = %q", out)
	}
}

func TestSearchFromFileWithScoresAndLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.txt")
	if err := os.WriteFile(path, []byte("firefox\nfax\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, "", "search", "--file", path, "--scores", "--limit", "1", "--no-vector", "fx")
	if err != nil {
		t.Fatal(err)
	}
	want := formatScore(fuzzy.Score("fx", "fax")) + "\tfax\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestSearchJSON(t *testing.T) {
	out, err := run(t, "firefox\nfax\nnginx\n", "search", "--json", "fx")
	if err != nil {
		t.Fatal(err)
	}
	var report searchReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if report.Stats.Scanned != 3 || report.Stats.Matched != 2 || len(report.Results) != 2 {
		t.Errorf("report = %+v", report)
	}
}

func TestSearchMissingFile(t *testing.T) {
	if _, err := run(t, "", "search", "--file", filepath.Join(t.TempDir(), "nope"), "fx"); err == nil {
		t.Error("missing file must fail")
	}
}

func TestScoreCommand(t *testing.T) {
	out, err := run(t, "", "score", "--positions", "fox", "Firefox")
	if err != nil {
		t.Fatal(err)
	}
	want := formatScore(fuzzy.Score("fox", "Firefox")) + "\n0 5 6\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}

	out, _ = run(t, "", "score", "fx", "nginx")
	if out != "0.0000\n" {
		t.Errorf("non-match output = %q", out)
	}
}

func TestCapabilityCommand(t *testing.T) {
	out, err := run(t, "", "capability")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "vector:") || !strings.Contains(out, "workers:") {
		t.Errorf("output = %q", out)
	}
}

func TestUsageErrors(t *testing.T) {
	if _, err := run(t, "", "search"); err == nil {
		t.Error("search without a query must fail")
	}
	if _, err := run(t, "", "score", "only-query"); err == nil {
		t.Error("score with one argument must fail")
	}
}

func TestSearchRemote(t *testing.T) {
	seen := make(chan proto.SearchRequest, 1)
	s := rpc.NewServer()
	s.Register(proto.MethodSearch, func(_ context.Context, raw json.RawMessage) (any, error) {
		req, err := rpc.Decode[proto.SearchRequest](raw)
		seen <- req
		return proto.SearchResponse{
			Query:        req.Query,
			TotalMatches: 2,
			Results:      []proto.SearchResult{{Text: "fax", Score: 1.5}, {Text: "firefox", Score: 0.7}},
		}, err
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go s.ServeListener(ln)
	defer s.Stop()

	out, err := run(t, "", "search", "--remote", ln.Addr().String(), "--limit", "2", "--scores", "fx")
	if err != nil {
		t.Fatal(err)
	}
	if out != "1.5000\tfax\n0.7000\tfirefox\n" {
		t.Errorf("output = %q", out)
	}
	if got := <-seen; got.Query != "fx" || got.Limit != 2 {
		t.Errorf("server saw %+v", got)
	}

	if _, err := run(t, "", "search", "--remote", ln.Addr().String(), "fx"); err != nil {
		t.Fatal(err)
	}
	if got := <-seen; got.Limit != math.MaxInt32 {
		t.Errorf("search without --limit sent limit %d, want the server maximum", got.Limit)
	}
}
