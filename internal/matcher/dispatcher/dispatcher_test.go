package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/internal/matcher/scorer"
)

func TestPartition(t *testing.T) {
	tests := []struct {
		n, workers int
		wantChunks int
	}{
		{0, 4, 0},
		{1, 4, 1},
		{255, 8, 1},
		{256, 1, 1},
		{257, 1, 1},
		{600, 8, 3},
		{1000, 3, 4},
		{4096, 8, 8},
		{10000, 64, 40},
		{5, 0, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d/workers=%d", tt.n, tt.workers), func(t *testing.T) {
			chunks := Partition(tt.n, tt.workers)
			if len(chunks) != tt.wantChunks {
				t.Fatalf("chunks = %d, want %d (%v)", len(chunks), tt.wantChunks, chunks)
			}
			next := 0
			for i, c := range chunks {
				if c.Start != next {
					t.Fatalf("chunk %d starts at %d, want %d", i, c.Start, next)
				}
				if c.End <= c.Start {
					t.Fatalf("chunk %d is empty: %+v", i, c)
				}
				if i < len(chunks)-1 && c.End-c.Start < MinChunkSize {
					t.Fatalf("chunk %d smaller than minimum: %+v", i, c)
				}
				next = c.End
			}
			if next != tt.n {
				t.Fatalf("chunks cover [0,%d), want [0,%d)", next, tt.n)
			}
		})
	}
}

func newDispatcher(workers int) *Dispatcher {
	return New(scorer.New(scorer.Detect()), Options{Workers: workers})
}

func TestSearchExample(t *testing.T) {
	d := newDispatcher(0)
	got := d.Search("fx", []string{"firefox", "fax", "nginx"})

	want := []string{"fax", "firefox"}
	if len(got) != len(want) {
		t.Fatalf("results = %+v, want texts %v", got, want)
	}
	for i, w := range want {
		if got[i].Text != w {
			t.Errorf("result %d = %q, want %q", i, got[i].Text, w)
		}
		if got[i].Score <= 0 {
			t.Errorf("result %d has non-positive score %v", i, got[i].Score)
		}
	}
}

func TestSearchEmptyInputs(t *testing.T) {
	d := newDispatcher(2)
	if got := d.Search("", []string{"a", "b"}); got == nil || len(got) != 0 {
		t.Errorf("empty query: got %v, want empty non-nil slice", got)
	}
	if got := d.Search("a", nil); got == nil || len(got) != 0 {
		t.Errorf("empty haystack: got %v, want empty non-nil slice", got)
	}
	if got := d.Search("zzz", []string{"a", "b"}); len(got) != 0 {
		t.Errorf("no matches: got %v", got)
	}
}

func TestSearchTieBreaks(t *testing.T) {
	d := newDispatcher(1)
	// equal scores fall back to length, then lexical order
	haystack := []string{"xb", "xa", "xa", "x bc", "x ab"}
	got := d.Search("x", haystack)

	for i := 1; i < len(got); i++ {
		if Less(got[i], got[i-1]) {
			t.Fatalf("results out of order at %d: %+v", i, got)
		}
	}
	texts := make([]string, len(got))
	for i, r := range got {
		texts[i] = r.Text
	}
	want := []string{"xa", "xa", "xb", "x ab", "x bc"}
	if !reflect.DeepEqual(texts, want) {
		t.Errorf("order = %v, want %v", texts, want)
	}
}

func TestLess(t *testing.T) {
	tests := []struct {
		name string
		a, b Result
		want bool
	}{
		{"higher score first", Result{"zzzz", 2}, Result{"a", 1}, true},
		{"lower score later", Result{"a", 1}, Result{"zzzz", 2}, false},
		{"shorter first", Result{"bb", 1}, Result{"aaa", 1}, true},
		{"lexical last", Result{"ab", 1}, Result{"ba", 1}, true},
		{"identical", Result{"ab", 1}, Result{"ab", 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Less(tt.a, tt.b); got != tt.want {
				t.Errorf("Less(%+v, %+v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func randomHaystack(r *rand.Rand, n int) []string {
	words := []string{"fire", "Fox", "fax", "nginx", "code", "Visual", "studio", "term", "x", "f"}
	h := make([]string, n)
	for i := range h {
		k := 1 + r.Intn(4)
		parts := make([]string, k)
		for j := range parts {
			parts[j] = words[r.Intn(len(words))]
		}
		sep := " "
		if r.Intn(3) == 0 {
			sep = "-"
		}
		h[i] = strings.Join(parts, sep)
	}
	return h
}

func TestSearchIndependentOfWorkerCount(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	haystack := randomHaystack(r, 5000)

	for _, q := range []string{"fx", "Fox", "vs", "code term", "n"} {
		want := newDispatcher(1).Search(q, haystack)
		for i := 1; i < len(want); i++ {
			if Less(want[i], want[i-1]) {
				t.Fatalf("query %q: results out of order at %d", q, i)
			}
		}
		for _, workers := range []int{2, 8, 64} {
			got := newDispatcher(workers).Search(q, haystack)
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("query %q: workers=%d differs from workers=1", q, workers)
			}
		}
	}
}

func TestSearchIndependentOfStrategy(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	haystack := randomHaystack(r, 3000)
	vec := scorer.Detect()
	vec.Vector = true

	a := New(scorer.New(vec), Options{Workers: 4}).Search("fie", haystack)
	b := New(scorer.New(scorer.Scalar()), Options{Workers: 4}).Search("fie", haystack)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("vector and scalar searches differ")
	}
}

func TestSearchDeterministic(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	haystack := randomHaystack(r, 2000)
	d := newDispatcher(8)
	first := d.Search("ft", haystack)
	for i := 0; i < 5; i++ {
		if got := d.Search("ft", haystack); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs from first run", i)
		}
	}
}

func TestSearchKeepsDuplicates(t *testing.T) {
	haystack := make([]string, 1000)
	for i := range haystack {
		haystack[i] = "firefox"
	}
	got := newDispatcher(4).Search("ff", haystack)
	if len(got) != len(haystack) {
		t.Errorf("results = %d, want %d", len(got), len(haystack))
	}
}

func TestSearchStats(t *testing.T) {
	r := rand.New(rand.NewSource(9))
	haystack := randomHaystack(r, 1000)
	results, stats := newDispatcher(3).SearchWithStats("f", haystack)

	if stats.Chunks != 4 {
		t.Errorf("chunks = %d, want 4", stats.Chunks)
	}
	if stats.Workers != 3 {
		t.Errorf("workers = %d, want 3", stats.Workers)
	}
	if stats.Scanned != len(haystack) {
		t.Errorf("scanned = %d, want %d", stats.Scanned, len(haystack))
	}
	if stats.Matched != len(results) {
		t.Errorf("matched = %d, want %d", stats.Matched, len(results))
	}
}

func TestSearchJoinsAllWorkers(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := rand.New(rand.NewSource(13))
	haystack := randomHaystack(r, 4000)
	for _, workers := range []int{1, 8, 64} {
		_ = newDispatcher(workers).Search("fox", haystack)
	}
}

// countingScorer records how many candidates are scored concurrently.
type countingScorer struct {
	mu      sync.Mutex
	active  int
	peak    int
	release chan struct{}
}

func (c *countingScorer) Score(query, text string) float32 {
	c.mu.Lock()
	c.active++
	c.peak = max(c.peak, c.active)
	c.mu.Unlock()
	if c.release != nil {
		<-c.release
	}
	c.mu.Lock()
	c.active--
	c.mu.Unlock()
	return 1
}

func TestSearchRespectsWorkerLimit(t *testing.T) {
	s := &countingScorer{}
	haystack := make([]string, 10*MinChunkSize)
	for i := range haystack {
		haystack[i] = "x"
	}
	New(s, Options{Workers: 2}).Search("x", haystack)
	if s.peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", s.peak)
	}
}

func TestSearchContextCancelled(t *testing.T) {
	s := &countingScorer{release: make(chan struct{})}
	d := New(s, Options{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := d.SearchContext(ctx, "x", []string{"x"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	close(s.release)
}

func BenchmarkSearch(b *testing.B) {
	r := rand.New(rand.NewSource(1))
	haystack := randomHaystack(r, 20000)
	for _, workers := range []int{1, 4, 0} {
		d := newDispatcher(workers)
		b.Run(fmt.Sprintf("workers_%d", d.Workers()), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = d.Search("fox", haystack)
			}
		})
	}
}
