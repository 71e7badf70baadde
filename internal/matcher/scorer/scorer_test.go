package scorer

import (
	"bytes"
	"log/slog"
	"math/rand"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/internal/matcher/locator"
)

func scorers() map[string]*Scorer {
	vec := Detect()
	vec.Vector = true
	return map[string]*Scorer{
		"vector": New(vec),
		"scalar": New(Scalar()),
	}
}

// ratio and boosted run at run time so expectations round like the scorer.
func ratio(num float32, den int) float32 { return num / float32(den) }

func boosted(v float32) float32 { return v * earlyBoost }

func TestScoreValues(t *testing.T) {
	tests := []struct {
		name  string
		query string
		text  string
		want  float32
	}{
		{"empty query", "", "firefox", 0},
		{"empty text", "fx", "", 0},
		{"both empty", "", "", 0},
		{"no match", "fz", "firefox", 0},
		{"out of order", "xf", "firefox", 0},
		{"query longer than text", "abcd", "abc", 0},
		{"firefox", "fx", "firefox", ratio(5, 7)},
		{"fax", "fx", "fax", ratio(5, 3)},
		{"nginx has no f", "fx", "nginx", 0},
		{"early boost", "a", "abc", boosted(ratio(3.5, 3))},
		{"exact word", "abc", "abc", ratio(8, 3)},
		{"folded word", "abc", "ABC", ratio(6.5, 3)},
		{"word start", "b", "a b", ratio(3.5, 3)},
		{"mid word", "b", "ab", ratio(1.5, 2)},
		{"run", "ab", "xaby", ratio(3.5, 4)},
		{"gap", "ab", "xaqby", ratio(3, 5)},
	}

	for sname, s := range scorers() {
		for _, tt := range tests {
			t.Run(sname+"/"+tt.name, func(t *testing.T) {
				if got := s.Score(tt.query, tt.text); got != tt.want {
					t.Errorf("Score(%q, %q) = %v, want %v", tt.query, tt.text, got, tt.want)
				}
			})
		}
	}
}

func TestBonusOrdering(t *testing.T) {
	s := New(Detect())
	tests := []struct {
		name         string
		lowQ, lowT   string
		highQ, highT string
	}{
		{"exact case", "abc", "ABC", "abc", "abc"},
		{"word start", "b", "ab", "b", "a b"},
		{"consecutive run", "ab", "xaqby", "ab", "xaby"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			low := s.Score(tt.lowQ, tt.lowT)
			high := s.Score(tt.highQ, tt.highT)
			if !(low < high) {
				t.Errorf("Score(%q,%q)=%v should be below Score(%q,%q)=%v",
					tt.lowQ, tt.lowT, low, tt.highQ, tt.highT, high)
			}
		})
	}
}

func TestMatchPositions(t *testing.T) {
	s := New(Detect())
	score, pos := s.Match("fox", "Firefox")
	if score == 0 {
		t.Fatal("expected a match")
	}
	want := []int{0, 5, 6}
	if len(pos) != len(want) {
		t.Fatalf("positions = %v, want %v", pos, want)
	}
	for i := range want {
		if pos[i] != want[i] {
			t.Fatalf("positions = %v, want %v", pos, want)
		}
	}
	if score != s.Score("fox", "Firefox") {
		t.Errorf("Match score %v differs from Score %v", score, s.Score("fox", "Firefox"))
	}

	if score, pos := s.Match("zz", "Firefox"); score != 0 || pos != nil {
		t.Errorf("Match miss = (%v, %v), want (0, nil)", score, pos)
	}
}

func foldASCII(s string) string {
	b := []byte(s)
	for i := range b {
		b[i] = locator.Fold(b[i])
	}
	return string(b)
}

func isSubsequence(query, text string) bool {
	query, text = foldASCII(query), foldASCII(text)
	j := 0
	for i := 0; i < len(text) && j < len(query); i++ {
		if text[i] == query[j] {
			j++
		}
	}
	return j == len(query)
}

const alphabet = "abcABC xyzXYZ_-.\xc3\xa9"

func randomString(r *rand.Rand, maxLen int) string {
	n := r.Intn(maxLen + 1)
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteByte(alphabet[r.Intn(len(alphabet))])
	}
	return sb.String()
}

func TestScoreIsSubsequenceTest(t *testing.T) {
	s := New(Detect())
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 10000; i++ {
		q := randomString(r, 5)
		text := randomString(r, 40)
		got := s.Score(q, text)
		if q == "" || text == "" {
			if got != 0 {
				t.Fatalf("Score(%q, %q) = %v, want 0", q, text, got)
			}
			continue
		}
		if (got > 0) != isSubsequence(q, text) {
			t.Fatalf("Score(%q, %q) = %v, subsequence = %v", q, text, got, isSubsequence(q, text))
		}
	}
}

func TestVectorAndScalarAgree(t *testing.T) {
	all := scorers()
	vec, sc := all["vector"], all["scalar"]
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 20000; i++ {
		q := randomString(r, 6)
		// lengths straddle block boundaries
		text := randomString(r, 3*locator.BlockSize+5)
		if a, b := vec.Score(q, text), sc.Score(q, text); a != b {
			t.Fatalf("Score(%q, %q): vector=%v scalar=%v", q, text, a, b)
		}
	}
	if vec.Fallbacks() != 0 {
		t.Errorf("vector path fell back %d times", vec.Fallbacks())
	}
}

type panickingLocator struct{}

func (panickingLocator) LocateChecked(byte, string, int) (locator.Match, bool, error) {
	panic("simulated vector fault")
}

type failingLocator struct{}

func (failingLocator) LocateChecked(byte, string, int) (locator.Match, bool, error) {
	return locator.Match{}, false, locator.ErrBlockBounds
}

func TestVectorFaultFallsBackToScalar(t *testing.T) {
	want := New(Scalar()).Score("fx", "firefox")

	for name, faulty := range map[string]checkedLocator{
		"panic": panickingLocator{},
		"error": failingLocator{},
	} {
		t.Run(name, func(t *testing.T) {
			c := Detect()
			c.Vector = true
			s := New(c)
			s.vector = faulty

			if got := s.Score("fx", "firefox"); got != want {
				t.Errorf("Score = %v, want scalar result %v", got, want)
			}
			score, pos := s.Match("fx", "firefox")
			if score != want || len(pos) != 2 || pos[0] != 0 || pos[1] != 6 {
				t.Errorf("Match = (%v, %v), want (%v, [0 6])", score, pos, want)
			}
			if s.Fallbacks() != 2 {
				t.Errorf("fallbacks = %d, want 2", s.Fallbacks())
			}
		})
	}
}

func TestVectorFaultIsLogged(t *testing.T) {
	var buf bytes.Buffer
	c := Detect()
	c.Vector = true
	s := New(c)
	s.vector = failingLocator{}
	s.logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s.Score("fx", "firefox")
	out := buf.String()
	if !strings.Contains(out, "rescoring on scalar path") || !strings.Contains(out, locator.ErrBlockBounds.Error()) {
		t.Errorf("fallback log = %q", out)
	}
}

func TestResolve(t *testing.T) {
	c := Detect()
	if c.Resolve("off").Vector {
		t.Error("mode off must disable the block locator")
	}
	if c.Resolve("auto").Vector != c.Vector {
		t.Error("mode auto must keep detection")
	}
	if Scalar().Resolve("on").Vector {
		t.Error("mode on must not enable an undetected block locator")
	}
}

func BenchmarkScore(b *testing.B) {
	text := "Visual Studio Code - Insiders Edition (workspace: fuzzy-launcher-search)"
	for name, s := range scorers() {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = s.Score("vscode", text)
			}
		})
	}
}
