package haystack

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/resilience"
)

var fastRetry = resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.txt")
	writeFile(t, path, "Firefox\r\n\n  \nfax\ngnome-terminal")

	got, err := FileSource{Path: path}.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Firefox", "fax", "gnome-terminal"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load = %q, want %q", got, want)
	}

	_, err = FileSource{Path: filepath.Join(t.TempDir(), "missing")}.Load(context.Background())
	if !errors.Is(err, apperrors.ErrSourceUnavailable) {
		t.Errorf("missing file error = %v, want ErrSourceUnavailable", err)
	}
}

func TestReaderAndStaticSources(t *testing.T) {
	got, err := ReaderSource{R: strings.NewReader("a\nb\n")}.Load(context.Background())
	if err != nil || !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("ReaderSource = %q, %v", got, err)
	}

	entries := []string{"x", "y"}
	src := StaticSource{Entries: entries}
	got, _ = src.Load(context.Background())
	got[0] = "mutated"
	if entries[0] != "x" {
		t.Error("StaticSource must hand out a copy")
	}
}

func TestNewSource(t *testing.T) {
	if _, err := NewSource(config.HaystackConfig{Source: "postgres", Table: "t"}, nil); !errors.Is(err, apperrors.ErrSourceUnavailable) {
		t.Errorf("postgres without db: %v", err)
	}
	if _, err := NewSource(config.HaystackConfig{Source: "ldap"}, nil); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("unknown source: %v", err)
	}
	src, err := NewSource(config.HaystackConfig{Source: "inline", Entries: []string{"a"}}, nil)
	if err != nil || src.Name() != "inline" {
		t.Errorf("inline: %v, %v", src, err)
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]string{"ab", "c"})
	if a != Fingerprint([]string{"ab", "c"}) {
		t.Error("fingerprint is not stable")
	}
	if a == Fingerprint([]string{"a", "bc"}) {
		t.Error("entry boundaries must affect the fingerprint")
	}
	if a == Fingerprint([]string{"c", "ab"}) {
		t.Error("order must affect the fingerprint")
	}
}

type flakySource struct {
	failures atomic.Int32
	entries  []string
}

func (f *flakySource) Name() string { return "flaky" }

func (f *flakySource) Load(context.Context) ([]string, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("connection reset")
	}
	return f.entries, nil
}

func TestStoreReload(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	src := &flakySource{entries: []string{"firefox", "fax"}}
	src.failures.Store(2)
	store := NewStore(src, StoreOptions{Retry: fastRetry, Metrics: m})

	if _, err := store.Snapshot(); !errors.Is(err, apperrors.ErrHaystackEmpty) {
		t.Fatalf("Snapshot before load = %v", err)
	}

	var changes int
	store.OnChange(func(old, cur *Snapshot) { changes++ })

	snap, err := store.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload after transient failures: %v", err)
	}
	if len(snap.Entries) != 2 || snap.Fingerprint != Fingerprint(src.entries) || snap.Source != "flaky" {
		t.Errorf("snapshot = %+v", snap)
	}
	if !store.Ready() || changes != 1 {
		t.Errorf("ready=%v changes=%d", store.Ready(), changes)
	}

	if _, err := store.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if changes != 1 {
		t.Error("an unchanged haystack must not notify listeners")
	}
	if got := testutil.ToFloat64(m.HaystackSize); got != 2 {
		t.Errorf("haystack size gauge = %v", got)
	}
}

func TestStoreKeepsPreviousSnapshotOnFailure(t *testing.T) {
	src := &flakySource{entries: []string{"a"}}
	store := NewStore(src, StoreOptions{Retry: fastRetry})
	first, err := store.Reload(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	src.failures.Store(10)
	if _, err := store.Reload(context.Background()); !errors.Is(err, apperrors.ErrSourceUnavailable) {
		t.Fatalf("failing reload = %v", err)
	}
	if cur, _ := store.Snapshot(); cur != first {
		t.Error("failed reload replaced the snapshot")
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.txt")
	writeFile(t, path, "firefox\n")

	store := NewStore(FileSource{Path: path}, StoreOptions{Retry: fastRetry})
	if _, err := store.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx, path, 20*time.Millisecond) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Watch: %v", err)
		}
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "firefox\nfax\n")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if snap, _ := store.Snapshot(); len(snap.Entries) == 2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("store did not pick up the file change")
}
