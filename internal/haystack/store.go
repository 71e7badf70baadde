package haystack

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	apperrors "github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/resilience"
)

// Snapshot is one loaded haystack. Entries must not be modified.
type Snapshot struct {
	Entries     []string
	Fingerprint uint64
	LoadedAt    time.Time
	Source      string
}

// Fingerprint hashes entries in order. Each entry is length-prefixed so that
// ["ab","c"] and ["a","bc"] differ.
func Fingerprint(entries []string) uint64 {
	d := xxhash.New()
	var n [binary.MaxVarintLen64]byte
	for _, e := range entries {
		d.Write(n[:binary.PutUvarint(n[:], uint64(len(e)))])
		d.WriteString(e)
	}
	return d.Sum64()
}

type StoreOptions struct {
	Retry       resilience.RetryConfig
	LoadTimeout time.Duration
	Metrics     *metrics.Metrics
}

// Store holds the current snapshot. Readers never block on a reload.
type Store struct {
	source  Source
	opts    StoreOptions
	current atomic.Pointer[Snapshot]
	reload  sync.Mutex
	logger  *slog.Logger

	mu        sync.Mutex
	listeners []func(old, cur *Snapshot)
}

func NewStore(source Source, opts StoreOptions) *Store {
	return &Store{
		source: source,
		opts:   opts,
		logger: slog.Default().With("component", "haystack", "source", source.Name()),
	}
}

// Snapshot returns the current snapshot, or ErrHaystackEmpty before the
// first successful load.
func (s *Store) Snapshot() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, apperrors.ErrHaystackEmpty
	}
	return snap, nil
}

func (s *Store) Ready() bool {
	return s.current.Load() != nil
}

// OnChange registers fn to run after a reload that changed the fingerprint.
// old is nil for the first load.
func (s *Store) OnChange(fn func(old, cur *Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Reload loads the source with retry and swaps the snapshot in. On failure
// the previous snapshot stays active. Concurrent reloads are serialized.
func (s *Store) Reload(ctx context.Context) (*Snapshot, error) {
	s.reload.Lock()
	defer s.reload.Unlock()

	start := time.Now()
	var entries []string
	err := resilience.Retry(ctx, "haystack-load", s.opts.Retry, func(ctx context.Context) error {
		var err error
		entries, err = resilience.WithTimeout(ctx, s.opts.LoadTimeout, "haystack-load", s.source.Load)
		return err
	})
	if err != nil {
		s.observe("error")
		s.logger.Error("haystack reload failed", "error", err, "keeping_previous", s.Ready())
		if errors.Is(err, apperrors.ErrSourceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSourceUnavailable, err)
	}
	if entries == nil {
		entries = []string{}
	}

	snap := &Snapshot{
		Entries:     entries,
		Fingerprint: Fingerprint(entries),
		LoadedAt:    time.Now(),
		Source:      s.source.Name(),
	}
	old := s.current.Swap(snap)
	changed := old == nil || old.Fingerprint != snap.Fingerprint

	s.observe("ok")
	if s.opts.Metrics != nil {
		s.opts.Metrics.HaystackSize.Set(float64(len(entries)))
	}
	s.logger.Info("haystack loaded",
		"entries", len(entries),
		"fingerprint", fmt.Sprintf("%016x", snap.Fingerprint),
		"changed", changed,
		"duration", time.Since(start),
	)

	if changed {
		s.mu.Lock()
		listeners := append([]func(old, cur *Snapshot){}, s.listeners...)
		s.mu.Unlock()
		for _, fn := range listeners {
			fn(old, snap)
		}
	}
	return snap, nil
}

func (s *Store) observe(status string) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.HaystackReloads.WithLabelValues(status).Inc()
	}
}
