// Package handler serves the fuzzy search HTTP API over the current haystack
// snapshot.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/internal/haystack"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/internal/matcher/dispatcher"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/internal/matcher/scorer"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/internal/searcher/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/tracing"
)

// Matcher is satisfied by *fuzzy.Matcher.
type Matcher interface {
	Score(query, text string) float32
	Positions(query, text string) (float32, []int)
	SearchContext(ctx context.Context, query string, haystack []string) ([]dispatcher.Result, dispatcher.Stats, error)
	Capability() scorer.Capability
	Workers() int
	Fallbacks() int64
}

// Store is satisfied by *haystack.Store.
type Store interface {
	Snapshot() (*haystack.Snapshot, error)
	Reload(ctx context.Context) (*haystack.Snapshot, error)
}

type Options struct {
	DefaultLimit  int
	MaxResults    int
	SearchTimeout time.Duration

	// Optional collaborators; nil disables each.
	Cache   *cache.QueryCache
	Tracker analytics.Tracker
	Tracer  *tracing.Tracer
	Metrics *metrics.Metrics

	// OnReload runs after a reload requested through the API succeeded.
	OnReload func(ctx context.Context, snap *haystack.Snapshot)
}

type Handler struct {
	matcher       Matcher
	store         Store
	opts          Options
	lastFallbacks atomic.Int64
	logger        *slog.Logger
}

func New(m Matcher, store Store, opts Options) *Handler {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 20
	}
	if opts.MaxResults < opts.DefaultLimit {
		opts.MaxResults = opts.DefaultLimit
	}
	return &Handler{
		matcher: m,
		store:   store,
		opts:    opts,
		logger:  slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/score", h.Score)
	mux.HandleFunc("POST /api/v1/haystack/reload", h.Reload)
	mux.HandleFunc("GET /api/v1/capability", h.Capability)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
}

// Search serves GET /api/v1/search?q=&limit=&highlight=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	limit, err := h.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	highlight, _ := strconv.ParseBool(r.URL.Query().Get("highlight"))
	resp, err := h.Query(r.Context(), proto.SearchRequest{
		Query:     r.URL.Query().Get("q"),
		Limit:     limit,
		Highlight: highlight,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Query ranks the current snapshot against req. It backs both the HTTP
// route and the RPC method. A zero limit uses the default; larger limits
// are clamped to MaxResults.
func (h *Handler) Query(ctx context.Context, req proto.SearchRequest) (*proto.SearchResponse, error) {
	start := time.Now()
	log := logger.FromContext(ctx)

	limit := req.Limit
	switch {
	case limit < 0:
		return nil, apperrors.Invalid("limit must not be negative, got %d", limit)
	case limit == 0:
		limit = h.opts.DefaultLimit
	case limit > h.opts.MaxResults:
		limit = h.opts.MaxResults
	}
	query := req.Query
	if query == "" {
		return &proto.SearchResponse{Results: []proto.SearchResult{}}, nil
	}

	snap, err := h.store.Snapshot()
	if err != nil {
		return nil, err
	}

	ctx, span := h.opts.Tracer.Start(ctx, "search", middleware.GetRequestID(ctx))
	defer span.End()
	span.SetAttr("query_len", len(query))
	span.SetAttr("haystack", len(snap.Entries))

	compute := func(ctx context.Context) (*cache.Entry, error) {
		return h.run(ctx, query, limit, snap)
	}
	var entry *cache.Entry
	cacheHit := false
	if h.opts.Cache != nil {
		entry, cacheHit, err = h.opts.Cache.GetOrCompute(ctx, cache.Key(query, limit, snap.Fingerprint), compute)
	} else {
		entry, err = compute(ctx)
	}
	if err != nil {
		log.Error("search failed", "query", query, "error", err)
		return nil, err
	}
	span.SetAttr("cache_hit", cacheHit)

	resp := &proto.SearchResponse{
		Query:        query,
		TotalMatches: entry.TotalMatches,
		Scanned:      entry.Scanned,
		CacheHit:     cacheHit,
		Results:      make([]proto.SearchResult, len(entry.Results)),
	}
	for i, res := range entry.Results {
		resp.Results[i] = proto.SearchResult{Text: res.Text, Score: res.Score}
		if req.Highlight {
			_, resp.Results[i].Positions = h.matcher.Positions(query, res.Text)
		}
	}
	elapsed := time.Since(start)
	resp.TookUs = elapsed.Microseconds()

	h.observe(cacheHit, elapsed, entry)
	if h.opts.Tracker != nil {
		h.opts.Tracker.Track(analytics.SearchEvent{
			Query:     query,
			Matches:   entry.TotalMatches,
			Returned:  len(entry.Results),
			Scanned:   entry.Scanned,
			LatencyUs: elapsed.Microseconds(),
			CacheHit:  cacheHit,
			Vector:    h.matcher.Capability().Vector,
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(ctx),
		})
	}
	log.Debug("search completed",
		"query", query,
		"matches", entry.TotalMatches,
		"returned", len(entry.Results),
		"cache_hit", cacheHit,
		"took", elapsed,
	)
	return resp, nil
}

func (h *Handler) run(ctx context.Context, query string, limit int, snap *haystack.Snapshot) (*cache.Entry, error) {
	if h.opts.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.SearchTimeout)
		defer cancel()
	}
	_, span := tracing.StartChild(ctx, "dispatch")
	results, stats, err := h.matcher.SearchContext(ctx, query, snap.Entries)
	span.SetAttr("chunks", stats.Chunks)
	span.End()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.Newf(apperrors.ErrTimeout, http.StatusGatewayTimeout, "search exceeded %v", h.opts.SearchTimeout)
		}
		return nil, err
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return &cache.Entry{Results: results, TotalMatches: stats.Matched, Scanned: stats.Scanned}, nil
}

func (h *Handler) observe(cacheHit bool, elapsed time.Duration, entry *cache.Entry) {
	m := h.opts.Metrics
	if m == nil {
		return
	}
	status := "miss"
	if cacheHit {
		status = "hit"
	} else if h.opts.Cache == nil {
		status = "disabled"
	}
	m.ObserveSearch(status, elapsed, entry.Scanned, entry.TotalMatches)

	cur := h.matcher.Fallbacks()
	if prev := h.lastFallbacks.Swap(cur); cur > prev {
		m.VectorFallbacks.Add(float64(cur - prev))
	}
}

// Score serves GET /api/v1/score?q=&text=.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.score(proto.ScoreRequest{
		Query: r.URL.Query().Get("q"),
		Text:  r.URL.Query().Get("text"),
	}))
}

func (h *Handler) score(req proto.ScoreRequest) proto.ScoreResponse {
	score, positions := h.matcher.Positions(req.Query, req.Text)
	if positions == nil {
		positions = []int{}
	}
	return proto.ScoreResponse{Query: req.Query, Text: req.Text, Score: score, Positions: positions}
}

// Reload serves POST /api/v1/haystack/reload.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	resp, err := h.reload(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) reload(ctx context.Context) (*proto.ReloadResponse, error) {
	snap, err := h.store.Reload(ctx)
	if err != nil {
		return nil, err
	}
	var invalidated int64
	if h.opts.Cache != nil {
		if invalidated, err = h.opts.Cache.Invalidate(ctx); err != nil {
			logger.FromContext(ctx).Warn("cache invalidation after reload failed", "error", err)
		}
	}
	if h.opts.OnReload != nil {
		h.opts.OnReload(ctx, snap)
	}
	return &proto.ReloadResponse{
		Entries:          len(snap.Entries),
		Fingerprint:      fmt.Sprintf("%016x", snap.Fingerprint),
		LoadedAt:         snap.LoadedAt.UTC().Format(time.RFC3339Nano),
		CacheInvalidated: invalidated,
	}, nil
}

// Capability serves GET /api/v1/capability.
func (h *Handler) Capability(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.capability())
}

func (h *Handler) capability() proto.CapabilityResponse {
	c := h.matcher.Capability()
	return proto.CapabilityResponse{
		Vector:    c.Vector,
		Arch:      c.Arch,
		Features:  c.Features,
		Workers:   h.matcher.Workers(),
		Fallbacks: h.matcher.Fallbacks(),
	}
}

// CacheStats serves GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.opts.Cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	s := h.opts.Cache.Stats()
	total := s.Hits + s.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(s.Hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     s.Hits,
		"misses":   s.Misses,
		"errors":   s.Errors,
		"total":    total,
		"breaker":  s.Breaker,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) parseLimit(raw string) (int, error) {
	if raw == "" {
		return h.opts.DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperrors.Invalid("limit must be a positive integer, got %q", raw)
	}
	return min(n, h.opts.MaxResults), nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{"error": apperrors.Message(err)})
}
