package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/errors"
)

type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
}

// Stats serves GET /api/v1/analytics?top=N. top trims both query lists; it
// cannot raise them above what the aggregator keeps.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.aggregator.Stats()
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.write(w, apperrors.HTTPStatusCode(apperrors.ErrInvalidInput), map[string]string{
				"error": "top must be a non-negative integer",
			})
			return
		}
		stats.TopQueries = stats.TopQueries[:min(n, len(stats.TopQueries))]
		stats.ZeroMatchQueries = stats.ZeroMatchQueries[:min(n, len(stats.ZeroMatchQueries))]
	}
	h.write(w, http.StatusOK, stats)
}

func (h *Handler) write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
