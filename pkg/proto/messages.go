// Package proto defines the request and response types shared by the HTTP
// API and the line-delimited JSON RPC listener (see pkg/rpc). Both encode
// them with the same JSON tags, so a client can switch transports without
// changing how it decodes results.
package proto

// RPC method names served by fuzzyd.
const (
	MethodSearch     = "Matcher.Search"
	MethodScore      = "Matcher.Score"
	MethodCapability = "Matcher.Capability"
	MethodReload     = "Haystack.Reload"
)

// ---------- Search ----------

// SearchRequest is the input to the Search RPC. A zero Limit uses the
// server's default.
type SearchRequest struct {
	Query     string `json:"query"`
	Limit     int    `json:"limit,omitempty"`
	Highlight bool   `json:"highlight,omitempty"`
}

// SearchResponse is the output of Search. TotalMatches counts every
// candidate with a positive score, before the limit is applied.
type SearchResponse struct {
	Query        string         `json:"query"`
	TotalMatches int            `json:"total_matches"`
	Scanned      int            `json:"scanned"`
	CacheHit     bool           `json:"cache_hit"`
	TookUs       int64          `json:"took_us"`
	Results      []SearchResult `json:"results"`
}

// SearchResult is a single ranked candidate.
type SearchResult struct {
	Text      string  `json:"text"`
	Score     float32 `json:"score"`
	Positions []int   `json:"positions,omitempty"`
}

// ---------- Score ----------

type ScoreRequest struct {
	Query string `json:"query"`
	Text  string `json:"text"`
}

type ScoreResponse struct {
	Query     string  `json:"query"`
	Text      string  `json:"text"`
	Score     float32 `json:"score"`
	Positions []int   `json:"positions"`
}

// ---------- Capability ----------

// CapabilityResponse reports which locator the server resolved at startup.
type CapabilityResponse struct {
	Vector    bool     `json:"vector"`
	Arch      string   `json:"arch"`
	Features  []string `json:"features"`
	Workers   int      `json:"workers"`
	Fallbacks int64    `json:"fallbacks"`
}

// ---------- Haystack ----------

type ReloadResponse struct {
	Entries          int    `json:"entries"`
	Fingerprint      string `json:"fingerprint"`
	LoadedAt         string `json:"loaded_at"`
	CacheInvalidated int64  `json:"cache_invalidated"`
}
