package handler

import (
	"context"
	"encoding/json"

	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Fuzzy-Launcher-Search/pkg/rpc"
)

// RegisterRPC exposes search, score, capability and reload on s. Requests
// run against the same snapshot, cache and analytics as the HTTP routes.
func (h *Handler) RegisterRPC(s *rpc.Server) {
	s.Register(proto.MethodSearch, func(ctx context.Context, raw json.RawMessage) (any, error) {
		req, err := rpc.Decode[proto.SearchRequest](raw)
		if err != nil {
			return nil, err
		}
		return h.Query(ctx, req)
	})
	s.Register(proto.MethodScore, func(_ context.Context, raw json.RawMessage) (any, error) {
		req, err := rpc.Decode[proto.ScoreRequest](raw)
		if err != nil {
			return nil, err
		}
		return h.score(req), nil
	})
	s.Register(proto.MethodCapability, func(context.Context, json.RawMessage) (any, error) {
		return h.capability(), nil
	})
	s.Register(proto.MethodReload, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return h.reload(ctx)
	})
}
