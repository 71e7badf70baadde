// Package tracing records lightweight span trees for search requests and
// logs them through slog once the root span ends. Sampling decides per root
// span; children of an unsampled root are no-ops.
package tracing

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

type contextKey struct{}

// Tracer decides which requests are traced.
type Tracer struct {
	enabled    bool
	sampleRate float64
	logger     *slog.Logger
	sample     func() float64
}

func NewTracer(enabled bool, sampleRate float64) *Tracer {
	return &Tracer{
		enabled:    enabled,
		sampleRate: sampleRate,
		logger:     slog.Default().With("component", "tracing"),
		sample:     rand.Float64,
	}
}

// Span is a timed operation within a trace. A nil *Span is valid and every
// method on it is a no-op.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	Duration  time.Duration

	mu       sync.Mutex
	children []*Span
	attrs    []any
	logger   *slog.Logger
	root     bool
}

// Start opens a root span when the tracer samples this request.
func (t *Tracer) Start(ctx context.Context, name, traceID string) (context.Context, *Span) {
	if t == nil || !t.enabled || t.sample() >= t.sampleRate {
		return ctx, nil
	}
	span := &Span{Name: name, TraceID: traceID, StartTime: time.Now(), logger: t.logger, root: true}
	return context.WithValue(ctx, contextKey{}, span), span
}

// StartChild opens a span under the one in ctx, if any.
func StartChild(ctx context.Context, name string) (context.Context, *Span) {
	parent := FromContext(ctx)
	if parent == nil {
		return ctx, nil
	}
	child := &Span{Name: name, TraceID: parent.TraceID, StartTime: time.Now(), logger: parent.logger}
	parent.mu.Lock()
	parent.children = append(parent.children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, contextKey{}, child), child
}

// FromContext returns the current span or nil.
func FromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

// End records the duration; ending a root span logs the whole tree.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Duration = time.Since(s.StartTime)
	s.mu.Unlock()
	if s.root {
		s.log(0)
	}
}

// Children returns a copy of the child spans.
func (s *Span) Children() []*Span {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

func (s *Span) log(depth int) {
	s.mu.Lock()
	attrs := append([]any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_us", s.Duration.Microseconds(),
		"depth", depth,
	}, s.attrs...)
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	s.logger.Debug("span", attrs...)
	for _, child := range children {
		child.log(depth + 1)
	}
}
