// Package health runs registered dependency checks concurrently and serves
// liveness and readiness probes. Optional components (cache, analytics
// sink) only degrade readiness; required ones (the haystack) fail it.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status represents the health state of a component or the system overall.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Check probes a single dependency.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth holds the result of a single component check.
type ComponentHealth struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

// Report is the aggregated result of all component checks.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

type registration struct {
	check    Check
	optional bool
}

// Checker manages registered health checks.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]registration
}

func NewChecker() *Checker {
	return &Checker{checks: make(map[string]registration)}
}

// Register adds a check whose failure makes the service unready.
func (c *Checker) Register(name string, check Check) {
	c.register(name, check, false)
}

// RegisterOptional adds a check whose failure only degrades the service.
func (c *Checker) RegisterOptional(name string, check Check) {
	c.register(name, check, true)
}

func (c *Checker) register(name string, check Check, optional bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = registration{check: check, optional: optional}
}

// Ping adapts an error-returning probe into a Check.
func Ping(probe func(ctx context.Context) error) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := probe(ctx); err != nil {
			return ComponentHealth{Status: StatusDown, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// Run executes all checks concurrently. A required component that is down
// makes the report down; an optional one makes it degraded.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	regs := make([]registration, 0, len(c.checks))
	for name, reg := range c.checks {
		names = append(names, name)
		regs = append(regs, reg)
	}
	c.mu.RUnlock()

	results := make([]ComponentHealth, len(regs))
	var g errgroup.Group
	for i, reg := range regs {
		g.Go(func() error {
			start := time.Now()
			res := reg.check(ctx)
			res.Latency = time.Since(start).Round(time.Millisecond).String()
			res.Optional = reg.optional
			results[i] = res
			return nil
		})
	}
	g.Wait()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(regs)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	order := make([]int, len(names))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return names[order[a]] < names[order[b]] })
	for _, i := range order {
		res := results[i]
		report.Components[names[i]] = res
		switch {
		case res.Status == StatusUp:
		case res.Optional || res.Status == StatusDegraded:
			if report.Status == StatusUp {
				report.Status = StatusDegraded
			}
		default:
			report.Status = StatusDown
		}
	}
	return report
}

// LiveHandler answers liveness probes; it never consults dependencies.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers readiness probes: 200 while up or degraded, 503 when
// a required component is down.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report := c.Run(ctx)
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(report)
	}
}
