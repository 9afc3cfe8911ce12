// Package metrics is a small Prometheus-text-format collector. It keeps
// the dependency surface flat: counters, gauges and histograms rendered by
// a plain http.HandlerFunc, no client library required.
package metrics

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Registry holds every registered metric in registration order so the
// exposition output stays stable between scrapes.
type Registry struct {
	mu      sync.Mutex
	metrics []renderable
	started time.Time
}

type renderable interface {
	render(sb *strings.Builder)
}

// Default is the process-wide registry.
var Default = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{started: time.Now()}
}

// Uptime returns how long this registry has existed.
func (r *Registry) Uptime() time.Duration {
	return time.Since(r.started)
}

func (r *Registry) add(m renderable) {
	r.mu.Lock()
	r.metrics = append(r.metrics, m)
	r.mu.Unlock()
}

// Counter is a monotonically increasing value.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

func (r *Registry) Counter(name, help string) *Counter {
	c := &Counter{name: name, help: help}
	r.add(c)
	return c
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

func (c *Counter) render(sb *strings.Builder) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", c.name, c.help, c.name, c.name, c.Value())
}

// Gauge is a value that can move both ways.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

func (r *Registry) Gauge(name, help string) *Gauge {
	g := &Gauge{name: name, help: help}
	r.add(g)
	return g
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

func (g *Gauge) render(sb *strings.Builder) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n", g.name, g.help, g.name, g.name, g.Value())
}

// Histogram tracks a value distribution over fixed buckets.
type Histogram struct {
	name    string
	help    string
	mu      sync.Mutex
	count   int64
	sum     float64
	bounds  []float64
	buckets []int64
}

func (r *Registry) Histogram(name, help string, bounds []float64) *Histogram {
	h := &Histogram{name: name, help: help, bounds: bounds, buckets: make([]int64, len(bounds))}
	r.add(h)
	return h
}

// Observe records one value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.buckets[i]++
		}
	}
}

// ObserveSince records the seconds elapsed since start.
func (h *Histogram) ObserveSince(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

func (h *Histogram) render(sb *strings.Builder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
	for i, le := range h.bounds {
		fmt.Fprintf(sb, "%s_bucket{le=\"%g\"} %d\n", h.name, le, h.buckets[i])
	}
	fmt.Fprintf(sb, "%s_bucket{le=\"+Inf\"} %d\n", h.name, h.count)
	fmt.Fprintf(sb, "%s_sum %f\n", h.name, h.sum)
	fmt.Fprintf(sb, "%s_count %d\n", h.name, h.count)
}

// Handler renders the registry in Prometheus exposition format.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder
		fmt.Fprintf(&sb, "# HELP stockpocket_uptime_seconds Time since start in seconds\n")
		fmt.Fprintf(&sb, "# TYPE stockpocket_uptime_seconds gauge\n")
		fmt.Fprintf(&sb, "stockpocket_uptime_seconds %d\n", int64(r.Uptime().Seconds()))

		r.mu.Lock()
		metrics := append([]renderable(nil), r.metrics...)
		r.mu.Unlock()
		for _, m := range metrics {
			m.render(&sb)
		}
		fmt.Fprint(w, sb.String())
	}
}

// Metrics used across the application.
var (
	TurnsTotal      = Default.Counter("stockpocket_turns_total", "Conversation turns processed")
	TurnFailures    = Default.Counter("stockpocket_turn_failures_total", "Turns that ended in a fallback reply")
	AIRequests      = Default.Counter("stockpocket_ai_requests_total", "Requests sent to the AI backend")
	ToolResolutions = Default.Counter("stockpocket_tool_resolutions_total", "Tool calls resolved")
	GatewayRequests = Default.Counter("stockpocket_gateway_requests_total", "Market and news provider requests")
	GatewayFailures = Default.Counter("stockpocket_gateway_failures_total", "Market and news provider failures")
	SessionSaves    = Default.Counter("stockpocket_session_saves_total", "Session store writes")
	SaveFailures    = Default.Counter("stockpocket_session_save_failures_total", "Session store write failures")

	AILatency = Default.Histogram("stockpocket_ai_latency_seconds", "AI request latency in seconds",
		[]float64{0.5, 1, 2, 5, 10, 30, 60})
	ToolLatency = Default.Histogram("stockpocket_tool_latency_seconds", "Tool resolution latency in seconds",
		[]float64{0.1, 0.5, 1, 5, 10, 30})
)
