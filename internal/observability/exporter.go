package observability

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Exporter serves the metric registry in Prometheus text exposition
// format plus a JSON health endpoint.
type Exporter struct {
	registry  *Registry
	startTime time.Time
}

// NewExporter creates an exporter backed by the given registry.
func NewExporter(registry *Registry) *Exporter {
	return &Exporter{registry: registry, startTime: time.Now()}
}

// Handler returns a mux serving /metrics and /healthz.
func (e *Exporter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", e.handleMetrics)
	mux.HandleFunc("/healthz", e.handleHealth)
	return mux
}

func (e *Exporter) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	_, _ = w.Write([]byte(e.Format()))
}

func (e *Exporter) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"uptime_s": int64(time.Since(e.startTime).Seconds()),
	})
}

// Format renders every registered metric in exposition format.
func (e *Exporter) Format() string {
	var b strings.Builder

	e.registry.mu.RLock()
	defer e.registry.mu.RUnlock()

	for _, name := range sortedKeys(e.registry.counters) {
		c := e.registry.counters[name]
		fmt.Fprintf(&b, "# HELP %s %s\n", c.name, c.help)
		fmt.Fprintf(&b, "# TYPE %s counter\n", c.name)
		fmt.Fprintf(&b, "%s %d\n", c.name, c.Value())
	}

	for _, name := range sortedKeys(e.registry.gauges) {
		g := e.registry.gauges[name]
		fmt.Fprintf(&b, "# HELP %s %s\n", g.name, g.help)
		fmt.Fprintf(&b, "# TYPE %s gauge\n", g.name)
		fmt.Fprintf(&b, "%s %s\n", g.name, strconv.FormatFloat(g.Value(), 'g', -1, 64))
	}

	for _, name := range sortedKeys(e.registry.histograms) {
		h := e.registry.histograms[name]
		buckets, counts, sum, count := h.Snapshot()
		fmt.Fprintf(&b, "# HELP %s %s\n", h.name, h.help)
		fmt.Fprintf(&b, "# TYPE %s histogram\n", h.name)
		for i, bound := range buckets {
			fmt.Fprintf(&b, "%s_bucket{le=%q} %d\n", h.name,
				strconv.FormatFloat(bound, 'g', -1, 64), counts[i])
		}
		fmt.Fprintf(&b, "%s_bucket{le=\"+Inf\"} %d\n", h.name, count)
		fmt.Fprintf(&b, "%s_sum %s\n", h.name, strconv.FormatFloat(sum, 'g', -1, 64))
		fmt.Fprintf(&b, "%s_count %d\n", h.name, count)
	}

	return b.String()
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
