package observability

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Metrics tracks request-level counters and latencies for the query
// pipeline, exposed in Prometheus text format.
type Metrics struct {
	mu       sync.Mutex
	counters map[string]float64
	sums     map[string]float64
	counts   map[string]uint64
}

// NewMetrics creates an empty metrics registry.
func NewMetrics() *Metrics {
	return &Metrics{
		counters: make(map[string]float64),
		sums:     make(map[string]float64),
		counts:   make(map[string]uint64),
	}
}

// Inc increments a counter by one.
func (m *Metrics) Inc(name string) {
	m.mu.Lock()
	m.counters[name]++
	m.mu.Unlock()
}

// ObserveDuration records the elapsed time since start under a summary
// metric.
func (m *Metrics) ObserveDuration(name string, start time.Time) {
	seconds := time.Since(start).Seconds()
	m.mu.Lock()
	m.sums[name] += seconds
	m.counts[name]++
	m.mu.Unlock()
}

// CounterValue returns the current value of a counter.
func (m *Metrics) CounterValue(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// Handler serves the metrics in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m.mu.Lock()
		defer m.mu.Unlock()

		var b strings.Builder
		for _, name := range sortedKeys(m.counters) {
			fmt.Fprintf(&b, "# TYPE %s counter\n%s %g\n", name, name, m.counters[name])
		}
		for _, name := range sortedKeys(m.sums) {
			fmt.Fprintf(&b, "# TYPE %s summary\n%s_sum %g\n%s_count %d\n", name, name, m.sums[name], name, m.counts[name])
		}
		_, _ = w.Write([]byte(b.String()))
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
