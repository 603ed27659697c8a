package events

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSink counts events per node and type. Counters are exported through
// a dedicated Prometheus registry, so that several nodes in one process can
// each have their own.
type MetricsSink struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
	states   *prometheus.CounterVec

	mu     sync.Mutex
	counts map[string]map[Type]uint64
}

// NewMetricsSink creates a MetricsSink with its own registry.
func NewMetricsSink() *MetricsSink {
	m := &MetricsSink{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "murmur",
				Name:      "events_total",
				Help:      "Total number of protocol events.",
			},
			[]string{"node", "event"},
		),
		states: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "murmur",
				Name:      "state_transitions_total",
				Help:      "Number of transitions into each state.",
			},
			[]string{"node", "state"},
		),
		counts: make(map[string]map[Type]uint64),
	}

	m.registry.MustRegister(m.events, m.states)

	return m
}

// Notify implements Sink.
func (m *MetricsSink) Notify(e Event) {
	m.events.WithLabelValues(e.NodeID, string(e.Type)).Inc()
	if e.Type == StateChanged && e.State != "" {
		m.states.WithLabelValues(e.NodeID, e.State).Inc()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counts[e.NodeID]
	if !ok {
		c = make(map[Type]uint64)
		m.counts[e.NodeID] = c
	}
	c[e.Type]++
}

// Count returns the number of events of type t seen for node.
func (m *MetricsSink) Count(node string, t Type) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[node][t]
}

// Registry returns the Prometheus registry holding the counters.
func (m *MetricsSink) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry in the Prometheus text format.
func (m *MetricsSink) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Report renders the counters as a human readable table, one node per block.
func (m *MetricsSink) Report() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	nodes := make([]string, 0, len(m.counts))
	for n := range m.counts {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	var b strings.Builder
	for _, n := range nodes {
		fmt.Fprintf(&b, "node %s\n", n)

		types := make([]string, 0, len(m.counts[n]))
		for t := range m.counts[n] {
			types = append(types, string(t))
		}
		sort.Strings(types)

		for _, t := range types {
			fmt.Fprintf(&b, "  %-20s %d\n", t, m.counts[n][Type(t)])
		}
	}
	return b.String()
}
