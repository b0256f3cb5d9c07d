package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/alvmarrod/steam-weaver/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
)

// Tracker holds and manages crawl metrics.
// All methods are safe on a nil *Tracker so components can run untracked.
type Tracker struct {
	mu               sync.Mutex
	data             storage.Metrics
	totalFetchTimeMs int64
	fetchCount       int

	registry    *prometheus.Registry
	requests    prometheus.Counter
	retries     prometheus.Counter
	unavailable *prometheus.CounterVec
	discovered  prometheus.Counter
	expanded    prometheus.Counter
	edges       prometheus.Counter
	checkpoints prometheus.Counter
	fetchTime   prometheus.Histogram
}

// NewTracker creates a new metrics tracker with its own registry
func NewTracker(runID string) *Tracker {
	t := &Tracker{
		data: storage.Metrics{
			StartTime: time.Now(),
			RunID:     runID,
		},
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weaver_api_requests_total",
			Help: "Steam Web API requests issued, including retries.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weaver_api_retries_total",
			Help: "Requests retried after a transient failure.",
		}),
		unavailable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weaver_api_unavailable_total",
			Help: "Lookups that ended as unavailable.",
		}, []string{"endpoint"}),
		discovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weaver_nodes_discovered_total",
			Help: "Profiles admitted to the crawl graph.",
		}),
		expanded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weaver_nodes_expanded_total",
			Help: "Profiles whose friend lists were traversed.",
		}),
		edges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weaver_edges_recorded_total",
			Help: "Raw edges recorded by the crawler.",
		}),
		checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weaver_checkpoints_total",
			Help: "Checkpoints written.",
		}),
		fetchTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "weaver_api_request_seconds",
			Help:    "Latency of Steam Web API requests.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
	t.registry.MustRegister(t.requests, t.retries, t.unavailable, t.discovered,
		t.expanded, t.edges, t.checkpoints, t.fetchTime)
	return t
}

// IncrementRequests counts an outbound API request
func (t *Tracker) IncrementRequests() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.Requests++
	t.requests.Inc()
}

// IncrementRetries counts a retried request
func (t *Tracker) IncrementRetries() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.Retries++
	t.retries.Inc()
}

// IncrementUnavailable counts a lookup degraded to unavailable
func (t *Tracker) IncrementUnavailable(endpoint string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.Unavailable++
	t.unavailable.WithLabelValues(endpoint).Inc()
}

// AddNodesDiscovered counts admitted nodes
func (t *Tracker) AddNodesDiscovered(n int) {
	if t == nil || n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.NodesDiscovered += n
	t.discovered.Add(float64(n))
}

// IncrementNodesExpanded counts an expanded node
func (t *Tracker) IncrementNodesExpanded() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.NodesExpanded++
	t.expanded.Inc()
}

// AddEdgesRecorded counts raw edges
func (t *Tracker) AddEdgesRecorded(n int) {
	if t == nil || n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.EdgesRecorded += n
	t.edges.Add(float64(n))
}

// IncrementCheckpoints counts a written checkpoint
func (t *Tracker) IncrementCheckpoints() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.Checkpoints++
	t.checkpoints.Inc()
}

// RecordFetchTime records a request duration
func (t *Tracker) RecordFetchTime(duration time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalFetchTimeMs += duration.Milliseconds()
	t.fetchCount++
	t.fetchTime.Observe(duration.Seconds())
}

// GetSnapshot returns a copy of current metrics
func (t *Tracker) GetSnapshot() storage.Metrics {
	if t == nil {
		return storage.Metrics{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := t.data
	snapshot.TotalFetchTimeMs = t.totalFetchTimeMs
	if t.fetchCount > 0 {
		snapshot.AvgFetchTimeMs = t.totalFetchTimeMs / int64(t.fetchCount)
	}
	return snapshot
}

// Registry exposes the tracker's Prometheus registry
func (t *Tracker) Registry() *prometheus.Registry {
	return t.registry
}

// WriteToFile exports metrics to a JSON file
func (t *Tracker) WriteToFile(path, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.EndTime = time.Now()
	t.data.TerminationReason = reason
	t.data.TotalFetchTimeMs = t.totalFetchTimeMs
	if t.fetchCount > 0 {
		t.data.AvgFetchTimeMs = t.totalFetchTimeMs / int64(t.fetchCount)
	}

	jsonData, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// WriteTextfile writes the registry in Prometheus text exposition format
func (t *Tracker) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, t.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// LogProgress formats current metrics for periodic console updates
func (t *Tracker) LogProgress() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	return fmt.Sprintf("Nodes: %d discovered, %d expanded | Edges: %d | Requests: %d (%d retried, %d unavailable) | Checkpoints: %d",
		t.data.NodesDiscovered,
		t.data.NodesExpanded,
		t.data.EdgesRecorded,
		t.data.Requests,
		t.data.Retries,
		t.data.Unavailable,
		t.data.Checkpoints,
	)
}
