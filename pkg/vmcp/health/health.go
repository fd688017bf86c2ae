package health

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State is the upstream client lifecycle state machine from spec.md §4.5:
// Disconnected -> Connecting -> Ready -> Degraded -> Failed -> Disconnected.
type State int

const (
	Disconnected State = iota
	Connecting
	Ready
	Degraded
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case Degraded:
		return "degraded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Snapshot is the point-in-time health picture of one upstream, published
// to the observability collaborator per spec.md §4.5 "Health metrics".
type Snapshot struct {
	BackendID         string
	State             State
	RequestCount      uint64
	SuccessCount      uint64
	ConsecutiveFails  int
	LastOKAt          time.Time
	LastErrorAt       time.Time
	LastError         string
	AverageLatency    time.Duration
	ToolCount         int
}

// SuccessRate returns the fraction of requests that succeeded, or 1 if none
// have been recorded yet.
func (s Snapshot) SuccessRate() float64 {
	if s.RequestCount == 0 {
		return 1
	}
	return float64(s.SuccessCount) / float64(s.RequestCount)
}

// Monitor tracks one upstream's rolling health metrics and exposes them
// both as a Snapshot and as Prometheus gauges/counters, the way the
// teacher's workload metrics are registered against a shared registerer.
type Monitor struct {
	backendID string

	mu           sync.Mutex
	state        State
	requestCount uint64
	successCount uint64
	consecFails  int
	lastOK       time.Time
	lastErr      time.Time
	lastErrMsg   string
	latencySum   time.Duration
	toolCount    int

	requestsTotal   prometheus.Counter
	failuresTotal   prometheus.Counter
	stateGauge      prometheus.Gauge
	latencyHistogram prometheus.Histogram
}

// NewMonitor registers backendID's metrics against reg (pass nil to skip
// registration, e.g. in tests).
func NewMonitor(backendID string, reg prometheus.Registerer) *Monitor {
	m := &Monitor{
		backendID: backendID,
		state:     Disconnected,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "magictunnel_upstream_requests_total",
			Help:        "Total requests forwarded to an upstream MCP server.",
			ConstLabels: prometheus.Labels{"backend": backendID},
		}),
		failuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "magictunnel_upstream_failures_total",
			Help:        "Total failed requests to an upstream MCP server.",
			ConstLabels: prometheus.Labels{"backend": backendID},
		}),
		stateGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "magictunnel_upstream_state",
			Help:        "Upstream client lifecycle state (0=disconnected,1=connecting,2=ready,3=degraded,4=failed).",
			ConstLabels: prometheus.Labels{"backend": backendID},
		}),
		latencyHistogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "magictunnel_upstream_request_duration_seconds",
			Help:        "Latency of requests to an upstream MCP server.",
			ConstLabels: prometheus.Labels{"backend": backendID},
			Buckets:     prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requestsTotal, m.failuresTotal, m.stateGauge, m.latencyHistogram)
	}
	return m
}

// SetState transitions the monitored upstream's lifecycle state.
func (m *Monitor) SetState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	m.stateGauge.Set(float64(s))
}

// RecordSuccess records a successful request with its latency.
func (m *Monitor) RecordSuccess(latency time.Duration, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount++
	m.successCount++
	m.consecFails = 0
	m.lastOK = now
	m.latencySum += latency
	m.requestsTotal.Inc()
	m.latencyHistogram.Observe(latency.Seconds())
}

// RecordFailure records a failed request.
func (m *Monitor) RecordFailure(err error, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount++
	m.consecFails++
	m.lastErr = now
	if err != nil {
		m.lastErrMsg = err.Error()
	}
	m.requestsTotal.Inc()
	m.failuresTotal.Inc()
}

// SetToolCount records how many tools the upstream currently advertises.
func (m *Monitor) SetToolCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolCount = n
}

// Snapshot returns the current health picture.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	avg := time.Duration(0)
	if m.successCount > 0 {
		avg = m.latencySum / time.Duration(m.successCount)
	}
	return Snapshot{
		BackendID:        m.backendID,
		State:            m.state,
		RequestCount:     m.requestCount,
		SuccessCount:     m.successCount,
		ConsecutiveFails: m.consecFails,
		LastOKAt:         m.lastOK,
		LastErrorAt:      m.lastErr,
		LastError:        m.lastErrMsg,
		AverageLatency:   avg,
		ToolCount:        m.toolCount,
	}
}
