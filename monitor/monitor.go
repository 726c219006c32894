// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	OnlinePlayers     prometheus.Gauge
	ConnectedSessions prometheus.Gauge
	StockPrice        prometheus.Gauge
	MessagesReceived  prometheus.Counter
	Actions           *prometheus.CounterVec
	Trades            *prometheus.CounterVec
	MessageLatency    prometheus.Histogram
	NarrativeLatency  prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of participants that joined the session",
		}),
		ConnectedSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_sessions",
			Help:      "Number of open websocket connections",
		}),
		StockPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stock_price",
			Help:      "Current simulated stock price",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of messages received",
		}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Story actions by outcome",
		}, []string{"outcome"}),
		Trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trade orders by side and outcome",
		}, []string{"side", "outcome"}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		NarrativeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "narrative_latency_seconds",
			Help:      "Narrative service round trip",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.OnlinePlayers,
		m.ConnectedSessions,
		m.StockPrice,
		m.MessagesReceived,
		m.Actions,
		m.Trades,
		m.MessageLatency,
		m.NarrativeLatency,
	}
}

// Monitor is safe to use as a nil pointer; every method is then a no-op.
type Monitor struct {
	metrics      *Metrics
	startTime    time.Time
	requestCount int64
	mutex        sync.Mutex
}

// NewMonitor registers its collectors with reg. Pass prometheus.DefaultRegisterer
// in production and prometheus.NewRegistry() in tests.
func NewMonitor(namespace string, reg prometheus.Registerer) (*Monitor, error) {
	metrics := NewMetrics(namespace)
	for _, c := range metrics.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return &Monitor{
		metrics:   metrics,
		startTime: time.Now(),
	}, nil
}

var publishOnce sync.Once

// PublishExpvar exposes uptime and request counters under /debug/vars.
// expvar names are process global, so only the first monitor publishes.
func (m *Monitor) PublishExpvar() {
	if m == nil {
		return
	}
	publishOnce.Do(func() {
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return time.Since(m.startTime).Seconds()
		}))
		expvar.Publish("requests", expvar.Func(func() interface{} {
			return m.Requests()
		}))
	})
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Monitor) Requests() int64 {
	if m == nil {
		return 0
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.requestCount
}

func (m *Monitor) SetOnlinePlayers(count int) {
	if m == nil {
		return
	}
	m.metrics.OnlinePlayers.Set(float64(count))
}

func (m *Monitor) IncConnectedSessions() {
	if m == nil {
		return
	}
	m.metrics.ConnectedSessions.Inc()
}

func (m *Monitor) DecConnectedSessions() {
	if m == nil {
		return
	}
	m.metrics.ConnectedSessions.Dec()
}

func (m *Monitor) SetStockPrice(price float64) {
	if m == nil {
		return
	}
	m.metrics.StockPrice.Set(price)
}

func (m *Monitor) IncMessagesReceived() {
	if m == nil {
		return
	}
	m.metrics.MessagesReceived.Inc()
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

// IncActions counts a story action; outcome is one of applied, failed, rejected.
func (m *Monitor) IncActions(outcome string) {
	if m == nil {
		return
	}
	m.metrics.Actions.WithLabelValues(outcome).Inc()
}

func (m *Monitor) IncTrades(side, outcome string) {
	if m == nil {
		return
	}
	m.metrics.Trades.WithLabelValues(side, outcome).Inc()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	if m == nil {
		return
	}
	m.metrics.MessageLatency.Observe(duration.Seconds())
}

func (m *Monitor) ObserveNarrativeLatency(duration time.Duration) {
	if m == nil {
		return
	}
	m.metrics.NarrativeLatency.Observe(duration.Seconds())
}
