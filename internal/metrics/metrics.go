// Package metrics 定义协作引擎的 Prometheus 指标。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "collab_board"

// 事件处理结果标签
const (
	StatusOK       = "ok"
	StatusRejected = "rejected"
	StatusError    = "error"
)

// Metrics 持有所有指标。nil *Metrics 的方法都是空操作，测试中可以不注册指标。
type Metrics struct {
	registry *prometheus.Registry

	activeSessions    prometheus.Gauge
	activeRooms       prometheus.Gauge
	eventsTotal       *prometheus.CounterVec
	fanoutDeliveries  prometheus.Counter
	droppedDeliveries prometheus.Counter
	persistFailures   prometheus.Counter
	prunedActions     prometheus.Counter
	joinDuration      prometheus.Histogram
}

// New 在独立的 Registry 上创建指标，并附带 Go 运行时与进程指标
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of open WebSocket sessions on this instance",
		}),
		activeRooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of boards with at least one local session",
		}),
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound protocol events by event name and result",
		}, []string{"event", "status"}),
		fanoutDeliveries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_deliveries_total",
			Help:      "Messages queued to local sessions by room fan-out",
		}),
		droppedDeliveries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_deliveries_total",
			Help:      "Messages dropped because a session send queue was full",
		}),
		persistFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_persist_failures_total",
			Help:      "Actions that could be neither enqueued nor written to the durable history log",
		}),
		prunedActions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_pruned_actions_total",
			Help:      "Durable actions removed by the retention policy",
		}),
		joinDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "join_duration_seconds",
			Help:      "Time to complete a join-board request",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// Handler 返回 /metrics 的 HTTP 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回底层 Registry (测试使用)
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.activeSessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.activeSessions.Dec()
	}
}

func (m *Metrics) SetActiveRooms(n int) {
	if m != nil {
		m.activeRooms.Set(float64(n))
	}
}

// Event 记录一个入站事件的处理结果
func (m *Metrics) Event(event, status string) {
	if m != nil {
		m.eventsTotal.WithLabelValues(event, status).Inc()
	}
}

func (m *Metrics) Delivered(n int) {
	if m != nil && n > 0 {
		m.fanoutDeliveries.Add(float64(n))
	}
}

func (m *Metrics) Dropped() {
	if m != nil {
		m.droppedDeliveries.Inc()
	}
}

func (m *Metrics) PersistFailed() {
	if m != nil {
		m.persistFailures.Inc()
	}
}

func (m *Metrics) Pruned(n int64) {
	if m != nil && n > 0 {
		m.prunedActions.Add(float64(n))
	}
}

func (m *Metrics) ObserveJoin(d time.Duration) {
	if m != nil {
		m.joinDuration.Observe(d.Seconds())
	}
}
