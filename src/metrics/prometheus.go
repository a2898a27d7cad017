package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager 管理全部指标
// 所有方法对 nil 接收者安全，未配置指标时调用方无需判断
type Manager struct {
	namespace   string
	subsystem   string
	buckets     []float64
	constLabels map[string]string
	registry    *prometheus.Registry

	// 加载流水线
	loads        *prometheus.CounterVec
	loadDuration prometheus.Histogram
	cacheLookups *prometheus.CounterVec
	rosterRows   prometheus.Gauge
	droppedRows  prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 报表发布
	publishRuns  *prometheus.CounterVec
	pushAttempts *prometheus.CounterVec
}

// NewManager 创建指标管理器，默认使用独立注册表避免 Go 运行时指标
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:   "roster",
		subsystem:   "dashboard",
		buckets:     prometheus.DefBuckets,
		constLabels: make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.constLabels)

	m.loads = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "loads_total",
		Help:        "Roster pipeline runs by result",
		ConstLabels: labels,
	}, []string{"result"})

	m.loadDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "load_duration_seconds",
		Help:        "Time spent loading and normalizing the roster",
		Buckets:     m.buckets,
		ConstLabels: labels,
	})

	m.cacheLookups = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "cache_lookups_total",
		Help:        "Normalized table cache lookups by outcome",
		ConstLabels: labels,
	}, []string{"outcome"})

	m.rosterRows = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "rows",
		Help:        "Rows in the current normalized table",
		ConstLabels: labels,
	})

	m.droppedRows = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "dropped_rows",
		Help:        "Rows dropped for a missing code in the last load",
		ConstLabels: labels,
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_requests_total",
		Help:        "HTTP requests by route and status code",
		ConstLabels: labels,
	}, []string{"route", "code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_seconds",
		Help:        "HTTP request latency by route",
		Buckets:     m.buckets,
		ConstLabels: labels,
	}, []string{"route"})

	m.publishRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "publish_runs_total",
		Help:        "Report publishing runs by result",
		ConstLabels: labels,
	}, []string{"result"})

	m.pushAttempts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "push_attempts_total",
		Help:        "Webhook push attempts by result",
		ConstLabels: labels,
	}, []string{"result"})
}

// RecordLoad 记录一次加载的结果和耗时
func (m *Manager) RecordLoad(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(result).Inc()
	m.loadDuration.Observe(d.Seconds())
}

// RecordCache 记录缓存命中或未命中
func (m *Manager) RecordCache(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

// SetRows 更新当前表的行数和被丢弃的行数
func (m *Manager) SetRows(rows, dropped int) {
	if m == nil {
		return
	}
	m.rosterRows.Set(float64(rows))
	m.droppedRows.Set(float64(dropped))
}

// RecordHTTPRequest 记录一次 HTTP 请求
func (m *Manager) RecordHTTPRequest(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordPublish 记录一次报表发布
func (m *Manager) RecordPublish(result string) {
	if m == nil {
		return
	}
	m.publishRuns.WithLabelValues(result).Inc()
}

// RecordPush 记录一次推送尝试
func (m *Manager) RecordPush(ok bool) {
	if m == nil {
		return
	}
	result := "error"
	if ok {
		result = "ok"
	}
	m.pushAttempts.WithLabelValues(result).Inc()
}

// Registry 返回底层注册表
func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler 返回 /metrics 处理器
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
