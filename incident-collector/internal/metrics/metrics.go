// Package metrics 采集服务的 Prometheus 指标
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 事故入库结果标签
const (
	ResultCreated   = "created"
	ResultDuplicate = "duplicate"
	ResultRejected  = "rejected"
	ResultFailed    = "failed"
)

// Metrics 指标集合，使用独立 Registry
type Metrics struct {
	registry          *prometheus.Registry
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	incidentsTotal    *prometheus.CounterVec
	uploadBytes       prometheus.Histogram
	sideEffectErrors  *prometheus.CounterVec
}

// New 创建并注册指标
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		incidentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "incidents_received_total",
			Help: "Incident uploads by ingestion result.",
		}, []string{"result"}),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "incident_upload_bytes",
			Help:    "Size of accepted evidence uploads.",
			Buckets: prometheus.ExponentialBuckets(64<<10, 4, 8),
		}),
		sideEffectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "incident_side_effect_errors_total",
			Help: "Failed best-effort steps after an incident was stored.",
		}, []string{"step"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.incidentsTotal,
		m.uploadBytes,
		m.sideEffectErrors,
	)
	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Middleware 记录请求数和耗时，route 取 mux 路由模板
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// IncidentReceived 记录一次入库结果
func (m *Metrics) IncidentReceived(result string, bytes int64) {
	if m == nil {
		return
	}
	m.incidentsTotal.WithLabelValues(result).Inc()
	if result == ResultCreated {
		m.uploadBytes.Observe(float64(bytes))
	}
}

// SideEffectFailed 记录发布或通知失败
func (m *Metrics) SideEffectFailed(step string) {
	if m == nil {
		return
	}
	m.sideEffectErrors.WithLabelValues(step).Inc()
}
