// Package metrics exposes process-wide Prometheus collectors for the HTTP API,
// the job control client and the event channel.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	controlRequestsTotal       *prometheus.CounterVec
	controlDurationSeconds     *prometheus.HistogramVec
	channelFramesTotal         *prometheus.CounterVec
	channelReconnectsTotal     *prometheus.CounterVec
	monitorInboxDepth          prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		controlRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searchmon_control_requests_total",
				Help: "Job control calls to the backend, labeled by operation and result.",
			},
			[]string{"op", "result"},
		)

		controlDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "searchmon_control_duration_seconds",
				Help:    "Latency of job control calls, labeled by operation.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"op"},
		)

		channelFramesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searchmon_channel_frames_total",
				Help: "Event channel frames received, labeled by codec and event kind.",
			},
			[]string{"codec", "kind"},
		)

		channelReconnectsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searchmon_channel_reconnects_total",
				Help: "Event channel reconnect outcomes.",
			},
			[]string{"result"},
		)

		monitorInboxDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "searchmon_monitor_inbox_depth",
				Help: "Events waiting to be applied by the monitor.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveControl records one job control call.
func ObserveControl(op string, err error, duration time.Duration) {
	Init()
	result := "ok"
	if err != nil {
		result = "error"
	}
	controlRequestsTotal.WithLabelValues(op, result).Inc()
	controlDurationSeconds.WithLabelValues(op).Observe(duration.Seconds())
}

// ObserveFrame counts a decoded event channel frame.
func ObserveFrame(codec, kind string) {
	Init()
	channelFramesTotal.WithLabelValues(codec, kind).Inc()
}

// ObserveReconnect counts a reconnect outcome ("ok" or "exhausted").
func ObserveReconnect(result string) {
	Init()
	channelReconnectsTotal.WithLabelValues(result).Inc()
}

// SetInboxDepth reports the number of queued monitor events.
func SetInboxDepth(n int) {
	Init()
	monitorInboxDepth.Set(float64(n))
}
