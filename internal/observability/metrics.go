package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reporting_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"code"},
	)
	Latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reporting_http_request_duration_seconds",
		Help:    "Request latency seconds",
		Buckets: prometheus.DefBuckets,
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reporting_http_in_flight",
		Help: "In-flight HTTP requests",
	})
	APICalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reporting_api_calls_total",
			Help: "API calls by api and terminal status",
		}, []string{"api", "status"},
	)
	APILatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reporting_api_call_duration_seconds",
		Help:    "API call latency seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"api"})
	PhaseLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reporting_phase_duration_seconds",
		Help:    "Pipeline phase latency seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2},
	}, []string{"phase"})
	BeaconsRegistered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reporting_beacons_registered_total",
			Help: "Interaction beacons persisted",
		}, []string{"destination"},
	)
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reporting_notifications_total",
			Help: "Reporting GETs by destination and outcome",
		}, []string{"destination", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(RequestsTotal, Latency, InFlight, APICalls, APILatency,
		PhaseLatency, BeaconsRegistered, Notifications)
}

func MetricsHandler() http.Handler { return promhttp.Handler() }

type rec struct {
	http.ResponseWriter
	code int
}

func (r *rec) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func Measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		InFlight.Inc()
		defer InFlight.Dec()

		rr := &rec{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rr, r)

		Latency.Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(strconv.Itoa(rr.code)).Inc()
	})
}
