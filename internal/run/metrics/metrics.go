// Package metrics exposes the run service prometheus collectors.
package metrics

import (
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func metricLabels() prometheus.Labels {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "run-service"
	}
	instance := os.Getenv("INSTANCE_ID")
	if instance == "" {
		instance, _ = os.Hostname()
	}
	return prometheus.Labels{"service": service, "instance": instance}
}

var reg = prometheus.WrapRegistererWith(metricLabels(), prometheus.DefaultRegisterer)

var (
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	requestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// AdmissionTotal counts submission attempts by outcome.
	AdmissionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "run_admission_total",
			Help: "Total number of submission admission attempts",
		},
		[]string{"outcome"},
	)

	// RefusalTotal counts refused submissions and views by reason.
	RefusalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "run_refusal_total",
			Help: "Total number of refused requests by reason",
		},
		[]string{"reason"},
	)

	// RollbackTotal counts dispatch saga rollbacks by outcome.
	RollbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "run_dispatch_rollback_total",
			Help: "Total number of dispatch rollbacks",
		},
		[]string{"outcome"},
	)

	// ArtifactFallbackTotal counts archive fallback fetches by outcome.
	ArtifactFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "run_artifact_fallback_total",
			Help: "Total number of run artifact archive fallback fetches",
		},
		[]string{"outcome"},
	)
)

func init() {
	reg.MustRegister(requestDuration)
	reg.MustRegister(requestTotal)
	reg.MustRegister(AdmissionTotal)
	reg.MustRegister(RefusalTotal)
	reg.MustRegister(RollbackTotal)
	reg.MustRegister(ArtifactFallbackTotal)
}

// Recorder feeds domain events into the collectors.
type Recorder struct{}

// NewRecorder returns a recorder backed by the package collectors.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// ObserveAdmission records an admission outcome.
func (Recorder) ObserveAdmission(outcome string) {
	AdmissionTotal.WithLabelValues(outcome).Inc()
}

// ObserveRollback records a dispatch rollback outcome.
func (Recorder) ObserveRollback(outcome string) {
	RollbackTotal.WithLabelValues(outcome).Inc()
}

// ObserveFallback records an archive fallback outcome.
func (Recorder) ObserveFallback(outcome string) {
	ArtifactFallbackTotal.WithLabelValues(outcome).Inc()
}

// ObserveRefusal records a refusal reason.
func (Recorder) ObserveRefusal(reason string) {
	if reason == "" {
		reason = "unspecified"
	}
	RefusalTotal.WithLabelValues(reason).Inc()
}

// Middleware records request count and latency per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
