package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/auth-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation. A nil *MetricsService
// is valid and records nothing.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	tokensIssued      *prometheus.CounterVec
	tokensRevoked     *prometheus.CounterVec
	authFailures      *prometheus.CounterVec
	revocationLatency *prometheus.HistogramVec
	resetTokens       *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	tokensIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_token_issued_total",
		Help: "Tokens issued by kind",
	}, []string{"kind"})

	tokensRevoked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_token_revoked_total",
		Help: "Revocation markers written, split by whether they carry a TTL",
	}, []string{"ttl"})

	authFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_authentication_failures_total",
		Help: "Rejected credentials and tokens by reason code",
	}, []string{"reason"})

	revocationLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auth_revocation_store_seconds",
		Help:    "Latency of revocation store operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	resetTokens := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_reset_tokens_total",
		Help: "Password reset token transitions",
	}, []string{"event"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, tokensIssued, tokensRevoked, authFailures, revocationLatency, resetTokens, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		tokensIssued:      tokensIssued,
		tokensRevoked:     tokensRevoked,
		authFailures:      authFailures,
		revocationLatency: revocationLatency,
		resetTokens:       resetTokens,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// TokenIssued counts a freshly signed token.
func (m *MetricsService) TokenIssued(kind models.TokenKind) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(string(kind)).Inc()
}

// TokenRevoked counts a written revocation marker.
func (m *MetricsService) TokenRevoked(permanent bool) {
	if m == nil {
		return
	}
	label := "bounded"
	if permanent {
		label = "permanent"
	}
	m.tokensRevoked.WithLabelValues(label).Inc()
}

// AuthenticationFailed counts a rejected login or token by error code.
func (m *MetricsService) AuthenticationFailed(reason string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(reason).Inc()
}

// ObserveRevocationStore records the latency of a revocation store call.
func (m *MetricsService) ObserveRevocationStore(op string, duration time.Duration) {
	if m == nil {
		return
	}
	m.revocationLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// ResetTokenEvent counts reset token requests and redemptions.
func (m *MetricsService) ResetTokenEvent(event string) {
	if m == nil {
		return
	}
	m.resetTokens.WithLabelValues(event).Inc()
}
