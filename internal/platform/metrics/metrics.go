package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	AuthorizeRequests *prometheus.CounterVec
	TokenRequests     *prometheus.CounterVec
	TokensIssued      *prometheus.CounterVec
	DeviceCodesIssued prometheus.Counter
	Introspections    *prometheus.CounterVec
	Revocations       prometheus.Counter
	RequestDuration   *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		AuthorizeRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_authorize_requests_total",
			Help: "Authorization endpoint requests by outcome",
		}, []string{"outcome"}),
		TokenRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_token_requests_total",
			Help: "Token endpoint requests by grant type and outcome",
		}, []string{"grant_type", "outcome"}),
		TokensIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_tokens_issued_total",
			Help: "Tokens issued by kind (access, refresh, identity)",
		}, []string{"kind"}),
		DeviceCodesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assent_device_codes_issued_total",
			Help: "Device authorization codes issued",
		}),
		Introspections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_introspections_total",
			Help: "Introspection requests by result (active, inactive)",
		}, []string{"result"}),
		Revocations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assent_revocations_total",
			Help: "Token revocation requests accepted",
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "assent_request_duration_seconds",
			Help:    "Protocol endpoint latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}
