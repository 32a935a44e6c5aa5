package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_logins_total",
			Help: "Total number of login attempts by method.",
		},
		[]string{"method", "result"},
	)

	RegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_registrations_total",
			Help: "Total number of registration attempts by method.",
		},
		[]string{"method", "result"},
	)

	TokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_tokens_issued_total",
			Help: "Total number of tokens issued or refreshed.",
		},
		[]string{"flow", "result"},
	)

	VerificationCodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_verification_codes_total",
			Help: "Verification code sends and checks by channel.",
		},
		[]string{"op", "channel", "result"},
	)

	BlacklistOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_blacklist_ops_total",
			Help: "Token blacklist operations.",
		},
		[]string{"op", "result"},
	)

	OAuthExchangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_oauth_exchanges_total",
			Help: "Provider authorization-code exchanges.",
		},
		[]string{"provider", "result"},
	)
)

// MustRegister registers every collector on the default registry with a
// constant service label.
func MustRegister(serviceName string) {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, prometheus.DefaultRegisterer)
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		LoginsTotal,
		RegistrationsTotal,
		TokensIssuedTotal,
		VerificationCodesTotal,
		BlacklistOpsTotal,
		OAuthExchangesTotal,
	)
}
