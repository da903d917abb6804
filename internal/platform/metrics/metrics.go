package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Login outcomes recorded on LoginAttempts.
const (
	OutcomeSuccess     = "success"
	OutcomeNotFound    = "not_found"
	OutcomeUnconfirmed = "unconfirmed"
	OutcomeMismatch    = "credential_mismatch"
	OutcomeError       = "directory_error"
)

// SSO handshake results recorded on SSOHandshakes.
const (
	SSOCompleted         = "completed"
	SSOStashed           = "stashed"
	SSOSignatureMismatch = "signature_mismatch"
	SSOBadRequest        = "bad_request"
	SSOForeignReturnURL  = "foreign_return_url"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	LoginAttempts     *prometheus.CounterVec
	RedirectDecisions *prometheus.CounterVec
	UnsafeRedirects   prometheus.Counter
	Logouts           prometheus.Counter
	InvalidTokens     prometheus.Counter
	DirectoryLatency  prometheus.Histogram
	SSOHandshakes     *prometheus.CounterVec
}

// New creates the metrics and registers them with reg. Passing nil uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bikeauth_login_attempts_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		RedirectDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bikeauth_redirect_decisions_total",
			Help: "Post-login redirect decisions by the hint that produced them",
		}, []string{"source"}),
		UnsafeRedirects: factory.NewCounter(prometheus.CounterOpts{
			Name: "bikeauth_unsafe_redirects_total",
			Help: "return_to hints rejected by the redirect safety check",
		}),
		Logouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "bikeauth_logouts_total",
			Help: "Completed logouts",
		}),
		InvalidTokens: factory.NewCounter(prometheus.CounterOpts{
			Name: "bikeauth_invalid_identity_tokens_total",
			Help: "Identity cookies that failed to resolve to a user",
		}),
		DirectoryLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bikeauth_directory_lookup_duration_seconds",
			Help:    "Latency of user directory lookups during login",
			Buckets: prometheus.DefBuckets,
		}),
		SSOHandshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bikeauth_sso_handshakes_total",
			Help: "Discourse SSO handshakes by result",
		}, []string{"result"}),
	}
}

// IncrementLoginAttempt records a login attempt outcome.
func (m *Metrics) IncrementLoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

// IncrementRedirectDecision records which source produced a post-login destination.
func (m *Metrics) IncrementRedirectDecision(source string, rejectedReturnTo bool) {
	if m == nil {
		return
	}
	m.RedirectDecisions.WithLabelValues(source).Inc()
	if rejectedReturnTo {
		m.UnsafeRedirects.Inc()
	}
}

func (m *Metrics) IncrementLogout() {
	if m == nil {
		return
	}
	m.Logouts.Inc()
}

func (m *Metrics) IncrementInvalidToken() {
	if m == nil {
		return
	}
	m.InvalidTokens.Inc()
}

func (m *Metrics) IncrementSSOHandshake(result string) {
	if m == nil {
		return
	}
	m.SSOHandshakes.WithLabelValues(result).Inc()
}

// ObserveDirectoryLookup records the time since start.
func (m *Metrics) ObserveDirectoryLookup(start time.Time) {
	if m == nil {
		return
	}
	m.DirectoryLatency.Observe(time.Since(start).Seconds())
}
