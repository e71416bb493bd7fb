package authz

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"authz/pkg/oauth"
)

// Exchange results recorded by Metrics.
const (
	resultSuccess            = "success"
	resultAuthorizationError = "authorization_error"
	resultHTTPError          = "http_error"
	resultTransportError     = "transport_error"
	resultError              = "error"
)

// Metrics records token exchange activity. A nil *Metrics records nothing.
type Metrics struct {
	exchanges        *prometheus.CounterVec
	exchangeDuration *prometheus.HistogramVec
	cacheHits        prometheus.Counter
	sharedFetches    prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when it is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authz",
			Name:      "token_exchanges_total",
			Help:      "Token exchanges by grant type and result.",
		}, []string{"grant_type", "result"}),
		exchangeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "authz",
			Name:      "token_exchange_duration_seconds",
			Help:      "Latency of token exchanges against the authorization server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"grant_type"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authz",
			Name:      "token_cache_hits_total",
			Help:      "Access token requests answered from the stored session without a network call.",
		}),
		sharedFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "authz",
			Name:      "token_shared_fetches_total",
			Help:      "Callers that joined an exchange already in flight for the same account.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.exchanges, m.exchangeDuration, m.cacheHits, m.sharedFetches)
	}
	return m
}

func (m *Metrics) observeExchange(grantType string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.exchanges.WithLabelValues(grantType, exchangeResult(err)).Inc()
	m.exchangeDuration.WithLabelValues(grantType).Observe(time.Since(started).Seconds())
}

func (m *Metrics) cacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) sharedFetch() {
	if m == nil {
		return
	}
	m.sharedFetches.Inc()
}

func exchangeResult(err error) string {
	var (
		authErr      *oauth.AuthorizationError
		httpErr      *oauth.HTTPError
		transportErr *oauth.TransportError
	)
	switch {
	case err == nil:
		return resultSuccess
	case errors.As(err, &authErr):
		return resultAuthorizationError
	case errors.As(err, &httpErr):
		return resultHTTPError
	case errors.As(err, &transportErr):
		return resultTransportError
	default:
		return resultError
	}
}
