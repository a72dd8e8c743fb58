// Package metrics collects Prometheus metrics for the account lifecycle,
// mail delivery and HTTP traffic, and serves them on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what services and middleware report to. Collector is the
// Prometheus implementation; Nop discards everything.
type Recorder interface {
	RecordRegistration(outcome string)
	RecordVerification(outcome string)
	RecordLogin(outcome string)
	RecordMailDelivery(outcome string)
	RecordHTTPRequest(method string, status int, duration time.Duration)
	RecordRateLimited(route string)
}

// Collector implements Recorder on Prometheus counters and histograms.
type Collector struct {
	registrations *prometheus.CounterVec
	verifications *prometheus.CounterVec
	logins        *prometheus.CounterVec
	mail          *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpLatency   prometheus.Histogram
	rateLimited   *prometheus.CounterVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "study_tracker_registrations_total",
			Help: "Registration attempts by outcome.",
		}, []string{"outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "study_tracker_verifications_total",
			Help: "Email verification attempts by outcome.",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "study_tracker_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		mail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "study_tracker_mail_deliveries_total",
			Help: "Outbound emails by outcome (sent, failed, dropped).",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "study_tracker_http_requests_total",
			Help: "HTTP responses by method and status code.",
		}, []string{"method", "status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "study_tracker_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "study_tracker_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter.",
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.registrations,
		c.verifications,
		c.logins,
		c.mail,
		c.httpRequests,
		c.httpLatency,
		c.rateLimited,
	)

	return c
}

func (c *Collector) RecordRegistration(outcome string) {
	c.registrations.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordVerification(outcome string) {
	c.verifications.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordMailDelivery(outcome string) {
	c.mail.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordHTTPRequest(method string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordRateLimited(route string) {
	c.rateLimited.WithLabelValues(route).Inc()
}

// Nop is a Recorder that records nothing. Tests and callers that do not
// care about metrics use it.
type Nop struct{}

func (Nop) RecordRegistration(string) {}
func (Nop) RecordVerification(string) {}
func (Nop) RecordLogin(string) {}
func (Nop) RecordMailDelivery(string) {}
func (Nop) RecordHTTPRequest(string, int, time.Duration) {}
func (Nop) RecordRateLimited(string) {}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
