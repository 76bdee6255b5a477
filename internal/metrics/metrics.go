// Package metrics collects and exposes Prometheus metrics for the session
// service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/al-bashkir/simplifyhealth/internal/session"
)

var _ session.Recorder = (*Collector)(nil)

// Collector records auth operations, session transitions and HTTP status
// codes.
type Collector struct {
	operations  *prometheus.CounterVec
	transitions *prometheus.CounterVec
	signedIn    prometheus.Gauge
	httpStatus  *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simplifyhealth_auth_operations_total",
			Help: "Auth operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simplifyhealth_session_transitions_total",
			Help: "Committed session states.",
		}, []string{"state"}),
		signedIn: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simplifyhealth_session_signed_in",
			Help: "1 while a user is signed in.",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simplifyhealth_http_responses_total",
			Help: "HTTP API responses by status code.",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.operations,
		c.transitions,
		c.signedIn,
		c.httpStatus,
	)

	return c
}

// RecordOperation counts one finished auth operation.
func (c *Collector) RecordOperation(op session.Operation, outcome session.Outcome) {
	c.operations.WithLabelValues(label(string(op)), string(outcome)).Inc()
}

// RecordTransition counts a committed state and updates the signed-in gauge.
func (c *Collector) RecordTransition(st session.State) {
	c.transitions.WithLabelValues(label(st.Status().String())).Inc()
	if st.IsSignedIn() {
		c.signedIn.Set(1)
	} else {
		c.signedIn.Set(0)
	}
}

// RecordHTTPStatus counts one HTTP response.
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func label(s string) string {
	return strings.ReplaceAll(s, " ", "_")
}
