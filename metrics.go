package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/goliatone/go-taskauth/middleware/jwtware"
)

// Metrics counts gate decisions and login outcomes
type Metrics struct {
	gateDecisions *prometheus.CounterVec
	logins        *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
}

// NewMetrics registers the auth collectors with reg. A nil reg uses
// the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskauth",
			Name:      "gate_decisions_total",
			Help:      "Authentication gate decisions by outcome.",
		}, []string{"decision"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskauth",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskauth",
			Name:      "token_refreshes_total",
			Help:      "Refresh token exchanges by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.gateDecisions, m.logins, m.refreshes)
	return m
}

// DecisionListener feeds gate decisions into the decision counter
func (m *Metrics) DecisionListener() jwtware.DecisionListener {
	return func(_ *fiber.Ctx, d jwtware.Decision) {
		m.gateDecisions.WithLabelValues(string(d)).Inc()
	}
}

// GateDecisions exposes the gate counter
func (m *Metrics) GateDecisions() *prometheus.CounterVec { return m.gateDecisions }

// Logins exposes the login counter
func (m *Metrics) Logins() *prometheus.CounterVec { return m.logins }

// Refreshes exposes the refresh counter
func (m *Metrics) Refreshes() *prometheus.CounterVec { return m.refreshes }

func (m *Metrics) observeLogin(err error) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcomeLabel(err)).Inc()
}

func (m *Metrics) observeRefresh(err error) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcomeLabel(err)).Inc()
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	if e := AsError(err); e != nil {
		return e.TextCode
	}
	return "error"
}
