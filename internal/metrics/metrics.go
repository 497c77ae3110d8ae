package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"xui-shop-core/internal/models"
)

// Result labels
const (
	ResultOK    = "ok"
	ResultError = "error"
	ResultHit   = "hit"
	ResultMiss  = "miss"
)

// Metrics holds the collectors of the entitlement core. A nil *Metrics is a no-op.
type Metrics struct {
	panelRequests *prometheus.CounterVec
	loginAttempts *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	reconcileRuns *prometheus.CounterVec
	reconcileLast *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		panelRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xui_panel_requests_total",
			Help: "Panel API calls by operation and result",
		}, []string{"operation", "result"}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xui_login_attempts_total",
			Help: "Panel login attempts by result",
		}, []string{"result"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xui_cache_lookups_total",
			Help: "Client lookup cache hits and misses",
		}, []string{"result"}),
		reconcileRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xui_reconcile_runs_total",
			Help: "Reconciliation passes by result",
		}, []string{"result"}),
		reconcileLast: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "xui_reconcile_last",
			Help: "Counters of the last completed reconciliation pass",
		}, []string{"field"}),
	}

	reg.MustRegister(m.panelRequests, m.loginAttempts, m.cacheLookups, m.reconcileRuns, m.reconcileLast)
	return m
}

// PanelRequest counts a panel API call
func (m *Metrics) PanelRequest(operation string, err error) {
	if m == nil {
		return
	}
	m.panelRequests.WithLabelValues(operation, result(err)).Inc()
}

// LoginAttempt counts one login attempt
func (m *Metrics) LoginAttempt(err error) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(result(err)).Inc()
}

// CacheLookup counts a client cache hit or miss
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookups.WithLabelValues(ResultHit).Inc()
		return
	}
	m.cacheLookups.WithLabelValues(ResultMiss).Inc()
}

// ReconcileFailed counts a pass that could not run
func (m *Metrics) ReconcileFailed() {
	if m == nil {
		return
	}
	m.reconcileRuns.WithLabelValues(ResultError).Inc()
}

// ReconcileDone counts a completed pass and publishes its stats
func (m *Metrics) ReconcileDone(stats models.SyncStats) {
	if m == nil {
		return
	}
	m.reconcileRuns.WithLabelValues(ResultOK).Inc()
	m.reconcileLast.WithLabelValues("users_in_registry").Set(float64(stats.UsersInRegistry))
	m.reconcileLast.WithLabelValues("users_in_panel").Set(float64(stats.UsersInPanel))
	m.reconcileLast.WithLabelValues("synced").Set(float64(stats.Synced))
	m.reconcileLast.WithLabelValues("updated").Set(float64(stats.Updated))
	m.reconcileLast.WithLabelValues("cleared").Set(float64(stats.Cleared))
	m.reconcileLast.WithLabelValues("errors").Set(float64(stats.Errors))
	m.reconcileLast.WithLabelValues("extra_clients_added").Set(float64(stats.ExtraClientsAdded))
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
