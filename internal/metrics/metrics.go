package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/algoshield/rules"
)

const namespace = "algoshield"

// SessionLocalLabel is the rule_id label for rules the catalog did not supply.
const SessionLocalLabel = "session_local"

// Collector owns a private Prometheus registry with the engine and session
// metrics. It implements rules.Observer so engines report rule outcomes to it
// directly.
type Collector struct {
	registry *prometheus.Registry

	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	actionsTotal       *prometheus.CounterVec
	ruleFiredTotal     *prometheus.CounterVec
	ruleNearMissTotal  *prometheus.CounterVec
	activeSessions     prometheus.Gauge
	sessionsEvicted    prometheus.Counter
	catalogReloads     *prometheus.CounterVec

	catalogIDs map[string]struct{}
	mu         sync.RWMutex
}

var _ rules.Observer = (*Collector)(nil)

// NewCollector creates and registers all metrics. A nil registry gets a
// fresh one.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry:   registry,
		catalogIDs: make(map[string]struct{}),
		evaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Context evaluations by outcome",
		}, []string{"outcome"}),
		evaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent evaluating a context against a session's rules",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 15), // 1µs to 16ms
		}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_emitted_total",
			Help:      "Actions emitted by type",
		}, []string{"type"}),
		ruleFiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_fired_total",
			Help:      "Rules whose conditions held and whose probability gate passed",
		}, []string{"rule_id"}),
		ruleNearMissTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_near_miss_total",
			Help:      "Rules whose conditions held but whose probability gate did not pass",
		}, []string{"rule_id"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory",
		}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Sessions removed by the idle sweeper",
		}),
		catalogReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_reloads_total",
			Help:      "Catalog file reloads by result",
		}, []string{"result"}),
	}

	registry.MustRegister(
		c.evaluationsTotal,
		c.evaluationDuration,
		c.actionsTotal,
		c.ruleFiredTotal,
		c.ruleNearMissTotal,
		c.activeSessions,
		c.sessionsEvicted,
		c.catalogReloads,
	)
	return c
}

// Registry returns the registry the metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// TrackRules replaces the set of catalog rule ids that get their own
// rule_id label. Any other id is counted under SessionLocalLabel.
func (c *Collector) TrackRules(ids []string) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	c.mu.Lock()
	c.catalogIDs = set
	c.mu.Unlock()
}

func (c *Collector) ruleLabel(id string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.catalogIDs[id]; ok {
		return id
	}
	return SessionLocalLabel
}

// RuleFired counts a rule that produced actions.
func (c *Collector) RuleFired(rule rules.Rule, actions int) {
	c.ruleFiredTotal.WithLabelValues(c.ruleLabel(rule.ID)).Inc()
}

// RuleNearMiss counts a rule whose conditions held but whose draw failed.
func (c *Collector) RuleNearMiss(rule rules.Rule, draw float64) {
	c.ruleNearMissTotal.WithLabelValues(c.ruleLabel(rule.ID)).Inc()
}

// RecordEvaluation records one evaluation and the actions it produced.
func (c *Collector) RecordEvaluation(actions []rules.Action, took time.Duration) {
	outcome := "no_action"
	if len(actions) > 0 {
		outcome = "actions"
	}
	c.evaluationsTotal.WithLabelValues(outcome).Inc()
	c.evaluationDuration.Observe(took.Seconds())
	for _, a := range actions {
		c.actionsTotal.WithLabelValues(string(a.Type())).Inc()
	}
}

// RecordEvaluationError counts an evaluation rejected before it ran.
func (c *Collector) RecordEvaluationError() {
	c.evaluationsTotal.WithLabelValues("error").Inc()
}

// SetActiveSessions sets the live session gauge.
func (c *Collector) SetActiveSessions(n int) {
	c.activeSessions.Set(float64(n))
}

// SessionsEvicted counts sessions removed by the sweeper.
func (c *Collector) SessionsEvicted(n int) {
	c.sessionsEvicted.Add(float64(n))
}

// CatalogReloaded counts a catalog reload by result.
func (c *Collector) CatalogReloaded(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.catalogReloads.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
