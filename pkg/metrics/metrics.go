// Package metrics exposes orchestrator activity as Prometheus collectors.
package metrics

import (
	"strconv"

	"github.com/core-tools/hsu-orchestrator/pkg/decision"
	"github.com/core-tools/hsu-orchestrator/pkg/fleet"
	"github.com/core-tools/hsu-orchestrator/pkg/syncbridge"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "orchestrator"

// Collectors implements the observer hooks of the processor, decision engine
// and sync bridge.
type Collectors struct {
	thoughtsEnqueued    *prometheus.CounterVec
	thoughtsStored      *prometheus.CounterVec
	thoughtStoreErrors  *prometheus.CounterVec
	thoughtsPurged      prometheus.Counter
	decisionsTotal      *prometheus.CounterVec
	decisionExecutions  *prometheus.CounterVec
	syncPasses          *prometheus.CounterVec
	syncOperations      prometheus.Gauge
	syncDuration        prometheus.Histogram
	servicesByStatus    *prometheus.GaugeVec
	healthCheckDuration *prometheus.HistogramVec
	networkHealth       prometheus.Gauge
}

// New creates the collectors and registers them with registerer.
func New(registerer prometheus.Registerer) *Collectors {
	c := &Collectors{
		thoughtsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thoughts_enqueued_total",
			Help:      "Thoughts accepted by the queue.",
		}, []string{"event_type", "priority"}),
		thoughtsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thoughts_stored_total",
			Help:      "Thoughts acknowledged by the local thought store.",
		}, []string{"event_type"}),
		thoughtStoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thought_store_errors_total",
			Help:      "Failed thought store creates; the thought stays queued.",
		}, []string{"event_type"}),
		thoughtsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thoughts_purged_total",
			Help:      "Processed thoughts evicted after the retention window.",
		}),
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Decisions made, by action.",
		}, []string{"action", "auto_executed"}),
		decisionExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_executions_total",
			Help:      "Decision execution attempts, by action and outcome.",
		}, []string{"action", "outcome"}),
		syncPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_passes_total",
			Help:      "Sync passes, by status.",
		}, []string{"status"}),
		syncOperations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_last_operations",
			Help:      "Phases completed by the most recent sync pass.",
		}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of sync passes.",
			Buckets:   prometheus.DefBuckets,
		}),
		servicesByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "services",
			Help:      "Managed services, by status.",
		}, []string{"status"}),
		healthCheckDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "health_check_duration_seconds",
			Help:      "Health check latency, by service.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),
		networkHealth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "network_health_percentage",
			Help:      "Share of healthy services, 0 to 100.",
		}),
	}

	registerer.MustRegister(
		c.thoughtsEnqueued,
		c.thoughtsStored,
		c.thoughtStoreErrors,
		c.thoughtsPurged,
		c.decisionsTotal,
		c.decisionExecutions,
		c.syncPasses,
		c.syncOperations,
		c.syncDuration,
		c.servicesByStatus,
		c.healthCheckDuration,
		c.networkHealth,
	)
	return c
}

func (c *Collectors) ThoughtEnqueued(eventType string, priority int) {
	c.thoughtsEnqueued.WithLabelValues(eventType, strconv.Itoa(priority)).Inc()
}

func (c *Collectors) ThoughtStored(eventType string) {
	c.thoughtsStored.WithLabelValues(eventType).Inc()
}

func (c *Collectors) ThoughtStoreFailed(eventType string) {
	c.thoughtStoreErrors.WithLabelValues(eventType).Inc()
}

func (c *Collectors) ThoughtsPurged(count int) {
	c.thoughtsPurged.Add(float64(count))
}

func (c *Collectors) DecisionMade(d decision.Decision) {
	c.decisionsTotal.WithLabelValues(string(d.Action), strconv.FormatBool(d.AutoExecuted)).Inc()
}

func (c *Collectors) DecisionExecuted(d decision.Decision, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.decisionExecutions.WithLabelValues(string(d.Action), outcome).Inc()
}

func (c *Collectors) SyncCompleted(entry syncbridge.SyncLogEntry) {
	c.syncPasses.WithLabelValues(entry.Status).Inc()
	c.syncOperations.Set(float64(entry.Operations))
	c.syncDuration.Observe(float64(entry.DurationMs) / 1000)
}

// ObserveHealthCheck records one probe.
func (c *Collectors) ObserveHealthCheck(result fleet.HealthCheckResult) {
	c.healthCheckDuration.WithLabelValues(result.Service).Observe(result.Latency.Seconds())
}

// ObserveFleet refreshes the per-status gauges from a registry snapshot.
func (c *Collectors) ObserveFleet(services []fleet.Service, health fleet.NetworkHealth) {
	counts := map[fleet.Status]int{
		fleet.StatusUnknown:    0,
		fleet.StatusHealthy:    0,
		fleet.StatusUnhealthy:  0,
		fleet.StatusRestarting: 0,
		fleet.StatusStopped:    0,
	}
	for _, service := range services {
		counts[service.Status]++
	}
	for status, count := range counts {
		c.servicesByStatus.WithLabelValues(string(status)).Set(float64(count))
	}
	c.networkHealth.Set(health.Percentage)
}
