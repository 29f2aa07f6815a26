package metrics

import (
	"testing"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/actions"
	"github.com/core-tools/hsu-orchestrator/pkg/decision"
	"github.com/core-tools/hsu-orchestrator/pkg/fleet"
	"github.com/core-tools/hsu-orchestrator/pkg/syncbridge"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectors_ThoughtsAndDecisions(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.ThoughtEnqueued("health_error", 8)
	c.ThoughtEnqueued("health_error", 8)
	c.ThoughtStored("health_error")
	c.ThoughtStoreFailed("health_check")
	c.ThoughtsPurged(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.thoughtsEnqueued.WithLabelValues("health_error", "8")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.thoughtsStored.WithLabelValues("health_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.thoughtStoreErrors.WithLabelValues("health_check")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.thoughtsPurged))

	d := decision.Decision{Action: actions.ActionRestart, AutoExecuted: true}
	c.DecisionMade(d)
	c.DecisionExecuted(d, nil)
	c.DecisionExecuted(d, assert.AnError)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.decisionsTotal.WithLabelValues("restart", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decisionExecutions.WithLabelValues("restart", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decisionExecutions.WithLabelValues("restart", "failure")))
}

func TestCollectors_SyncAndFleet(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.SyncCompleted(syncbridge.SyncLogEntry{Status: syncbridge.StatusError, Operations: 3, DurationMs: 1500})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.syncPasses.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.syncOperations))

	services := []fleet.Service{
		{Name: "a", Status: fleet.StatusHealthy},
		{Name: "b", Status: fleet.StatusHealthy},
		{Name: "c", Status: fleet.StatusStopped},
	}
	c.ObserveFleet(services, fleet.ComputeNetworkHealth(services))
	c.ObserveHealthCheck(fleet.HealthCheckResult{Service: "a", Latency: 20 * time.Millisecond})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.servicesByStatus.WithLabelValues("healthy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.servicesByStatus.WithLabelValues("stopped")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.servicesByStatus.WithLabelValues("unhealthy")))
	assert.InDelta(t, 66.67, testutil.ToFloat64(c.networkHealth), 0.01)
}

func TestNew_RegistersOnce(t *testing.T) {
	registry := prometheus.NewRegistry()
	New(registry)
	assert.Panics(t, func() { New(registry) })
}
