// Package decision turns service health and metrics into corrective actions.
package decision

import (
	"fmt"
	"strconv"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/actions"
	"github.com/core-tools/hsu-orchestrator/pkg/config"
	"github.com/core-tools/hsu-orchestrator/pkg/fleet"
)

// Decision is a proposed or executed action. Apart from the execution
// fields it is immutable once logged.
type Decision struct {
	ID           string          `json:"id"`
	Service      string          `json:"service"`
	Action       actions.Action  `json:"action"`
	Reason       string          `json:"reason"`
	Evidence     []string        `json:"evidence"`
	Timestamp    time.Time       `json:"timestamp"`
	Escalation   bool            `json:"escalation,omitempty"`
	AutoExecuted bool            `json:"auto_executed"`
	Executed     bool            `json:"executed"`
	ExecutedAt   *time.Time      `json:"executed_at,omitempty"`
	Result       *actions.Result `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// Proposal is the outcome of the decision rules before evidence is attached.
type Proposal struct {
	Action     actions.Action
	Reason     string
	Escalation bool
}

const (
	reasonRestart    = "unhealthy, attempting restart"
	reasonEscalation = "repeated restart failures, escalate for investigation"
)

// Decide applies the decision rules in order and returns the first match.
// It returns false when the service needs nothing this cycle.
func Decide(service fleet.Service, thresholds config.Thresholds, maxRestarts int) (Proposal, bool) {
	if service.Status == fleet.StatusUnhealthy {
		if service.RestartCount < maxRestarts {
			return Proposal{Action: actions.ActionRestart, Reason: reasonRestart}, true
		}
		return Proposal{Action: actions.ActionScaleDown, Reason: reasonEscalation, Escalation: true}, true
	}

	metrics := service.Metrics
	if metrics.ResponseTime != nil && *metrics.ResponseTime > thresholds.ResponseTimeMs {
		return Proposal{
			Action: actions.ActionScaleUp,
			Reason: fmt.Sprintf("response time %sms exceeds threshold %sms",
				formatNumber(*metrics.ResponseTime), formatNumber(thresholds.ResponseTimeMs)),
		}, true
	}
	if metrics.CPUUsage != nil && *metrics.CPUUsage > thresholds.CPUUsage {
		return Proposal{
			Action: actions.ActionScaleUp,
			Reason: fmt.Sprintf("CPU usage %s%% exceeds threshold %s%%",
				formatNumber(*metrics.CPUUsage*100), formatNumber(thresholds.CPUUsage*100)),
		}, true
	}
	return Proposal{}, false
}

// Breaches lists the thresholds a service currently exceeds, including the
// ones no rule acts on.
func Breaches(metrics fleet.Metrics, thresholds config.Thresholds) []string {
	var breaches []string
	if metrics.ResponseTime != nil && *metrics.ResponseTime > thresholds.ResponseTimeMs {
		breaches = append(breaches, "response_time")
	}
	if metrics.CPUUsage != nil && *metrics.CPUUsage > thresholds.CPUUsage {
		breaches = append(breaches, "cpu_usage")
	}
	if metrics.MemoryUsage != nil && *metrics.MemoryUsage > thresholds.MemoryUsage {
		breaches = append(breaches, "memory_usage")
	}
	if metrics.ErrorRate != nil && *metrics.ErrorRate > thresholds.ErrorRate {
		breaches = append(breaches, "error_rate")
	}
	return breaches
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(float64(int64(v*100+0.5))/100, 'f', -1, 64)
}

// ShouldAutoExecute applies the auto-execute policy to a fresh decision.
func ShouldAutoExecute(policy config.AutoExecutePolicy, evidence []string, restartCount int) bool {
	switch policy {
	case config.AutoExecuteAlways:
		return true
	case config.AutoExecuteNever:
		return false
	default:
		return len(evidence) > 0 || restartCount == 0
	}
}
