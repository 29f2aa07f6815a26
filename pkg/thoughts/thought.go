// Package thoughts holds the thought model, the in-memory thought queue and
// the processor that drains it into a thought store.
package thoughts

import (
	"time"
)

// Event types emitted by orchestrator components.
const (
	EventHealthCheck         = "health_check"
	EventHealthError         = "health_error"
	EventIntelligentDecision = "intelligent_decision"
	EventActionExecuted      = "action_executed"
	EventActionFailed        = "action_failed"
	EventNetworkAnalysis     = "network_analysis"
	EventCrossNetworkInsight = "cross_network_insight"
)

// Priorities of the built-in events.
const (
	PriorityHealthCheck         = 5
	PriorityHealthError         = 8
	PriorityIntelligentDecision = 7
	PriorityActionExecuted      = 6
	PriorityActionFailed        = 9
	PriorityNetworkAnalysis     = 6
)

// SourceOrchestrator is the source of thoughts emitted by the orchestrator
// itself. Thoughts about a managed service carry its name in the payload.
const SourceOrchestrator = "orchestrator"

// Thought is a prioritized observation waiting to be stored.
type Thought struct {
	ID        string                 `json:"id"` // also the store idempotency key
	Source    string                 `json:"service"`
	EventType string                 `json:"event_type"`
	Payload   map[string]interface{} `json:"data"`
	Priority  int                    `json:"priority"`
	Timestamp time.Time              `json:"timestamp"`
	Processed bool                   `json:"processed"`
	StoreID   string                 `json:"store_id,omitempty"`
}

// Emitter accepts thoughts from components. Emit never fails; delivery
// problems are handled by the queue's retry.
type Emitter interface {
	Emit(source, eventType string, priority int, payload map[string]interface{}) Thought
}

func clampPriority(priority int) int {
	if priority < 1 {
		return 1
	}
	if priority > 10 {
		return 10
	}
	return priority
}
