package fleet

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a managed service.
type Status string

const (
	StatusUnknown    Status = "unknown"
	StatusHealthy    Status = "healthy"
	StatusUnhealthy  Status = "unhealthy"
	StatusRestarting Status = "restarting"
	StatusStopped    Status = "stopped"
)

// DecisionState tracks where a service is in the decide/act cycle.
type DecisionState string

const (
	DecisionStateNominal       DecisionState = "nominal"
	DecisionStateDegraded      DecisionState = "degraded"       // awaiting decision
	DecisionStateActionPending DecisionState = "action_pending" // decision made, not yet executed
	DecisionStateEscalated     DecisionState = "escalated"      // restarts exhausted
)

// Protocol selects how a service's health endpoint is probed.
type Protocol string

const (
	ProtocolHTTP Protocol = "http"
	ProtocolGRPC Protocol = "grpc"
)

// Metrics is the rolling metrics snapshot of a service. A nil field means
// the value is unknown.
type Metrics struct {
	CPUUsage     *float64 `json:"cpu_usage,omitempty"`
	MemoryUsage  *float64 `json:"memory_usage,omitempty"`
	ErrorRate    *float64 `json:"error_rate,omitempty"`
	ResponseTime *float64 `json:"response_time,omitempty"` // milliseconds
	RequestCount *float64 `json:"request_count,omitempty"`
}

// Merge returns m with every known field of update applied. Fields unknown in
// update keep their previous value.
func (m Metrics) Merge(update Metrics) Metrics {
	merged := m.Clone()
	merged.CPUUsage = pick(merged.CPUUsage, update.CPUUsage)
	merged.MemoryUsage = pick(merged.MemoryUsage, update.MemoryUsage)
	merged.ErrorRate = pick(merged.ErrorRate, update.ErrorRate)
	merged.ResponseTime = pick(merged.ResponseTime, update.ResponseTime)
	merged.RequestCount = pick(merged.RequestCount, update.RequestCount)
	return merged
}

// Clone returns a copy that shares no pointers with m.
func (m Metrics) Clone() Metrics {
	return Metrics{
		CPUUsage:     clonePtr(m.CPUUsage),
		MemoryUsage:  clonePtr(m.MemoryUsage),
		ErrorRate:    clonePtr(m.ErrorRate),
		ResponseTime: clonePtr(m.ResponseTime),
		RequestCount: clonePtr(m.RequestCount),
	}
}

func pick(current, update *float64) *float64 {
	if update != nil {
		return clonePtr(update)
	}
	return current
}

func clonePtr(value *float64) *float64 {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

// Float returns a pointer to v, for building Metrics literals.
func Float(v float64) *float64 {
	return &v
}

// HealthCheckResult is the outcome of one health poll. Only the most recent
// result is kept on the service.
type HealthCheckResult struct {
	Service   string                 `json:"service"`
	Status    Status                 `json:"status"`
	Latency   time.Duration          `json:"latency"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// LatencyMs returns the measured latency in milliseconds.
func (r HealthCheckResult) LatencyMs() float64 {
	return float64(r.Latency) / float64(time.Millisecond)
}

// Registration is the input of Registry.Register.
type Registration struct {
	Name           string   `json:"service_name"`
	Host           string   `json:"host,omitempty"`
	Port           int      `json:"port"`
	HealthEndpoint string   `json:"health_endpoint,omitempty"`
	Protocol       Protocol `json:"protocol,omitempty"`
}

// Service is a managed service. Values handed out by the registry are copies.
type Service struct {
	Name            string             `json:"name"`
	Host            string             `json:"host"`
	Port            int                `json:"port"`
	HealthEndpoint  string             `json:"health_endpoint"`
	Protocol        Protocol           `json:"protocol"`
	Status          Status             `json:"status"`
	DecisionState   DecisionState      `json:"decision_state"`
	RestartCount    int                `json:"restart_count"`
	Metrics         Metrics            `json:"metrics"`
	LastHealthCheck *HealthCheckResult `json:"last_health_check,omitempty"`
	RegisteredAt    time.Time          `json:"registered_at"`
}

// Address returns host:port.
func (s Service) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// HealthURL returns the HTTP URL of the health endpoint.
func (s Service) HealthURL() string {
	return fmt.Sprintf("http://%s%s", s.Address(), s.HealthEndpoint)
}

// Skipped reports whether periodic analysis leaves the service alone.
func (s Service) Skipped() bool {
	return s.Status == StatusStopped || s.Status == StatusRestarting
}

func (s Service) clone() Service {
	copied := s
	copied.Metrics = s.Metrics.Clone()
	if s.LastHealthCheck != nil {
		result := *s.LastHealthCheck
		copied.LastHealthCheck = &result
	}
	return copied
}
