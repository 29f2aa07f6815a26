package domain

import (
	"context"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/actions"
	"github.com/core-tools/hsu-orchestrator/pkg/correlation"
	"github.com/core-tools/hsu-orchestrator/pkg/decision"
	"github.com/core-tools/hsu-orchestrator/pkg/fleet"
	"github.com/core-tools/hsu-orchestrator/pkg/syncbridge"
	"github.com/core-tools/hsu-orchestrator/pkg/thoughts"
	"github.com/core-tools/hsu-orchestrator/pkg/thoughtstore"
)

// Contract is the operator surface of the orchestrator. The HTTP handler
// serves it and the client gateway implements it remotely.
type Contract interface {
	Health(ctx context.Context) (SelfStatus, error)
	Register(ctx context.Context, registration fleet.Registration) (fleet.Service, error)
	Services(ctx context.Context) ([]fleet.Service, error)
	ResetService(ctx context.Context, name string) (fleet.Service, error)
	Decisions(ctx context.Context) ([]decision.Decision, error)
	Action(ctx context.Context, service, action, reason string) (actions.Result, error)
	Intelligence(ctx context.Context, service string) (Intelligence, error)
	Analyze(ctx context.Context) (AnalysisReport, error)
	Ingest(ctx context.Context, request IngestRequest) (thoughts.Thought, error)
	SyncForce(ctx context.Context) (syncbridge.SyncLogEntry, error)
	SyncStatus(ctx context.Context) (SyncStatus, error)
	SyncHealth(ctx context.Context) (syncbridge.Health, error)
	BridgeThought(ctx context.Context, request BridgeRequest) (BridgeResult, error)
}

// SelfStatus is the orchestrator's own health report.
type SelfStatus struct {
	Status          string              `json:"status"`
	ServicesManaged int                 `json:"services_managed"`
	DecisionsMade   int                 `json:"decisions_made"`
	Queue           thoughts.Stats      `json:"queue"`
	NetworkHealth   fleet.NetworkHealth `json:"network_health"`
	Uptime          string              `json:"uptime"`
	Timestamp       time.Time           `json:"timestamp"`
}

// Intelligence is what the thought store knows about one service.
type Intelligence struct {
	Service  string                `json:"service"`
	Thoughts []thoughtstore.Record `json:"thoughts"`
	Insights correlation.Insights  `json:"insights"`
}

// AnalysisReport summarizes one forced or periodic analysis pass.
type AnalysisReport struct {
	ServicesAnalyzed int                 `json:"services_analyzed"`
	ServicesSkipped  int                 `json:"services_skipped"`
	Decisions        []decision.Decision `json:"decisions"`
	NetworkHealth    fleet.NetworkHealth `json:"network_health"`
	Errors           []string            `json:"errors,omitempty"`
}

// IngestRequest is an externally submitted thought.
type IngestRequest struct {
	Service   string                 `json:"service"`
	EventType string                 `json:"event_type"`
	Data      map[string]interface{} `json:"data"`
	Priority  int                    `json:"priority"`
}

// SyncStatus is the recent sync history plus the active sync settings.
type SyncStatus struct {
	Enabled       bool                      `json:"enabled"`
	Interval      string                    `json:"interval"`
	LocalStore    string                    `json:"local_store"`
	RemoteStore   string                    `json:"remote_store"`
	RecentSyncLog []syncbridge.SyncLogEntry `json:"recent_sync_log"`
}

// BridgeRequest moves one thought across networks on demand.
type BridgeRequest struct {
	Thought   thoughtstore.Record  `json:"thought"`
	Direction syncbridge.Direction `json:"direction"`
}

type BridgeResult struct {
	Status    string               `json:"status"`
	Direction syncbridge.Direction `json:"direction"`
	ID        string               `json:"id"`
}
