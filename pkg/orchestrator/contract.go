package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/actions"
	"github.com/core-tools/hsu-orchestrator/pkg/correlation"
	"github.com/core-tools/hsu-orchestrator/pkg/decision"
	"github.com/core-tools/hsu-orchestrator/pkg/domain"
	"github.com/core-tools/hsu-orchestrator/pkg/errors"
	"github.com/core-tools/hsu-orchestrator/pkg/fleet"
	"github.com/core-tools/hsu-orchestrator/pkg/syncbridge"
	"github.com/core-tools/hsu-orchestrator/pkg/thoughts"
	"github.com/core-tools/hsu-orchestrator/pkg/thoughtstore"
)

// recentDecisions is how many decisions GET /decisions returns.
const recentDecisions = 20

func (o *Orchestrator) Health(ctx context.Context) (domain.SelfStatus, error) {
	now := o.clock.Now()
	return domain.SelfStatus{
		Status:          "healthy",
		ServicesManaged: o.registry.Count(),
		DecisionsMade:   o.engine.Log().Total(),
		Queue:           o.processor.Queue().Stats(),
		NetworkHealth:   o.registry.NetworkHealth(),
		Uptime:          now.Sub(o.startedAt).Round(time.Second).String(),
		Timestamp:       now,
	}, nil
}

// Register adds or refreshes a managed service and forwards the
// registration to the external registry when one is configured. A failed
// forward is logged; the local registration stands.
func (o *Orchestrator) Register(ctx context.Context, registration fleet.Registration) (fleet.Service, error) {
	service, err := o.registry.Register(registration)
	if err != nil {
		return fleet.Service{}, err
	}

	if o.forwarder != nil {
		err := o.forwarder.Register(ctx, thoughtstore.ServiceRegistration{
			ServiceName:    service.Name,
			Port:           service.Port,
			HealthEndpoint: service.HealthEndpoint,
		})
		if err != nil {
			o.logger.Warnf("Failed to forward registration, service: %s, error: %v", service.Name, err)
		}
	}
	return service, nil
}

func (o *Orchestrator) Services(ctx context.Context) ([]fleet.Service, error) {
	return o.registry.List(), nil
}

func (o *Orchestrator) ResetService(ctx context.Context, name string) (fleet.Service, error) {
	lock, err := o.registry.Lock(name)
	if err != nil {
		return fleet.Service{}, err
	}
	lock.Lock()
	defer lock.Unlock()
	return o.registry.Reset(name)
}

func (o *Orchestrator) Decisions(ctx context.Context) ([]decision.Decision, error) {
	return o.engine.Log().Recent(recentDecisions), nil
}

func (o *Orchestrator) Action(ctx context.Context, service, action, reason string) (actions.Result, error) {
	if reason == "" {
		reason = "manual"
	}
	return o.engine.ManualAction(ctx, service, action, reason)
}

func (o *Orchestrator) Intelligence(ctx context.Context, service string) (domain.Intelligence, error) {
	if _, err := o.registry.Get(service); err != nil {
		return domain.Intelligence{}, err
	}

	records, err := o.local.List(ctx, thoughtstore.Filter{Source: service, Limit: o.config.Decision.EvidenceLimit})
	if err != nil {
		return domain.Intelligence{}, err
	}
	if records == nil {
		records = []thoughtstore.Record{}
	}
	return domain.Intelligence{
		Service:  service,
		Thoughts: records,
		Insights: correlation.ExtractInsights(records),
	}, nil
}

func (o *Orchestrator) Analyze(ctx context.Context) (domain.AnalysisReport, error) {
	return o.analyze(ctx), nil
}

type serviceOutcome struct {
	decision *decision.Decision
	err      error
}

// analyze checks and evaluates every service that is not stopped or
// restarting. Services run concurrently; one service's failure never stops
// the others.
func (o *Orchestrator) analyze(ctx context.Context) domain.AnalysisReport {
	services := o.registry.List()
	outcomes := make([]serviceOutcome, len(services))
	report := domain.AnalysisReport{Decisions: []decision.Decision{}}

	var wg sync.WaitGroup
	for i, service := range services {
		if service.Skipped() {
			report.ServicesSkipped++
			continue
		}
		report.ServicesAnalyzed++

		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			outcomes[i] = o.analyzeService(ctx, name)
		}(i, service.Name)
	}
	wg.Wait()

	for _, outcome := range outcomes {
		if outcome.err != nil {
			report.Errors = append(report.Errors, outcome.err.Error())
		}
		if outcome.decision != nil {
			report.Decisions = append(report.Decisions, *outcome.decision)
		}
	}

	snapshot := o.registry.List()
	report.NetworkHealth = fleet.ComputeNetworkHealth(snapshot)
	if o.collectors != nil {
		o.collectors.ObserveFleet(snapshot, report.NetworkHealth)
	}

	o.processor.Emit(thoughts.SourceOrchestrator, thoughts.EventNetworkAnalysis, thoughts.PriorityNetworkAnalysis, map[string]interface{}{
		"services_analyzed": report.ServicesAnalyzed,
		"decisions_made":    o.engine.Log().CountSince(o.clock.Now().Add(-decisionWindow)),
		"network_health":    report.NetworkHealth,
	})

	o.logger.Infof("Analysis pass completed, analyzed: %d, skipped: %d, decisions: %d, network: %s",
		report.ServicesAnalyzed, report.ServicesSkipped, len(report.Decisions), report.NetworkHealth.Grade)
	return report
}

func (o *Orchestrator) analyzeService(ctx context.Context, name string) (outcome serviceOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome.err = errors.NewInternalError("service analysis panicked", nil).
				WithContext("service", name).
				WithContext("panic", r)
		}
	}()

	result, err := o.monitor.Poll(ctx, name)
	if err != nil {
		return serviceOutcome{err: err}
	}
	if o.collectors != nil {
		o.collectors.ObserveHealthCheck(result)
	}

	d, err := o.engine.Evaluate(ctx, name)
	return serviceOutcome{decision: d, err: err}
}

// Ingest accepts an external thought. Urgent thoughts are stored before
// returning.
func (o *Orchestrator) Ingest(ctx context.Context, request domain.IngestRequest) (thoughts.Thought, error) {
	if request.Service == "" {
		return thoughts.Thought{}, errors.NewValidationError("service is required", nil)
	}
	if request.EventType == "" {
		return thoughts.Thought{}, errors.NewValidationError("event_type is required", nil)
	}
	if request.Priority == 0 {
		request.Priority = thoughts.PriorityHealthCheck
	}
	return o.processor.Submit(ctx, thoughts.Thought{
		Source:    request.Service,
		EventType: request.EventType,
		Payload:   request.Data,
		Priority:  request.Priority,
	}), nil
}

func (o *Orchestrator) SyncForce(ctx context.Context) (syncbridge.SyncLogEntry, error) {
	if o.bridge == nil {
		return syncbridge.SyncLogEntry{}, errSyncUnavailable()
	}
	return o.bridge.Run(ctx), nil
}

func (o *Orchestrator) SyncStatus(ctx context.Context) (domain.SyncStatus, error) {
	status := domain.SyncStatus{
		Enabled:       o.bridge != nil && o.config.Sync.IsEnabled(),
		Interval:      o.config.Sync.Interval.String(),
		LocalStore:    string(o.config.Stores.Local.Type),
		RemoteStore:   string(o.config.Stores.Remote.Type),
		RecentSyncLog: []syncbridge.SyncLogEntry{},
	}
	if o.bridge != nil {
		status.RecentSyncLog = o.bridge.History(10)
	}
	return status, nil
}

func (o *Orchestrator) SyncHealth(ctx context.Context) (syncbridge.Health, error) {
	if o.bridge == nil {
		return syncbridge.Health{Status: "disabled"}, nil
	}
	return o.bridge.Health(), nil
}

func (o *Orchestrator) BridgeThought(ctx context.Context, request domain.BridgeRequest) (domain.BridgeResult, error) {
	if o.bridge == nil {
		return domain.BridgeResult{}, errSyncUnavailable()
	}
	id, err := o.bridge.BridgeThought(ctx, request.Thought, request.Direction)
	if err != nil {
		return domain.BridgeResult{}, err
	}
	return domain.BridgeResult{Status: "bridged", Direction: request.Direction, ID: id}, nil
}

func errSyncUnavailable() error {
	return errors.NewStoreUnavailableError("no remote thought store configured", nil)
}
