package decision

import (
	"context"
	"sync"

	"github.com/core-tools/hsu-orchestrator/pkg/actions"
	"github.com/core-tools/hsu-orchestrator/pkg/config"
	"github.com/core-tools/hsu-orchestrator/pkg/correlation"
	"github.com/core-tools/hsu-orchestrator/pkg/fleet"
	"github.com/core-tools/hsu-orchestrator/pkg/logging"
	"github.com/core-tools/hsu-orchestrator/pkg/scheduler"
	"github.com/core-tools/hsu-orchestrator/pkg/thoughts"
	"github.com/core-tools/hsu-orchestrator/pkg/thoughtstore"

	"github.com/google/uuid"
)

// Observer is told about every decision and execution outcome.
type Observer interface {
	DecisionMade(decision Decision)
	DecisionExecuted(decision Decision, err error)
}

type nopObserver struct{}

func (nopObserver) DecisionMade(Decision)            {}
func (nopObserver) DecisionExecuted(Decision, error) {}

type Options struct {
	Thresholds    config.Thresholds
	Policy        config.AutoExecutePolicy
	MaxRestarts   int
	EvidenceLimit int
	LogSize       int
	Clock         scheduler.Clock
}

// Engine evaluates services one at a time under their registry lock, logs
// every decision and auto-executes the ones the policy allows.
type Engine struct {
	registry *fleet.Registry
	store    thoughtstore.Store
	executor *actions.Executor
	emitter  thoughts.Emitter
	log      *Log
	clock    scheduler.Clock
	logger   logging.Logger

	mutex         sync.RWMutex
	thresholds    config.Thresholds
	policy        config.AutoExecutePolicy
	maxRestarts   int
	evidenceLimit int
	observer      Observer
}

func NewEngine(registry *fleet.Registry, store thoughtstore.Store, executor *actions.Executor, emitter thoughts.Emitter, options Options, logger logging.Logger) *Engine {
	if options.Clock == nil {
		options.Clock = scheduler.RealClock()
	}
	if options.MaxRestarts <= 0 {
		options.MaxRestarts = 3
	}
	if options.EvidenceLimit <= 0 {
		options.EvidenceLimit = 10
	}
	if options.Policy == "" {
		options.Policy = config.AutoExecuteEvidenceOrFirstRestart
	}
	return &Engine{
		registry:      registry,
		store:         store,
		executor:      executor,
		emitter:       emitter,
		log:           NewLog(options.LogSize),
		clock:         options.Clock,
		logger:        logger,
		thresholds:    options.Thresholds,
		policy:        options.Policy,
		maxRestarts:   options.MaxRestarts,
		evidenceLimit: options.EvidenceLimit,
		observer:      nopObserver{},
	}
}

func (e *Engine) SetObserver(observer Observer) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.observer = observer
}

// SetThresholds swaps the thresholds used from the next evaluation on.
func (e *Engine) SetThresholds(thresholds config.Thresholds) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.thresholds = thresholds
	e.logger.Infof("Decision thresholds updated, response time: %vms, cpu: %v, memory: %v, error rate: %v",
		thresholds.ResponseTimeMs, thresholds.CPUUsage, thresholds.MemoryUsage, thresholds.ErrorRate)
}

func (e *Engine) SetPolicy(policy config.AutoExecutePolicy) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.policy = policy
	e.logger.Infof("Auto-execute policy updated, policy: %s", policy)
}

func (e *Engine) Thresholds() config.Thresholds {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.thresholds
}

func (e *Engine) Log() *Log {
	return e.log
}

func (e *Engine) settings() (config.Thresholds, config.AutoExecutePolicy, Observer) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.thresholds, e.policy, e.observer
}

// Evaluate runs one decision cycle for a service. It returns nil when the
// service is skipped or needs nothing. Execution failures are recorded on
// the decision, not returned.
func (e *Engine) Evaluate(ctx context.Context, serviceName string) (*Decision, error) {
	lock, err := e.registry.Lock(serviceName)
	if err != nil {
		return nil, err
	}
	lock.Lock()
	defer lock.Unlock()

	service, err := e.registry.Get(serviceName)
	if err != nil {
		return nil, err
	}
	if service.Skipped() {
		e.logger.Debugf("Skipping evaluation, service: %s, status: %s", service.Name, service.Status)
		return nil, nil
	}

	thresholds, policy, observer := e.settings()

	proposal, ok := Decide(service, thresholds, e.maxRestarts)
	if !ok {
		if service.DecisionState != fleet.DecisionStateEscalated && service.DecisionState != fleet.DecisionStateNominal {
			e.setState(serviceName, fleet.DecisionStateNominal)
		}
		return nil, nil
	}

	e.setState(serviceName, fleet.DecisionStateDegraded)

	evidence := e.gatherEvidence(ctx, serviceName, proposal.Action)
	decision := Decision{
		ID:           uuid.New().String(),
		Service:      serviceName,
		Action:       proposal.Action,
		Reason:       proposal.Reason,
		Evidence:     evidence,
		Timestamp:    e.clock.Now(),
		Escalation:   proposal.Escalation,
		AutoExecuted: ShouldAutoExecute(policy, evidence, service.RestartCount),
	}
	e.log.Append(decision)
	observer.DecisionMade(decision)

	e.logger.Infof("Decision made, service: %s, action: %s, reason: %s, evidence: %d, auto execute: %v",
		serviceName, decision.Action, decision.Reason, len(evidence), decision.AutoExecuted)

	e.emitter.Emit(thoughts.SourceOrchestrator, thoughts.EventIntelligentDecision, thoughts.PriorityIntelligentDecision, map[string]interface{}{
		"decision_id":   decision.ID,
		"service":       serviceName,
		"action":        string(decision.Action),
		"reason":        decision.Reason,
		"evidence":      evidence,
		"escalation":    decision.Escalation,
		"auto_executed": decision.AutoExecuted,
		"breaches":      Breaches(service.Metrics, thresholds),
	})

	if proposal.Escalation {
		e.setState(serviceName, fleet.DecisionStateEscalated)
	} else {
		e.setState(serviceName, fleet.DecisionStateActionPending)
	}

	if decision.AutoExecuted {
		e.execute(ctx, decision, observer)
	}

	stored, _ := e.log.Get(decision.ID)
	return &stored, nil
}

// ManualAction executes an operator-requested action. When a pending
// decision for the same service and action exists, the newest one is marked
// executed by this call.
func (e *Engine) ManualAction(ctx context.Context, serviceName, actionName, reason string) (actions.Result, error) {
	lock, err := e.registry.Lock(serviceName)
	if err != nil {
		return actions.Result{}, err
	}
	lock.Lock()
	defer lock.Unlock()

	_, _, observer := e.settings()

	pending, hasPending := e.log.LatestPending(serviceName, actions.Action(actionName))
	if reason == "" && hasPending {
		reason = pending.Reason
	}

	result, err := e.executor.Execute(ctx, serviceName, actionName, reason)
	if !hasPending {
		return result, err
	}

	if err != nil {
		e.log.MarkFailed(pending.ID, err)
		observer.DecisionExecuted(pending, err)
		return result, err
	}
	if e.log.MarkExecuted(pending.ID, result, e.clock.Now()) {
		e.logger.Infof("Pending decision executed manually, service: %s, action: %s, decision: %s",
			serviceName, actionName, pending.ID)
		observer.DecisionExecuted(pending, nil)
		e.settleState(serviceName, pending)
	}
	return result, nil
}

func (e *Engine) execute(ctx context.Context, decision Decision, observer Observer) {
	result, err := e.executor.Execute(ctx, decision.Service, string(decision.Action), decision.Reason)
	if err != nil {
		e.log.MarkFailed(decision.ID, err)
		observer.DecisionExecuted(decision, err)
		if !decision.Escalation {
			e.setState(decision.Service, fleet.DecisionStateDegraded)
		}
		return
	}
	e.log.MarkExecuted(decision.ID, result, e.clock.Now())
	observer.DecisionExecuted(decision, nil)
	e.settleState(decision.Service, decision)
}

func (e *Engine) settleState(serviceName string, decision Decision) {
	if decision.Escalation {
		e.setState(serviceName, fleet.DecisionStateEscalated)
		return
	}
	e.setState(serviceName, fleet.DecisionStateNominal)
}

func (e *Engine) setState(serviceName string, state fleet.DecisionState) {
	_, err := e.registry.Update(serviceName, func(service *fleet.Service) error {
		service.DecisionState = state
		return nil
	})
	if err != nil {
		e.logger.Warnf("Failed to update decision state, service: %s, state: %s, error: %v", serviceName, state, err)
	}
}

// gatherEvidence turns the service's recent stored thoughts into insight
// strings: alerts back a restart or escalation, recommendations back a scale
// up. A store failure leaves the decision without evidence.
func (e *Engine) gatherEvidence(ctx context.Context, serviceName string, action actions.Action) []string {
	records, err := e.store.List(ctx, thoughtstore.Filter{Source: serviceName, Limit: e.evidenceLimit})
	if err != nil {
		e.logger.Warnf("Failed to gather decision evidence, service: %s, error: %v", serviceName, err)
		return []string{}
	}

	insights := correlation.ExtractInsights(records)
	evidence := insights.Alerts
	if action == actions.ActionScaleUp {
		evidence = insights.Recommendations
	}
	if len(evidence) > e.evidenceLimit {
		evidence = evidence[:e.evidenceLimit]
	}
	return evidence
}
