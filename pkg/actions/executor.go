package actions

import (
	"context"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"
	"github.com/core-tools/hsu-orchestrator/pkg/fleet"
	"github.com/core-tools/hsu-orchestrator/pkg/logging"
	"github.com/core-tools/hsu-orchestrator/pkg/scheduler"
	"github.com/core-tools/hsu-orchestrator/pkg/thoughts"
)

// Executor carries out actions against registered services. Callers that
// decide and act must hold the service's registry lock.
type Executor struct {
	registry    *fleet.Registry
	signaler    Signaler
	emitter     thoughts.Emitter
	clock       scheduler.Clock
	settleDelay time.Duration
	logger      logging.Logger
}

type ExecutorOptions struct {
	Signaler    Signaler
	Clock       scheduler.Clock
	SettleDelay time.Duration
}

func NewExecutor(registry *fleet.Registry, emitter thoughts.Emitter, options ExecutorOptions, logger logging.Logger) *Executor {
	if options.Clock == nil {
		options.Clock = scheduler.RealClock()
	}
	if options.Signaler == nil {
		options.Signaler = NewLogSignaler(logger)
	}
	return &Executor{
		registry:    registry,
		signaler:    options.Signaler,
		emitter:     emitter,
		clock:       options.Clock,
		settleDelay: options.SettleDelay,
		logger:      logger,
	}
}

// Execute runs the named action. Unknown services fail with a not found
// error, unsupported names with an unknown action error. Every attempt emits
// an action_executed or action_failed thought.
func (e *Executor) Execute(ctx context.Context, serviceName, actionName, reason string) (Result, error) {
	if _, err := e.registry.Get(serviceName); err != nil {
		e.emitFailed(serviceName, Action(actionName), reason, err)
		return Result{}, err
	}

	action, err := ParseAction(actionName)
	if err != nil {
		e.logger.Warnf("Rejected unknown action, service: %s, action: %s", serviceName, actionName)
		e.emitFailed(serviceName, Action(actionName), reason, err)
		return Result{}, err
	}

	e.logger.Infof("Executing action, service: %s, action: %s, reason: %s", serviceName, action, reason)

	var result Result
	switch action {
	case ActionRestart:
		result, err = e.restart(serviceName)
	case ActionScaleUp:
		result, err = e.scale(ctx, serviceName, action, "+1", reason)
	case ActionScaleDown:
		result, err = e.scale(ctx, serviceName, action, "-1", reason)
	case ActionStop:
		result, err = e.stop(ctx, serviceName, reason)
	}
	if err != nil {
		e.logger.Errorf("Action failed, service: %s, action: %s, error: %v", serviceName, action, err)
		e.emitFailed(serviceName, action, reason, err)
		return Result{}, err
	}

	e.emitter.Emit(thoughts.SourceOrchestrator, thoughts.EventActionExecuted, thoughts.PriorityActionExecuted, map[string]interface{}{
		"service": serviceName,
		"action":  string(action),
		"reason":  reason,
		"result":  result,
	})
	return result, nil
}

// restart is the only path that increments restart_count.
func (e *Executor) restart(serviceName string) (Result, error) {
	_, err := e.registry.Update(serviceName, func(service *fleet.Service) error {
		service.Status = fleet.StatusRestarting
		service.RestartCount++
		return nil
	})
	if err != nil {
		return Result{}, errors.NewActionExecutionError("failed to mark service restarting", err).
			WithContext("service", serviceName)
	}

	e.clock.AfterFunc(e.settleDelay, func() {
		service, err := e.registry.Update(serviceName, func(service *fleet.Service) error {
			// A stop or re-registration during the settle delay wins.
			if service.Status == fleet.StatusRestarting {
				service.Status = fleet.StatusHealthy
			}
			return nil
		})
		if err != nil {
			e.logger.Warnf("Failed to settle restart, service: %s, error: %v", serviceName, err)
			return
		}
		e.logger.Infof("Restart settled, service: %s, status: %s, restart count: %d",
			serviceName, service.Status, service.RestartCount)
	})

	return Result{Action: ActionRestart, Status: ResultStatusInitiated}, nil
}

func (e *Executor) scale(ctx context.Context, serviceName string, action Action, instances, reason string) (Result, error) {
	err := e.signaler.Signal(ctx, Signal{
		Service:   serviceName,
		Action:    action,
		Instances: instances,
		Reason:    reason,
		Timestamp: e.clock.Now(),
	})
	if err != nil {
		if errors.IsActionExecutionError(err) {
			return Result{}, err
		}
		return Result{}, errors.NewActionExecutionError("scale signal failed", err).
			WithContext("service", serviceName).
			WithContext("action", string(action))
	}
	return Result{Action: action, Status: ResultStatusScaling, Instances: instances}, nil
}

func (e *Executor) stop(ctx context.Context, serviceName, reason string) (Result, error) {
	_, err := e.registry.Update(serviceName, func(service *fleet.Service) error {
		service.Status = fleet.StatusStopped
		return nil
	})
	if err != nil {
		return Result{}, errors.NewActionExecutionError("failed to mark service stopped", err).
			WithContext("service", serviceName)
	}

	// Best effort, the registry already records the stop.
	err = e.signaler.Signal(ctx, Signal{
		Service:   serviceName,
		Action:    ActionStop,
		Reason:    reason,
		Timestamp: e.clock.Now(),
	})
	if err != nil {
		e.logger.Warnf("Failed to signal stop, service: %s, error: %v", serviceName, err)
	}
	return Result{Action: ActionStop, Status: ResultStatusStopped}, nil
}

func (e *Executor) emitFailed(serviceName string, action Action, reason string, err error) {
	e.emitter.Emit(thoughts.SourceOrchestrator, thoughts.EventActionFailed, thoughts.PriorityActionFailed, map[string]interface{}{
		"service": serviceName,
		"action":  string(action),
		"reason":  reason,
		"error":   err.Error(),
	})
}
