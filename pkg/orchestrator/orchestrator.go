package orchestrator

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/actions"
	"github.com/core-tools/hsu-orchestrator/pkg/config"
	"github.com/core-tools/hsu-orchestrator/pkg/correlation"
	"github.com/core-tools/hsu-orchestrator/pkg/decision"
	"github.com/core-tools/hsu-orchestrator/pkg/domain"
	"github.com/core-tools/hsu-orchestrator/pkg/errors"
	"github.com/core-tools/hsu-orchestrator/pkg/fleet"
	"github.com/core-tools/hsu-orchestrator/pkg/logging"
	"github.com/core-tools/hsu-orchestrator/pkg/metrics"
	"github.com/core-tools/hsu-orchestrator/pkg/monitoring"
	"github.com/core-tools/hsu-orchestrator/pkg/scheduler"
	"github.com/core-tools/hsu-orchestrator/pkg/syncbridge"
	"github.com/core-tools/hsu-orchestrator/pkg/thoughts"
	"github.com/core-tools/hsu-orchestrator/pkg/thoughtstore"

	"github.com/prometheus/client_golang/prometheus"
)

// State represents the lifecycle of the orchestrator.
type State string

const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StateStopping   State = "stopping"
	StateStopped    State = "stopped"
)

// decisionWindow is the look-back of the decisions_made figure in network
// analysis thoughts.
const decisionWindow = 5 * time.Minute

// Components are the collaborators built outside the orchestrator.
// Remote and Signaler may be nil.
type Components struct {
	Local      thoughtstore.Store
	Remote     thoughtstore.Store
	Signaler   actions.Signaler
	Registerer prometheus.Registerer
	HTTPClient *http.Client
	Clock      scheduler.Clock
}

// Orchestrator wires monitoring, decisions, actions, thoughts and sync
// together and implements domain.Contract.
type Orchestrator struct {
	config     *config.Config
	clock      scheduler.Clock
	logger     logging.Logger
	startedAt  time.Time
	local      thoughtstore.Store
	remote     thoughtstore.Store
	registry   *fleet.Registry
	processor  *thoughts.Processor
	executor   *actions.Executor
	engine     *decision.Engine
	monitor    *monitoring.HealthMonitor
	bridge     *syncbridge.Bridge
	forwarder  *thoughtstore.RegistryClient
	collectors *metrics.Collectors

	mutex sync.Mutex
	state State
	tasks []*scheduler.Task
}

func NewOrchestrator(cfg *config.Config, components Components, logger logging.Logger) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.NewValidationError("configuration is required", nil)
	}
	if components.Local == nil {
		return nil, errors.NewValidationError("local thought store is required", nil)
	}
	clock := components.Clock
	if clock == nil {
		clock = scheduler.RealClock()
	}

	registry := fleet.NewRegistry(fleet.RegistryOptions{
		DefaultHost: cfg.Monitor.DefaultHost,
		Now:         clock.Now,
	}, logging.ForModule(logger, "registry"))

	processor := thoughts.NewProcessor(thoughts.NewQueue(clock.Now), components.Local, thoughts.ProcessorOptions{
		BatchSize:      cfg.Queue.BatchSize,
		Retention:      cfg.Queue.Retention,
		UrgentPriority: cfg.Queue.UrgentPriority,
	}, logging.ForModule(logger, "thoughts"))

	executor := actions.NewExecutor(registry, processor, actions.ExecutorOptions{
		Signaler:    components.Signaler,
		Clock:       clock,
		SettleDelay: cfg.Decision.RestartSettleDelay,
	}, logging.ForModule(logger, "actions"))

	engine := decision.NewEngine(registry, components.Local, executor, processor, decision.Options{
		Thresholds:    cfg.Thresholds,
		Policy:        cfg.Decision.AutoExecute,
		MaxRestarts:   cfg.Decision.MaxRestarts,
		EvidenceLimit: cfg.Decision.EvidenceLimit,
		LogSize:       cfg.Decision.DecisionLogSize,
		Clock:         clock,
	}, logging.ForModule(logger, "decision"))

	monitor := monitoring.NewHealthMonitor(registry, processor, monitoring.HealthMonitorOptions{
		Timeout:    cfg.Monitor.HealthTimeout,
		HTTPClient: components.HTTPClient,
		Clock:      clock,
	}, logging.ForModule(logger, "monitoring"))

	o := &Orchestrator{
		config:    cfg,
		clock:     clock,
		logger:    logger,
		startedAt: clock.Now(),
		local:     components.Local,
		remote:    components.Remote,
		registry:  registry,
		processor: processor,
		executor:  executor,
		engine:    engine,
		monitor:   monitor,
		state:     StateNotStarted,
	}

	if components.Remote != nil {
		o.bridge = syncbridge.NewBridge(components.Local, components.Remote, processor, engine.Log(),
			correlation.NewEngine(correlation.Options{}),
			syncbridge.Options{
				LocalLimit:    cfg.Sync.LocalLimit,
				RemoteLimit:   cfg.Sync.RemoteLimit,
				DecisionLimit: cfg.Sync.DecisionLimit,
				HistorySize:   cfg.Sync.HistorySize,
				Clock:         clock,
			}, logging.ForModule(logger, "sync"))
	}

	if cfg.Registry.URL != "" {
		o.forwarder = thoughtstore.NewRegistryClient(cfg.Registry.URL, components.HTTPClient)
	}

	if components.Registerer != nil {
		o.collectors = metrics.New(components.Registerer)
		processor.SetObserver(o.collectors)
		engine.SetObserver(o.collectors)
		if o.bridge != nil {
			o.bridge.SetObserver(o.collectors)
		}
	}

	for _, service := range cfg.Services {
		_, err := registry.Register(fleet.Registration{
			Name:           service.Name,
			Host:           service.Host,
			Port:           service.Port,
			HealthEndpoint: service.HealthEndpoint,
			Protocol:       fleet.Protocol(service.Protocol),
		})
		if err != nil {
			return nil, errors.NewValidationError("invalid configured service", err).WithContext("service", service.Name)
		}
	}

	return o, nil
}

// Start launches the periodic tasks: health analysis, queue drain and, with
// a remote store, sync.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if o.state == StateRunning {
		return
	}
	o.logger.Infof("Starting orchestrator...")

	o.tasks = []*scheduler.Task{
		scheduler.NewTask(scheduler.TaskConfig{
			Name:       "analysis",
			Interval:   o.config.Monitor.PollInterval,
			RunOnStart: true,
		}, func(ctx context.Context) error {
			report := o.analyze(ctx)
			if len(report.Errors) > 0 {
				return errors.NewTransientServiceError("analysis pass had failures", nil).
					WithContext("failures", len(report.Errors))
			}
			return nil
		}, o.clock, o.logger),
		scheduler.NewTask(scheduler.TaskConfig{
			Name:     "thought-drain",
			Interval: o.config.Queue.DrainInterval,
		}, o.processor.ProcessOnce, o.clock, o.logger),
	}

	if o.bridge != nil && o.config.Sync.IsEnabled() {
		o.tasks = append(o.tasks, scheduler.NewTask(scheduler.TaskConfig{
			Name:         "sync",
			Interval:     o.config.Sync.Interval,
			InitialDelay: o.config.Sync.InitialDelay,
		}, func(ctx context.Context) error {
			o.bridge.Run(ctx)
			return nil
		}, o.clock, o.logger))
	} else {
		o.logger.Infof("Sync is disabled, remote store configured: %t", o.bridge != nil)
	}

	for _, task := range o.tasks {
		task.Start(ctx)
	}

	o.state = StateRunning
	o.logger.Infof("Orchestrator started, services: %d, tasks: %d", o.registry.Count(), len(o.tasks))
}

// Stop halts the periodic tasks and flushes what the queue can still store.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.mutex.Lock()
	if o.state != StateRunning {
		o.mutex.Unlock()
		return
	}
	o.state = StateStopping
	tasks := o.tasks
	o.mutex.Unlock()

	o.logger.Infof("Stopping orchestrator...")

	for _, task := range tasks {
		task.Stop()
	}

	if err := o.processor.ProcessOnce(ctx); err != nil {
		o.logger.Warnf("Final thought drain incomplete, error: %v", err)
	}

	o.mutex.Lock()
	o.state = StateStopped
	o.mutex.Unlock()

	o.logger.Infof("Orchestrator stopped")
}

func (o *Orchestrator) State() State {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return o.state
}

// ApplyConfig takes the hot-reloadable parts of a reloaded configuration.
func (o *Orchestrator) ApplyConfig(cfg *config.Config) {
	o.engine.SetThresholds(cfg.Thresholds)
	o.engine.SetPolicy(cfg.Decision.AutoExecute)
}

func (o *Orchestrator) Registry() *fleet.Registry {
	return o.registry
}

func (o *Orchestrator) Processor() *thoughts.Processor {
	return o.processor
}

func (o *Orchestrator) Engine() *decision.Engine {
	return o.engine
}

// LocalStore is served over HTTP so a peer can use this orchestrator as its
// remote store.
func (o *Orchestrator) LocalStore() thoughtstore.Store {
	return o.local
}

var _ domain.Contract = (*Orchestrator)(nil)
