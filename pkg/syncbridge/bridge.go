// Package syncbridge reconciles the local thought store with a remote one in
// periodic four-phase passes.
package syncbridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/correlation"
	"github.com/core-tools/hsu-orchestrator/pkg/decision"
	"github.com/core-tools/hsu-orchestrator/pkg/errors"
	"github.com/core-tools/hsu-orchestrator/pkg/logging"
	"github.com/core-tools/hsu-orchestrator/pkg/scheduler"
	"github.com/core-tools/hsu-orchestrator/pkg/thoughts"
	"github.com/core-tools/hsu-orchestrator/pkg/thoughtstore"
)

// Sources stamped on bridged thoughts. Each phase skips records carrying the
// other direction's source so a thought never bounces back.
const (
	SourceRemoteSync = "hosting-sync"
	SourceLocalSync  = "microservice-sync"
)

// Phase names, in execution order.
const (
	PhasePushLocal          = "push_local"
	PhasePullRemote         = "pull_remote"
	PhaseCorrelate          = "correlate"
	PhasePropagateDecisions = "propagate_decisions"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Direction of an on-demand bridge.
type Direction string

const (
	DirectionToRemote Direction = "to_remote"
	DirectionToLocal  Direction = "to_local"
)

type PhaseReport struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Items  int    `json:"items"`
	Error  string `json:"error,omitempty"`
}

// SyncLogEntry summarizes one pass. Operations counts the phases that
// completed without error.
type SyncLogEntry struct {
	Timestamp  time.Time     `json:"timestamp"`
	DurationMs int64         `json:"duration_ms"`
	Status     string        `json:"status"`
	Operations int           `json:"operations"`
	Phases     []PhaseReport `json:"phases"`
}

// Ingestor takes bridged thoughts into the local network.
type Ingestor interface {
	Submit(ctx context.Context, thought thoughts.Thought) thoughts.Thought
}

// DecisionSource yields recent decisions, oldest first.
type DecisionSource interface {
	Recent(n int) []decision.Decision
}

// Observer is told about every completed pass.
type Observer interface {
	SyncCompleted(entry SyncLogEntry)
}

type nopObserver struct{}

func (nopObserver) SyncCompleted(SyncLogEntry) {}

type Options struct {
	LocalLimit    int
	RemoteLimit   int
	DecisionLimit int
	HistorySize   int
	Clock         scheduler.Clock
}

type Bridge struct {
	local       thoughtstore.Store
	remote      thoughtstore.Store
	ingestor    Ingestor
	decisions   DecisionSource
	correlation *correlation.Engine
	options     Options
	clock       scheduler.Clock
	logger      logging.Logger

	// One pass at a time; a forced pass waits for a running one.
	passMutex sync.Mutex

	mutex    sync.RWMutex
	history  []SyncLogEntry
	lastSync *time.Time
	observer Observer
}

func NewBridge(local, remote thoughtstore.Store, ingestor Ingestor, decisions DecisionSource, engine *correlation.Engine, options Options, logger logging.Logger) *Bridge {
	if options.LocalLimit <= 0 {
		options.LocalLimit = 20
	}
	if options.RemoteLimit <= 0 {
		options.RemoteLimit = 50
	}
	if options.DecisionLimit <= 0 {
		options.DecisionLimit = 5
	}
	if options.HistorySize <= 0 {
		options.HistorySize = 100
	}
	if options.Clock == nil {
		options.Clock = scheduler.RealClock()
	}
	if engine == nil {
		engine = correlation.NewEngine(correlation.Options{})
	}
	return &Bridge{
		local:       local,
		remote:      remote,
		ingestor:    ingestor,
		decisions:   decisions,
		correlation: engine,
		options:     options,
		clock:       options.Clock,
		logger:      logger,
		observer:    nopObserver{},
	}
}

func (b *Bridge) SetObserver(observer Observer) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.observer = observer
}

// Run performs one full pass. A failing phase is recorded and the next phase
// runs regardless.
func (b *Bridge) Run(ctx context.Context) SyncLogEntry {
	b.passMutex.Lock()
	defer b.passMutex.Unlock()

	started := b.clock.Now()
	b.logger.Infof("Starting sync pass")

	phases := []struct {
		name string
		fn   func(ctx context.Context) (int, error)
	}{
		{PhasePushLocal, b.pushLocal},
		{PhasePullRemote, b.pullRemote},
		{PhaseCorrelate, b.correlate},
		{PhasePropagateDecisions, b.propagateDecisions},
	}

	entry := SyncLogEntry{Timestamp: started, Status: StatusSuccess}
	for _, phase := range phases {
		items, err := b.runPhase(ctx, phase.name, phase.fn)
		report := PhaseReport{Name: phase.name, Status: StatusSuccess, Items: items}
		if err != nil {
			report.Status = StatusError
			report.Error = err.Error()
			entry.Status = StatusError
			b.logger.Warnf("Sync phase failed, phase: %s, error: %v", phase.name, err)
		} else {
			entry.Operations++
			b.logger.Debugf("Sync phase completed, phase: %s, items: %d", phase.name, items)
		}
		entry.Phases = append(entry.Phases, report)
	}
	entry.DurationMs = b.clock.Now().Sub(started).Milliseconds()

	b.mutex.Lock()
	b.history = append(b.history, entry)
	if len(b.history) > b.options.HistorySize {
		b.history = b.history[len(b.history)-b.options.HistorySize:]
	}
	b.lastSync = &started
	observer := b.observer
	b.mutex.Unlock()

	observer.SyncCompleted(entry)
	b.logger.Infof("Sync pass completed, status: %s, operations: %d, duration: %dms",
		entry.Status, entry.Operations, entry.DurationMs)
	return entry
}

func (b *Bridge) runPhase(ctx context.Context, name string, fn func(ctx context.Context) (int, error)) (items int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewInternalError(fmt.Sprintf("sync phase panicked: %v", r), nil).WithContext("phase", name)
		}
	}()
	return fn(ctx)
}

// pushLocal sends hosting-relevant local thoughts to the remote store.
func (b *Bridge) pushLocal(ctx context.Context) (int, error) {
	records, err := b.local.List(ctx, thoughtstore.Filter{Limit: b.options.LocalLimit})
	if err != nil {
		return 0, err
	}

	pushed := 0
	collection := errors.NewErrorCollection()
	for _, record := range records {
		if record.Source == SourceRemoteSync || !correlation.RelevantTo(record, correlation.HostingKeywords) {
			continue
		}
		if _, err := b.pushRecord(ctx, record); err != nil {
			collection.Add(err)
			continue
		}
		pushed++
	}
	return pushed, collection.ToError()
}

func (b *Bridge) pushRecord(ctx context.Context, record thoughtstore.Record) (string, error) {
	key := ""
	if record.ID != "" {
		key = "sync-local-" + record.ID
	}
	return b.remote.Create(ctx, thoughtstore.CreateRequest{
		Intent:         TranslateIntent(record.Intent),
		Content:        TranslateContent(record),
		Priority:       defaultPriority(record.Priority),
		Source:         SourceLocalSync,
		IdempotencyKey: key,
	})
}

// pullRemote brings microservice-relevant remote thoughts into the local
// queue as cross_network_insight thoughts.
func (b *Bridge) pullRemote(ctx context.Context) (int, error) {
	records, err := b.remote.List(ctx, thoughtstore.Filter{Limit: b.options.RemoteLimit})
	if err != nil {
		return 0, err
	}

	pulled := 0
	for _, record := range records {
		if record.Source == SourceLocalSync || !correlation.RelevantTo(record, correlation.MicroserviceKeywords) {
			continue
		}
		b.ingestRecord(ctx, record)
		pulled++
	}
	return pulled, nil
}

func (b *Bridge) ingestRecord(ctx context.Context, record thoughtstore.Record) thoughts.Thought {
	thought := thoughts.Thought{
		Source:    SourceRemoteSync,
		EventType: thoughts.EventCrossNetworkInsight,
		Priority:  defaultPriority(record.Priority),
		Payload: map[string]interface{}{
			"original_intent": record.Intent,
			"hosting_content": record.Content,
			"sync_timestamp":  b.clock.Now().UTC().Format(time.RFC3339),
			"remote_id":       record.ID,
		},
	}
	// A stable id makes repeated pulls of one remote thought idempotent.
	if record.ID != "" {
		thought.ID = "sync-remote-" + record.ID
	}
	return b.ingestor.Submit(ctx, thought)
}

// correlate links correlated thought pairs in the remote store, remote id
// first.
func (b *Bridge) correlate(ctx context.Context) (int, error) {
	localRecords, err := b.local.List(ctx, thoughtstore.Filter{Limit: b.options.LocalLimit})
	if err != nil {
		return 0, err
	}
	remoteRecords, err := b.remote.List(ctx, thoughtstore.Filter{Limit: b.options.RemoteLimit})
	if err != nil {
		return 0, err
	}

	// Bridged copies mirror a thought from the other side, never pair them.
	localRecords = withoutSource(localRecords, SourceRemoteSync)
	remoteRecords = withoutSource(remoteRecords, SourceLocalSync)

	result := b.correlation.Correlate(localRecords, remoteRecords)
	for _, skipped := range result.Skipped {
		b.logger.Debugf("Thought skipped from correlation, error: %v", skipped)
	}

	linked := 0
	collection := errors.NewErrorCollection()
	for _, c := range result.Correlations {
		if err := b.remote.Link(ctx, c.BID, c.AID, thoughtstore.RelationshipCrossNetwork); err != nil {
			collection.Add(err)
			continue
		}
		linked++
	}
	return linked, collection.ToError()
}

func withoutSource(records []thoughtstore.Record, source string) []thoughtstore.Record {
	kept := make([]thoughtstore.Record, 0, len(records))
	for _, record := range records {
		if record.Source != source {
			kept = append(kept, record)
		}
	}
	return kept
}

// propagateDecisions pushes the most recent decisions to the remote store.
func (b *Bridge) propagateDecisions(ctx context.Context) (int, error) {
	if b.decisions == nil {
		return 0, nil
	}

	pushed := 0
	collection := errors.NewErrorCollection()
	for _, d := range b.decisions.Recent(b.options.DecisionLimit) {
		_, err := b.remote.Create(ctx, thoughtstore.CreateRequest{
			Intent:         DecisionIntent(d),
			Content:        DecisionContent(d),
			Priority:       thoughts.PriorityNetworkAnalysis,
			Source:         thoughts.SourceOrchestrator,
			IdempotencyKey: fmt.Sprintf("sync-decision-%s-%t", d.ID, d.Executed),
		})
		if err != nil {
			collection.Add(err)
			continue
		}
		pushed++
	}
	return pushed, collection.ToError()
}

// BridgeThought moves a single thought on demand. It returns the remote id
// for to_remote and the local thought id for to_local.
func (b *Bridge) BridgeThought(ctx context.Context, record thoughtstore.Record, direction Direction) (string, error) {
	if record.Intent == "" {
		return "", errors.NewValidationError("thought intent is required", nil)
	}

	switch direction {
	case DirectionToRemote:
		id, err := b.pushRecord(ctx, record)
		if err != nil {
			return "", err
		}
		b.logger.Infof("Thought bridged to remote, intent: %s, remote id: %s", record.Intent, id)
		return id, nil
	case DirectionToLocal:
		thought := b.ingestRecord(ctx, record)
		b.logger.Infof("Thought bridged to local, intent: %s, thought id: %s", record.Intent, thought.ID)
		return thought.ID, nil
	default:
		return "", errors.NewValidationError("unsupported bridge direction: "+string(direction), nil)
	}
}

// History returns up to n recent entries, oldest first. n <= 0 returns all.
func (b *Bridge) History(n int) []SyncLogEntry {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	start := 0
	if n > 0 && len(b.history) > n {
		start = len(b.history) - n
	}
	return append([]SyncLogEntry(nil), b.history[start:]...)
}

// Health is the bridge's self-report.
type Health struct {
	Status         string     `json:"status"`
	LastSync       *time.Time `json:"last_sync"`
	SyncOperations int        `json:"sync_operations"`
	LastStatus     string     `json:"last_status,omitempty"`
}

func (b *Bridge) Health() Health {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	health := Health{Status: "idle", SyncOperations: len(b.history)}
	if b.lastSync != nil {
		last := *b.lastSync
		health.LastSync = &last
		health.Status = "syncing"
		health.LastStatus = b.history[len(b.history)-1].Status
	}
	return health
}

func defaultPriority(priority int) int {
	if priority <= 0 {
		return 5
	}
	return priority
}
