package thoughts

import (
	"context"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"
	"github.com/core-tools/hsu-orchestrator/pkg/logging"
	"github.com/core-tools/hsu-orchestrator/pkg/thoughtstore"
)

type ProcessorOptions struct {
	BatchSize      int
	Retention      time.Duration
	UrgentPriority int
}

// ProcessorObserver receives processing outcomes, e.g. for metrics.
type ProcessorObserver interface {
	ThoughtEnqueued(eventType string, priority int)
	ThoughtStored(eventType string)
	ThoughtStoreFailed(eventType string)
	ThoughtsPurged(count int)
}

type nopObserver struct{}

func (nopObserver) ThoughtEnqueued(string, int) {}
func (nopObserver) ThoughtStored(string)        {}
func (nopObserver) ThoughtStoreFailed(string)   {}
func (nopObserver) ThoughtsPurged(int)          {}

// Processor forwards queued thoughts to the store. Urgent thoughts are stored
// synchronously when submitted; everything else waits for ProcessOnce.
type Processor struct {
	queue    *Queue
	store    thoughtstore.Store
	options  ProcessorOptions
	logger   logging.Logger
	observer ProcessorObserver
}

func NewProcessor(queue *Queue, store thoughtstore.Store, options ProcessorOptions, logger logging.Logger) *Processor {
	if options.BatchSize <= 0 {
		options.BatchSize = 3
	}
	if options.Retention <= 0 {
		options.Retention = time.Hour
	}
	if options.UrgentPriority <= 0 {
		options.UrgentPriority = 8
	}
	return &Processor{
		queue:    queue,
		store:    store,
		options:  options,
		logger:   logger,
		observer: nopObserver{},
	}
}

func (p *Processor) SetObserver(observer ProcessorObserver) {
	if observer == nil {
		observer = nopObserver{}
	}
	p.observer = observer
}

func (p *Processor) Queue() *Queue {
	return p.queue
}

// Submit enqueues a thought and, when it is urgent, stores it before
// returning. The returned thought reflects the outcome.
func (p *Processor) Submit(ctx context.Context, thought Thought) Thought {
	thought = p.queue.Enqueue(thought)
	p.observer.ThoughtEnqueued(thought.EventType, thought.Priority)

	if thought.Priority < p.options.UrgentPriority {
		return thought
	}
	claimed, ok := p.queue.Claim(thought.ID)
	if !ok {
		return thought
	}
	if err := p.process(ctx, claimed); err != nil {
		p.logger.Warnf("Urgent thought left queued, id: %s, event: %s, error: %v", thought.ID, thought.EventType, err)
	}
	stored, _ := p.queue.Get(thought.ID)
	return stored
}

// Emit implements Emitter for components without a request context.
func (p *Processor) Emit(source, eventType string, priority int, payload map[string]interface{}) Thought {
	return p.Submit(context.Background(), Thought{
		Source:    source,
		EventType: eventType,
		Priority:  priority,
		Payload:   payload,
	})
}

// ProcessOnce claims one batch, stores each thought and purges processed
// thoughts past retention. Store failures leave thoughts queued for the next
// pass and are returned together.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	batch := p.queue.Next(p.options.BatchSize)
	failures := errors.NewErrorCollection()

	for _, thought := range batch {
		failures.Add(p.process(ctx, thought))
	}

	if purged := p.queue.Purge(p.options.Retention); purged > 0 {
		p.observer.ThoughtsPurged(purged)
		p.logger.Debugf("Purged processed thoughts, count: %d", purged)
	}

	if len(batch) > 0 {
		p.logger.Debugf("Thought batch processed, size: %d, failures: %d", len(batch), len(failures.Errors))
	}
	return failures.ToError()
}

func (p *Processor) process(ctx context.Context, thought Thought) error {
	storeID, err := p.store.Create(ctx, thoughtstore.CreateRequest{
		Intent:         GenerateIntent(thought.Source, thought.EventType),
		Content:        FormatContent(thought),
		Priority:       thought.Priority,
		Source:         thought.Source,
		IdempotencyKey: thought.ID,
	})
	if err != nil {
		p.queue.Release(thought.ID)
		p.observer.ThoughtStoreFailed(thought.EventType)
		return err
	}

	if p.queue.MarkProcessed(thought.ID, storeID) {
		p.observer.ThoughtStored(thought.EventType)
		p.logger.Debugf("Thought stored, id: %s, event: %s, store id: %s", thought.ID, thought.EventType, storeID)
	}
	return nil
}
