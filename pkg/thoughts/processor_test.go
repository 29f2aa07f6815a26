package thoughts

import (
	"context"
	"testing"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"
	"github.com/core-tools/hsu-orchestrator/pkg/logging"
	"github.com/core-tools/hsu-orchestrator/pkg/thoughtstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Create(ctx context.Context, request thoughtstore.CreateRequest) (string, error) {
	args := m.Called(ctx, request)
	return args.String(0), args.Error(1)
}

func (m *MockStore) List(ctx context.Context, filter thoughtstore.Filter) ([]thoughtstore.Record, error) {
	args := m.Called(ctx, filter)
	records, _ := args.Get(0).([]thoughtstore.Record)
	return records, args.Error(1)
}

func (m *MockStore) Link(ctx context.Context, fromID, toID, relationship string) error {
	args := m.Called(ctx, fromID, toID, relationship)
	return args.Error(0)
}

func newTestProcessor(store thoughtstore.Store) *Processor {
	queue := NewQueue(nil)
	return NewProcessor(queue, store, ProcessorOptions{BatchSize: 2, Retention: time.Hour, UrgentPriority: 8}, logging.Nop())
}

func TestProcessor_UrgentThoughtProcessedOnSubmit(t *testing.T) {
	store := thoughtstore.NewMemoryStore()
	processor := newTestProcessor(store)

	urgent := processor.Submit(context.Background(), Thought{Source: "svc-a", EventType: EventHealthError, Priority: 9})
	routine := processor.Submit(context.Background(), Thought{Source: "svc-a", EventType: EventHealthCheck, Priority: 5})

	assert.True(t, urgent.Processed)
	assert.NotEmpty(t, urgent.StoreID)
	assert.False(t, routine.Processed)
	assert.Equal(t, 1, store.Len())
}

func TestProcessor_ProcessOnceDrainsBatchByPriority(t *testing.T) {
	store := thoughtstore.NewMemoryStore()
	processor := newTestProcessor(store)
	ctx := context.Background()

	low := processor.Submit(ctx, Thought{Source: "svc", EventType: "a", Priority: 3})
	mid := processor.Submit(ctx, Thought{Source: "svc", EventType: "b", Priority: 5})
	high := processor.Submit(ctx, Thought{Source: "svc", EventType: "c", Priority: 7})

	require.NoError(t, processor.ProcessOnce(ctx))

	for id, expected := range map[string]bool{low.ID: false, mid.ID: true, high.ID: true} {
		thought, ok := processor.Queue().Get(id)
		require.True(t, ok)
		assert.Equal(t, expected, thought.Processed, "thought %s", id)
	}

	require.NoError(t, processor.ProcessOnce(ctx))
	thought, _ := processor.Queue().Get(low.ID)
	assert.True(t, thought.Processed)
	assert.Equal(t, 3, store.Len())
}

func TestProcessor_StoreFailureKeepsThoughtForRetry(t *testing.T) {
	store := &MockStore{}
	processor := newTestProcessor(store)
	ctx := context.Background()

	store.On("Create", mock.Anything, mock.Anything).
		Return("", errors.NewStoreUnavailableError("down", nil)).Once()
	store.On("Create", mock.Anything, mock.MatchedBy(func(r thoughtstore.CreateRequest) bool {
		return r.Intent == "system-health: Service failure investigation" && r.Priority == 8
	})).Return("remote-1", nil).Once()

	thought := processor.Submit(ctx, Thought{Source: SourceOrchestrator, EventType: EventHealthError, Priority: 8})
	assert.False(t, thought.Processed)

	require.NoError(t, processor.ProcessOnce(ctx))

	stored, ok := processor.Queue().Get(thought.ID)
	require.True(t, ok)
	assert.True(t, stored.Processed)
	assert.Equal(t, "remote-1", stored.StoreID)
	store.AssertExpectations(t)
}

func TestProcessor_ProcessOnceReportsFailures(t *testing.T) {
	store := &MockStore{}
	processor := newTestProcessor(store)
	ctx := context.Background()

	store.On("Create", mock.Anything, mock.Anything).Return("", errors.NewStoreUnavailableError("down", nil))

	processor.Submit(ctx, Thought{Source: "svc", EventType: "a", Priority: 2})
	processor.Submit(ctx, Thought{Source: "svc", EventType: "b", Priority: 2})

	err := processor.ProcessOnce(ctx)
	require.Error(t, err)
	assert.Equal(t, 2, processor.Queue().Stats().Pending)
}

func TestProcessor_CreateUsesThoughtIDAsIdempotencyKey(t *testing.T) {
	store := &MockStore{}
	processor := newTestProcessor(store)

	var captured thoughtstore.CreateRequest
	store.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(1).(thoughtstore.CreateRequest)
	}).Return("id-1", nil)

	thought := processor.Emit(SourceOrchestrator, EventActionFailed, 9, map[string]interface{}{"service": "svc-a"})

	assert.True(t, thought.Processed)
	assert.Equal(t, thought.ID, captured.IdempotencyKey)
	assert.Equal(t, SourceOrchestrator, captured.Source)
	assert.Contains(t, captured.Content, "svc-a")
}
