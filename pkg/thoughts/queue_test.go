package thoughts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestQueue() (*Queue, *testClock) {
	clock := &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	return NewQueue(clock.Now), clock
}

func TestQueue_NextPrefersPriorityOverInsertionOrder(t *testing.T) {
	queue, _ := newTestQueue()
	for _, priority := range []int{3, 9, 5} {
		queue.Enqueue(Thought{Source: "svc", EventType: "e", Priority: priority})
	}

	batch := queue.Next(2)

	require.Len(t, batch, 2)
	assert.Equal(t, 9, batch[0].Priority)
	assert.Equal(t, 5, batch[1].Priority)

	rest := queue.Next(5)
	require.Len(t, rest, 1)
	assert.Equal(t, 3, rest[0].Priority)
	assert.Empty(t, queue.Next(5))
}

func TestQueue_TiesBreakOldestFirst(t *testing.T) {
	queue, clock := newTestQueue()
	newer := queue.Enqueue(Thought{Priority: 5, Timestamp: clock.now.Add(time.Second)})
	older := queue.Enqueue(Thought{Priority: 5, Timestamp: clock.now})
	first := queue.Enqueue(Thought{Priority: 5, Timestamp: clock.now.Add(2 * time.Second)})
	second := queue.Enqueue(Thought{Priority: 5, Timestamp: clock.now.Add(2 * time.Second)})

	batch := queue.Next(4)
	require.Len(t, batch, 4)
	assert.Equal(t, []string{older.ID, newer.ID, first.ID, second.ID},
		[]string{batch[0].ID, batch[1].ID, batch[2].ID, batch[3].ID})
}

func TestQueue_EnqueueNormalizes(t *testing.T) {
	queue, clock := newTestQueue()

	thought := queue.Enqueue(Thought{Priority: 15, Processed: true})

	assert.NotEmpty(t, thought.ID)
	assert.Equal(t, clock.now, thought.Timestamp)
	assert.Equal(t, 10, thought.Priority)
	assert.False(t, thought.Processed)

	duplicate := queue.Enqueue(Thought{ID: thought.ID, Priority: 1})
	assert.Equal(t, 10, duplicate.Priority)
	assert.Equal(t, 1, queue.Stats().Total)
}

func TestQueue_ProcessedTransitionsOnce(t *testing.T) {
	queue, _ := newTestQueue()
	thought := queue.Enqueue(Thought{Priority: 4})

	require.Len(t, queue.Next(1), 1)
	assert.True(t, queue.MarkProcessed(thought.ID, "store-1"))
	assert.False(t, queue.MarkProcessed(thought.ID, "store-2"))

	stored, ok := queue.Get(thought.ID)
	require.True(t, ok)
	assert.True(t, stored.Processed)
	assert.Equal(t, "store-1", stored.StoreID)

	assert.Empty(t, queue.Next(1))
	_, claimed := queue.Claim(thought.ID)
	assert.False(t, claimed)
}

func TestQueue_ReleaseMakesThoughtEligibleAgain(t *testing.T) {
	queue, _ := newTestQueue()
	thought := queue.Enqueue(Thought{Priority: 4})

	require.Len(t, queue.Next(1), 1)
	assert.Empty(t, queue.Next(1))

	queue.Release(thought.ID)
	batch := queue.Next(1)
	require.Len(t, batch, 1)
	assert.Equal(t, thought.ID, batch[0].ID)
}

func TestQueue_PurgeOnlyOldProcessed(t *testing.T) {
	queue, clock := newTestQueue()
	oldProcessed := queue.Enqueue(Thought{Priority: 5})
	oldPending := queue.Enqueue(Thought{Priority: 5})
	queue.MarkProcessed(oldProcessed.ID, "s1")

	clock.now = clock.now.Add(59 * time.Minute)
	freshProcessed := queue.Enqueue(Thought{Priority: 5})
	queue.MarkProcessed(freshProcessed.ID, "s2")

	clock.now = clock.now.Add(2 * time.Minute)
	purged := queue.Purge(time.Hour)

	assert.Equal(t, 1, purged)
	_, ok := queue.Get(oldProcessed.ID)
	assert.False(t, ok)
	_, ok = queue.Get(oldPending.ID)
	assert.True(t, ok)
	_, ok = queue.Get(freshProcessed.ID)
	assert.True(t, ok)
	assert.Equal(t, Stats{Total: 2, Pending: 1, Processed: 1}, queue.Stats())
}

func TestQueue_Recent(t *testing.T) {
	queue, _ := newTestQueue()
	a := queue.Enqueue(Thought{Priority: 1})
	b := queue.Enqueue(Thought{Priority: 1})
	c := queue.Enqueue(Thought{Priority: 1})

	recent := queue.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, c.ID, recent[0].ID)
	assert.Equal(t, b.ID, recent[1].ID)
	assert.NotEqual(t, a.ID, recent[1].ID)
}

func TestGenerateIntent(t *testing.T) {
	assert.Equal(t, "system-health: Service monitoring", GenerateIntent(SourceOrchestrator, EventHealthCheck))
	assert.Equal(t, "infrastructure: Deployment analysis", GenerateIntent(SourceOrchestrator, "deployment"))
	assert.Equal(t, "api-performance: Response time optimization", GenerateIntent("api-catalog", "performance"))
	assert.Equal(t, "billing: invoice analysis", GenerateIntent("billing", "invoice"))
}

func TestFormatContent(t *testing.T) {
	content := FormatContent(Thought{
		Source:    "svc-a",
		EventType: EventHealthError,
		Priority:  8,
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Payload:   map[string]interface{}{"error": "connection refused"},
	})

	assert.Contains(t, content, "## Service: SVC-A")
	assert.Contains(t, content, "**Event Type:** health_error")
	assert.Contains(t, content, "**Priority:** 8/10")
	assert.Contains(t, content, `"error": "connection refused"`)
}
