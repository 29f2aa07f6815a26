package thoughts

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	thought Thought
	seq     uint64
	claimed bool
}

// Queue is an append-only buffer of thoughts. Insertion order is kept;
// priority only matters when a consumer claims a batch with Next.
type Queue struct {
	mutex   sync.Mutex
	now     func() time.Time
	entries []*entry
	byID    map[string]*entry
	seq     uint64
}

func NewQueue(now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{
		now:  now,
		byID: make(map[string]*entry),
	}
}

// Enqueue appends a thought. Missing id and timestamp are filled in and the
// priority is clamped to 1..10. Enqueuing an id already present is a no-op
// that returns the stored thought.
func (q *Queue) Enqueue(thought Thought) Thought {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if thought.ID == "" {
		thought.ID = uuid.NewString()
	} else if existing, ok := q.byID[thought.ID]; ok {
		return existing.thought
	}
	if thought.Timestamp.IsZero() {
		thought.Timestamp = q.now()
	}
	thought.Priority = clampPriority(thought.Priority)
	thought.Processed = false
	thought.StoreID = ""

	q.seq++
	e := &entry{thought: thought, seq: q.seq}
	q.entries = append(q.entries, e)
	q.byID[thought.ID] = e
	return thought
}

// Next claims up to max unprocessed, unclaimed thoughts: highest priority
// first, then oldest, then first enqueued. Claimed thoughts are not returned
// again until released.
func (q *Queue) Next(max int) []Thought {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if max <= 0 {
		return nil
	}

	candidates := make([]*entry, 0)
	for _, e := range q.entries {
		if !e.thought.Processed && !e.claimed {
			candidates = append(candidates, e)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.thought.Priority != b.thought.Priority {
			return a.thought.Priority > b.thought.Priority
		}
		if !a.thought.Timestamp.Equal(b.thought.Timestamp) {
			return a.thought.Timestamp.Before(b.thought.Timestamp)
		}
		return a.seq < b.seq
	})
	if len(candidates) > max {
		candidates = candidates[:max]
	}

	batch := make([]Thought, 0, len(candidates))
	for _, e := range candidates {
		e.claimed = true
		batch = append(batch, e.thought)
	}
	return batch
}

// Claim takes a single thought for processing. It fails when the thought is
// unknown, processed or already claimed.
func (q *Queue) Claim(id string) (Thought, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	e, ok := q.byID[id]
	if !ok || e.thought.Processed || e.claimed {
		return Thought{}, false
	}
	e.claimed = true
	return e.thought, true
}

// Release returns a claimed thought to the pool, e.g. after a failed store
// call, so the next drain retries it.
func (q *Queue) Release(id string) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if e, ok := q.byID[id]; ok && !e.thought.Processed {
		e.claimed = false
	}
}

// MarkProcessed records the store acknowledgment. It reports false when the
// thought was already processed, so the transition happens once.
func (q *Queue) MarkProcessed(id, storeID string) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	e, ok := q.byID[id]
	if !ok || e.thought.Processed {
		return false
	}
	e.thought.Processed = true
	e.thought.StoreID = storeID
	e.claimed = false
	return true
}

// Purge removes processed thoughts older than retention. Unprocessed
// thoughts are never purged.
func (q *Queue) Purge(retention time.Duration) int {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	cutoff := q.now().Add(-retention)
	kept := q.entries[:0]
	purged := 0
	for _, e := range q.entries {
		if e.thought.Processed && e.thought.Timestamp.Before(cutoff) {
			delete(q.byID, e.thought.ID)
			purged++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = nil
	}
	q.entries = kept
	return purged
}

// Get returns a copy of the thought with the given id.
func (q *Queue) Get(id string) (Thought, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	e, ok := q.byID[id]
	if !ok {
		return Thought{}, false
	}
	return e.thought, true
}

// Stats counts queued thoughts.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Processed int `json:"processed"`
}

func (q *Queue) Stats() Stats {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	stats := Stats{Total: len(q.entries)}
	for _, e := range q.entries {
		if e.thought.Processed {
			stats.Processed++
		} else {
			stats.Pending++
		}
	}
	return stats
}

// Recent returns up to limit thoughts, newest first.
func (q *Queue) Recent(limit int) []Thought {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	result := make([]Thought, 0)
	for i := len(q.entries) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		result = append(result, q.entries[i].thought)
	}
	return result
}
