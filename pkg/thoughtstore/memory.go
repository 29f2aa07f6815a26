package thoughtstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process memory. It serves tests and
// single-node setups that do not need durability.
type MemoryStore struct {
	mutex   sync.RWMutex
	now     func() time.Time
	records []Record
	byID    map[string]int
	byKey   map[string]string
	links   []Link
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		now:   now,
		byID:  make(map[string]int),
		byKey: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, request CreateRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.NewStoreUnavailableError("create cancelled", err)
	}
	request, err := Normalize(request)
	if err != nil {
		return "", err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if request.IdempotencyKey != "" {
		if id, exists := s.byKey[request.IdempotencyKey]; exists {
			return id, nil
		}
	}

	id := uuid.NewString()
	s.byID[id] = len(s.records)
	s.records = append(s.records, Record{
		ID:        id,
		Intent:    request.Intent,
		Content:   request.Content,
		Priority:  request.Priority,
		Source:    request.Source,
		ParentID:  request.ParentID,
		Status:    StatusNew,
		Timestamp: s.now(),
	})
	if request.IdempotencyKey != "" {
		s.byKey[request.IdempotencyKey] = id
	}
	return id, nil
}

func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewStoreUnavailableError("list cancelled", err)
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make([]Record, 0)
	for i := len(s.records) - 1; i >= 0; i-- {
		if filter.Matches(s.records[i]) {
			result = append(result, s.records[i])
		}
	}
	// Insertion order already approximates time order; the stable sort only
	// fixes records created with an injected clock that went backwards.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *MemoryStore) Link(ctx context.Context, fromID, toID, relationship string) error {
	if err := ctx.Err(); err != nil {
		return errors.NewStoreUnavailableError("link cancelled", err)
	}
	if err := validateLink(fromID, toID, relationship); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.byID[fromID]; !exists {
		return errors.NewNotFoundError("thought not found", nil).WithContext("id", fromID)
	}
	for _, link := range s.links {
		if link.FromID == fromID && link.ToID == toID && link.Relationship == relationship {
			return nil
		}
	}
	s.links = append(s.links, Link{FromID: fromID, ToID: toID, Relationship: relationship, CreatedAt: s.now()})
	return nil
}

// Links returns a copy of every stored link.
func (s *MemoryStore) Links() []Link {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]Link(nil), s.links...)
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.records)
}
