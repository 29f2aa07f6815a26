package thoughtstore

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"
)

// WithTimeout bounds every call to store by timeout. A call that runs out of
// time fails with a store-unavailable error wrapping a timeout error.
func WithTimeout(store Store, timeout time.Duration) Store {
	if timeout <= 0 {
		return store
	}
	return &timeoutStore{store: store, timeout: timeout}
}

type timeoutStore struct {
	store   Store
	timeout time.Duration
}

func (s *timeoutStore) Create(ctx context.Context, request CreateRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	id, err := s.store.Create(ctx, request)
	return id, s.classify(ctx, "create", err)
}

func (s *timeoutStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	records, err := s.store.List(ctx, filter)
	return records, s.classify(ctx, "list", err)
}

func (s *timeoutStore) Link(ctx context.Context, fromID, toID, relationship string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.classify(ctx, "link", s.store.Link(ctx, fromID, toID, relationship))
}

func (s *timeoutStore) classify(ctx context.Context, operation string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		timeout := errors.NewTimeoutError("store "+operation+" timed out", err).WithContext("timeout", s.timeout.String())
		return errors.NewStoreUnavailableError("store "+operation+" timed out", timeout)
	}
	return err
}
