package thoughtstore

import (
	"context"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to a store with a token bucket, keeping a
// remote API such as GitHub within its quota.
type RateLimited struct {
	store   Store
	limiter *rate.Limiter
}

func NewRateLimited(store Store, perSecond float64, burst int) *RateLimited {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{store: store, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (s *RateLimited) wait(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return errors.NewStoreUnavailableError("rate limit wait aborted", err)
	}
	return nil
}

func (s *RateLimited) Create(ctx context.Context, request CreateRequest) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	return s.store.Create(ctx, request)
}

func (s *RateLimited) List(ctx context.Context, filter Filter) ([]Record, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.store.List(ctx, filter)
}

func (s *RateLimited) Link(ctx context.Context, fromID, toID, relationship string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	return s.store.Link(ctx, fromID, toID, relationship)
}
