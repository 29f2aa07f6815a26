package thoughtstore

import (
	"context"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/config"
	"github.com/core-tools/hsu-orchestrator/pkg/errors"
	"github.com/core-tools/hsu-orchestrator/pkg/logging"
)

// Opened is a store built from configuration plus the function that
// releases its resources.
type Opened struct {
	Store Store
	Close func()
}

// Open builds the adapter named by cfg, wrapped with the call timeout and,
// when configured, a rate limiter.
func Open(ctx context.Context, cfg config.StoreConfig, callTimeout time.Duration, logger logging.Logger) (*Opened, error) {
	var store Store
	closeFn := func() {}

	switch cfg.Type {
	case config.StoreTypeMemory:
		store = NewMemoryStore()

	case config.StoreTypeSQLite:
		sqlite, err := OpenSQLite(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		store = sqlite
		closeFn = func() {
			if err := sqlite.Close(); err != nil {
				logger.Warnf("Failed to close sqlite store, error: %v", err)
			}
		}

	case config.StoreTypePostgres:
		postgres, err := OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		store = postgres
		closeFn = postgres.Close

	case config.StoreTypeGist:
		gist, err := NewGistStore(ctx, GistOptions{Token: cfg.Token(), Origin: cfg.Origin, BaseURL: cfg.DSN})
		if err != nil {
			return nil, err
		}
		store = gist

	case config.StoreTypeHTTP:
		store = NewHTTPStore(cfg.DSN, nil)

	default:
		return nil, errors.NewValidationError("unsupported store type: "+string(cfg.Type), nil)
	}

	if cfg.RatePerSecond > 0 {
		store = NewRateLimited(store, cfg.RatePerSecond, cfg.Burst)
	}
	store = WithTimeout(store, callTimeout)

	logger.Infof("Thought store opened, type: %s, rate per second: %v, call timeout: %v", cfg.Type, cfg.RatePerSecond, callTimeout)
	return &Opened{Store: store, Close: closeFn}, nil
}
