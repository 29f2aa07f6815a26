// Package thoughtstore defines the three-operation thought store contract
// (create, list, link) and its adapters.
package thoughtstore

import (
	"context"
	"strings"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"
)

// Store persists thoughts and the links between them. Implementations must
// be safe for concurrent use and tolerate duplicate creates: a request whose
// IdempotencyKey was already stored returns the existing id.
//
// Link requires fromID to exist in the store. toID is an opaque reference and
// may name a thought held by another store.
type Store interface {
	Create(ctx context.Context, request CreateRequest) (string, error)
	List(ctx context.Context, filter Filter) ([]Record, error)
	Link(ctx context.Context, fromID, toID, relationship string) error
}

// Record statuses.
const (
	StatusNew        = "new"
	StatusProcessing = "processing"
	StatusComplete   = "complete"
	StatusEvolving   = "evolving"
)

// Relationship used for links between correlated thoughts of two networks.
const RelationshipCrossNetwork = "cross-network-correlation"

type CreateRequest struct {
	Intent         string `json:"intent"`
	Content        string `json:"content"`
	Priority       int    `json:"priority"`
	Source         string `json:"source,omitempty"`
	ParentID       string `json:"parent_id,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type Record struct {
	ID        string    `json:"id"`
	Intent    string    `json:"intent"`
	Content   string    `json:"content"`
	Priority  int       `json:"priority"`
	Source    string    `json:"source,omitempty"`
	ParentID  string    `json:"parent_id,omitempty"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Filter narrows List. Empty fields match everything; results are newest
// first and capped at Limit when positive.
type Filter struct {
	Source string `json:"source,omitempty"`
	Query  string `json:"query,omitempty"` // case-insensitive substring of intent or content
	Limit  int    `json:"limit,omitempty"`
}

// Matches reports whether r passes the Source and Query parts of f.
func (f Filter) Matches(r Record) bool {
	if f.Source != "" && r.Source != f.Source {
		return false
	}
	if f.Query != "" {
		query := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(r.Intent), query) &&
			!strings.Contains(strings.ToLower(r.Content), query) {
			return false
		}
	}
	return true
}

// Link is a stored relationship between two records.
type Link struct {
	FromID       string    `json:"from_id"`
	ToID         string    `json:"to_id"`
	Relationship string    `json:"relationship"`
	CreatedAt    time.Time `json:"created_at"`
}

// ClampPriority keeps priority within 1..10.
func ClampPriority(priority int) int {
	if priority < 1 {
		return 1
	}
	if priority > 10 {
		return 10
	}
	return priority
}

// Normalize validates a create request and clamps its priority.
func Normalize(request CreateRequest) (CreateRequest, error) {
	if strings.TrimSpace(request.Intent) == "" {
		return request, errors.NewValidationError("thought intent cannot be empty", nil)
	}
	request.Priority = ClampPriority(request.Priority)
	return request, nil
}

func validateLink(fromID, toID, relationship string) error {
	if fromID == "" || toID == "" {
		return errors.NewValidationError("link requires both thought ids", nil)
	}
	if fromID == toID {
		return errors.NewValidationError("cannot link a thought to itself", nil).WithContext("id", fromID)
	}
	if relationship == "" {
		return errors.NewValidationError("link relationship cannot be empty", nil)
	}
	return nil
}

// unavailable wraps a backend failure, keeping validation and not-found errors
// as they are.
func unavailable(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.IsValidationError(err) || errors.IsNotFoundError(err) || errors.IsStoreUnavailableError(err) {
		return err
	}
	return errors.NewStoreUnavailableError(operation+" failed", err)
}
