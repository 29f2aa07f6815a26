package decision

import (
	"sync"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/actions"
)

// Log is a bounded ring of decisions, oldest evicted first.
type Log struct {
	mutex     sync.RWMutex
	size      int
	decisions []*Decision
	total     int
}

func NewLog(size int) *Log {
	if size <= 0 {
		size = 500
	}
	return &Log{size: size}
}

func (l *Log) Append(decision Decision) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	stored := decision
	l.decisions = append(l.decisions, &stored)
	if len(l.decisions) > l.size {
		l.decisions = l.decisions[len(l.decisions)-l.size:]
	}
	l.total++
}

// Recent returns up to n decisions, oldest first. n <= 0 returns all.
func (l *Log) Recent(n int) []Decision {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	start := 0
	if n > 0 && len(l.decisions) > n {
		start = len(l.decisions) - n
	}
	result := make([]Decision, 0, len(l.decisions)-start)
	for _, decision := range l.decisions[start:] {
		result = append(result, copyDecision(decision))
	}
	return result
}

func (l *Log) Get(id string) (Decision, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	if decision := l.findLocked(id); decision != nil {
		return copyDecision(decision), true
	}
	return Decision{}, false
}

// MarkExecuted records a successful execution. It returns false when the
// decision is unknown or already executed.
func (l *Log) MarkExecuted(id string, result actions.Result, at time.Time) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	decision := l.findLocked(id)
	if decision == nil || decision.Executed {
		return false
	}
	decision.Executed = true
	decision.ExecutedAt = &at
	decision.Result = &result
	decision.Error = ""
	return true
}

// MarkFailed records a failed execution attempt. The decision stays
// unexecuted.
func (l *Log) MarkFailed(id string, err error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if decision := l.findLocked(id); decision != nil && !decision.Executed {
		decision.Error = err.Error()
	}
}

// LatestPending returns the newest unexecuted decision for service and
// action.
func (l *Log) LatestPending(service string, action actions.Action) (Decision, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	for i := len(l.decisions) - 1; i >= 0; i-- {
		decision := l.decisions[i]
		if decision.Service == service && decision.Action == action && !decision.Executed {
			return copyDecision(decision), true
		}
	}
	return Decision{}, false
}

// Total counts every decision ever appended, evicted ones included.
func (l *Log) Total() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.total
}

// CountSince counts retained decisions made at or after since.
func (l *Log) CountSince(since time.Time) int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	count := 0
	for _, decision := range l.decisions {
		if !decision.Timestamp.Before(since) {
			count++
		}
	}
	return count
}

func (l *Log) findLocked(id string) *Decision {
	for i := len(l.decisions) - 1; i >= 0; i-- {
		if l.decisions[i].ID == id {
			return l.decisions[i]
		}
	}
	return nil
}

func copyDecision(decision *Decision) Decision {
	copied := *decision
	copied.Evidence = append([]string(nil), decision.Evidence...)
	if decision.ExecutedAt != nil {
		at := *decision.ExecutedAt
		copied.ExecutedAt = &at
	}
	if decision.Result != nil {
		result := *decision.Result
		copied.Result = &result
	}
	return copied
}
