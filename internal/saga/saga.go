// Package saga tracks multi-step operations with ordered compensations,
// approximating transactional rollback across non-transactional resources.
package saga

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"rag-knowledge-platform/internal/logger"
)

// Step statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const (
	defaultMaxRetries  = 3
	defaultBackoffBase = 100 * time.Millisecond
)

// CompensationFunc undoes one previously completed step.
type CompensationFunc func(ctx context.Context) error

// Compensation is a registered undo action with its retry bookkeeping.
type Compensation struct {
	Step     string
	Attempts int
	Status   string
	fn       CompensationFunc
}

// Saga records completed steps and their compensations. Compensations run
// in reverse registration order (LIFO) on Rollback. At most one rollback
// ever executes per instance; concurrent Rollback calls are no-ops.
type Saga struct {
	ID   string
	Name string

	mu            sync.Mutex
	stepOrder     []string
	steps         map[string]string
	compensations []*Compensation

	rolledBack  atomic.Bool
	maxRetries  int
	backoffBase time.Duration
}

// New creates a saga with default retry policy (3 attempts, exponential
// backoff from 100ms).
func New(name string) *Saga {
	return &Saga{
		ID:          uuid.NewString(),
		Name:        name,
		steps:       make(map[string]string),
		maxRetries:  defaultMaxRetries,
		backoffBase: defaultBackoffBase,
	}
}

// NewWithRetry creates a saga with an explicit compensation retry policy.
func NewWithRetry(name string, maxRetries int, backoffBase time.Duration) *Saga {
	s := New(name)
	if maxRetries > 0 {
		s.maxRetries = maxRetries
	}
	if backoffBase > 0 {
		s.backoffBase = backoffBase
	}
	return s
}

// AddStep records a step as completed.
func (s *Saga) AddStep(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.steps[name]; !seen {
		s.stepOrder = append(s.stepOrder, name)
	}
	s.steps[name] = StatusCompleted
}

// Steps returns step names in completion order with their statuses.
func (s *Saga) Steps() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.steps))
	for k, v := range s.steps {
		out[k] = v
	}
	return out
}

// AddCompensation registers an undo action for a step. Compensations are
// executed in reverse order of registration.
func (s *Saga) AddCompensation(step string, fn CompensationFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compensations = append(s.compensations, &Compensation{
		Step:   step,
		Status: StatusPending,
		fn:     fn,
	})
}

// Rollback executes all registered compensations LIFO. Each compensation is
// retried with exponential backoff before being marked failed; a failed
// compensation does not stop earlier-registered ones from running. A second
// call (concurrent or later) is a no-op.
func (s *Saga) Rollback(ctx context.Context) error {
	if !s.rolledBack.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	comps := make([]*Compensation, len(s.compensations))
	copy(comps, s.compensations)
	s.mu.Unlock()

	var firstErr error
	for i := len(comps) - 1; i >= 0; i-- {
		comp := comps[i]
		if err := s.runCompensation(ctx, comp); err != nil {
			logger.Error("compensation failed",
				"saga", s.Name, "transaction_id", s.ID,
				"step", comp.Step, "attempts", comp.Attempts, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("compensation %q: %w", comp.Step, err)
			}
			continue
		}
		logger.Debug("compensation completed",
			"saga", s.Name, "transaction_id", s.ID, "step", comp.Step)
	}
	return firstErr
}

func (s *Saga) runCompensation(ctx context.Context, comp *Compensation) error {
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		s.mu.Lock()
		comp.Attempts++
		s.mu.Unlock()

		if lastErr = comp.fn(ctx); lastErr == nil {
			s.mu.Lock()
			comp.Status = StatusCompleted
			s.mu.Unlock()
			return nil
		}

		if attempt < s.maxRetries-1 {
			backoff := s.backoffBase * (1 << attempt)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				s.mu.Lock()
				comp.Status = StatusFailed
				s.mu.Unlock()
				return ctx.Err()
			}
		}
	}
	s.mu.Lock()
	comp.Status = StatusFailed
	s.mu.Unlock()
	return lastErr
}

// RolledBack reports whether a rollback has started.
func (s *Saga) RolledBack() bool {
	return s.rolledBack.Load()
}

// Compensations returns a snapshot of the registered compensations.
func (s *Saga) Compensations() []Compensation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Compensation, len(s.compensations))
	for i, c := range s.compensations {
		out[i] = *c
	}
	return out
}

// Execute runs fn as one saga step: on success the step is recorded
// completed, on error the saga rolls back and the error is returned
// wrapped with the step name.
func (s *Saga) Execute(ctx context.Context, step string, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		if rbErr := s.Rollback(ctx); rbErr != nil {
			logger.Error("rollback after failed step reported errors",
				"saga", s.Name, "transaction_id", s.ID, "step", step, "error", rbErr)
		}
		return fmt.Errorf("step %q: %w", step, err)
	}
	s.AddStep(step)
	return nil
}
