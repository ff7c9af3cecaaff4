package core

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/phamhung075/4genthub-sub028/internal/events"
	"github.com/phamhung075/4genthub-sub028/internal/repository"
	"github.com/phamhung075/4genthub-sub028/pkg/models"
	"github.com/phamhung075/4genthub-sub028/pkg/observability"
)

const delegationBatchSize = 32

// DelegationWorker drains pending delegations in the background. Rows are
// applied per user strictly in creation order; users are processed
// concurrently but never more than one goroutine per user, so a slow or
// failing row for one user cannot reorder or stall another's.
type DelegationWorker struct {
	manager  *ContextManager
	repos    *repository.Repositories
	logger   observability.Logger
	metrics  observability.MetricsClient
	interval time.Duration
	maxTries int

	mu     sync.Mutex
	active map[string]bool

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

// NewDelegationWorker creates the background processor. interval is the
// poll period; maxTries bounds attempts per row before it is parked as
// failed.
func NewDelegationWorker(
	manager *ContextManager,
	repos *repository.Repositories,
	logger observability.Logger,
	metrics observability.MetricsClient,
	interval time.Duration,
	maxTries int,
) *DelegationWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if maxTries <= 0 {
		maxTries = 5
	}
	return &DelegationWorker{
		manager:  manager,
		repos:    repos,
		logger:   logger.WithPrefix("delegation-worker"),
		metrics:  metrics,
		interval: interval,
		maxTries: maxTries,
		active:   make(map[string]bool),
		stop:     make(chan struct{}),
	}
}

// Start launches the poll loop
func (w *DelegationWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case <-ticker.C:
				w.sweep(ctx)
			}
		}
	}()
}

// Stop shuts the worker down and waits for in-flight users to finish
func (w *DelegationWorker) Stop() {
	w.once.Do(func() { close(w.stop) })
	w.wg.Wait()
}

// Kick processes one user's queue immediately, used after Delegate so the
// common case does not wait a full poll interval
func (w *DelegationWorker) Kick(ctx context.Context, userID string) {
	w.spawn(ctx, userID)
}

func (w *DelegationWorker) sweep(ctx context.Context) {
	users, err := w.repos.Delegations.ListPendingUsers(ctx)
	if err != nil {
		w.logger.Error("Failed to list users with pending delegations", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	for _, userID := range users {
		w.spawn(ctx, userID)
	}
}

// spawn starts a drain goroutine for userID unless one is already running
func (w *DelegationWorker) spawn(ctx context.Context, userID string) {
	w.mu.Lock()
	if w.active[userID] {
		w.mu.Unlock()
		return
	}
	w.active[userID] = true
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			w.mu.Lock()
			delete(w.active, userID)
			w.mu.Unlock()
		}()
		w.drainUser(ctx, userID)
	}()
}

// drainUser applies the user's pending rows oldest-first until the queue is
// empty or a row fails. A failed row blocks the rest of the user's queue
// until it is retried or parked, preserving application order.
func (w *DelegationWorker) drainUser(ctx context.Context, userID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		default:
		}

		pending, err := w.repos.Delegations.ListPending(ctx, userID, delegationBatchSize)
		if err != nil {
			w.logger.Error("Failed to list pending delegations", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
			return
		}
		if len(pending) == 0 {
			return
		}

		for _, d := range pending {
			if err := w.process(ctx, userID, d); err != nil {
				// Stop the drain here: rows behind this one must not jump
				// the queue.
				return
			}
		}
		if len(pending) < delegationBatchSize {
			return
		}
	}
}

func (w *DelegationWorker) process(ctx context.Context, userID string, d *models.Delegation) error {
	attempts := d.Attempts
	operation := func() error {
		attempts++
		err := w.manager.applyDelegation(ctx, userID, d)
		if err == nil {
			return nil
		}
		// Validation and missing-target errors never heal on retry
		switch models.CodeOf(err) {
		case models.ErrCodeValidation, models.ErrCodeNotFound:
			return backoff.Permanent(err)
		}
		if attempts >= w.maxTries {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(), uint64(w.maxTries-d.Attempts)), ctx)
	err := backoff.Retry(operation, policy)
	if err == nil {
		w.metrics.IncrementCounter("delegations_processed", 1, nil)
		return w.repos.Delegations.MarkProcessed(ctx, d.ID)
	}

	final := attempts >= w.maxTries || isPermanentDelegationError(err)
	w.metrics.IncrementCounter("delegations_failed", 1, map[string]string{
		"final": boolLabel(final),
	})
	w.logger.Warn("Delegation application failed", map[string]interface{}{
		"delegation_id": d.ID,
		"user_id":       userID,
		"attempts":      attempts,
		"final":         final,
		"error":         err.Error(),
	})
	if markErr := w.repos.Delegations.MarkFailed(ctx, d.ID, attempts, err.Error(), final); markErr != nil {
		w.logger.Error("Failed to record delegation failure", map[string]interface{}{
			"delegation_id": d.ID,
			"error":         markErr.Error(),
		})
	}
	if final {
		w.manager.dispatcher.Publish(events.Event{
			Type:        events.EventDelegationFailed,
			EntityType:  "delegation",
			EntityID:    d.ID,
			OwnerUserID: userID,
			Payload: map[string]interface{}{
				"source_level": string(d.SourceLevel),
				"target_level": string(d.TargetLevel),
				"attempts":     attempts,
				"error":        err.Error(),
			},
		})
	}
	return err
}

func isPermanentDelegationError(err error) bool {
	switch models.CodeOf(err) {
	case models.ErrCodeValidation, models.ErrCodeNotFound:
		return true
	}
	return false
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
