// Package queue provides the durable operation queue for offline
// mutations. The queue is the sole source of truth for what still needs
// to reach the national database: it persists itself after every state
// transition and reconstructs itself on process start.
package queue

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/swanhtet/medbridge/internal/errors"
	"github.com/swanhtet/medbridge/internal/logging"
	"github.com/swanhtet/medbridge/internal/models"
	"github.com/swanhtet/medbridge/internal/storage"
	"github.com/swanhtet/medbridge/internal/uuid"
)

// DefaultMaxRetries is the delivery attempt ceiling per operation.
const DefaultMaxRetries = 3

// DefaultMaxSize caps how many operations the queue will hold.
const DefaultMaxSize = 1000

// Config holds queue construction options.
type Config struct {
	MaxRetries int
	MaxSize    int
	Clock      func() time.Time
}

// Queue manages pending sync operations in enqueue order. Completed
// operations are removed; failed operations are retained for operator
// visibility until explicitly reset.
type Queue struct {
	mu         sync.Mutex
	ops        []*models.SyncOperation
	store      storage.Store
	clock      func() time.Time
	maxRetries int
	maxSize    int
}

// New creates a Queue persisting itself to store.
func New(store storage.Store, cfg Config) *Queue {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Queue{
		store:      store,
		clock:      cfg.Clock,
		maxRetries: cfg.MaxRetries,
		maxSize:    cfg.MaxSize,
	}
}

// MaxRetries returns the configured delivery attempt ceiling.
func (q *Queue) MaxRetries() int {
	return q.maxRetries
}

// Load reconstructs the in-memory queue from the persisted
// representation. Missing or corrupt state initializes an empty queue;
// it never fails the caller.
func (q *Queue) Load() {
	q.mu.Lock()
	defer q.mu.Unlock()

	raw, err := q.store.Get(storage.KeyQueue)
	if err != nil {
		if err != storage.ErrNotFound {
			logging.Warn("Failed to read persisted queue, starting empty",
				map[string]interface{}{"error": err.Error()})
		}
		q.ops = nil
		return
	}

	var ops []*models.SyncOperation
	if err := json.Unmarshal(raw, &ops); err != nil {
		logging.Warn("Persisted queue is corrupt, starting empty",
			map[string]interface{}{"error": err.Error()})
		q.ops = nil
		return
	}

	// An operation caught mid-delivery by a crash goes back to pending.
	for _, op := range ops {
		if op.Status == models.StatusSyncing {
			op.Status = models.StatusPending
		}
	}

	q.ops = ops
	logging.Info("Queue loaded from storage",
		map[string]interface{}{"operations": len(ops)})
}

// Enqueue validates and appends a new operation with status pending,
// persists the queue and returns the stored record. The returned error
// covers validation and capacity only; a persistence failure is logged
// and does not fail the enqueue.
func (q *Queue) Enqueue(entityType models.EntityType, kind models.MutationKind, data json.RawMessage, hospitalID string) (*models.SyncOperation, error) {
	if !models.ValidEntityType(entityType) {
		return nil, errors.New(errors.ErrInvalidPayload, "unknown entity type "+string(entityType))
	}
	if !models.ValidMutationKind(kind) {
		return nil, errors.New(errors.ErrInvalidPayload, "unknown operation "+string(kind))
	}
	if err := models.ValidatePayload(entityType, kind, data); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidPayload, "payload rejected", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ops) >= q.maxSize {
		return nil, errors.New(errors.ErrQueueFull, "offline queue is full")
	}

	op := &models.SyncOperation{
		ID:         uuid.New(),
		EntityType: entityType,
		Kind:       kind,
		Data:       data,
		HospitalID: hospitalID,
		Timestamp:  q.clock().UTC(),
		Status:     models.StatusPending,
		RetryCount: 0,
	}

	q.ops = append(q.ops, op)
	q.persistLocked()

	logging.Debug("Operation enqueued", map[string]interface{}{
		"operation_id": op.ID,
		"entity_type":  string(entityType),
		"operation":    string(kind),
		"hospital_id":  hospitalID,
	})

	return op.Clone(), nil
}

// Eligible returns copies of every operation the drain loop should
// attempt, in enqueue order: pending operations plus failed operations
// that still have retries remaining.
func (q *Queue) Eligible() []*models.SyncOperation {
	q.mu.Lock()
	defer q.mu.Unlock()

	var eligible []*models.SyncOperation
	for _, op := range q.ops {
		if op.Retryable(q.maxRetries) {
			eligible = append(eligible, op.Clone())
		}
	}
	return eligible
}

// MarkSyncing transitions an operation to syncing for a delivery attempt.
func (q *Queue) MarkSyncing(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	op := q.findLocked(id)
	if op == nil {
		return errors.New(errors.ErrOperationNotFound, "operation "+id+" not found")
	}
	op.Status = models.StatusSyncing
	q.persistLocked()
	return nil
}

// Complete removes a delivered operation from the queue. Removal is the
// terminal completed state; the record is not retained.
func (q *Queue) Complete(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, op := range q.ops {
		if op.ID == id {
			q.ops = append(q.ops[:i], q.ops[i+1:]...)
			q.persistLocked()
			return nil
		}
	}
	return errors.New(errors.ErrOperationNotFound, "operation "+id+" not found")
}

// Fail records a delivery failure: the retry count is incremented and
// the error retained. Under the ceiling the operation reverts to pending
// for a future pass; at the ceiling it transitions to failed and is
// never auto-retried again. Returns true when the operation became
// terminally failed.
func (q *Queue) Fail(id string, cause error) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	op := q.findLocked(id)
	if op == nil {
		return false, errors.New(errors.ErrOperationNotFound, "operation "+id+" not found")
	}

	op.RetryCount++
	if cause != nil {
		op.ErrorMessage = cause.Error()
	} else {
		op.ErrorMessage = "delivery failed"
	}

	exhausted := op.RetryCount >= q.maxRetries
	if exhausted {
		op.Status = models.StatusFailed
		logging.Warn("Operation failed permanently", map[string]interface{}{
			"operation_id": op.ID,
			"entity_type":  string(op.EntityType),
			"retry_count":  op.RetryCount,
			"error":        op.ErrorMessage,
		})
	} else {
		op.Status = models.StatusPending
		logging.Debug("Operation delivery failed, will retry", map[string]interface{}{
			"operation_id": op.ID,
			"retry_count":  op.RetryCount,
			"max_retries":  q.maxRetries,
		})
	}

	q.persistLocked()
	return exhausted, nil
}

// ResetFailed zeroes the retry bookkeeping of a terminally failed
// operation so a later pass reattempts it. Operator tooling hook.
func (q *Queue) ResetFailed(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	op := q.findLocked(id)
	if op == nil {
		return errors.New(errors.ErrOperationNotFound, "operation "+id+" not found")
	}
	if op.Status != models.StatusFailed {
		return errors.New(errors.ErrNotRetryable, "operation "+id+" is not in failed state")
	}

	op.Status = models.StatusPending
	op.RetryCount = 0
	op.ErrorMessage = ""
	q.persistLocked()

	logging.Info("Failed operation reset for retry",
		map[string]interface{}{"operation_id": id})
	return nil
}

// Counts returns the number of pending (including syncing) and
// terminally failed operations.
func (q *Queue) Counts() (pending, failed int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, op := range q.ops {
		switch op.Status {
		case models.StatusPending, models.StatusSyncing:
			pending++
		case models.StatusFailed:
			failed++
		}
	}
	return pending, failed
}

// Snapshot returns copies of every queued operation in enqueue order.
func (q *Queue) Snapshot() []*models.SyncOperation {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*models.SyncOperation, 0, len(q.ops))
	for _, op := range q.ops {
		out = append(out, op.Clone())
	}
	return out
}

// Len returns the number of operations currently held.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Persist forces a write of the current queue state.
func (q *Queue) Persist() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.persistLocked()
}

// findLocked returns the operation with the given id. Callers hold q.mu.
func (q *Queue) findLocked(id string) *models.SyncOperation {
	for _, op := range q.ops {
		if op.ID == id {
			return op
		}
	}
	return nil
}

// persistLocked serializes the full queue to storage. Durability is
// best-effort: a write failure is logged and the in-memory queue stays
// authoritative for the session. Callers hold q.mu.
func (q *Queue) persistLocked() {
	raw, err := json.Marshal(q.ops)
	if err != nil {
		logging.Error("Failed to serialize queue", err, nil)
		return
	}
	if err := q.store.Put(storage.KeyQueue, raw); err != nil {
		logging.Error("Failed to persist queue", err,
			map[string]interface{}{"operations": len(q.ops)})
	}
}
