package sync

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swanhtet/medbridge/internal/errors"
	"github.com/swanhtet/medbridge/internal/logging"
	"github.com/swanhtet/medbridge/internal/models"
	"github.com/swanhtet/medbridge/internal/storage"
	"github.com/swanhtet/medbridge/internal/sync/conflict"
	"github.com/swanhtet/medbridge/internal/sync/queue"
)

// DefaultConflictHistory bounds the conflict audit ring.
const DefaultConflictHistory = 100

// EventSink receives sync lifecycle notifications, typically a
// WebSocket hub pushing them to status widgets. All methods must be
// non-blocking.
type EventSink interface {
	SyncStarted()
	SyncCompleted(delivered, failed int)
	ConflictDetected(rec models.ConflictRecord)
	QueueUpdated(pending, failed int)
}

// ServiceConfig holds service construction options.
type ServiceConfig struct {
	Clock           func() time.Time
	Events          EventSink
	ConflictHistory int
}

// Service owns the drain loop: it accepts operations, delivers eligible
// ones sequentially to the remote endpoint, applies the retry policy
// and exposes the status snapshot. It is explicitly constructed with
// its dependencies so tests can substitute all of them.
type Service struct {
	queue    *queue.Queue
	remote   RemoteClient
	monitor  *Monitor
	store    storage.Store
	resolver *conflict.Resolver
	clock    func() time.Time
	events   EventSink
	history  int

	draining atomic.Bool

	mu       sync.Mutex
	lastSync *time.Time
}

// NewService wires the sync service together. The monitor's
// online-transition callback is registered here so a recovered
// connection immediately triggers a drain pass.
func NewService(q *queue.Queue, remote RemoteClient, monitor *Monitor, store storage.Store, cfg ServiceConfig) *Service {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.ConflictHistory <= 0 {
		cfg.ConflictHistory = DefaultConflictHistory
	}

	s := &Service{
		queue:    q,
		remote:   remote,
		monitor:  monitor,
		store:    store,
		resolver: conflict.NewResolver(),
		clock:    cfg.Clock,
		events:   cfg.Events,
		history:  cfg.ConflictHistory,
	}
	s.loadLastSync()

	monitor.OnOnline(func() {
		go s.Drain(context.Background())
	})

	return s
}

// QueueOperation validates and enqueues a mutation, then opportunistically
// triggers a drain pass when online and idle. It returns once the
// operation is persisted, never once it is delivered, and never blocks
// on network I/O.
func (s *Service) QueueOperation(entityType models.EntityType, kind models.MutationKind, data json.RawMessage, hospitalID string) (string, error) {
	op, err := s.queue.Enqueue(entityType, kind, data, hospitalID)
	if err != nil {
		return "", err
	}

	s.notifyQueueUpdated()

	if s.monitor.Online() && !s.draining.Load() {
		go s.Drain(context.Background())
	}

	return op.ID, nil
}

// Drain attempts one delivery per eligible operation, sequentially and
// in enqueue order. At most one pass runs at a time: a trigger arriving
// while a pass is in progress is dropped. Returns true if a pass
// executed.
func (s *Service) Drain(ctx context.Context) bool {
	if !s.draining.CompareAndSwap(false, true) {
		return false
	}
	defer s.draining.Store(false)

	eligible := s.queue.Eligible()
	if len(eligible) == 0 {
		return true
	}

	if s.events != nil {
		s.events.SyncStarted()
	}
	logging.Info("Drain pass started",
		map[string]interface{}{"operations": len(eligible)})

	delivered, failed := 0, 0
	for _, op := range eligible {
		select {
		case <-ctx.Done():
			logging.Warn("Drain pass cancelled", map[string]interface{}{
				"delivered": delivered,
				"remaining": len(eligible) - delivered - failed,
			})
			s.queue.Persist()
			return true
		default:
		}

		// Each operation's outcome is independent: one failing
		// operation must not block the rest of the pass.
		if s.deliver(ctx, op) {
			delivered++
		} else {
			failed++
		}
	}

	s.queue.Persist()
	s.notifyQueueUpdated()
	if s.events != nil {
		s.events.SyncCompleted(delivered, failed)
	}
	logging.Info("Drain pass finished", map[string]interface{}{
		"delivered": delivered,
		"failed":    failed,
	})

	return true
}

// deliver makes one delivery attempt and applies the retry policy.
func (s *Service) deliver(ctx context.Context, op *models.SyncOperation) bool {
	if err := s.queue.MarkSyncing(op.ID); err != nil {
		// Removed since the pass selected it; nothing to deliver.
		return false
	}

	result, err := s.remote.Submit(ctx, op)
	if err != nil {
		s.queue.Fail(op.ID, err)
		return false
	}

	if err := s.queue.Complete(op.ID); err != nil {
		logging.Error("Delivered operation missing from queue", err,
			map[string]interface{}{"operation_id": op.ID})
	}
	s.recordLastSync()

	for _, report := range result.Conflicts {
		s.resolveReported(op, report)
	}

	return true
}

// resolveReported resolves a remote-reported conflict and appends it to
// the audit ring.
func (s *Service) resolveReported(op *models.SyncOperation, report ConflictReport) {
	local, err := models.RecordVersionFromOperation(op)
	if err != nil {
		logging.Error("Cannot build local version for conflict", err,
			map[string]interface{}{"operation_id": op.ID})
		return
	}

	remote := report.Remote
	res, err := s.resolver.Resolve(local, &remote, op.EntityType)
	if err != nil {
		logging.Error("Conflict resolution failed", err,
			map[string]interface{}{"operation_id": op.ID})
		return
	}

	rec := res.Record(op.ID, op.EntityType, local, &remote, s.clock().UTC())
	s.appendConflict(rec)

	if s.events != nil {
		s.events.ConflictDetected(rec)
	}
	logging.Info("Conflict resolved", map[string]interface{}{
		"operation_id": op.ID,
		"record_id":    rec.RecordID,
		"winner_side":  rec.WinnerSide,
		"rule":         rec.Rule,
	})
}

// ForceSync re-probes connectivity and, when the remote is reachable,
// performs one drain pass. This is the only entry point allowed to
// propagate an error so operators get immediate feedback.
func (s *Service) ForceSync(ctx context.Context) error {
	if !s.monitor.Probe(ctx) {
		return errors.New(errors.ErrOffline, "national database is unreachable")
	}
	s.Drain(ctx)
	return nil
}

// Status returns the derived read-only snapshot. Safe to call at any
// frequency; it never mutates state.
func (s *Service) Status() models.SyncStatus {
	pending, failed := s.queue.Counts()

	s.mu.Lock()
	var last *time.Time
	if s.lastSync != nil {
		t := *s.lastSync
		last = &t
	}
	s.mu.Unlock()

	return models.SyncStatus{
		LastSync:          last,
		PendingOperations: pending,
		FailedOperations:  failed,
		IsOnline:          s.monitor.Online(),
		SyncInProgress:    s.draining.Load(),
	}
}

// RetryOperation resets a terminally failed operation so the next pass
// reattempts it, then triggers a pass if online.
func (s *Service) RetryOperation(id string) error {
	if err := s.queue.ResetFailed(id); err != nil {
		return err
	}
	s.notifyQueueUpdated()
	if s.monitor.Online() {
		go s.Drain(context.Background())
	}
	return nil
}

// Operations returns a snapshot of the queue for operator visibility.
func (s *Service) Operations() []*models.SyncOperation {
	return s.queue.Snapshot()
}

// Conflicts returns the conflict audit ring, most recent last.
func (s *Service) Conflicts() []models.ConflictRecord {
	raw, err := s.store.Get(storage.KeyConflicts)
	if err != nil {
		return nil
	}
	var recs []models.ConflictRecord
	if err := json.Unmarshal(raw, &recs); err != nil {
		logging.Warn("Conflict history is corrupt",
			map[string]interface{}{"error": err.Error()})
		return nil
	}
	return recs
}

// recordLastSync advances the last successful sync timestamp and
// persists it under its own storage key.
func (s *Service) recordLastSync() {
	now := s.clock().UTC()

	s.mu.Lock()
	s.lastSync = &now
	s.mu.Unlock()

	if err := s.store.Put(storage.KeyLastSync, []byte(now.Format(time.RFC3339Nano))); err != nil {
		logging.Error("Failed to persist last sync time", err, nil)
	}
}

// loadLastSync restores the last successful sync timestamp on start.
func (s *Service) loadLastSync() {
	raw, err := s.store.Get(storage.KeyLastSync)
	if err != nil {
		return
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		logging.Warn("Persisted last sync time is corrupt",
			map[string]interface{}{"value": string(raw)})
		return
	}
	s.lastSync = &t
}

// appendConflict appends to the bounded audit ring and persists it.
func (s *Service) appendConflict(rec models.ConflictRecord) {
	recs := s.Conflicts()
	recs = append(recs, rec)
	if len(recs) > s.history {
		recs = recs[len(recs)-s.history:]
	}

	raw, err := json.Marshal(recs)
	if err != nil {
		logging.Error("Failed to serialize conflict history", err, nil)
		return
	}
	if err := s.store.Put(storage.KeyConflicts, raw); err != nil {
		logging.Error("Failed to persist conflict history", err, nil)
	}
}

// notifyQueueUpdated pushes fresh counters to the event sink.
func (s *Service) notifyQueueUpdated() {
	if s.events == nil {
		return
	}
	pending, failed := s.queue.Counts()
	s.events.QueueUpdated(pending, failed)
}
