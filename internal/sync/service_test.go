// Package sync provides unit tests for the drain service.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	gosync "sync"
	"testing"
	"time"

	"github.com/swanhtet/medbridge/internal/errors"
	"github.com/swanhtet/medbridge/internal/models"
	"github.com/swanhtet/medbridge/internal/storage"
	"github.com/swanhtet/medbridge/internal/sync/queue"
)

var visitData = json.RawMessage(`{"id":"v-1","patient_id":"p-1","updated_at":"2026-03-01T08:00:00Z","clinical_notes":"stable"}`)

// fakeRemote scripts Submit and Ping outcomes per test.
type fakeRemote struct {
	mu        gosync.Mutex
	submitErr error
	submitFn  func(op *models.SyncOperation) (*SubmitResult, error)
	pingErr   error
	attempts  map[string]int
	order     []string
	blockCh   chan struct{} // when set, Submit blocks until closed
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{attempts: make(map[string]int)}
}

func (f *fakeRemote) Submit(ctx context.Context, op *models.SyncOperation) (*SubmitResult, error) {
	f.mu.Lock()
	f.attempts[op.ID]++
	f.order = append(f.order, op.ID)
	blockCh := f.blockCh
	fn := f.submitFn
	err := f.submitErr
	f.mu.Unlock()

	if blockCh != nil {
		<-blockCh
	}
	if fn != nil {
		return fn(op)
	}
	if err != nil {
		return nil, err
	}
	return &SubmitResult{}, nil
}

func (f *fakeRemote) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeRemote) attemptsFor(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[id]
}

func newTestService(t *testing.T, remote *fakeRemote) (*Service, *queue.Queue, *Monitor) {
	t.Helper()
	store := storage.NewMemoryStore()
	q := queue.New(store, queue.Config{})
	monitor := NewMonitor(remote)
	svc := NewService(q, remote, monitor, store, ServiceConfig{
		Clock: func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	return svc, q, monitor
}

// enqueueDirect adds an operation without triggering the opportunistic
// drain, keeping pass counting deterministic.
func enqueueDirect(t *testing.T, q *queue.Queue) *models.SyncOperation {
	t.Helper()
	op, err := q.Enqueue(models.EntityPatient, models.MutationUpdate,
		json.RawMessage(`{"id":"p-1","first_name":"Aye"}`), "H1")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	return op
}

func TestSuccessRemovesOperation(t *testing.T) {
	remote := newFakeRemote()
	svc, q, _ := newTestService(t, remote)

	op := enqueueDirect(t, q)
	if got := svc.Status().PendingOperations; got != 1 {
		t.Fatalf("PendingOperations = %d, want 1", got)
	}

	if !svc.Drain(context.Background()) {
		t.Fatal("Drain did not run")
	}

	status := svc.Status()
	if status.PendingOperations != 0 {
		t.Errorf("PendingOperations = %d, want 0", status.PendingOperations)
	}
	if remote.attemptsFor(op.ID) != 1 {
		t.Errorf("attempts = %d, want 1", remote.attemptsFor(op.ID))
	}
	if len(svc.Operations()) != 0 {
		t.Error("delivered operation still in queue")
	}
	if status.LastSync == nil {
		t.Error("LastSync not advanced after successful delivery")
	}
}

// Retry ceiling: a persistently failing delivery is attempted exactly
// three times and never again.
func TestRetryCeiling(t *testing.T) {
	remote := newFakeRemote()
	remote.submitErr = fmt.Errorf("remote returned 500")
	svc, q, _ := newTestService(t, remote)

	op := enqueueDirect(t, q)

	for pass := 1; pass <= 3; pass++ {
		svc.Drain(context.Background())
		if got := remote.attemptsFor(op.ID); got != pass {
			t.Fatalf("after pass %d: attempts = %d", pass, got)
		}
	}

	status := svc.Status()
	if status.FailedOperations != 1 || status.PendingOperations != 0 {
		t.Errorf("status = %+v, want 1 failed / 0 pending", status)
	}

	// Fourth pass must not reattempt it.
	svc.Drain(context.Background())
	if got := remote.attemptsFor(op.ID); got != 3 {
		t.Errorf("attempts after extra pass = %d, want 3", got)
	}

	ops := svc.Operations()
	if len(ops) != 1 || ops[0].Status != models.StatusFailed {
		t.Fatalf("queue after exhaustion: %+v", ops)
	}
	if ops[0].ErrorMessage == "" {
		t.Error("ErrorMessage empty after failures")
	}
	if ops[0].RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", ops[0].RetryCount)
	}
}

// Reentrancy: a second Drain while a pass is blocked on the network is
// a no-op and nothing is double-attempted.
func TestDrainReentrancy(t *testing.T) {
	remote := newFakeRemote()
	remote.blockCh = make(chan struct{})
	svc, q, _ := newTestService(t, remote)

	op := enqueueDirect(t, q)

	firstDone := make(chan bool)
	go func() {
		firstDone <- svc.Drain(context.Background())
	}()

	// Wait until the first pass is inside Submit.
	deadline := time.After(2 * time.Second)
	for remote.attemptsFor(op.ID) == 0 {
		select {
		case <-deadline:
			t.Fatal("first pass never reached Submit")
		case <-time.After(time.Millisecond):
		}
	}

	if svc.Drain(context.Background()) {
		t.Error("second Drain ran while first pass in progress")
	}
	if !svc.Status().SyncInProgress {
		t.Error("SyncInProgress = false during active pass")
	}

	close(remote.blockCh)
	if !<-firstDone {
		t.Error("first Drain reported no pass")
	}

	if got := remote.attemptsFor(op.ID); got != 1 {
		t.Errorf("attempts = %d, operation was double-attempted", got)
	}
}

// Scenario A: enqueue offline, flip online, force sync delivers.
func TestOfflineEnqueueThenRecovery(t *testing.T) {
	remote := newFakeRemote()
	remote.pingErr = fmt.Errorf("no route to host")
	svc, _, monitor := newTestService(t, remote)

	id, err := svc.QueueOperation(models.EntityPatient, models.MutationUpdate,
		json.RawMessage(`{"id":"p-1","first_name":"Aye"}`), "H1")
	if err != nil {
		t.Fatalf("QueueOperation failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected operation id")
	}

	status := svc.Status()
	if status.PendingOperations != 1 || status.IsOnline {
		t.Fatalf("offline status = %+v, want 1 pending, offline", status)
	}

	// Offline force sync surfaces the probe failure.
	if err := svc.ForceSync(context.Background()); !errors.Is(err, errors.ErrOffline) {
		t.Errorf("ForceSync offline: got %v, want OFFLINE", err)
	}
	if remote.attemptsFor(id) != 0 {
		t.Error("operation attempted while offline")
	}

	// Connectivity returns.
	remote.mu.Lock()
	remote.pingErr = nil
	remote.mu.Unlock()
	monitor.SetOnline(false) // no transition; still offline until probed

	if err := svc.ForceSync(context.Background()); err != nil {
		t.Fatalf("ForceSync online failed: %v", err)
	}

	// The online transition callback may race ForceSync for the drain
	// guard; the queue empties either way.
	deadline := time.After(2 * time.Second)
	for svc.Status().PendingOperations != 0 {
		select {
		case <-deadline:
			t.Fatalf("PendingOperations = %d after recovery, want 0", svc.Status().PendingOperations)
		case <-time.After(time.Millisecond):
		}
	}
	if !svc.Status().IsOnline {
		t.Error("IsOnline = false after successful probe")
	}
}

// Scenario B: a remote that always fails leaves one terminally failed
// operation with its error retained.
func TestPersistentFailureSurfacesInStatus(t *testing.T) {
	remote := newFakeRemote()
	remote.submitErr = fmt.Errorf("submit failed with status 500: internal error")
	svc, q, _ := newTestService(t, remote)

	enqueueDirect(t, q)

	for i := 0; i < 3; i++ {
		svc.Drain(context.Background())
	}

	status := svc.Status()
	if status.FailedOperations != 1 {
		t.Errorf("FailedOperations = %d, want 1", status.FailedOperations)
	}
	if status.PendingOperations != 0 {
		t.Errorf("PendingOperations = %d, want 0", status.PendingOperations)
	}

	ops := svc.Operations()
	if len(ops) != 1 || ops[0].ErrorMessage == "" {
		t.Errorf("failed operation: %+v", ops)
	}
}

// Scenario C: mixed outcome within one pass; the failure does not abort
// the pass and the success is removed.
func TestMixedPassOutcomesAreIndependent(t *testing.T) {
	remote := newFakeRemote()
	svc, q, _ := newTestService(t, remote)

	a := enqueueDirect(t, q)
	b := enqueueDirect(t, q)

	remote.mu.Lock()
	remote.submitFn = func(op *models.SyncOperation) (*SubmitResult, error) {
		if op.ID == b.ID {
			return nil, fmt.Errorf("submit failed with status 500")
		}
		return &SubmitResult{}, nil
	}
	remote.mu.Unlock()

	svc.Drain(context.Background())

	ops := svc.Operations()
	if len(ops) != 1 {
		t.Fatalf("queue holds %d operations, want 1", len(ops))
	}
	if ops[0].ID != b.ID {
		t.Errorf("remaining operation = %s, want %s", ops[0].ID, b.ID)
	}
	if ops[0].RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", ops[0].RetryCount)
	}
	if remote.attemptsFor(a.ID) != 1 || remote.attemptsFor(b.ID) != 1 {
		t.Error("both operations should have been attempted once")
	}

	// Delivery order follows enqueue order.
	remote.mu.Lock()
	order := append([]string(nil), remote.order...)
	remote.mu.Unlock()
	if len(order) != 2 || order[0] != a.ID || order[1] != b.ID {
		t.Errorf("delivery order = %v", order)
	}
}

func TestOnlineTransitionTriggersDrain(t *testing.T) {
	remote := newFakeRemote()
	svc, q, monitor := newTestService(t, remote)

	op := enqueueDirect(t, q)

	monitor.SetOnline(true)

	deadline := time.After(2 * time.Second)
	for remote.attemptsFor(op.ID) == 0 {
		select {
		case <-deadline:
			t.Fatal("online transition did not trigger a drain pass")
		case <-time.After(time.Millisecond):
		}
	}

	if svc.Status().IsOnline != true {
		t.Error("IsOnline = false after SetOnline(true)")
	}
}

func TestConflictReportedByRemote(t *testing.T) {
	remote := newFakeRemote()
	svc, _, monitor := newTestService(t, remote)
	monitor.SetOnline(false)

	remoteVersion := models.RecordVersion{
		ID:            "v-1",
		UpdatedAt:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		ClinicalNotes: "central copy",
	}
	remote.mu.Lock()
	remote.submitFn = func(op *models.SyncOperation) (*SubmitResult, error) {
		return &SubmitResult{Conflicts: []ConflictReport{{Remote: remoteVersion}}}, nil
	}
	remote.mu.Unlock()

	if _, err := svc.QueueOperation(models.EntityVisit, models.MutationUpdate, visitData, "H1"); err != nil {
		t.Fatalf("QueueOperation failed: %v", err)
	}
	svc.Drain(context.Background())

	conflicts := svc.Conflicts()
	if len(conflicts) != 1 {
		t.Fatalf("Conflicts = %d records, want 1", len(conflicts))
	}

	rec := conflicts[0]
	if rec.Rule != "clinical_notes_pinned" {
		t.Errorf("Rule = %s, want clinical_notes_pinned", rec.Rule)
	}
	if rec.WinnerSide != "merged" {
		t.Errorf("WinnerSide = %s, want merged", rec.WinnerSide)
	}
	if rec.RecordID != "v-1" {
		t.Errorf("RecordID = %s, want v-1", rec.RecordID)
	}
}

func TestRetryOperationReattempts(t *testing.T) {
	remote := newFakeRemote()
	remote.submitErr = fmt.Errorf("remote down")
	svc, q, _ := newTestService(t, remote)

	op := enqueueDirect(t, q)
	for i := 0; i < 3; i++ {
		svc.Drain(context.Background())
	}
	if svc.Status().FailedOperations != 1 {
		t.Fatal("operation should be terminally failed")
	}

	// Remote recovers; operator retries.
	remote.mu.Lock()
	remote.submitErr = nil
	remote.mu.Unlock()

	if err := svc.RetryOperation(op.ID); err != nil {
		t.Fatalf("RetryOperation failed: %v", err)
	}
	svc.Drain(context.Background())

	if got := svc.Status(); got.FailedOperations != 0 || got.PendingOperations != 0 {
		t.Errorf("status after operator retry = %+v", got)
	}
}

func TestStatusIsReadOnly(t *testing.T) {
	remote := newFakeRemote()
	svc, q, _ := newTestService(t, remote)
	enqueueDirect(t, q)

	before := len(svc.Operations())
	for i := 0; i < 50; i++ {
		svc.Status()
	}
	if len(svc.Operations()) != before {
		t.Error("Status mutated the queue")
	}
}

func TestLastSyncSurvivesRestart(t *testing.T) {
	remote := newFakeRemote()
	store := storage.NewMemoryStore()
	q := queue.New(store, queue.Config{})
	monitor := NewMonitor(remote)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(q, remote, monitor, store, ServiceConfig{
		Clock: func() time.Time { return fixed },
	})

	enqueueDirect(t, q)
	svc.Drain(context.Background())
	if svc.Status().LastSync == nil {
		t.Fatal("LastSync not set")
	}

	// New service over the same store.
	svc2 := NewService(queue.New(store, queue.Config{}), remote, NewMonitor(remote), store, ServiceConfig{})
	got := svc2.Status().LastSync
	if got == nil || !got.Equal(fixed) {
		t.Errorf("LastSync after restart = %v, want %v", got, fixed)
	}
}
