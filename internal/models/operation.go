// Package models provides data model definitions for the MedBridge sync core.
package models

import (
	"encoding/json"
	"time"
)

// EntityType identifies the domain entity a queued mutation targets.
type EntityType string

const (
	EntityPatient     EntityType = "patient"
	EntityAppointment EntityType = "appointment"
	EntityVisit       EntityType = "visit"
	EntityReferral    EntityType = "referral"
)

// MutationKind identifies the kind of mutation being replayed.
type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
	MutationDelete MutationKind = "delete"
)

// OperationStatus tracks an operation through the queue state machine.
//
// pending -> syncing -> (removed, implicit completed)
// pending -> syncing -> pending        (delivery failed, retries remain)
// pending -> syncing -> failed         (retry ceiling reached, retained)
type OperationStatus string

const (
	StatusPending   OperationStatus = "pending"
	StatusSyncing   OperationStatus = "syncing"
	StatusCompleted OperationStatus = "completed"
	StatusFailed    OperationStatus = "failed"
)

// SyncOperation is a single queued mutation bound for the national database.
// The record is append-only until terminal: completed entries are removed
// from the queue, failed entries are retained for operator visibility.
type SyncOperation struct {
	ID           string          `json:"id"`
	EntityType   EntityType      `json:"type"`
	Kind         MutationKind    `json:"operation"`
	Data         json.RawMessage `json:"data"`
	HospitalID   string          `json:"hospital_id"`
	Timestamp    time.Time       `json:"timestamp"`
	Status       OperationStatus `json:"status"`
	RetryCount   int             `json:"retry_count"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// Retryable reports whether the drain loop may still attempt delivery.
func (op *SyncOperation) Retryable(maxRetries int) bool {
	switch op.Status {
	case StatusPending:
		return true
	case StatusFailed:
		return op.RetryCount < maxRetries
	default:
		return false
	}
}

// Clone returns a copy of the operation safe for callers to hold.
func (op *SyncOperation) Clone() *SyncOperation {
	clone := *op
	if op.Data != nil {
		clone.Data = make(json.RawMessage, len(op.Data))
		copy(clone.Data, op.Data)
	}
	return &clone
}

// ValidEntityType reports whether t is a known entity type.
func ValidEntityType(t EntityType) bool {
	switch t {
	case EntityPatient, EntityAppointment, EntityVisit, EntityReferral:
		return true
	}
	return false
}

// ValidMutationKind reports whether k is a known mutation kind.
func ValidMutationKind(k MutationKind) bool {
	switch k {
	case MutationCreate, MutationUpdate, MutationDelete:
		return true
	}
	return false
}
