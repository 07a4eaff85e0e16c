// Package models provides data model definitions for the MedBridge sync core.
package models

import "time"

// SyncStatus is a derived, read-only snapshot of the sync core. It is
// recomputed on demand from the queue and connectivity state and never
// persisted.
type SyncStatus struct {
	LastSync          *time.Time `json:"last_sync"`
	PendingOperations int        `json:"pending_operations"`
	FailedOperations  int        `json:"failed_operations"`
	IsOnline          bool       `json:"is_online"`
	SyncInProgress    bool       `json:"sync_in_progress"`
}
