// Package models provides data model definitions for the MedBridge sync core.
package models

import "time"

// ConflictRecord is an audit entry for a resolved concurrent edit,
// retained so operators can see which side survived and why.
type ConflictRecord struct {
	OperationID     string     `json:"operation_id"`
	EntityType      EntityType `json:"entity_type"`
	RecordID        string     `json:"record_id"`
	WinnerSide      string     `json:"winner_side"` // local, remote, merged
	Rule            string     `json:"rule"`
	LocalTimestamp  time.Time  `json:"local_timestamp"`
	RemoteTimestamp time.Time  `json:"remote_timestamp"`
	DetectedAt      time.Time  `json:"detected_at"`
}
