// Package models provides data model definitions for the MedBridge sync core.
package models

import (
	"encoding/json"
	"time"
)

// RecordVersion is one side of a local/remote pair handed to the conflict
// resolver. Fields carries whatever entity body the remote reported; the
// resolver only inspects identity, timestamps and clinical notes.
type RecordVersion struct {
	ID            string          `json:"id"`
	HospitalID    string          `json:"hospital_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at,omitempty"`
	ClinicalNotes string          `json:"clinical_notes,omitempty"`
	Fields        json.RawMessage `json:"fields,omitempty"`
}

// EffectiveTime returns the timestamp used for last-write-wins ordering:
// updated_at when set, falling back to created_at.
func (rv *RecordVersion) EffectiveTime() time.Time {
	if !rv.UpdatedAt.IsZero() {
		return rv.UpdatedAt
	}
	return rv.CreatedAt
}

// Clone returns a copy safe for the caller to mutate.
func (rv *RecordVersion) Clone() *RecordVersion {
	clone := *rv
	if rv.Fields != nil {
		clone.Fields = make(json.RawMessage, len(rv.Fields))
		copy(clone.Fields, rv.Fields)
	}
	return &clone
}

// RecordVersionFromOperation builds the local side of a conflict pair from
// a queued operation's payload.
func RecordVersionFromOperation(op *SyncOperation) (*RecordVersion, error) {
	decoded, err := DecodePayload(op.EntityType, op.Data)
	if err != nil {
		return nil, err
	}

	meta := payloadMeta(decoded)
	rv := &RecordVersion{
		ID:         meta.ID,
		HospitalID: op.HospitalID,
		CreatedAt:  meta.CreatedAt,
		UpdatedAt:  meta.UpdatedAt,
		Fields:     op.Data,
	}

	if visit, ok := decoded.(*VisitPayload); ok {
		rv.ClinicalNotes = visit.ClinicalNotes
	}

	return rv, nil
}
