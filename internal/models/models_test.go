// Package models provides unit tests for the sync core data models.
package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestSyncOperationJSONRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	op := &SyncOperation{
		ID:           "a3bb189e-8bf9-4888-9912-ace4e6543002",
		EntityType:   EntityPatient,
		Kind:         MutationUpdate,
		Data:         json.RawMessage(`{"id":"p-1","first_name":"Aye"}`),
		HospitalID:   "H1",
		Timestamp:    ts,
		Status:       StatusPending,
		RetryCount:   0,
	}

	raw, err := json.Marshal(op)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	// Wire format uses the external field names.
	for _, field := range []string{`"type":"patient"`, `"operation":"update"`, `"hospital_id":"H1"`, `"status":"pending"`, `"retry_count":0`} {
		if !strings.Contains(string(raw), field) {
			t.Errorf("serialized operation missing %s: %s", field, raw)
		}
	}
	// Timestamp is ISO-8601.
	if !strings.Contains(string(raw), `"timestamp":"2026-03-14T09:30:00Z"`) {
		t.Errorf("timestamp not ISO-8601: %s", raw)
	}
	// error_message omitted when empty.
	if strings.Contains(string(raw), "error_message") {
		t.Errorf("empty error_message should be omitted: %s", raw)
	}

	var decoded SyncOperation
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.ID != op.ID || decoded.EntityType != op.EntityType || decoded.Kind != op.Kind {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name   string
		status OperationStatus
		retry  int
		want   bool
	}{
		{"pending fresh", StatusPending, 0, true},
		{"pending retried", StatusPending, 2, true},
		{"syncing", StatusSyncing, 0, false},
		{"failed under ceiling", StatusFailed, 2, true},
		{"failed at ceiling", StatusFailed, 3, false},
		{"completed", StatusCompleted, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			op := &SyncOperation{Status: tc.status, RetryCount: tc.retry}
			if got := op.Retryable(3); got != tc.want {
				t.Errorf("Retryable = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	op := &SyncOperation{ID: "op-1", Data: json.RawMessage(`{"id":"p-1"}`)}
	clone := op.Clone()

	clone.Data[2] = 'x'
	if string(op.Data) != `{"id":"p-1"}` {
		t.Error("mutating clone data affected original")
	}
}

func TestDecodePayloadVariants(t *testing.T) {
	cases := []struct {
		entityType EntityType
		raw        string
	}{
		{EntityPatient, `{"id":"p-1","first_name":"Aye","last_name":"Chan"}`},
		{EntityAppointment, `{"id":"a-1","patient_id":"p-1","department":"cardiology"}`},
		{EntityVisit, `{"id":"v-1","patient_id":"p-1","clinical_notes":"BP elevated"}`},
		{EntityReferral, `{"id":"r-1","patient_id":"p-1","to_hospital_id":"H2"}`},
	}

	for _, tc := range cases {
		t.Run(string(tc.entityType), func(t *testing.T) {
			decoded, err := DecodePayload(tc.entityType, json.RawMessage(tc.raw))
			if err != nil {
				t.Fatalf("DecodePayload failed: %v", err)
			}
			if decoded == nil {
				t.Fatal("expected decoded payload")
			}
		})
	}

	if _, err := DecodePayload("lab_result", json.RawMessage(`{}`)); err == nil {
		t.Error("expected error for unknown entity type")
	}
}

func TestDecodeVisitClinicalNotes(t *testing.T) {
	raw := json.RawMessage(`{"id":"v-1","patient_id":"p-1","clinical_notes":"post-op recovery normal"}`)
	decoded, err := DecodePayload(EntityVisit, raw)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}

	visit, ok := decoded.(*VisitPayload)
	if !ok {
		t.Fatalf("expected *VisitPayload, got %T", decoded)
	}
	if visit.ClinicalNotes != "post-op recovery normal" {
		t.Errorf("ClinicalNotes = %q", visit.ClinicalNotes)
	}
}

func TestValidatePayload(t *testing.T) {
	t.Run("create without id allowed", func(t *testing.T) {
		raw := json.RawMessage(`{"first_name":"Aye","last_name":"Chan"}`)
		if err := ValidatePayload(EntityPatient, MutationCreate, raw); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("update requires id", func(t *testing.T) {
		raw := json.RawMessage(`{"first_name":"Aye"}`)
		if err := ValidatePayload(EntityPatient, MutationUpdate, raw); err == nil {
			t.Error("expected error for update without id")
		}
	})

	t.Run("delete requires id", func(t *testing.T) {
		raw := json.RawMessage(`{"reason":"duplicate"}`)
		if err := ValidatePayload(EntityReferral, MutationDelete, raw); err == nil {
			t.Error("expected error for delete without id")
		}
	})

	t.Run("malformed json rejected", func(t *testing.T) {
		if err := ValidatePayload(EntityVisit, MutationCreate, json.RawMessage(`{not json`)); err == nil {
			t.Error("expected error for malformed payload")
		}
	})

	t.Run("empty payload rejected", func(t *testing.T) {
		if err := ValidatePayload(EntityVisit, MutationCreate, nil); err == nil {
			t.Error("expected error for empty payload")
		}
	})
}

func TestEffectiveTime(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	rv := &RecordVersion{CreatedAt: created, UpdatedAt: updated}
	if !rv.EffectiveTime().Equal(updated) {
		t.Error("expected updated_at to win when set")
	}

	rv = &RecordVersion{CreatedAt: created}
	if !rv.EffectiveTime().Equal(created) {
		t.Error("expected created_at fallback when updated_at unset")
	}
}

func TestRecordVersionFromOperation(t *testing.T) {
	op := &SyncOperation{
		EntityType: EntityVisit,
		Kind:       MutationUpdate,
		HospitalID: "H1",
		Data:       json.RawMessage(`{"id":"v-1","patient_id":"p-1","updated_at":"2026-03-01T10:00:00Z","clinical_notes":"stable"}`),
	}

	rv, err := RecordVersionFromOperation(op)
	if err != nil {
		t.Fatalf("RecordVersionFromOperation failed: %v", err)
	}

	if rv.ID != "v-1" {
		t.Errorf("ID = %q, want v-1", rv.ID)
	}
	if rv.HospitalID != "H1" {
		t.Errorf("HospitalID = %q, want H1", rv.HospitalID)
	}
	if rv.ClinicalNotes != "stable" {
		t.Errorf("ClinicalNotes = %q, want stable", rv.ClinicalNotes)
	}
	if rv.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not decoded")
	}

	// Non-visit payloads carry no clinical notes.
	op2 := &SyncOperation{
		EntityType: EntityPatient,
		Data:       json.RawMessage(`{"id":"p-1","first_name":"Aye"}`),
	}
	rv2, err := RecordVersionFromOperation(op2)
	if err != nil {
		t.Fatalf("RecordVersionFromOperation failed: %v", err)
	}
	if rv2.ClinicalNotes != "" {
		t.Errorf("patient record carries clinical notes: %q", rv2.ClinicalNotes)
	}
}

func TestValidators(t *testing.T) {
	if !ValidEntityType(EntityVisit) || ValidEntityType("ward") {
		t.Error("ValidEntityType misclassified")
	}
	if !ValidMutationKind(MutationDelete) || ValidMutationKind("upsert") {
		t.Error("ValidMutationKind misclassified")
	}
}
