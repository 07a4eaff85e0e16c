// Package models provides data model definitions for the MedBridge sync core.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RecordMeta carries the identity and timestamps common to every payload
// variant. UpdatedAt drives last-write-wins conflict resolution.
type RecordMeta struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// PatientPayload is the payload for patient mutations.
type PatientPayload struct {
	RecordMeta
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	BloodGroup  string `json:"blood_group,omitempty"`
}

// AppointmentPayload is the payload for appointment mutations.
type AppointmentPayload struct {
	RecordMeta
	PatientID   string    `json:"patient_id"`
	DoctorID    string    `json:"doctor_id,omitempty"`
	Department  string    `json:"department,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	State       string    `json:"state,omitempty"`
}

// VisitPayload is the payload for visit mutations. ClinicalNotes is the
// field pinned to the treating hospital during conflict resolution.
type VisitPayload struct {
	RecordMeta
	PatientID     string    `json:"patient_id"`
	VisitedAt     time.Time `json:"visited_at,omitempty"`
	Diagnosis     string    `json:"diagnosis,omitempty"`
	Treatment     string    `json:"treatment,omitempty"`
	ClinicalNotes string    `json:"clinical_notes,omitempty"`
}

// ReferralPayload is the payload for referral mutations.
type ReferralPayload struct {
	RecordMeta
	PatientID      string `json:"patient_id"`
	FromHospitalID string `json:"from_hospital_id,omitempty"`
	ToHospitalID   string `json:"to_hospital_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Urgency        string `json:"urgency,omitempty"`
}

// DecodePayload decodes raw operation data into the payload variant for
// the given entity type. The discriminant removes the opaque-blob class
// of bugs: every consumer switches on EntityType, never on guessed shape.
func DecodePayload(entityType EntityType, data json.RawMessage) (interface{}, error) {
	switch entityType {
	case EntityPatient:
		var p PatientPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("patient payload: %w", err)
		}
		return &p, nil
	case EntityAppointment:
		var p AppointmentPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("appointment payload: %w", err)
		}
		return &p, nil
	case EntityVisit:
		var p VisitPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("visit payload: %w", err)
		}
		return &p, nil
	case EntityReferral:
		var p ReferralPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("referral payload: %w", err)
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}
}

// ValidatePayload checks that raw data decodes for the entity type and
// carries the fields a mutation of this kind requires.
func ValidatePayload(entityType EntityType, kind MutationKind, data json.RawMessage) error {
	if len(data) == 0 {
		return fmt.Errorf("empty payload")
	}

	decoded, err := DecodePayload(entityType, data)
	if err != nil {
		return err
	}

	// Updates and deletes must name the record they target.
	if kind == MutationUpdate || kind == MutationDelete {
		if payloadMeta(decoded).ID == "" {
			return fmt.Errorf("%s %s payload requires a record id", entityType, kind)
		}
	}

	return nil
}

// payloadMeta extracts the embedded RecordMeta from a decoded payload.
func payloadMeta(decoded interface{}) RecordMeta {
	switch p := decoded.(type) {
	case *PatientPayload:
		return p.RecordMeta
	case *AppointmentPayload:
		return p.RecordMeta
	case *VisitPayload:
		return p.RecordMeta
	case *ReferralPayload:
		return p.RecordMeta
	}
	return RecordMeta{}
}
