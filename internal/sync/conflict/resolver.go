// Package conflict provides conflict resolution for edits that diverged
// between the local hospital and the national database.
package conflict

import (
	"time"

	"github.com/swanhtet/medbridge/internal/errors"
	"github.com/swanhtet/medbridge/internal/models"
)

// Rule names the resolution rule that picked a winner.
type Rule string

const (
	// RuleClinicalNotesPinned: clinical documentation from the treating
	// hospital always survives, regardless of timestamps.
	RuleClinicalNotesPinned Rule = "clinical_notes_pinned"

	// RuleLastWriteWins: the strictly later updated_at (falling back to
	// created_at) wins; equal timestamps favor the local version.
	RuleLastWriteWins Rule = "last_write_wins"
)

// Side names the surviving side of a resolved conflict.
type Side string

const (
	SideLocal  Side = "local"
	SideRemote Side = "remote"
	SideMerged Side = "merged"
)

// Resolution is the outcome of resolving one local/remote pair.
type Resolution struct {
	Winner *models.RecordVersion
	Side   Side
	Rule   Rule
}

// Resolver decides the surviving version of a diverged record. Resolve
// performs no I/O and never mutates its inputs.
type Resolver struct{}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve picks the surviving version of a local/remote pair.
//
// Visits with local clinical notes resolve to the remote record with the
// local notes overlaid. Everything else is last-write-wins on the
// effective timestamp, with ties deterministically favoring local.
func (r *Resolver) Resolve(local, remote *models.RecordVersion, entityType models.EntityType) (*Resolution, error) {
	if local == nil || remote == nil {
		return nil, errors.New(errors.ErrConflictInvalid, "both versions must be non-nil")
	}
	if local.ID != "" && remote.ID != "" && local.ID != remote.ID {
		return nil, errors.New(errors.ErrConflictInvalid, "record id mismatch")
	}

	if entityType == models.EntityVisit && local.ClinicalNotes != "" {
		winner := remote.Clone()
		winner.ClinicalNotes = local.ClinicalNotes
		return &Resolution{
			Winner: winner,
			Side:   SideMerged,
			Rule:   RuleClinicalNotesPinned,
		}, nil
	}

	localTime := local.EffectiveTime()
	remoteTime := remote.EffectiveTime()

	if remoteTime.After(localTime) {
		return &Resolution{
			Winner: remote.Clone(),
			Side:   SideRemote,
			Rule:   RuleLastWriteWins,
		}, nil
	}

	// Local is strictly later, or the timestamps tie: local wins. The
	// tie-break must be deterministic so repeated resolution of the
	// same pair always picks the same side.
	return &Resolution{
		Winner: local.Clone(),
		Side:   SideLocal,
		Rule:   RuleLastWriteWins,
	}, nil
}

// Record builds the audit entry for a resolution, stamped at detectedAt.
func (res *Resolution) Record(operationID string, entityType models.EntityType, local, remote *models.RecordVersion, detectedAt time.Time) models.ConflictRecord {
	return models.ConflictRecord{
		OperationID:     operationID,
		EntityType:      entityType,
		RecordID:        res.Winner.ID,
		WinnerSide:      string(res.Side),
		Rule:            string(res.Rule),
		LocalTimestamp:  local.EffectiveTime(),
		RemoteTimestamp: remote.EffectiveTime(),
		DetectedAt:      detectedAt,
	}
}
