// Package store persists the durable side of the hub: per-provider sync
// records plus the host application's assessment and POA&M records. The
// credential store is deliberately not part of this package; secrets never
// reach a durable medium.
package store

import (
	"context"

	"github.com/cmmc-tools/integrations-hub/pkg/evidence"
)

// ControlAssessment is the per-practice slice of the host assessment record
// the hub reads and merges into. Unlisted host fields are owned elsewhere.
type ControlAssessment struct {
	Status        string `json:"status,omitempty"`
	OscalImported bool   `json:"oscalImported,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// POAMItem is one remediation entry keyed by practice id.
type POAMItem struct {
	Weakness      string `json:"weakness,omitempty"`
	Remediation   string `json:"remediation,omitempty"`
	ScheduledDate string `json:"scheduledDate,omitempty"`
}

// Store is the durable record contract. SyncRecord returns (nil, nil) for a
// provider that has never synced.
type Store interface {
	SyncRecord(ctx context.Context, providerID string) (*evidence.SyncRecord, error)
	PutSyncRecord(ctx context.Context, rec *evidence.SyncRecord) error

	Assessment(ctx context.Context) (map[string]ControlAssessment, error)
	// MergeAssessment merges updates into the assessment record per control:
	// status and the oscal-imported marker are written, other fields of an
	// existing entry are preserved, and untouched controls stay untouched.
	MergeAssessment(ctx context.Context, updates map[string]ControlAssessment) error

	POAM(ctx context.Context) (map[string]POAMItem, error)
	PutPOAMItem(ctx context.Context, controlID string, item POAMItem) error
}

// mergeControl applies the hub's merge contract for a single control entry.
func mergeControl(existing ControlAssessment, update ControlAssessment) ControlAssessment {
	existing.Status = update.Status
	existing.OscalImported = update.OscalImported
	return existing
}
