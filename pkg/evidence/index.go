package evidence

import (
	"context"
	"fmt"
	"time"

	"github.com/cmmc-tools/integrations-hub/pkg/registry"
)

// RecordSource supplies the latest sync record per provider. A missing record
// is (nil, nil), not an error.
type RecordSource interface {
	SyncRecord(ctx context.Context, providerID string) (*SyncRecord, error)
}

// Contribution is one provider's evidence for a single practice.
type Contribution struct {
	Source       string    `json:"source"`
	ProviderName string    `json:"providerName"`
	SyncDate     time.Time `json:"syncDate"`
	Summary      string    `json:"summary"`
	Stats        Stats     `json:"stats"`
}

// Index answers "which synced providers can evidence this practice".
type Index struct {
	registry *registry.Registry
	records  RecordSource
}

// NewIndex builds an evidence index over the registry and a record source.
func NewIndex(reg *registry.Registry, records RecordSource) *Index {
	return &Index{registry: reg, records: records}
}

// ControlEvidence returns one contribution per provider whose descriptor
// covers the practice and which has a sync record. Always returns a non-nil
// slice; record lookup failures skip that provider rather than failing the
// whole query.
func (ix *Index) ControlEvidence(ctx context.Context, controlID string) []Contribution {
	out := []Contribution{}
	for _, desc := range ix.registry.List() {
		if !desc.HasControl(controlID) {
			continue
		}
		rec, err := ix.records.SyncRecord(ctx, desc.ID)
		if err != nil || rec == nil {
			continue
		}
		out = append(out, Contribution{
			Source:       desc.ID,
			ProviderName: desc.Name,
			SyncDate:     rec.LastSync,
			Summary:      Summarize(rec),
			Stats:        rec.Stats,
		})
	}
	return out
}

// ProviderStats projects a provider's normalized stats, nil when unsynced.
func (ix *Index) ProviderStats(ctx context.Context, providerID string) *Stats {
	rec, err := ix.records.SyncRecord(ctx, providerID)
	if err != nil || rec == nil {
		return nil
	}
	stats := rec.Stats
	return &stats
}

// Summarize renders a short human-readable line for a sync record, matching
// the category's statistic semantics.
func Summarize(rec *SyncRecord) string {
	s := rec.Stats
	switch {
	case s.Identity != nil:
		return fmt.Sprintf("%d%% MFA enrollment across %d enabled users, %d active access policies",
			s.Identity.MFARate, s.Identity.EnabledUsers, s.Identity.ActivePolicies)
	case s.Endpoint != nil:
		return fmt.Sprintf("%d%% of %d devices compliant",
			s.Endpoint.ComplianceRate, s.Endpoint.TotalDevices)
	case s.Vulnerability != nil:
		return fmt.Sprintf("%d critical, %d high, %d medium, %d low open findings",
			s.Vulnerability.Critical, s.Vulnerability.High, s.Vulnerability.Medium, s.Vulnerability.Low)
	case s.Training != nil:
		if s.Training.PhishProneRate != nil {
			return fmt.Sprintf("%d%% training completion, %.1f%% phish-prone over last %d campaigns",
				s.Training.CompletionRate, *s.Training.PhishProneRate, s.Training.CampaignCount)
		}
		return fmt.Sprintf("%d%% training completion, no phishing campaign data",
			s.Training.CompletionRate)
	case s.Ticketing != nil:
		return fmt.Sprintf("%d of %d compliance tickets open",
			s.Ticketing.OpenItems, s.Ticketing.TotalItems)
	case s.Storage != nil:
		enc := "unencrypted"
		if s.Storage.Encrypted {
			enc = "encrypted at rest"
		}
		return fmt.Sprintf("%d evidence objects (%d bytes), %s",
			s.Storage.ObjectCount, s.Storage.TotalBytes, enc)
	default:
		return fmt.Sprintf("synced %s", rec.LastSync.Format(time.RFC3339))
	}
}
