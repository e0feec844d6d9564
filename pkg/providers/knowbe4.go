package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/cmmc-tools/integrations-hub/pkg/credentials"
	"github.com/cmmc-tools/integrations-hub/pkg/evidence"
	"github.com/cmmc-tools/integrations-hub/pkg/registry"
)

// maxPhishingCampaigns bounds the phish-prone computation to the most recent
// test campaigns; the full campaign history is never averaged.
const maxPhishingCampaigns = 10

// KnowBe4Adapter speaks the KnowBe4 reporting API with a bearer API key. The
// eu environment targets the EU reporting host.
type KnowBe4Adapter struct {
	desc   *registry.Descriptor
	client *http.Client
	logger *zap.Logger
}

// NewKnowBe4Adapter creates the KnowBe4 adapter.
func NewKnowBe4Adapter(desc *registry.Descriptor, logger *zap.Logger) *KnowBe4Adapter {
	return &KnowBe4Adapter{desc: desc, client: newHTTPClient(), logger: logger.Named("knowbe4")}
}

// ID returns the provider id.
func (a *KnowBe4Adapter) ID() string { return a.desc.ID }

type kb4Account struct {
	Name    string `json:"name"`
	Domains []string `json:"domains"`
}

type kb4Enrollment struct {
	ModuleName string `json:"module_name"`
	Status     string `json:"status"`
}

type kb4SecurityTest struct {
	Name                 string  `json:"name"`
	PhishPronePercentage float64 `json:"phish_prone_percentage"`
	StartedAt            string  `json:"started_at"`
	DeliveredCount       int     `json:"delivered_count"`
}

// TestConnection reads the account object.
func (a *KnowBe4Adapter) TestConnection(ctx context.Context, creds credentials.Credentials) ConnectionResult {
	base := a.desc.ResolveBaseURL(creds.Environment)
	var account kb4Account
	if err := getJSON(ctx, a.client, base+"/v1/account", bearerAuth(creds.Field("apiKey")), &account); err != nil {
		if isAuthError(err) {
			return ConnectionResult{Success: false, Message: fmt.Sprintf("KnowBe4 rejected the API key: %v", err)}
		}
		return ConnectionResult{Success: false, Message: fmt.Sprintf("KnowBe4 request failed: %v", err)}
	}
	return ConnectionResult{Success: true, Message: fmt.Sprintf("Connected to KnowBe4 account %s", account.Name)}
}

// Sync pulls training enrollments (primary fetch) and the most recent
// phishing security tests. No campaign data leaves the phish-prone rate nil,
// which downstream must keep distinct from an actual 0%.
func (a *KnowBe4Adapter) Sync(ctx context.Context, creds credentials.Credentials) (*evidence.SyncRecord, error) {
	base := a.desc.ResolveBaseURL(creds.Environment)
	auth := bearerAuth(creds.Field("apiKey"))

	var enrollments []kb4Enrollment
	if err := getJSON(ctx, a.client, base+"/v1/training/enrollments?per_page=100", auth, &enrollments); err != nil {
		return nil, NewProviderError(a.desc.ID, "sync_failed", "enrollment listing failed", err)
	}

	rec := &evidence.SyncRecord{ProviderID: a.desc.ID, LastSync: now()}

	completed := 0
	for _, e := range enrollments {
		switch strings.ToLower(e.Status) {
		case "passed", "completed":
			completed++
		}
	}

	stats := &evidence.TrainingStats{
		Enrollments:    len(enrollments),
		Completed:      completed,
		CompletionRate: evidence.Rate(completed, len(enrollments)),
	}

	var tests []kb4SecurityTest
	url := fmt.Sprintf("%s/v1/phishing/security_tests?per_page=%d", base, maxPhishingCampaigns)
	if err := getJSON(ctx, a.client, url, auth, &tests); err != nil {
		a.logger.Warn("phishing security tests unavailable", zap.Error(err))
		rec.Warnings = append(rec.Warnings, "phishing campaign data unavailable")
	} else if len(tests) > 0 {
		tests = truncate(tests, maxPhishingCampaigns)
		sum := 0.0
		for _, t := range tests {
			sum += t.PhishPronePercentage
			rec.Details.Campaigns = append(rec.Details.Campaigns, evidence.CampaignSummary{
				Name:           t.Name,
				PhishPronePct:  t.PhishPronePercentage,
				StartedAt:      t.StartedAt,
				RecipientCount: t.DeliveredCount,
			})
		}
		avg := sum / float64(len(tests))
		stats.PhishProneRate = &avg
		stats.CampaignCount = len(tests)
	}

	rec.Stats.Training = stats
	return rec, nil
}
