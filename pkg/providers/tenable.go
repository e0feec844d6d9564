package providers

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/cmmc-tools/integrations-hub/pkg/credentials"
	"github.com/cmmc-tools/integrations-hub/pkg/evidence"
	"github.com/cmmc-tools/integrations-hub/pkg/registry"
)

// TenableAdapter speaks the Tenable Vulnerability Management API using the
// X-ApiKeys header pair. The fedramp environment targets fedcloud.
type TenableAdapter struct {
	desc   *registry.Descriptor
	client *http.Client
	logger *zap.Logger
}

// NewTenableAdapter creates the Tenable adapter.
func NewTenableAdapter(desc *registry.Descriptor, logger *zap.Logger) *TenableAdapter {
	return &TenableAdapter{desc: desc, client: newHTTPClient(), logger: logger.Named("tenable")}
}

// ID returns the provider id.
func (a *TenableAdapter) ID() string { return a.desc.ID }

func (a *TenableAdapter) auth(creds credentials.Credentials) func(*http.Request) {
	value := fmt.Sprintf("accessKey=%s;secretKey=%s", creds.Field("accessKey"), creds.Field("secretKey"))
	return headerAuth("X-ApiKeys", value)
}

type tenableSession struct {
	Username string `json:"username"`
}

type tenableWorkbench struct {
	TotalVulnerabilityCount int `json:"total_vulnerability_count"`
}

type tenableScans struct {
	Scans []struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	} `json:"scans"`
}

// TestConnection reads the current session.
func (a *TenableAdapter) TestConnection(ctx context.Context, creds credentials.Credentials) ConnectionResult {
	base := a.desc.ResolveBaseURL(creds.Environment)
	var session tenableSession
	if err := getJSON(ctx, a.client, base+"/session", a.auth(creds), &session); err != nil {
		if isAuthError(err) {
			return ConnectionResult{Success: false, Message: fmt.Sprintf("Tenable rejected the API keys: %v", err)}
		}
		return ConnectionResult{Success: false, Message: fmt.Sprintf("Tenable request failed: %v", err)}
	}
	return ConnectionResult{Success: true, Message: fmt.Sprintf("Connected to Tenable as %s", session.Username)}
}

// Sync fetches per-severity counts independently so one tier failing never
// zeroes the others, then lists recent scans. The severity sweep is the
// primary fetch only in the sense that an auth rejection on the first tier
// aborts; a non-auth failure on any tier degrades that tier to 0.
func (a *TenableAdapter) Sync(ctx context.Context, creds credentials.Credentials) (*evidence.SyncRecord, error) {
	base := a.desc.ResolveBaseURL(creds.Environment)
	auth := a.auth(creds)

	rec := &evidence.SyncRecord{ProviderID: a.desc.ID, LastSync: now()}
	stats := &evidence.VulnerabilityStats{}

	severities := []struct {
		name string
		dst  *int
	}{
		{"critical", &stats.Critical},
		{"high", &stats.High},
		{"medium", &stats.Medium},
		{"low", &stats.Low},
	}
	for i, sev := range severities {
		url := fmt.Sprintf("%s/workbenches/vulnerabilities?filter.0.filter=severity&filter.0.quality=eq&filter.0.value=%s", base, sev.name)
		var wb tenableWorkbench
		if err := getJSON(ctx, a.client, url, auth, &wb); err != nil {
			if i == 0 && isAuthError(err) {
				return nil, NewProviderError(a.desc.ID, "auth_failed", "API keys rejected", err)
			}
			a.logger.Warn("severity tier fetch failed", zap.String("severity", sev.name), zap.Error(err))
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("%s count unavailable; counted as 0", sev.name))
			continue
		}
		*sev.dst = wb.TotalVulnerabilityCount
	}

	var scans tenableScans
	if err := getJSON(ctx, a.client, base+"/scans", auth, &scans); err != nil {
		a.logger.Warn("scan listing unavailable", zap.Error(err))
		rec.Warnings = append(rec.Warnings, "scan list unavailable")
	} else {
		for _, s := range scans.Scans {
			rec.Details.Scans = append(rec.Details.Scans, evidence.ScanSummary{Name: s.Name, Status: s.Status})
		}
		rec.Details.Scans = truncate(rec.Details.Scans, evidence.MaxDetailRecords)
		stats.ScanCount = len(scans.Scans)
	}

	rec.Stats.Vulnerability = stats
	return rec, nil
}
