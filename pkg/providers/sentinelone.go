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

// SentinelOneAdapter speaks the SentinelOne management API with an ApiToken
// header against a customer console URL.
type SentinelOneAdapter struct {
	desc   *registry.Descriptor
	client *http.Client
	logger *zap.Logger
}

// NewSentinelOneAdapter creates the SentinelOne adapter.
func NewSentinelOneAdapter(desc *registry.Descriptor, logger *zap.Logger) *SentinelOneAdapter {
	return &SentinelOneAdapter{desc: desc, client: newHTTPClient(), logger: logger.Named("sentinelone")}
}

// ID returns the provider id.
func (a *SentinelOneAdapter) ID() string { return a.desc.ID }

func (a *SentinelOneAdapter) baseURL(creds credentials.Credentials) string {
	return strings.TrimRight(creds.Field("consoleUrl"), "/")
}

func (a *SentinelOneAdapter) auth(creds credentials.Credentials) func(*http.Request) {
	return headerAuth("Authorization", "ApiToken "+creds.Field("apiToken"))
}

type s1SystemInfo struct {
	Data struct {
		LatestAgentVersion string `json:"latestAgentVersion"`
	} `json:"data"`
}

type s1Agents struct {
	Data []struct {
		ComputerName string `json:"computerName"`
		OSName       string `json:"osName"`
		IsActive     bool   `json:"isActive"`
		Infected     bool   `json:"infected"`
	} `json:"data"`
	Pagination struct {
		TotalItems int `json:"totalItems"`
	} `json:"pagination"`
}

// TestConnection reads the console system info.
func (a *SentinelOneAdapter) TestConnection(ctx context.Context, creds credentials.Credentials) ConnectionResult {
	var info s1SystemInfo
	url := a.baseURL(creds) + "/web/api/v2.1/system/info"
	if err := getJSON(ctx, a.client, url, a.auth(creds), &info); err != nil {
		if isAuthError(err) {
			return ConnectionResult{Success: false, Message: fmt.Sprintf("SentinelOne rejected the API token: %v", err)}
		}
		return ConnectionResult{Success: false, Message: fmt.Sprintf("SentinelOne request failed: %v", err)}
	}
	return ConnectionResult{Success: true, Message: "Connected to SentinelOne console"}
}

// Sync lists agents and computes fleet health from active, uninfected agents.
func (a *SentinelOneAdapter) Sync(ctx context.Context, creds credentials.Credentials) (*evidence.SyncRecord, error) {
	url := fmt.Sprintf("%s/web/api/v2.1/agents?limit=%d", a.baseURL(creds), evidence.MaxDetailRecords)
	var agents s1Agents
	if err := getJSON(ctx, a.client, url, a.auth(creds), &agents); err != nil {
		return nil, NewProviderError(a.desc.ID, "sync_failed", "agent listing failed", err)
	}

	rec := &evidence.SyncRecord{ProviderID: a.desc.ID, LastSync: now()}
	healthy := 0
	for _, agent := range agents.Data {
		ok := agent.IsActive && !agent.Infected
		if ok {
			healthy++
		}
		rec.Details.Devices = append(rec.Details.Devices, evidence.DeviceSummary{
			Name:      agent.ComputerName,
			OS:        agent.OSName,
			Compliant: ok,
		})
	}
	rec.Details.Devices = truncate(rec.Details.Devices, evidence.MaxDetailRecords)
	rec.Stats.Endpoint = &evidence.EndpointStats{
		TotalDevices:     len(agents.Data),
		CompliantDevices: healthy,
		ComplianceRate:   evidence.Rate(healthy, len(agents.Data)),
	}
	return rec, nil
}
