package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/cmmc-tools/integrations-hub/pkg/credentials"
	"github.com/cmmc-tools/integrations-hub/pkg/evidence"
	"github.com/cmmc-tools/integrations-hub/pkg/registry"
)

// CrowdStrikeAdapter speaks the CrowdStrike Falcon API. Token exchange uses
// the OAuth2 client-credentials flow against the regional API host; the
// us-gov environment targets the GovCloud host.
type CrowdStrikeAdapter struct {
	desc   *registry.Descriptor
	client *http.Client
	logger *zap.Logger
}

// NewCrowdStrikeAdapter creates the CrowdStrike Falcon adapter.
func NewCrowdStrikeAdapter(desc *registry.Descriptor, logger *zap.Logger) *CrowdStrikeAdapter {
	return &CrowdStrikeAdapter{desc: desc, client: newHTTPClient(), logger: logger.Named("crowdstrike")}
}

// ID returns the provider id.
func (a *CrowdStrikeAdapter) ID() string { return a.desc.ID }

func (a *CrowdStrikeAdapter) token(ctx context.Context, creds credentials.Credentials) (string, error) {
	base := a.desc.ResolveBaseURL(creds.Environment)
	tok, err := clientCredentialsToken(ctx, a.client, base+"/oauth2/token",
		creds.Field("clientId"), creds.Field("clientSecret"), nil)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

type falconIDs struct {
	Resources []string `json:"resources"`
	Meta      struct {
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	} `json:"meta"`
}

type falconDevices struct {
	Resources []struct {
		Hostname        string `json:"hostname"`
		OSVersion       string `json:"os_version"`
		Status          string `json:"status"`
		LastSeen        string `json:"last_seen"`
		ReducedFuncMode string `json:"reduced_functionality_mode"`
	} `json:"resources"`
}

// TestConnection exchanges credentials and queries a single device id.
func (a *CrowdStrikeAdapter) TestConnection(ctx context.Context, creds credentials.Credentials) ConnectionResult {
	token, err := a.token(ctx, creds)
	if err != nil {
		return ConnectionResult{Success: false, Message: fmt.Sprintf("Authentication failed: %v", err)}
	}
	base := a.desc.ResolveBaseURL(creds.Environment)
	var ids falconIDs
	if err := getJSON(ctx, a.client, base+"/devices/queries/devices/v1?limit=1", bearerAuth(token), &ids); err != nil {
		if isAuthError(err) {
			return ConnectionResult{Success: false, Message: fmt.Sprintf("Falcon rejected the token: %v", err)}
		}
		return ConnectionResult{Success: false, Message: fmt.Sprintf("Falcon request failed: %v", err)}
	}
	return ConnectionResult{Success: true, Message: fmt.Sprintf("Connected to CrowdStrike Falcon (%d hosts)", ids.Meta.Pagination.Total)}
}

// Sync queries device ids (primary fetch) then hydrates device details. A
// failing detail fetch degrades to id-only rows with every host counted as
// non-compliant rather than aborting the sync.
func (a *CrowdStrikeAdapter) Sync(ctx context.Context, creds credentials.Credentials) (*evidence.SyncRecord, error) {
	token, err := a.token(ctx, creds)
	if err != nil {
		return nil, NewProviderError(a.desc.ID, "auth_failed", "token exchange rejected", err)
	}
	base := a.desc.ResolveBaseURL(creds.Environment)
	auth := bearerAuth(token)

	var ids falconIDs
	idsURL := fmt.Sprintf("%s/devices/queries/devices/v1?limit=%d", base, evidence.MaxDetailRecords)
	if err := getJSON(ctx, a.client, idsURL, auth, &ids); err != nil {
		return nil, NewProviderError(a.desc.ID, "sync_failed", "device query failed", err)
	}

	rec := &evidence.SyncRecord{ProviderID: a.desc.ID, LastSync: now()}
	stats := &evidence.EndpointStats{TotalDevices: len(ids.Resources)}

	if len(ids.Resources) > 0 {
		query := url.Values{}
		for _, id := range ids.Resources {
			query.Add("ids", id)
		}
		detailURL := base + "/devices/entities/devices/v2?" + query.Encode()
		var devices falconDevices
		if err := getJSON(ctx, a.client, detailURL, auth, &devices); err != nil {
			a.logger.Warn("device detail fetch failed", zap.Error(err))
			rec.Warnings = append(rec.Warnings, "device details unavailable; hosts counted as non-compliant")
		} else {
			for _, d := range devices.Resources {
				ok := strings.EqualFold(d.Status, "normal") && d.ReducedFuncMode != "yes"
				if ok {
					stats.CompliantDevices++
				}
				rec.Details.Devices = append(rec.Details.Devices, evidence.DeviceSummary{
					Name:      d.Hostname,
					OS:        d.OSVersion,
					Compliant: ok,
				})
			}
			rec.Details.Devices = truncate(rec.Details.Devices, evidence.MaxDetailRecords)
		}
	}

	stats.ComplianceRate = evidence.Rate(stats.CompliantDevices, stats.TotalDevices)
	rec.Stats.Endpoint = stats
	return rec, nil
}
