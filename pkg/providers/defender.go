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

// DefenderAdapter speaks the Microsoft Defender for Endpoint API. Token
// exchange goes through the same Entra login hosts, with gcc-high swapping
// both the login and API hosts.
type DefenderAdapter struct {
	desc   *registry.Descriptor
	client *http.Client
	logger *zap.Logger
}

// NewDefenderAdapter creates the Defender for Endpoint adapter.
func NewDefenderAdapter(desc *registry.Descriptor, logger *zap.Logger) *DefenderAdapter {
	return &DefenderAdapter{desc: desc, client: newHTTPClient(), logger: logger.Named("defender")}
}

// ID returns the provider id.
func (a *DefenderAdapter) ID() string { return a.desc.ID }

func (a *DefenderAdapter) token(ctx context.Context, creds credentials.Credentials) (string, error) {
	tokenURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token",
		a.desc.ResolveAuthURL(creds.Environment), creds.Field("tenantId"))
	tok, err := clientCredentialsToken(ctx, a.client, tokenURL,
		creds.Field("clientId"), creds.Field("clientSecret"),
		[]string{a.desc.ResolveScope(creds.Environment)})
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

type defenderMachines struct {
	Value []struct {
		ComputerDNSName string `json:"computerDnsName"`
		OSPlatform      string `json:"osPlatform"`
		HealthStatus    string `json:"healthStatus"`
	} `json:"value"`
}

// TestConnection exchanges credentials and reads a single machine page.
func (a *DefenderAdapter) TestConnection(ctx context.Context, creds credentials.Credentials) ConnectionResult {
	token, err := a.token(ctx, creds)
	if err != nil {
		return ConnectionResult{Success: false, Message: fmt.Sprintf("Authentication failed: %v", err)}
	}
	base := a.desc.ResolveBaseURL(creds.Environment)
	var machines defenderMachines
	if err := getJSON(ctx, a.client, base+"/api/machines?$top=1", bearerAuth(token), &machines); err != nil {
		if isAuthError(err) {
			return ConnectionResult{Success: false, Message: fmt.Sprintf("Defender rejected the token: %v", err)}
		}
		return ConnectionResult{Success: false, Message: fmt.Sprintf("Defender request failed: %v", err)}
	}
	return ConnectionResult{Success: true, Message: "Connected to Defender for Endpoint"}
}

// Sync lists onboarded machines and computes the fleet health rate from
// machines reporting an Active health status.
func (a *DefenderAdapter) Sync(ctx context.Context, creds credentials.Credentials) (*evidence.SyncRecord, error) {
	token, err := a.token(ctx, creds)
	if err != nil {
		return nil, NewProviderError(a.desc.ID, "auth_failed", "token exchange rejected", err)
	}
	base := a.desc.ResolveBaseURL(creds.Environment)

	var machines defenderMachines
	url := fmt.Sprintf("%s/api/machines?$top=%d", base, evidence.MaxDetailRecords)
	if err := getJSON(ctx, a.client, url, bearerAuth(token), &machines); err != nil {
		return nil, NewProviderError(a.desc.ID, "sync_failed", "machine listing failed", err)
	}

	rec := &evidence.SyncRecord{ProviderID: a.desc.ID, LastSync: now()}
	healthy := 0
	for _, m := range machines.Value {
		active := strings.EqualFold(m.HealthStatus, "Active")
		if active {
			healthy++
		}
		rec.Details.Devices = append(rec.Details.Devices, evidence.DeviceSummary{
			Name:      m.ComputerDNSName,
			OS:        m.OSPlatform,
			Compliant: active,
		})
	}
	rec.Details.Devices = truncate(rec.Details.Devices, evidence.MaxDetailRecords)
	rec.Stats.Endpoint = &evidence.EndpointStats{
		TotalDevices:     len(machines.Value),
		CompliantDevices: healthy,
		ComplianceRate:   evidence.Rate(healthy, len(machines.Value)),
	}
	return rec, nil
}
