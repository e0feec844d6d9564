package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/cmmc-tools/integrations-hub/pkg/credentials"
	"github.com/cmmc-tools/integrations-hub/pkg/evidence"
	"github.com/cmmc-tools/integrations-hub/pkg/registry"
)

// EntraAdapter speaks Microsoft Graph for Entra ID (Azure AD) tenants. The
// gcc-high environment swaps both the login and Graph hosts for the
// government-cloud variants.
type EntraAdapter struct {
	desc   *registry.Descriptor
	client *http.Client
	logger *zap.Logger
}

// NewEntraAdapter creates the Entra ID adapter.
func NewEntraAdapter(desc *registry.Descriptor, logger *zap.Logger) *EntraAdapter {
	return &EntraAdapter{desc: desc, client: newHTTPClient(), logger: logger.Named("entra")}
}

// ID returns the provider id.
func (a *EntraAdapter) ID() string { return a.desc.ID }

type graphOrganization struct {
	Value []struct {
		DisplayName string `json:"displayName"`
	} `json:"value"`
}

type graphUsers struct {
	Value []struct {
		DisplayName       string `json:"displayName"`
		UserPrincipalName string `json:"userPrincipalName"`
		AccountEnabled    bool   `json:"accountEnabled"`
	} `json:"value"`
}

type graphRegistrationDetails struct {
	Value []struct {
		UserPrincipalName string `json:"userPrincipalName"`
		IsMfaRegistered   bool   `json:"isMfaRegistered"`
	} `json:"value"`
}

type graphPolicies struct {
	Value []struct {
		DisplayName string `json:"displayName"`
		State       string `json:"state"`
	} `json:"value"`
}

func (a *EntraAdapter) token(ctx context.Context, creds credentials.Credentials) (string, error) {
	tokenURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token",
		a.desc.ResolveAuthURL(creds.Environment), creds.Field("tenantId"))
	scope := a.desc.ResolveScope(creds.Environment)
	tok, err := clientCredentialsToken(ctx, a.client, tokenURL,
		creds.Field("clientId"), creds.Field("clientSecret"), []string{scope})
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// TestConnection exchanges credentials for a token and reads the tenant's
// organization object. When the access token is a decodable JWT the granted
// application roles are included in the success message, which makes missing
// Graph permissions diagnosable before the first sync.
func (a *EntraAdapter) TestConnection(ctx context.Context, creds credentials.Credentials) ConnectionResult {
	token, err := a.token(ctx, creds)
	if err != nil {
		return ConnectionResult{Success: false, Message: fmt.Sprintf("Authentication failed: %v", err)}
	}

	base := a.desc.ResolveBaseURL(creds.Environment)
	var org graphOrganization
	if err := getJSON(ctx, a.client, base+"/v1.0/organization", bearerAuth(token), &org); err != nil {
		if isAuthError(err) {
			return ConnectionResult{Success: false, Message: fmt.Sprintf("Graph rejected the token: %v", err)}
		}
		return ConnectionResult{Success: false, Message: fmt.Sprintf("Graph request failed: %v", err)}
	}

	name := "tenant"
	if len(org.Value) > 0 && org.Value[0].DisplayName != "" {
		name = org.Value[0].DisplayName
	}
	msg := fmt.Sprintf("Connected to %s", name)
	if roles := grantedAppRoles(token); len(roles) > 0 {
		msg += fmt.Sprintf(" (app roles: %s)", strings.Join(roles, ", "))
	}
	return ConnectionResult{Success: true, Message: msg}
}

// grantedAppRoles decodes the roles claim from a Graph access token without
// verifying the signature. Opaque or malformed tokens yield nil.
func grantedAppRoles(token string) []string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	raw, ok := claims["roles"].([]any)
	if !ok {
		return nil
	}
	var roles []string
	for _, r := range raw {
		if s, ok := r.(string); ok {
			roles = append(roles, s)
		}
	}
	return roles
}

// Sync pulls users, MFA registration details and conditional-access policies.
// The user list is the primary fetch; the registration report and policy list
// degrade to defaults with a warning when they fail on their own.
func (a *EntraAdapter) Sync(ctx context.Context, creds credentials.Credentials) (*evidence.SyncRecord, error) {
	token, err := a.token(ctx, creds)
	if err != nil {
		return nil, NewProviderError(a.desc.ID, "auth_failed", "token exchange rejected", err)
	}
	base := a.desc.ResolveBaseURL(creds.Environment)
	auth := bearerAuth(token)

	var users graphUsers
	url := base + "/v1.0/users?$select=displayName,userPrincipalName,accountEnabled&$top=100"
	if err := getJSON(ctx, a.client, url, auth, &users); err != nil {
		return nil, NewProviderError(a.desc.ID, "sync_failed", "user listing failed", err)
	}

	rec := &evidence.SyncRecord{ProviderID: a.desc.ID, LastSync: now()}

	enabled := 0
	for _, u := range users.Value {
		if u.AccountEnabled {
			enabled++
		}
		rec.Details.Users = append(rec.Details.Users, evidence.UserSummary{
			Name:    u.DisplayName,
			Email:   u.UserPrincipalName,
			Enabled: u.AccountEnabled,
		})
	}
	rec.Details.Users = truncate(rec.Details.Users, evidence.MaxDetailRecords)

	// The registration report includes disabled accounts and users beyond the
	// fetched page; the enrollment rate counts only enabled users from the
	// primary fetch.
	mfaRegistered := 0
	var regs graphRegistrationDetails
	regURL := base + "/v1.0/reports/authenticationMethods/userRegistrationDetails?$top=500"
	if err := getJSON(ctx, a.client, regURL, auth, &regs); err != nil {
		a.logger.Warn("MFA registration report unavailable", zap.Error(err))
		rec.Warnings = append(rec.Warnings, "MFA registration report unavailable; enrollment counted as 0")
	} else {
		enabledByUPN := make(map[string]bool, len(users.Value))
		for _, u := range users.Value {
			if u.AccountEnabled {
				enabledByUPN[strings.ToLower(u.UserPrincipalName)] = true
			}
		}
		registeredByUPN := make(map[string]bool, len(regs.Value))
		for _, r := range regs.Value {
			if !r.IsMfaRegistered {
				continue
			}
			upn := strings.ToLower(r.UserPrincipalName)
			registeredByUPN[upn] = true
			if enabledByUPN[upn] {
				mfaRegistered++
			}
		}
		for i := range rec.Details.Users {
			rec.Details.Users[i].MFA = registeredByUPN[strings.ToLower(rec.Details.Users[i].Email)]
		}
	}

	activePolicies := 0
	var policies graphPolicies
	if err := getJSON(ctx, a.client, base+"/v1.0/identity/conditionalAccess/policies", auth, &policies); err != nil {
		a.logger.Warn("conditional access policy listing unavailable", zap.Error(err))
		rec.Warnings = append(rec.Warnings, "conditional access policies unavailable; counted as 0")
	} else {
		for _, p := range policies.Value {
			if strings.EqualFold(p.State, "enabled") {
				activePolicies++
			}
		}
	}

	rec.Stats.Identity = &evidence.IdentityStats{
		TotalUsers:     len(users.Value),
		EnabledUsers:   enabled,
		MFARegistered:  mfaRegistered,
		MFARate:        evidence.Rate(mfaRegistered, enabled),
		ActivePolicies: activePolicies,
	}
	return rec, nil
}
