package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cmmc-tools/integrations-hub/pkg/credentials"
	"github.com/cmmc-tools/integrations-hub/pkg/registry"
)

// fakeGraph simulates the Entra token endpoint and the Graph reads the
// adapter issues. Individual routes can be failed to exercise degradation.
type fakeGraph struct {
	t             *testing.T
	accessToken   string
	users         string
	registrations string
	policies      string
	failRegs      bool
	failPolicies  bool
	tokenCalls    int
}

func (f *fakeGraph) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/test-tenant/oauth2/v2.0/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls++
		require.NoError(f.t, r.ParseForm())
		if r.FormValue("client_id") != "client-id" || r.FormValue("client_secret") != "client-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"` + f.accessToken + `","token_type":"Bearer","expires_in":3600}`))
	})
	authed := func(body string, fail *bool) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+f.accessToken {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if fail != nil && *fail {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		}
	}
	mux.HandleFunc("/v1.0/organization", authed(`{"value":[{"displayName":"Contoso Gov"}]}`, nil))
	mux.HandleFunc("/v1.0/users", func(w http.ResponseWriter, r *http.Request) {
		authed(f.users, nil)(w, r)
	})
	mux.HandleFunc("/v1.0/reports/authenticationMethods/userRegistrationDetails", func(w http.ResponseWriter, r *http.Request) {
		authed(f.registrations, &f.failRegs)(w, r)
	})
	mux.HandleFunc("/v1.0/identity/conditionalAccess/policies", func(w http.ResponseWriter, r *http.Request) {
		authed(f.policies, &f.failPolicies)(w, r)
	})
	return mux
}

func entraTestSetup(t *testing.T, fake *fakeGraph) (*EntraAdapter, credentials.Credentials, *httptest.Server) {
	ts := httptest.NewServer(fake.handler())
	t.Cleanup(ts.Close)

	// Only the gov environment points at the fake server; resolving the
	// commercial variant would fail outright.
	desc := &registry.Descriptor{
		ID:                       "entra",
		Name:                     "Microsoft Entra ID",
		Category:                 registry.CategoryIdentity,
		RequiredCredentialFields: []string{"tenantId", "clientId", "clientSecret"},
		Environments: map[string]registry.Environment{
			"commercial": {BaseURL: "https://graph.invalid", AuthURL: "https://login.invalid"},
			"gov":        {BaseURL: ts.URL, AuthURL: ts.URL, Scope: "api://test/.default"},
		},
	}
	creds := credentials.Credentials{
		Fields: map[string]string{
			"tenantId":     "test-tenant",
			"clientId":     "client-id",
			"clientSecret": "client-secret",
		},
		Environment: "gov",
	}
	return NewEntraAdapter(desc, zap.NewNop()), creds, ts
}

func TestEntraTestConnectionGovEnvironment(t *testing.T) {
	fake := &fakeGraph{t: t, accessToken: "tok"}
	adapter, creds, _ := entraTestSetup(t, fake)

	result := adapter.TestConnection(context.Background(), creds)
	assert.True(t, result.Success)
	assert.Contains(t, result.Message, "Contoso Gov")
	assert.Equal(t, 1, fake.tokenCalls, "token must come from the gov login host")
}

func TestEntraTestConnectionReportsAppRoles(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"roles": []string{"Directory.Read.All", "Policy.Read.All"},
	})
	signed, err := token.SignedString([]byte("test-key"))
	require.NoError(t, err)

	fake := &fakeGraph{t: t, accessToken: signed}
	adapter, creds, _ := entraTestSetup(t, fake)

	result := adapter.TestConnection(context.Background(), creds)
	require.True(t, result.Success)
	assert.Contains(t, result.Message, "Directory.Read.All")
}

func TestEntraTestConnectionBadSecret(t *testing.T) {
	fake := &fakeGraph{t: t, accessToken: "tok"}
	adapter, creds, _ := entraTestSetup(t, fake)
	creds.Fields["clientSecret"] = "wrong"

	result := adapter.TestConnection(context.Background(), creds)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "Authentication failed")
}

func TestEntraSyncMFARate(t *testing.T) {
	fake := &fakeGraph{
		t:           t,
		accessToken: "tok",
		users: `{"value":[
			{"displayName":"U1","userPrincipalName":"u1@x","accountEnabled":true},
			{"displayName":"U2","userPrincipalName":"u2@x","accountEnabled":true},
			{"displayName":"U3","userPrincipalName":"u3@x","accountEnabled":true},
			{"displayName":"U4","userPrincipalName":"u4@x","accountEnabled":true},
			{"displayName":"U5","userPrincipalName":"u5@x","accountEnabled":true},
			{"displayName":"U6","userPrincipalName":"u6@x","accountEnabled":true},
			{"displayName":"U7","userPrincipalName":"u7@x","accountEnabled":true},
			{"displayName":"U8","userPrincipalName":"u8@x","accountEnabled":true},
			{"displayName":"U9","userPrincipalName":"u9@x","accountEnabled":true},
			{"displayName":"U10","userPrincipalName":"u10@x","accountEnabled":true},
			{"displayName":"Old","userPrincipalName":"old@x","accountEnabled":false}]}`,
		registrations: `{"value":[
			{"userPrincipalName":"u1@x","isMfaRegistered":true},
			{"userPrincipalName":"u2@x","isMfaRegistered":true},
			{"userPrincipalName":"u3@x","isMfaRegistered":true},
			{"userPrincipalName":"u4@x","isMfaRegistered":true},
			{"userPrincipalName":"u5@x","isMfaRegistered":true},
			{"userPrincipalName":"u6@x","isMfaRegistered":true},
			{"userPrincipalName":"u7@x","isMfaRegistered":true},
			{"userPrincipalName":"u8@x","isMfaRegistered":false}]}`,
		policies: `{"value":[
			{"displayName":"Require MFA","state":"enabled"},
			{"displayName":"Legacy block","state":"enabled"},
			{"displayName":"Draft","state":"disabled"}]}`,
	}
	adapter, creds, _ := entraTestSetup(t, fake)

	syncedAt := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	now = func() time.Time { return syncedAt }
	t.Cleanup(func() { now = time.Now })

	rec, err := adapter.Sync(context.Background(), creds)
	require.NoError(t, err)
	require.NotNil(t, rec.Stats.Identity)

	assert.Equal(t, syncedAt, rec.LastSync)
	assert.Equal(t, 11, rec.Stats.Identity.TotalUsers)
	assert.Equal(t, 10, rec.Stats.Identity.EnabledUsers)
	assert.Equal(t, 7, rec.Stats.Identity.MFARegistered)
	assert.Equal(t, 70, rec.Stats.Identity.MFARate)
	assert.Equal(t, 2, rec.Stats.Identity.ActivePolicies)
	assert.Empty(t, rec.Warnings)
	assert.Len(t, rec.Details.Users, 11)
	assert.True(t, rec.Details.Users[0].MFA)
}

func TestEntraSyncExcludesDisabledUsersFromMFARate(t *testing.T) {
	// The registration report can carry rows for disabled accounts and for
	// users outside the fetched page; none of them count toward enrollment.
	fake := &fakeGraph{
		t:           t,
		accessToken: "tok",
		users: `{"value":[
			{"displayName":"Active","userPrincipalName":"active@x","accountEnabled":true},
			{"displayName":"Departed","userPrincipalName":"departed@x","accountEnabled":false}]}`,
		registrations: `{"value":[
			{"userPrincipalName":"departed@x","isMfaRegistered":true},
			{"userPrincipalName":"elsewhere@x","isMfaRegistered":true}]}`,
		policies: `{"value":[]}`,
	}
	adapter, creds, _ := entraTestSetup(t, fake)

	rec, err := adapter.Sync(context.Background(), creds)
	require.NoError(t, err)
	require.NotNil(t, rec.Stats.Identity)

	assert.Equal(t, 2, rec.Stats.Identity.TotalUsers)
	assert.Equal(t, 1, rec.Stats.Identity.EnabledUsers)
	assert.Equal(t, 0, rec.Stats.Identity.MFARegistered)
	assert.Equal(t, 0, rec.Stats.Identity.MFARate)
	// The per-user rows still reflect what the report said.
	require.Len(t, rec.Details.Users, 2)
	assert.False(t, rec.Details.Users[0].MFA)
	assert.True(t, rec.Details.Users[1].MFA)
}

func TestEntraSyncZeroEnabledUsers(t *testing.T) {
	fake := &fakeGraph{
		t:             t,
		accessToken:   "tok",
		users:         `{"value":[]}`,
		registrations: `{"value":[]}`,
		policies:      `{"value":[]}`,
	}
	adapter, creds, _ := entraTestSetup(t, fake)

	rec, err := adapter.Sync(context.Background(), creds)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Stats.Identity.MFARate, "zero enabled users must yield 0, not NaN")
}

func TestEntraSyncPolicyFailureStillCommits(t *testing.T) {
	fake := &fakeGraph{
		t:           t,
		accessToken: "tok",
		users: `{"value":[
			{"displayName":"U1","userPrincipalName":"u1@x","accountEnabled":true},
			{"displayName":"U2","userPrincipalName":"u2@x","accountEnabled":true}]}`,
		registrations: `{"value":[{"userPrincipalName":"u1@x","isMfaRegistered":true}]}`,
		failPolicies:  true,
	}
	adapter, creds, _ := entraTestSetup(t, fake)

	rec, err := adapter.Sync(context.Background(), creds)
	require.NoError(t, err, "a failing policy sub-fetch must not abort the sync")
	assert.Equal(t, 0, rec.Stats.Identity.ActivePolicies)
	assert.Equal(t, 2, rec.Stats.Identity.EnabledUsers)
	assert.Equal(t, 50, rec.Stats.Identity.MFARate)
	require.Len(t, rec.Warnings, 1)
	assert.Contains(t, rec.Warnings[0], "conditional access")
}

func TestEntraSyncAuthFailureAborts(t *testing.T) {
	fake := &fakeGraph{t: t, accessToken: "tok"}
	adapter, creds, _ := entraTestSetup(t, fake)
	creds.Fields["clientSecret"] = "wrong"

	rec, err := adapter.Sync(context.Background(), creds)
	assert.Nil(t, rec)
	require.Error(t, err)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "auth_failed", pe.Code)
}
