package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cmmc-tools/integrations-hub/pkg/credentials"
	"github.com/cmmc-tools/integrations-hub/pkg/evidence"
	"github.com/cmmc-tools/integrations-hub/pkg/hub"
	"github.com/cmmc-tools/integrations-hub/pkg/providers"
	"github.com/cmmc-tools/integrations-hub/pkg/registry"
	"github.com/cmmc-tools/integrations-hub/pkg/store"
)

type stubAdapter struct {
	id         string
	testResult providers.ConnectionResult
	syncRecord *evidence.SyncRecord
	syncErr    error
}

func (s *stubAdapter) ID() string { return s.id }

func (s *stubAdapter) TestConnection(context.Context, credentials.Credentials) providers.ConnectionResult {
	return s.testResult
}

func (s *stubAdapter) Sync(context.Context, credentials.Credentials) (*evidence.SyncRecord, error) {
	return s.syncRecord, s.syncErr
}

func newTestServer(t *testing.T, adapters map[string]providers.Adapter) (*Server, store.Store) {
	st, err := store.OpenFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	h := hub.New(registry.New(), credentials.NewStore(), st, adapters, zap.NewNop())
	return New(h, zap.NewNop()), st
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestListProviders(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/providers", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var states []hub.ProviderState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &states))
	assert.Len(t, states, 12)
	for _, ps := range states {
		assert.Equal(t, hub.DisplayNotConfigured, ps.State)
	}
}

func TestConfigureValidation(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodPut, "/api/v1/providers/entra/credentials",
		`{"fields":{"tenantId":"t"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var payload struct {
		MissingFields []string `json:"missingFields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, []string{"clientId", "clientSecret"}, payload.MissingFields)

	rec = doRequest(t, s, http.MethodPut, "/api/v1/providers/entra/credentials",
		`{"fields":{"tenantId":"t","clientId":"c","clientSecret":"s"},"environment":"gcc-high"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, s, http.MethodPut, "/api/v1/providers/nope/credentials",
		`{"fields":{}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncEndpoint(t *testing.T) {
	adapter := &stubAdapter{
		id: "entra",
		syncRecord: &evidence.SyncRecord{
			ProviderID: "entra",
			LastSync:   time.Now().UTC(),
			Stats:      evidence.Stats{Identity: &evidence.IdentityStats{MFARate: 70}},
		},
	}
	s, _ := newTestServer(t, map[string]providers.Adapter{"entra": adapter})

	// Unconfigured sync conflicts.
	rec := doRequest(t, s, http.MethodPost, "/api/v1/providers/entra/sync", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	doRequest(t, s, http.MethodPut, "/api/v1/providers/entra/credentials",
		`{"fields":{"tenantId":"t","clientId":"c","clientSecret":"s"}}`)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/providers/entra/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got evidence.SyncRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 70, got.Stats.Identity.MFARate)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/providers/entra/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatsBeforeSync(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/providers/entra/stats", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestControlEvidenceEndpoint(t *testing.T) {
	s, st := newTestServer(t, nil)
	require.NoError(t, st.PutSyncRecord(context.Background(), &evidence.SyncRecord{
		ProviderID: "entra",
		LastSync:   time.Now().UTC(),
		Stats:      evidence.Stats{Identity: &evidence.IdentityStats{MFARate: 70, EnabledUsers: 10}},
	}))

	rec := doRequest(t, s, http.MethodGet, "/api/v1/evidence/3.5.3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var contributions []evidence.Contribution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &contributions))
	require.Len(t, contributions, 1)
	assert.Equal(t, "entra", contributions[0].Source)

	// An uncovered practice serves an empty array, not null.
	rec = doRequest(t, s, http.MethodGet, "/api/v1/evidence/99.99", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestOscalImportEndpoints(t *testing.T) {
	s, st := newTestServer(t, nil)

	body := `{"assessment-results":{"metadata":{"title":"AR"},"results":[{"findings":[
		{"title":"f","target":{"target-id":"3.1.1","status":{"state":"satisfied"}}}]}]}}`

	rec := doRequest(t, s, http.MethodPost, "/api/v1/oscal/import", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/oscal/import", `{"catalog":{}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/oscal/import", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/oscal/import/apply", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var applied map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &applied))
	assert.Equal(t, 1, applied["appliedControls"])

	assessment, err := st.Assessment(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "met", assessment["3.1.1"].Status)
}

func TestOscalExportEndpoints(t *testing.T) {
	s, st := newTestServer(t, nil)
	ctx := context.Background()
	require.NoError(t, st.MergeAssessment(ctx, map[string]store.ControlAssessment{
		"3.1.1": {Status: "met"},
	}))
	require.NoError(t, st.PutPOAMItem(ctx, "3.5.3", store.POAMItem{Weakness: "w", Remediation: "r"}))

	rec := doRequest(t, s, http.MethodGet, "/api/v1/oscal/export/assessment-results", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "oscal-assessment-results-")
	assert.Contains(t, rec.Body.String(), `"assessment-results"`)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/oscal/export/poam", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "oscal-plan-of-action-and-milestones-")
	assert.Contains(t, rec.Body.String(), `"poam-items"`)
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	doRequest(t, s, http.MethodGet, "/api/v1/providers", "")
	rec = doRequest(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hub_http_request_duration_seconds")
}
