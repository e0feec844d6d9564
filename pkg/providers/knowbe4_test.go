package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cmmc-tools/integrations-hub/pkg/credentials"
	"github.com/cmmc-tools/integrations-hub/pkg/registry"
)

func kb4Creds() credentials.Credentials {
	return credentials.Credentials{Fields: map[string]string{"apiKey": "kb4-key"}}
}

func newKB4Adapter(t *testing.T, handler http.Handler) *KnowBe4Adapter {
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	desc := &registry.Descriptor{ID: "knowbe4", BaseURL: ts.URL}
	return NewKnowBe4Adapter(desc, zap.NewNop())
}

func TestKnowBe4SyncComputesAverages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/training/enrollments", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer kb4-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[
			{"module_name":"Security Basics","status":"Passed"},
			{"module_name":"Security Basics","status":"Completed"},
			{"module_name":"Phishing 101","status":"In Progress"},
			{"module_name":"Phishing 101","status":"Not Started"}]`))
	})
	mux.HandleFunc("/v1/phishing/security_tests", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"name":"Q1 Test","phish_prone_percentage":10.0,"started_at":"2026-01-15","delivered_count":50},
			{"name":"Q2 Test","phish_prone_percentage":5.0,"started_at":"2026-04-15","delivered_count":52}]`))
	})
	adapter := newKB4Adapter(t, mux)

	rec, err := adapter.Sync(context.Background(), kb4Creds())
	require.NoError(t, err)
	require.NotNil(t, rec.Stats.Training)

	assert.Equal(t, 4, rec.Stats.Training.Enrollments)
	assert.Equal(t, 2, rec.Stats.Training.Completed)
	assert.Equal(t, 50, rec.Stats.Training.CompletionRate)
	require.NotNil(t, rec.Stats.Training.PhishProneRate)
	assert.InDelta(t, 7.5, *rec.Stats.Training.PhishProneRate, 0.001)
	assert.Equal(t, 2, rec.Stats.Training.CampaignCount)
	assert.Len(t, rec.Details.Campaigns, 2)
}

func TestKnowBe4PhishProneNilWithoutCampaigns(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/training/enrollments", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"module_name":"M","status":"Passed"}]`))
	})
	mux.HandleFunc("/v1/phishing/security_tests", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	adapter := newKB4Adapter(t, mux)

	rec, err := adapter.Sync(context.Background(), kb4Creds())
	require.NoError(t, err)
	// Nil means "no campaign data", which is not the same as a 0% rate.
	assert.Nil(t, rec.Stats.Training.PhishProneRate)
	assert.Empty(t, rec.Warnings)
}

func TestKnowBe4PhishProneNilOnCampaignFetchFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/training/enrollments", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"module_name":"M","status":"Passed"}]`))
	})
	mux.HandleFunc("/v1/phishing/security_tests", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	adapter := newKB4Adapter(t, mux)

	rec, err := adapter.Sync(context.Background(), kb4Creds())
	require.NoError(t, err)
	assert.Nil(t, rec.Stats.Training.PhishProneRate)
	assert.Contains(t, rec.Warnings, "phishing campaign data unavailable")
}

func TestKnowBe4SyncEnrollmentFailureAborts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/training/enrollments", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	adapter := newKB4Adapter(t, mux)

	rec, err := adapter.Sync(context.Background(), kb4Creds())
	assert.Nil(t, rec)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "sync_failed", pe.Code)
}
