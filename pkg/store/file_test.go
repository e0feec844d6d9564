package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmmc-tools/integrations-hub/pkg/evidence"
)

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "hub-state.json")

	fs, err := OpenFileStore(path)
	require.NoError(t, err)

	rec := &evidence.SyncRecord{
		ProviderID: "entra",
		LastSync:   time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
		Stats:      evidence.Stats{Identity: &evidence.IdentityStats{EnabledUsers: 10, MFARate: 70}},
		Warnings:   []string{"conditional access policies unavailable"},
	}
	require.NoError(t, fs.PutSyncRecord(ctx, rec))
	require.NoError(t, fs.PutPOAMItem(ctx, "3.5.3", POAMItem{Weakness: "w", Remediation: "r"}))

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)

	got, err := reopened.SyncRecord(ctx, "entra")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.LastSync, got.LastSync)
	assert.Equal(t, 70, got.Stats.Identity.MFARate)
	assert.Equal(t, rec.Warnings, got.Warnings)

	poam, err := reopened.POAM(ctx)
	require.NoError(t, err)
	assert.Equal(t, POAMItem{Weakness: "w", Remediation: "r"}, poam["3.5.3"])
}

func TestFileStoreMissingRecordIsNilNil(t *testing.T) {
	fs, err := OpenFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	rec, err := fs.SyncRecord(context.Background(), "never-synced")
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMergeAssessmentPreservesOtherFields(t *testing.T) {
	ctx := context.Background()
	fs, err := OpenFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	// Seed an entry with a field the merge does not own.
	require.NoError(t, fs.MergeAssessment(ctx, map[string]ControlAssessment{
		"3.1.1": {Status: "not-met"},
	}))
	fs.mu.Lock()
	entry := fs.state.Assessment["3.1.1"]
	entry.Notes = "assessor walkthrough scheduled"
	fs.state.Assessment["3.1.1"] = entry
	fs.mu.Unlock()

	require.NoError(t, fs.MergeAssessment(ctx, map[string]ControlAssessment{
		"3.1.1": {Status: "met", OscalImported: true},
		"3.5.3": {Status: "not-met", OscalImported: true},
	}))

	assessment, err := fs.Assessment(ctx)
	require.NoError(t, err)
	assert.Equal(t, "met", assessment["3.1.1"].Status)
	assert.True(t, assessment["3.1.1"].OscalImported)
	assert.Equal(t, "assessor walkthrough scheduled", assessment["3.1.1"].Notes,
		"merge must not clobber fields it does not own")
	assert.Equal(t, "not-met", assessment["3.5.3"].Status)
}

func TestMergeAssessmentLeavesUntouchedControls(t *testing.T) {
	ctx := context.Background()
	fs, err := OpenFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	require.NoError(t, fs.MergeAssessment(ctx, map[string]ControlAssessment{
		"3.1.1": {Status: "met"},
		"3.1.2": {Status: "not-met"},
	}))
	require.NoError(t, fs.MergeAssessment(ctx, map[string]ControlAssessment{
		"3.1.2": {Status: "met", OscalImported: true},
	}))

	assessment, err := fs.Assessment(ctx)
	require.NoError(t, err)
	assert.Equal(t, "met", assessment["3.1.1"].Status)
	assert.False(t, assessment["3.1.1"].OscalImported)
	assert.Equal(t, "met", assessment["3.1.2"].Status)
}

func TestFileStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	fs, err := OpenFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	require.NoError(t, fs.PutSyncRecord(ctx, &evidence.SyncRecord{ProviderID: "jira"}))
	got, err := fs.SyncRecord(ctx, "jira")
	require.NoError(t, err)
	got.ProviderID = "mutated"

	again, err := fs.SyncRecord(ctx, "jira")
	require.NoError(t, err)
	assert.Equal(t, "jira", again.ProviderID)
}
