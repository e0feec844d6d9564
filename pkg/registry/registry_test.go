package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveBaseURLDefaults(t *testing.T) {
	reg := New()
	for _, desc := range reg.List() {
		t.Run(desc.ID, func(t *testing.T) {
			got := desc.ResolveBaseURL("")
			if len(desc.Environments) > 0 {
				if commercial, ok := desc.Environments[DefaultEnvironment]; ok && commercial.BaseURL != "" {
					assert.Equal(t, commercial.BaseURL, got)
					return
				}
			}
			assert.Equal(t, desc.BaseURL, got)
		})
	}
}

func TestEnvironmentResolution(t *testing.T) {
	desc := &Descriptor{
		ID:      "test",
		BaseURL: "https://top-level.example.com",
		Environments: map[string]Environment{
			"commercial": {BaseURL: "https://commercial.example.com", Scope: "scope-com"},
			"gov":        {BaseURL: "https://gov.example.com", Scope: "scope-gov"},
		},
	}

	tests := []struct {
		name   string
		envKey string
		want   string
	}{
		{name: "empty key falls back to commercial", envKey: "", want: "https://commercial.example.com"},
		{name: "explicit environment wins", envKey: "gov", want: "https://gov.example.com"},
		{name: "stale key falls back to commercial", envKey: "removed-env", want: "https://commercial.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, desc.ResolveBaseURL(tt.envKey))
		})
	}
}

func TestEnvironmentFallbackWithoutCommercial(t *testing.T) {
	desc := &Descriptor{
		ID: "test",
		Environments: map[string]Environment{
			"beta":  {BaseURL: "https://beta.example.com"},
			"alpha": {BaseURL: "https://alpha.example.com"},
		},
	}
	// No commercial entry: the first defined environment in key order wins.
	assert.Equal(t, "https://alpha.example.com", desc.ResolveBaseURL("stale"))
}

func TestResolveWithoutEnvironments(t *testing.T) {
	desc := &Descriptor{ID: "plain", BaseURL: "https://api.example.com"}
	assert.Equal(t, "https://api.example.com", desc.ResolveBaseURL("anything"))
	assert.Empty(t, desc.ResolveAuthURL(""))
	assert.Empty(t, desc.ResolveScope(""))

	empty := &Descriptor{ID: "empty"}
	assert.Empty(t, empty.ResolveBaseURL(""))
}

func TestMissingFields(t *testing.T) {
	desc := &Descriptor{
		ID:                       "test",
		RequiredCredentialFields: []string{"tenantId", "clientId", "clientSecret"},
	}
	missing := desc.MissingFields(map[string]string{"tenantId": "t", "clientSecret": ""})
	assert.Equal(t, []string{"clientId", "clientSecret"}, missing)

	assert.Nil(t, desc.MissingFields(map[string]string{
		"tenantId": "t", "clientId": "c", "clientSecret": "s",
	}))
}

func TestBuiltinDescriptorInvariants(t *testing.T) {
	reg := New()
	descriptors := reg.List()
	require.Len(t, descriptors, 12)

	seen := make(map[string]bool)
	for _, desc := range descriptors {
		assert.False(t, seen[desc.ID], "duplicate provider id %s", desc.ID)
		seen[desc.ID] = true
		assert.NotEmpty(t, desc.Name, "%s has no name", desc.ID)
		assert.NotEmpty(t, desc.RequiredCredentialFields, "%s has no credential fields", desc.ID)
		assert.NotEmpty(t, desc.Controls, "%s evidences no controls", desc.ID)
		if len(desc.Environments) > 0 {
			_, ok := desc.Environments[DefaultEnvironment]
			assert.True(t, ok, "%s defines environments without a commercial default", desc.ID)
		}
	}
}

func TestHasControl(t *testing.T) {
	reg := New()
	entra, ok := reg.Get("entra")
	require.True(t, ok)
	assert.True(t, entra.HasControl("3.5.3"))
	assert.False(t, entra.HasControl("9.9.9"))
}
