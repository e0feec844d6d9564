// Package registry is the static source of truth for the external systems the
// hub can integrate with: their identity, credential requirements, API
// endpoints, deployment environments and the CMMC practices they can evidence.
package registry

import "sort"

// Category classifies a provider by the kind of evidence it supplies.
type Category string

const (
	CategoryIdentity      Category = "identity"
	CategoryTraining      Category = "training"
	CategoryVulnerability Category = "vulnerability"
	CategoryTicketing     Category = "ticketing"
	CategoryStandard      Category = "standard"
	CategoryDocumentation Category = "documentation"
	CategoryStorage       Category = "storage"
	CategoryEndpoint      Category = "endpoint"
)

// DefaultEnvironment is the environment key assumed when none is selected and
// the fallback when a stored selection no longer exists in the descriptor.
const DefaultEnvironment = "commercial"

// Environment is a named deployment variant of a provider's API, e.g. the
// commercial cloud versus a government cloud with distinct URLs and scopes.
type Environment struct {
	Label   string `json:"label"`
	BaseURL string `json:"baseUrl,omitempty"`
	AuthURL string `json:"authUrl,omitempty"`
	Scope   string `json:"scope,omitempty"`
	Region  string `json:"region,omitempty"`
}

// Descriptor describes one external system. Descriptors are immutable static
// data; all behavior lives in the resolution methods below.
type Descriptor struct {
	ID                       string                 `json:"id"`
	Name                     string                 `json:"name"`
	Category                 Category               `json:"category"`
	RequiredCredentialFields []string               `json:"requiredCredentialFields"`
	Controls                 []string               `json:"controls"`
	BaseURL                  string                 `json:"baseUrl,omitempty"`
	AuthURL                  string                 `json:"authUrl,omitempty"`
	Scope                    string                 `json:"scope,omitempty"`
	Environments             map[string]Environment `json:"environments,omitempty"`
}

// environment resolves an environment key against the descriptor. A key that
// is empty or no longer present falls back to "commercial", then to the first
// defined environment in key order, so stale session state after a registry
// update never errors.
func (d *Descriptor) environment(key string) (Environment, bool) {
	if len(d.Environments) == 0 {
		return Environment{}, false
	}
	if key != "" {
		if env, ok := d.Environments[key]; ok {
			return env, true
		}
	}
	if env, ok := d.Environments[DefaultEnvironment]; ok {
		return env, true
	}
	keys := make([]string, 0, len(d.Environments))
	for k := range d.Environments {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return d.Environments[keys[0]], true
}

// ResolveBaseURL returns the API base URL for the selected environment,
// falling back to the provider-level base URL, then to the empty string.
func (d *Descriptor) ResolveBaseURL(envKey string) string {
	if env, ok := d.environment(envKey); ok && env.BaseURL != "" {
		return env.BaseURL
	}
	return d.BaseURL
}

// ResolveAuthURL returns the OAuth token endpoint base for the selected
// environment, with the same fallback chain as ResolveBaseURL.
func (d *Descriptor) ResolveAuthURL(envKey string) string {
	if env, ok := d.environment(envKey); ok && env.AuthURL != "" {
		return env.AuthURL
	}
	return d.AuthURL
}

// ResolveScope returns the OAuth scope for the selected environment.
func (d *Descriptor) ResolveScope(envKey string) string {
	if env, ok := d.environment(envKey); ok && env.Scope != "" {
		return env.Scope
	}
	return d.Scope
}

// ResolveRegion returns the cloud region for the selected environment, used
// by SDK-based providers instead of a base URL.
func (d *Descriptor) ResolveRegion(envKey string) string {
	if env, ok := d.environment(envKey); ok && env.Region != "" {
		return env.Region
	}
	return ""
}

// HasControl reports whether the provider can supply evidence for a practice.
func (d *Descriptor) HasControl(controlID string) bool {
	for _, c := range d.Controls {
		if c == controlID {
			return true
		}
	}
	return false
}

// MissingFields returns the required credential fields absent or empty in the
// supplied field map, in descriptor order.
func (d *Descriptor) MissingFields(fields map[string]string) []string {
	var missing []string
	for _, f := range d.RequiredCredentialFields {
		if fields[f] == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// Registry holds the full descriptor set in a stable display order.
type Registry struct {
	byID  map[string]*Descriptor
	order []string
}

// New returns a registry populated with the built-in provider set.
func New() *Registry {
	r := &Registry{byID: make(map[string]*Descriptor)}
	for _, d := range builtinDescriptors() {
		r.byID[d.ID] = d
		r.order = append(r.order, d.ID)
	}
	return r
}

// Get returns the descriptor for a provider id.
func (r *Registry) Get(id string) (*Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// List returns all descriptors in registration order.
func (r *Registry) List() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
