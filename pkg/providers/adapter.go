// Package providers contains one adapter per integrated external system.
// Every adapter implements the same contract: validate connectivity with the
// cheapest authenticated read, then pull a bounded evidence snapshot. All
// remote errors are caught at the adapter boundary and converted to results
// the caller can render; nothing here panics or leaks raw transport errors.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cmmc-tools/integrations-hub/pkg/credentials"
	"github.com/cmmc-tools/integrations-hub/pkg/evidence"
	"github.com/cmmc-tools/integrations-hub/pkg/registry"
)

// requestTimeout bounds every outbound call. A call that exceeds it is treated
// as a failed sub-fetch or a failed connection test; there is no retry.
const requestTimeout = 30 * time.Second

// ConnectionResult is the outcome of a connection test. Message carries the
// remote error description when one is available so auth failures read
// differently from API-shape failures.
type ConnectionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Adapter is the per-provider capability set. Implementations resolve their
// endpoints through the descriptor so environment selection (commercial vs.
// government cloud) applies uniformly.
type Adapter interface {
	// ID returns the provider id this adapter serves.
	ID() string

	// TestConnection performs the cheapest authenticated read and reports
	// the outcome. It never returns an error; failures are results.
	TestConnection(ctx context.Context, creds credentials.Credentials) ConnectionResult

	// Sync pulls the provider's evidence snapshot. An auth or primary-fetch
	// failure returns an error and the caller must keep any prior record.
	// Secondary sub-fetch failures degrade to defaults and are listed in the
	// record's warnings.
	Sync(ctx context.Context, creds credentials.Credentials) (*evidence.SyncRecord, error)
}

// TicketCreator is implemented by ticketing adapters that can open a tracked
// remediation ticket from a POA&M item.
type TicketCreator interface {
	CreateTicket(ctx context.Context, creds credentials.Credentials, projectKey, title, description string) (string, error)
}

// ProviderError is a structured adapter-boundary error.
type ProviderError struct {
	Provider    string
	Code        string
	Description string
	Cause       error
}

func (e *ProviderError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s - %s", e.Provider, e.Code, e.Description)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Code)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// NewProviderError creates a structured provider error.
func NewProviderError(provider, code, description string, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Code: code, Description: description, Cause: cause}
}

// BuildAll constructs the adapter set for every descriptor in the registry.
func BuildAll(reg *registry.Registry, logger *zap.Logger) map[string]Adapter {
	adapters := make(map[string]Adapter)
	for _, desc := range reg.List() {
		var a Adapter
		switch desc.ID {
		case "entra":
			a = NewEntraAdapter(desc, logger)
		case "okta":
			a = NewOktaAdapter(desc, logger)
		case "knowbe4":
			a = NewKnowBe4Adapter(desc, logger)
		case "tenable":
			a = NewTenableAdapter(desc, logger)
		case "qualys":
			a = NewQualysAdapter(desc, logger)
		case "rapid7":
			a = NewRapid7Adapter(desc, logger)
		case "jira":
			a = NewJiraAdapter(desc, logger)
		case "servicenow":
			a = NewServiceNowAdapter(desc, logger)
		case "defender":
			a = NewDefenderAdapter(desc, logger)
		case "crowdstrike":
			a = NewCrowdStrikeAdapter(desc, logger)
		case "sentinelone":
			a = NewSentinelOneAdapter(desc, logger)
		case "s3evidence":
			a = NewS3EvidenceAdapter(desc, logger)
		default:
			continue
		}
		adapters[desc.ID] = a
	}
	return adapters
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

// now is stubbed in tests that assert on sync timestamps.
var now = time.Now
