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

// ServiceNowAdapter speaks the ServiceNow Table API with basic auth against a
// customer instance.
type ServiceNowAdapter struct {
	desc   *registry.Descriptor
	client *http.Client
	logger *zap.Logger
}

// NewServiceNowAdapter creates the ServiceNow adapter.
func NewServiceNowAdapter(desc *registry.Descriptor, logger *zap.Logger) *ServiceNowAdapter {
	return &ServiceNowAdapter{desc: desc, client: newHTTPClient(), logger: logger.Named("servicenow")}
}

// ID returns the provider id.
func (a *ServiceNowAdapter) ID() string { return a.desc.ID }

// baseURL accepts either a bare instance name or a full URL.
func (a *ServiceNowAdapter) baseURL(creds credentials.Credentials) string {
	instance := strings.TrimRight(creds.Field("instance"), "/")
	if strings.HasPrefix(instance, "http://") || strings.HasPrefix(instance, "https://") {
		return instance
	}
	return fmt.Sprintf("https://%s.service-now.com", instance)
}

func (a *ServiceNowAdapter) auth(creds credentials.Credentials) func(*http.Request) {
	return basicAuth(creds.Field("username"), creds.Field("password"))
}

type snowTable struct {
	Result []struct {
		Number           string `json:"number"`
		ShortDescription string `json:"short_description"`
		State            string `json:"state"`
		Active           string `json:"active"`
	} `json:"result"`
}

// TestConnection reads one row from the user table.
func (a *ServiceNowAdapter) TestConnection(ctx context.Context, creds credentials.Credentials) ConnectionResult {
	url := a.baseURL(creds) + "/api/now/table/sys_user?sysparm_limit=1"
	var out snowTable
	if err := getJSON(ctx, a.client, url, a.auth(creds), &out); err != nil {
		if isAuthError(err) {
			return ConnectionResult{Success: false, Message: fmt.Sprintf("ServiceNow rejected the credentials: %v", err)}
		}
		return ConnectionResult{Success: false, Message: fmt.Sprintf("ServiceNow request failed: %v", err)}
	}
	return ConnectionResult{Success: true, Message: "Connected to ServiceNow instance"}
}

// Sync lists compliance-category incidents and summarizes the queue.
func (a *ServiceNowAdapter) Sync(ctx context.Context, creds credentials.Credentials) (*evidence.SyncRecord, error) {
	url := fmt.Sprintf("%s/api/now/table/incident?sysparm_query=category=compliance&sysparm_limit=%d",
		a.baseURL(creds), evidence.MaxDetailRecords)
	var out snowTable
	if err := getJSON(ctx, a.client, url, a.auth(creds), &out); err != nil {
		return nil, NewProviderError(a.desc.ID, "sync_failed", "incident listing failed", err)
	}

	rec := &evidence.SyncRecord{ProviderID: a.desc.ID, LastSync: now()}
	open := 0
	for _, row := range out.Result {
		if row.Active == "true" {
			open++
		}
		rec.Details.Tickets = append(rec.Details.Tickets, evidence.TicketSummary{
			Key:     row.Number,
			Summary: row.ShortDescription,
			Status:  row.State,
		})
	}
	rec.Details.Tickets = truncate(rec.Details.Tickets, evidence.MaxDetailRecords)
	rec.Stats.Ticketing = &evidence.TicketingStats{OpenItems: open, TotalItems: len(out.Result)}
	return rec, nil
}
