package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/cmmc-tools/integrations-hub/pkg/credentials"
	"github.com/cmmc-tools/integrations-hub/pkg/evidence"
	"github.com/cmmc-tools/integrations-hub/pkg/registry"
)

// complianceLabel marks hub-managed issues in the tracker.
const complianceLabel = "cmmc"

// JiraAdapter speaks the Jira Cloud REST API with basic auth (account email
// plus API token). It also implements TicketCreator for POA&M remediation
// tickets.
type JiraAdapter struct {
	desc   *registry.Descriptor
	client *http.Client
	logger *zap.Logger
}

// NewJiraAdapter creates the Jira adapter.
func NewJiraAdapter(desc *registry.Descriptor, logger *zap.Logger) *JiraAdapter {
	return &JiraAdapter{desc: desc, client: newHTTPClient(), logger: logger.Named("jira")}
}

// ID returns the provider id.
func (a *JiraAdapter) ID() string { return a.desc.ID }

// baseURL accepts either a bare site name or a full URL in the domain field.
func (a *JiraAdapter) baseURL(creds credentials.Credentials) string {
	domain := strings.TrimRight(creds.Field("domain"), "/")
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain
	}
	return fmt.Sprintf("https://%s.atlassian.net", domain)
}

func (a *JiraAdapter) auth(creds credentials.Credentials) func(*http.Request) {
	return basicAuth(creds.Field("email"), creds.Field("apiToken"))
}

type jiraMyself struct {
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

type jiraSearch struct {
	Total  int `json:"total"`
	Issues []struct {
		Key    string `json:"key"`
		Fields struct {
			Summary string `json:"summary"`
			Status  struct {
				Name string `json:"name"`
			} `json:"status"`
		} `json:"fields"`
	} `json:"issues"`
}

type jiraCreated struct {
	Key string `json:"key"`
}

// TestConnection reads the authenticated user.
func (a *JiraAdapter) TestConnection(ctx context.Context, creds credentials.Credentials) ConnectionResult {
	var me jiraMyself
	if err := getJSON(ctx, a.client, a.baseURL(creds)+"/rest/api/3/myself", a.auth(creds), &me); err != nil {
		if isAuthError(err) {
			return ConnectionResult{Success: false, Message: fmt.Sprintf("Jira rejected the API token: %v", err)}
		}
		return ConnectionResult{Success: false, Message: fmt.Sprintf("Jira request failed: %v", err)}
	}
	return ConnectionResult{Success: true, Message: fmt.Sprintf("Connected to Jira as %s", me.DisplayName)}
}

// Sync searches for compliance-labelled issues and summarizes the queue.
func (a *JiraAdapter) Sync(ctx context.Context, creds credentials.Credentials) (*evidence.SyncRecord, error) {
	jql := url.QueryEscape(fmt.Sprintf("labels = %s ORDER BY updated DESC", complianceLabel))
	searchURL := fmt.Sprintf("%s/rest/api/3/search?jql=%s&maxResults=%d", a.baseURL(creds), jql, evidence.MaxDetailRecords)

	var result jiraSearch
	if err := getJSON(ctx, a.client, searchURL, a.auth(creds), &result); err != nil {
		return nil, NewProviderError(a.desc.ID, "sync_failed", "issue search failed", err)
	}

	rec := &evidence.SyncRecord{ProviderID: a.desc.ID, LastSync: now()}
	open := 0
	for _, issue := range result.Issues {
		status := issue.Fields.Status.Name
		if !strings.EqualFold(status, "Done") && !strings.EqualFold(status, "Closed") {
			open++
		}
		rec.Details.Tickets = append(rec.Details.Tickets, evidence.TicketSummary{
			Key:     issue.Key,
			Summary: issue.Fields.Summary,
			Status:  status,
		})
	}
	rec.Details.Tickets = truncate(rec.Details.Tickets, evidence.MaxDetailRecords)
	rec.Stats.Ticketing = &evidence.TicketingStats{OpenItems: open, TotalItems: result.Total}
	return rec, nil
}

// CreateTicket opens a remediation issue in the given project. The caller
// templates title and description from the POA&M item; local state is never
// touched here.
func (a *JiraAdapter) CreateTicket(ctx context.Context, creds credentials.Credentials, projectKey, title, description string) (string, error) {
	body := map[string]any{
		"fields": map[string]any{
			"project":   map[string]string{"key": projectKey},
			"issuetype": map[string]string{"name": "Task"},
			"summary":   title,
			"labels":    []string{complianceLabel},
			"description": map[string]any{
				"type":    "doc",
				"version": 1,
				"content": []any{
					map[string]any{
						"type": "paragraph",
						"content": []any{
							map[string]any{"type": "text", "text": description},
						},
					},
				},
			},
		},
	}
	var created jiraCreated
	err := doJSON(ctx, a.client, http.MethodPost, a.baseURL(creds)+"/rest/api/3/issue", a.auth(creds), body, &created)
	if err != nil {
		return "", NewProviderError(a.desc.ID, "ticket_failed", "issue creation failed", err)
	}
	a.logger.Info("created remediation ticket", zap.String("key", created.Key))
	return created.Key, nil
}
