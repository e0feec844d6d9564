// Package hub wires the integration layers together: registry, session
// credential store, adapters, durable cache, evidence index and OSCAL
// interchange. A Hub is explicit state constructed once at startup and passed
// to whatever surface needs it; there is no package-level singleton.
package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cmmc-tools/integrations-hub/pkg/credentials"
	"github.com/cmmc-tools/integrations-hub/pkg/evidence"
	"github.com/cmmc-tools/integrations-hub/pkg/oscal"
	"github.com/cmmc-tools/integrations-hub/pkg/providers"
	"github.com/cmmc-tools/integrations-hub/pkg/registry"
	"github.com/cmmc-tools/integrations-hub/pkg/store"
)

// Status is the transient per-provider connection state. It is in-memory
// only: a restart resets every provider to disconnected, which means
// "unknown, re-verify", not a negative determination.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnected    Status = "connected"
)

// DisplayState folds status and cache presence into the three states the UI
// shows: connected, cached, not-configured.
type DisplayState string

const (
	DisplayConnected     DisplayState = "connected"
	DisplayCached        DisplayState = "cached"
	DisplayNotConfigured DisplayState = "not-configured"
)

// ProviderState is one row of the provider listing.
type ProviderState struct {
	Descriptor     *registry.Descriptor `json:"descriptor"`
	State          DisplayState         `json:"state"`
	HasCredentials bool                 `json:"hasCredentials"`
	LastSync       *time.Time           `json:"lastSync,omitempty"`
}

// Sentinel errors surfaced to callers.
var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrNoCredentials   = errors.New("provider is not configured")
	ErrInFlight        = errors.New("an operation for this provider is already in flight")
	ErrNotTicketing    = errors.New("provider cannot create tickets")
	ErrNoPOAMItem      = errors.New("no POA&M item for control")
)

// MissingFieldsError reports required credential fields absent at configure
// time. It is caught before any network call.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing required credential fields: " + strings.Join(e.Fields, ", ")
}

// Hub coordinates every provider flow. All methods are safe for concurrent
// use; per-provider operations are additionally serialized by an in-flight
// guard so two syncs for one provider can never race.
type Hub struct {
	registry *registry.Registry
	creds    *credentials.Store
	store    store.Store
	adapters map[string]providers.Adapter
	index    *evidence.Index
	logger   *zap.Logger

	mu       sync.Mutex
	status   map[string]Status
	inflight map[string]bool
}

// New constructs a Hub. The adapter set usually comes from
// providers.BuildAll; tests inject fakes.
func New(reg *registry.Registry, creds *credentials.Store, st store.Store, adapters map[string]providers.Adapter, logger *zap.Logger) *Hub {
	return &Hub{
		registry: reg,
		creds:    creds,
		store:    st,
		adapters: adapters,
		index:    evidence.NewIndex(reg, st),
		logger:   logger.Named("hub"),
		status:   make(map[string]Status),
		inflight: make(map[string]bool),
	}
}

// Registry exposes the descriptor set.
func (h *Hub) Registry() *registry.Registry { return h.registry }

// Configure validates and stores credentials for a provider. Validation is
// purely field presence; no network call happens here.
func (h *Hub) Configure(providerID string, creds credentials.Credentials) error {
	desc, ok := h.registry.Get(providerID)
	if !ok {
		return ErrUnknownProvider
	}
	if missing := desc.MissingFields(creds.Fields); len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	if creds.Environment == "" {
		creds.Environment = registry.DefaultEnvironment
	}
	h.creds.Set(providerID, creds)
	h.logger.Info("provider configured",
		zap.String("provider", providerID),
		zap.String("environment", creds.Environment))
	return nil
}

// HasCredentials reports whether a provider is configured. Gates dependent
// features such as ticket creation.
func (h *Hub) HasCredentials(providerID string) bool {
	return h.creds.Has(providerID)
}

// Disconnect clears credentials and resets the provider's connection status.
// Idempotent; the cached sync record is left in place.
func (h *Hub) Disconnect(providerID string) {
	h.creds.Clear(providerID)
	h.mu.Lock()
	h.status[providerID] = StatusDisconnected
	h.mu.Unlock()
	h.logger.Info("provider disconnected", zap.String("provider", providerID))
}

// ClearAll wipes every credential and resets all statuses. Wired to process
// shutdown as the session-end hook.
func (h *Hub) ClearAll() {
	h.creds.ClearAll()
	h.mu.Lock()
	h.status = make(map[string]Status)
	h.mu.Unlock()
}

func (h *Hub) acquire(providerID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inflight[providerID] {
		return ErrInFlight
	}
	h.inflight[providerID] = true
	return nil
}

func (h *Hub) release(providerID string) {
	h.mu.Lock()
	delete(h.inflight, providerID)
	h.mu.Unlock()
}

func (h *Hub) setStatus(providerID string, s Status) {
	h.mu.Lock()
	h.status[providerID] = s
	h.mu.Unlock()
}

func (h *Hub) adapterFor(providerID string) (providers.Adapter, *credentials.Credentials, error) {
	adapter, ok := h.adapters[providerID]
	if !ok {
		return nil, nil, ErrUnknownProvider
	}
	creds := h.creds.Get(providerID)
	if creds == nil {
		return nil, nil, ErrNoCredentials
	}
	return adapter, creds, nil
}

// TestConnection runs the adapter's connection check. A success marks the
// provider connected; failures are returned as results, never panics.
func (h *Hub) TestConnection(ctx context.Context, providerID string) (providers.ConnectionResult, error) {
	adapter, creds, err := h.adapterFor(providerID)
	if err != nil {
		return providers.ConnectionResult{}, err
	}
	if err := h.acquire(providerID); err != nil {
		return providers.ConnectionResult{}, err
	}
	defer h.release(providerID)

	result := adapter.TestConnection(ctx, *creds)
	if result.Success {
		h.setStatus(providerID, StatusConnected)
	}
	h.logger.Info("connection test finished",
		zap.String("provider", providerID),
		zap.Bool("success", result.Success))
	return result, nil
}

// Sync runs the adapter's sync and commits the record. A failed sync leaves
// the prior cached record untouched; a partially-degraded sync (sub-fetch
// warnings) still commits, replacing the prior record wholesale.
func (h *Hub) Sync(ctx context.Context, providerID string) (*evidence.SyncRecord, error) {
	adapter, creds, err := h.adapterFor(providerID)
	if err != nil {
		return nil, err
	}
	if err := h.acquire(providerID); err != nil {
		return nil, err
	}
	defer h.release(providerID)

	rec, err := adapter.Sync(ctx, *creds)
	if err != nil {
		h.logger.Warn("sync failed; cached record preserved",
			zap.String("provider", providerID), zap.Error(err))
		return nil, err
	}
	if err := h.store.PutSyncRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to persist sync record: %w", err)
	}
	h.setStatus(providerID, StatusConnected)
	h.logger.Info("sync committed",
		zap.String("provider", providerID),
		zap.Int("warnings", len(rec.Warnings)))
	return rec, nil
}

// States lists every provider with its display state.
func (h *Hub) States(ctx context.Context) []ProviderState {
	h.mu.Lock()
	statuses := make(map[string]Status, len(h.status))
	for k, v := range h.status {
		statuses[k] = v
	}
	h.mu.Unlock()

	out := make([]ProviderState, 0, len(h.registry.List()))
	for _, desc := range h.registry.List() {
		ps := ProviderState{
			Descriptor:     desc,
			State:          DisplayNotConfigured,
			HasCredentials: h.creds.Has(desc.ID),
		}
		rec, err := h.store.SyncRecord(ctx, desc.ID)
		if err == nil && rec != nil {
			t := rec.LastSync
			ps.LastSync = &t
			ps.State = DisplayCached
		}
		if statuses[desc.ID] == StatusConnected {
			ps.State = DisplayConnected
		}
		out = append(out, ps)
	}
	return out
}

// ControlEvidence queries the evidence index for one practice id.
func (h *Hub) ControlEvidence(ctx context.Context, controlID string) []evidence.Contribution {
	return h.index.ControlEvidence(ctx, controlID)
}

// ProviderStats projects a provider's synced stats, nil when unsynced.
func (h *Hub) ProviderStats(ctx context.Context, providerID string) *evidence.Stats {
	return h.index.ProviderStats(ctx, providerID)
}

// ImportOscal parses an uploaded document. The KindUnknown sentinel comes
// back as a document, not an error.
func (h *Hub) ImportOscal(data []byte) (*oscal.Document, error) {
	return oscal.Parse(data)
}

// ApplyOscal merges a parsed assessment-results document into the assessment
// record and returns the number of controls updated. SSP and POA&M documents
// are preview-only and cannot be applied.
func (h *Hub) ApplyOscal(ctx context.Context, doc *oscal.Document) (int, error) {
	if doc == nil || doc.Kind != oscal.KindAssessmentResults {
		return 0, fmt.Errorf("only %s documents can be applied", oscal.KindAssessmentResults)
	}
	updates := oscal.AssessmentUpdates(doc)
	if len(updates) == 0 {
		return 0, nil
	}
	if err := h.store.MergeAssessment(ctx, updates); err != nil {
		return 0, fmt.Errorf("failed to apply import: %w", err)
	}
	h.logger.Info("OSCAL assessment results applied", zap.Int("controls", len(updates)))
	return len(updates), nil
}

// ExportAssessmentResults serializes the assessment record; returns the
// document bytes and download filename.
func (h *Hub) ExportAssessmentResults(ctx context.Context) ([]byte, string, error) {
	assessment, err := h.store.Assessment(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read assessment record: %w", err)
	}
	now := time.Now()
	data, err := oscal.ExportAssessmentResults(assessment, now)
	if err != nil {
		return nil, "", err
	}
	return data, oscal.Filename(oscal.KindAssessmentResults, now), nil
}

// ExportPOAM serializes the POA&M record; returns the document bytes and
// download filename.
func (h *Hub) ExportPOAM(ctx context.Context) ([]byte, string, error) {
	poam, err := h.store.POAM(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read POA&M record: %w", err)
	}
	now := time.Now()
	data, err := oscal.ExportPOAM(poam, now)
	if err != nil {
		return nil, "", err
	}
	return data, oscal.Filename(oscal.KindPOAM, now), nil
}

// CreateTicket opens a remediation ticket for a control's POA&M item in a
// connected ticketing provider. Local state is not modified; the ticket key
// is reported back to the caller.
func (h *Hub) CreateTicket(ctx context.Context, providerID, controlID, projectKey string) (string, error) {
	adapter, creds, err := h.adapterFor(providerID)
	if err != nil {
		return "", err
	}
	creator, ok := adapter.(providers.TicketCreator)
	if !ok {
		return "", ErrNotTicketing
	}
	poam, err := h.store.POAM(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read POA&M record: %w", err)
	}
	item, ok := poam[controlID]
	if !ok || (item.Weakness == "" && item.Remediation == "") {
		return "", ErrNoPOAMItem
	}

	title := fmt.Sprintf("CMMC remediation: control %s", controlID)
	description := fmt.Sprintf("Weakness: %s\n\nPlanned remediation: %s", item.Weakness, item.Remediation)
	if item.ScheduledDate != "" {
		description += fmt.Sprintf("\n\nScheduled completion: %s", item.ScheduledDate)
	}
	key, err := creator.CreateTicket(ctx, *creds, projectKey, title, description)
	if err != nil {
		return "", err
	}
	return key, nil
}
