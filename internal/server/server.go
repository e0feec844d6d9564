// Package server exposes the hub over HTTP: provider lifecycle, evidence
// queries, OSCAL interchange and POA&M ticket creation. Handlers translate
// hub errors into status codes; adapter failures are payloads, not 5xx.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cmmc-tools/integrations-hub/pkg/credentials"
	"github.com/cmmc-tools/integrations-hub/pkg/hub"
	"github.com/cmmc-tools/integrations-hub/pkg/oscal"
)

// maxImportBytes bounds uploaded OSCAL documents.
const maxImportBytes = 4 << 20

// Server is the HTTP surface over a Hub.
type Server struct {
	hub     *hub.Hub
	logger  *zap.Logger
	metrics *Metrics
	router  *mux.Router
}

// New builds the server and its routes.
func New(h *hub.Hub, logger *zap.Logger) *Server {
	s := &Server{
		hub:     h,
		logger:  logger.Named("server"),
		metrics: NewMetrics(),
		router:  mux.NewRouter(),
	}
	s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.instrument)

	api.HandleFunc("/providers", s.handleListProviders).Methods(http.MethodGet)
	api.HandleFunc("/providers/{id}/credentials", s.handleConfigure).Methods(http.MethodPut)
	api.HandleFunc("/providers/{id}/credentials", s.handleDisconnect).Methods(http.MethodDelete)
	api.HandleFunc("/providers/{id}/test", s.handleTestConnection).Methods(http.MethodPost)
	api.HandleFunc("/providers/{id}/sync", s.handleSync).Methods(http.MethodPost)
	api.HandleFunc("/providers/{id}/stats", s.handleProviderStats).Methods(http.MethodGet)

	api.HandleFunc("/evidence/{controlId}", s.handleControlEvidence).Methods(http.MethodGet)

	api.HandleFunc("/oscal/import", s.handleOscalImport).Methods(http.MethodPost)
	api.HandleFunc("/oscal/import/apply", s.handleOscalApply).Methods(http.MethodPost)
	api.HandleFunc("/oscal/export/assessment-results", s.handleExportAssessment).Methods(http.MethodGet)
	api.HandleFunc("/oscal/export/poam", s.handleExportPOAM).Methods(http.MethodGet)

	api.HandleFunc("/poam/{controlId}/ticket", s.handleCreateTicket).Methods(http.MethodPost)

	s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
}

// instrument logs each request and records its latency.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.metrics.requestDuration.
			WithLabelValues(route, strconv.Itoa(rw.status/100*100)).
			Observe(time.Since(start).Seconds())
		s.logger.Debug("request handled",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", rw.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// hubError maps hub sentinel errors to HTTP status codes.
func (s *Server) hubError(w http.ResponseWriter, err error) {
	var missing *hub.MissingFieldsError
	switch {
	case errors.As(err, &missing):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":         "missing required credential fields",
			"missingFields": missing.Fields,
		})
	case errors.Is(err, hub.ErrUnknownProvider):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, hub.ErrNoCredentials):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, hub.ErrInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, hub.ErrNotTicketing), errors.Is(err, hub.ErrNoPOAMItem):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.States(r.Context()))
}

type configureRequest struct {
	Fields      map[string]string `json:"fields"`
	Environment string            `json:"environment,omitempty"`
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	providerID := mux.Vars(r)["id"]
	var req configureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := s.hub.Configure(providerID, credentials.Credentials{
		Fields:      req.Fields,
		Environment: req.Environment,
	})
	if err != nil {
		s.hubError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	providerID := mux.Vars(r)["id"]
	if _, ok := s.hub.Registry().Get(providerID); !ok {
		writeError(w, http.StatusNotFound, hub.ErrUnknownProvider.Error())
		return
	}
	s.hub.Disconnect(providerID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	providerID := mux.Vars(r)["id"]
	result, err := s.hub.TestConnection(r.Context(), providerID)
	if err != nil {
		s.hubError(w, err)
		return
	}
	s.metrics.testTotal.WithLabelValues(providerID, outcome(result.Success)).Inc()
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	providerID := mux.Vars(r)["id"]
	rec, err := s.hub.Sync(r.Context(), providerID)
	if err != nil {
		s.metrics.syncTotal.WithLabelValues(providerID, "failure").Inc()
		s.hubError(w, err)
		return
	}
	s.metrics.syncTotal.WithLabelValues(providerID, "success").Inc()
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleProviderStats(w http.ResponseWriter, r *http.Request) {
	providerID := mux.Vars(r)["id"]
	if _, ok := s.hub.Registry().Get(providerID); !ok {
		writeError(w, http.StatusNotFound, hub.ErrUnknownProvider.Error())
		return
	}
	stats := s.hub.ProviderStats(r.Context(), providerID)
	if stats == nil {
		writeError(w, http.StatusNotFound, "provider has not synced")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleControlEvidence(w http.ResponseWriter, r *http.Request) {
	controlID := mux.Vars(r)["controlId"]
	writeJSON(w, http.StatusOK, s.hub.ControlEvidence(r.Context(), controlID))
}

func (s *Server) handleOscalImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	doc, err := s.hub.ImportOscal(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if doc.Kind == oscal.KindUnknown {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": "unrecognized OSCAL document format",
		})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleOscalApply(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	doc, err := s.hub.ImportOscal(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	applied, err := s.hub.ApplyOscal(r.Context(), doc)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"appliedControls": applied})
}

func (s *Server) serveDownload(w http.ResponseWriter, data []byte, filename string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleExportAssessment(w http.ResponseWriter, r *http.Request) {
	data, filename, err := s.hub.ExportAssessmentResults(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.serveDownload(w, data, filename)
}

func (s *Server) handleExportPOAM(w http.ResponseWriter, r *http.Request) {
	data, filename, err := s.hub.ExportPOAM(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.serveDownload(w, data, filename)
}

type ticketRequest struct {
	Provider   string `json:"provider"`
	ProjectKey string `json:"projectKey"`
}

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	controlID := mux.Vars(r)["controlId"]
	var req ticketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Provider == "" {
		req.Provider = "jira"
	}
	key, err := s.hub.CreateTicket(r.Context(), req.Provider, controlID, req.ProjectKey)
	if err != nil {
		s.hubError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"ticketKey": key})
}
