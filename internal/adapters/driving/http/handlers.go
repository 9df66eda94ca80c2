package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/custodia-labs/tasksync/internal/core/domain"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse represents a simple status response
type StatusResponse struct {
	Status string `json:"status"`
}

// SyncFailedResponse carries the partial result of a failed cycle.
type SyncFailedResponse struct {
	Error  string              `json:"error"`
	Result *domain.CycleResult `json:"result,omitempty"`
}

// PurgeResponse reports how many items a purge removed.
type PurgeResponse struct {
	Service string `json:"service,omitempty"`
	Deleted int    `json:"deleted"`
}

// StoresResponse lists the dumpable local stores.
type StoresResponse struct {
	Stores []string `json:"stores"`
}

// DumpResponse is the content of one local store.
type DumpResponse struct {
	Store     string             `json:"store"`
	Count     int                `json:"count"`
	Documents []*domain.Document `json:"documents"`
}

const readyTimeout = 2 * time.Second

// Health endpoints

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady pings the document database and the lock backend.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := map[string]string{}
	ready := true
	for name, p := range map[string]Pinger{"store": s.store, "lock": s.lock} {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", "component", name, "error", err)
			checks[name] = "unavailable"
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	checks["status"] = "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		checks["status"] = "not ready"
	}
	writeJSON(w, status, checks)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// Sync endpoints

// handleSync runs one cycle and answers when it finishes.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if op, ok := OperatorFrom(r.Context()); ok {
		s.logger.Info("manual sync requested", "operator", op.Subject)
	}
	result, err := s.engine.Sync(r.Context())
	if err != nil {
		status := statusFor(err)
		if result == nil {
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, status, SyncFailedResponse{Error: err.Error(), Result: result})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleStopAutoSync(w http.ResponseWriter, r *http.Request) {
	s.engine.DisableAutoSync()
	writeJSON(w, http.StatusOK, StatusResponse{Status: "auto-sync disabled"})
}

// Service endpoints

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	n, err := s.engine.Purge(r.Context(), name)
	if err != nil {
		var pe *domain.PurgeError
		if errors.As(err, &pe) {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":     err.Error(),
				"service":   name,
				"deleted":   pe.Succeeded,
				"failed":    pe.Failed,
				"watermark": "kept",
			})
			return
		}
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, PurgeResponse{Service: name, Deleted: n})
}

func (s *Server) handleResetWatermark(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.engine.ResetWatermark(r.Context(), name); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "watermark reset"})
}

// Store endpoints

func (s *Server) handleListStores(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StoresResponse{Stores: s.engine.Stores()})
}

func (s *Server) handleDumpStore(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	docs, err := s.engine.Dump(r.Context(), name)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if docs == nil {
		docs = []*domain.Document{}
	}
	writeJSON(w, http.StatusOK, DumpResponse{Store: name, Count: len(docs), Documents: docs})
}

func (s *Server) handlePurgeLocal(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.PurgeLocal(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, PurgeResponse{Deleted: n})
}

// statusFor maps the engine error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		fetchErr  *domain.FetchError
		remoteErr *domain.RemoteWriteError
		purgeErr  *domain.PurgeError
		initErr   *domain.InitError
	)
	switch {
	case errors.Is(err, domain.ErrLocked):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnknownService), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.As(err, &fetchErr), errors.As(err, &remoteErr), errors.As(err, &purgeErr):
		return http.StatusBadGateway
	case errors.As(err, &initErr):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
