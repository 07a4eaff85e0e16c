package main

import (
	"encoding/json"
	"net/http"

	"github.com/swanhtet/medbridge/internal/errors"
	"github.com/swanhtet/medbridge/internal/models"
	syncpkg "github.com/swanhtet/medbridge/internal/sync"
)

// SyncHandler exposes the sync service over the local REST API.
type SyncHandler struct {
	service *syncpkg.Service
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(service *syncpkg.Service) *SyncHandler {
	return &SyncHandler{service: service}
}

// Routes registers all API routes on mux.
func (h *SyncHandler) Routes(mux *http.ServeMux, hub *WSHub) {
	mux.HandleFunc("POST /api/sync/operations", h.QueueOperation)
	mux.HandleFunc("GET /api/sync/operations", h.ListOperations)
	mux.HandleFunc("POST /api/sync/operations/{id}/retry", h.RetryOperation)
	mux.HandleFunc("GET /api/sync/status", h.Status)
	mux.HandleFunc("POST /api/sync/force", h.ForceSync)
	mux.HandleFunc("GET /api/sync/conflicts", h.ListConflicts)
	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("GET /ws", HandleWebSocket(hub))
}

// QueueOperation handles POST /api/sync/operations. The operation is
// accepted once durably queued; delivery happens asynchronously.
func (h *SyncHandler) QueueOperation(w http.ResponseWriter, r *http.Request) {
	var request struct {
		EntityType models.EntityType   `json:"type"`
		Operation  models.MutationKind `json:"operation"`
		Data       json.RawMessage     `json:"data"`
		HospitalID string              `json:"hospital_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, errors.New(errors.ErrInvalidPayload, "invalid request body"))
		return
	}

	id, err := h.service.QueueOperation(request.EntityType, request.Operation, request.Data, request.HospitalID)
	if err != nil {
		writeError(w, statusForCode(errors.CodeOf(err)), err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"operation_id": id,
		"status":       string(models.StatusPending),
	})
}

// ListOperations handles GET /api/sync/operations.
func (h *SyncHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	ops := h.service.Operations()
	if ops == nil {
		ops = []*models.SyncOperation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"operations": ops,
		"count":      len(ops),
	})
}

// RetryOperation handles POST /api/sync/operations/{id}/retry.
func (h *SyncHandler) RetryOperation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.service.RetryOperation(id); err != nil {
		writeError(w, statusForCode(errors.CodeOf(err)), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"operation_id": id,
		"status":       string(models.StatusPending),
	})
}

// Status handles GET /api/sync/status.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Status())
}

// ForceSync handles POST /api/sync/force. Unlike the background loops,
// this propagates an offline error so the operator gets immediate
// feedback.
func (h *SyncHandler) ForceSync(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ForceSync(r.Context()); err != nil {
		writeError(w, statusForCode(errors.CodeOf(err)), err)
		return
	}
	writeJSON(w, http.StatusOK, h.service.Status())
}

// ListConflicts handles GET /api/sync/conflicts.
func (h *SyncHandler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts := h.service.Conflicts()
	if conflicts == nil {
		conflicts = []models.ConflictRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conflicts": conflicts,
		"count":     len(conflicts),
	})
}

// Health handles GET /api/health.
func (h *SyncHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "medbridge-syncd",
	})
}

func statusForCode(code errors.ErrorCode) int {
	switch code {
	case errors.ErrInvalidPayload, errors.ErrValidation, errors.ErrInvalid:
		return http.StatusBadRequest
	case errors.ErrOperationNotFound, errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrNotRetryable:
		return http.StatusConflict
	case errors.ErrQueueFull:
		return http.StatusTooManyRequests
	case errors.ErrOffline, errors.ErrProbeFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := map[string]interface{}{
		"error": err.Error(),
		"code":  string(errors.CodeOf(err)),
	}
	writeJSON(w, status, body)
}
