package patient

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/carelink/patient-platform/pkg/interfaces"
	"github.com/carelink/patient-platform/pkg/logger"
	"github.com/carelink/patient-platform/pkg/types"
)

// Handlers exposes patient management over HTTP
type Handlers struct {
	service interfaces.PatientService
	logger  *logger.Logger
}

// NewHandlers creates new patient handlers
func NewHandlers(service interfaces.PatientService, log *logger.Logger) *Handlers {
	return &Handlers{
		service: service,
		logger:  log,
	}
}

// RegisterRoutes registers patient routes on the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/patients", h.ListPatients).Methods(http.MethodGet)
	router.HandleFunc("/api/patients", h.CreatePatient).Methods(http.MethodPost)
	router.HandleFunc("/api/patients/{id}", h.GetPatient).Methods(http.MethodGet)
	router.HandleFunc("/api/patients/{id}", h.UpdatePatient).Methods(http.MethodPut)
	router.HandleFunc("/api/patients/{id}", h.DeletePatient).Methods(http.MethodDelete)
	router.HandleFunc("/api/patients/{id}/billing", h.RetryBilling).Methods(http.MethodPost)
}

// CreatePatient handles POST /api/patients
func (h *Handlers) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var input types.CreatePatientInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, types.NewValidationError(types.ErrCodeInvalidRequest, "invalid request format", map[string]interface{}{
			"reason": err.Error(),
		}))
		return
	}

	result, err := h.service.CreatePatient(r.Context(), &input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

// ListPatients handles GET /api/patients
func (h *Handlers) ListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.service.ListPatients(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"patients": patients,
		"count":    len(patients),
	})
}

// GetPatient handles GET /api/patients/{id}
func (h *Handlers) GetPatient(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	patient, err := h.service.GetPatient(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, patient)
}

// UpdatePatient handles PUT /api/patients/{id}
func (h *Handlers) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var input types.UpdatePatientInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, types.NewValidationError(types.ErrCodeInvalidRequest, "invalid request format", map[string]interface{}{
			"reason": err.Error(),
		}))
		return
	}

	patient, err := h.service.UpdatePatient(r.Context(), id, &input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, patient)
}

// DeletePatient handles DELETE /api/patients/{id}
func (h *Handlers) DeletePatient(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	actor := r.Header.Get("X-User-ID")

	if err := h.service.DeletePatient(r.Context(), id); err != nil {
		h.logger.Audit(actor, "patient.delete", id, false, map[string]interface{}{
			"error": err.Error(),
		})
		h.handleServiceError(w, err)
		return
	}

	h.logger.Audit(actor, "patient.delete", id, true, nil)
	w.WriteHeader(http.StatusNoContent)
}

// RetryBilling handles POST /api/patients/{id}/billing
func (h *Handlers) RetryBilling(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	patient, err := h.service.RetryBilling(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, patient)
}

// handleServiceError maps domain errors onto HTTP status codes. The mapping
// lives here so the service layer never needs to know about HTTP.
func (h *Handlers) handleServiceError(w http.ResponseWriter, err error) {
	var domainErr *types.DomainError
	if errors.As(err, &domainErr) {
		h.writeJSON(w, statusFromKind(domainErr.Kind), map[string]interface{}{
			"error": domainErr,
		})
		return
	}

	h.logger.WithError(err).Error("Unhandled error in patient handler")
	h.writeError(w, types.NewInternalError(types.ErrCodeInternalError, "internal server error", err))
}

func (h *Handlers) writeError(w http.ResponseWriter, domainErr *types.DomainError) {
	h.writeJSON(w, statusFromKind(domainErr.Kind), map[string]interface{}{
		"error": domainErr,
	})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

func statusFromKind(kind types.ErrorKind) int {
	switch kind {
	case types.ErrorKindValidation:
		return http.StatusBadRequest
	case types.ErrorKindUnauthenticated:
		return http.StatusUnauthorized
	case types.ErrorKindNotFound:
		return http.StatusNotFound
	case types.ErrorKindConflict:
		return http.StatusConflict
	case types.ErrorKindRateLimit:
		return http.StatusTooManyRequests
	case types.ErrorKindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
