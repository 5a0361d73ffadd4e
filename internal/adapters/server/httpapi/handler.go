// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hylla/remiss/internal/adapters/server/common"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	cases common.CaseService
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string                    `json:"code"`
	Message string                    `json:"message"`
	Hint    string                    `json:"hint,omitempty"`
	Detail  *common.ValidationFailure `json:"detail,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter over the case service.
func NewHandler(cases common.CaseService) *Handler {
	return &Handler{cases: cases}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.cases == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "case service is not configured",
		})
		return
	}

	path := normalizePath(r.URL.Path)
	switch {
	case path == "cases":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleOpenCase(w, r)
	case path == "templates":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListTemplates(w, r)
	case path == "departments":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListDepartments(w, r)
	default:
		caseID, sub, ok := resolveCasePath(path)
		if !ok {
			writeJSONError(w, http.StatusNotFound, APIError{
				Code:    "not_found",
				Message: "endpoint not found",
			})
			return
		}
		h.routeCaseRequest(w, r, caseID, sub)
	}
}

// routeCaseRequest dispatches `/cases/{id}` and its subresources.
func (h *Handler) routeCaseRequest(w http.ResponseWriter, r *http.Request, caseID, sub string) {
	switch sub {
	case "":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleGetCase(w, r, caseID)
	case "sections":
		switch r.Method {
		case http.MethodGet:
			h.handleListSections(w, r, caseID)
		case http.MethodPost:
			h.handleSubmitSection(w, r, caseID)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case "route":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleSendCase(w, r, caseID)
	case "routing":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleRoutingHistory(w, r, caseID)
	default:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	}
}

// handleOpenCase serves POST `/cases`.
func (h *Handler) handleOpenCase(w http.ResponseWriter, r *http.Request) {
	var req common.OpenCaseRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	view, err := h.cases.OpenCase(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// handleGetCase serves GET `/cases/{id}`.
func (h *Handler) handleGetCase(w http.ResponseWriter, r *http.Request, caseID string) {
	view, err := h.cases.GetCase(r.Context(), caseID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleSubmitSection serves POST `/cases/{id}/sections`.
func (h *Handler) handleSubmitSection(w http.ResponseWriter, r *http.Request, caseID string) {
	var req common.SubmitSectionRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.CaseID = caseID
	section, err := h.cases.SubmitSection(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, section)
}

// handleSendCase serves POST `/cases/{id}/route`.
func (h *Handler) handleSendCase(w http.ResponseWriter, r *http.Request, caseID string) {
	var req common.SendCaseRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.CaseID = caseID
	view, err := h.cases.SendCase(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleListSections serves GET `/cases/{id}/sections?department=`.
func (h *Handler) handleListSections(w http.ResponseWriter, r *http.Request, caseID string) {
	department := strings.TrimSpace(r.URL.Query().Get("department"))
	if department == "" {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: "department query parameter is required",
		})
		return
	}
	sections, err := h.cases.SectionsForDepartment(r.Context(), caseID, department)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sections": sections,
	})
}

// handleRoutingHistory serves GET `/cases/{id}/routing`.
func (h *Handler) handleRoutingHistory(w http.ResponseWriter, r *http.Request, caseID string) {
	routing, err := h.cases.RoutingHistory(r.Context(), caseID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"routing_history": routing,
	})
}

// handleListTemplates serves GET `/templates?department=`.
func (h *Handler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	department := strings.TrimSpace(r.URL.Query().Get("department"))
	if department == "" {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: "department query parameter is required",
		})
		return
	}
	templates, err := h.cases.ListTemplates(r.Context(), department)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"templates": templates,
	})
}

// handleListDepartments serves GET `/departments`.
func (h *Handler) handleListDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := h.cases.ListDepartments(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"departments": departments,
	})
}

// resolveCasePath parses `/cases/{id}` and `/cases/{id}/{sub}` paths.
func resolveCasePath(path string) (caseID, sub string, ok bool) {
	const prefix = "cases/"
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(path, prefix)
	caseID, sub, _ = strings.Cut(rest, "/")
	caseID = strings.TrimSpace(caseID)
	if caseID == "" || strings.Contains(sub, "/") {
		return "", "", false
	}
	return caseID, sub, true
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, common.ErrNotCurrentHolder):
		writeJSONError(w, http.StatusForbidden, APIError{
			Code:    "not_current_holder",
			Message: err.Error(),
			Hint:    "Only the department currently holding the case may act on it.",
		})
	case errors.Is(err, common.ErrConflict):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "conflict",
			Message: err.Error(),
			Hint:    "The case changed concurrently; reload and retry.",
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrInvalidRequest):
		apiErr := APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		}
		if failure, ok := common.ValidationFailureFrom(err); ok {
			apiErr.Code = "validation_failed"
			apiErr.Detail = &failure
		}
		writeJSONError(w, http.StatusBadRequest, apiErr)
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
