package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"pharmacy-retail/internal/core"
	"pharmacy-retail/internal/logging"
)

type errorResponse struct {
	Error     string          `json:"error"`
	Code      string          `json:"code"`
	RequestID string          `json:"request_id,omitempty"`
	Retryable bool            `json:"retryable,omitempty"`
	Details   *core.Shortfall `json:"details,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorBody(w, status, errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	})
}

// writeInvalid reports a malformed request under the same code the engine
// uses for invalid input.
func writeInvalid(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, message, core.KindInvalidRequest.String(), http.StatusBadRequest)
}

func writeErrorBody(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeServiceError maps an engine error to its HTTP status. Internal
// faults are logged and reported without their cause.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *core.Error
	if !errors.As(err, &ce) {
		ce = core.Wrap(core.KindInternal, "", err)
	}

	status := statusFor(ce.Kind)
	resp := errorResponse{
		Error:     ce.Error(),
		Code:      ce.Kind.String(),
		RequestID: requestIDFromContext(r.Context()),
		Retryable: ce.Retryable(),
		Details:   ce.Shortfall,
	}
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", zap.Error(err))
		resp.Error = "internal server error"
	}
	writeErrorBody(w, status, resp)
}

func statusFor(kind core.Kind) int {
	switch kind {
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindInvalidRequest:
		return http.StatusBadRequest
	case core.KindForbidden:
		return http.StatusForbidden
	case core.KindInsufficientStock, core.KindAlreadyConfirmed, core.KindAlreadyCancelled,
		core.KindInvalidState, core.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
