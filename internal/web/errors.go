package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. The HTTP status comes from statusFor, the body from core.MapError
//  4. Technical error + context is logged with the request ID for correlation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/JonMunkholm/reconcile/internal/eventlog"
	"github.com/JonMunkholm/reconcile/internal/latency"
	"github.com/JonMunkholm/reconcile/internal/logging"
	"github.com/go-chi/chi/v5/middleware"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Action    string `json:"action,omitempty"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case core.IsValidationError(err), errors.Is(err, eventlog.ErrInvalidOverride):
		return http.StatusBadRequest
	case errors.Is(err, latency.ErrResetTokenMismatch),
		errors.Is(err, latency.ErrResetTokenNotConfigured),
		errors.Is(err, core.ErrDebugTokenMismatch):
		return http.StatusForbidden
	case errors.Is(err, core.ErrTooManyScans):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs the technical error server-side and writes the mapped
// user-facing error.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	log := logging.FromContext(r.Context()).With(
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", userMsg.Code,
		"error", err.Error(),
	)
	if status >= http.StatusInternalServerError {
		log.Error("request error")
	} else {
		log.Warn("request rejected")
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	respondErrorJSON(w, ErrorResponse{
		Error:     userMsg.Message,
		Message:   userMsg.Message,
		Action:    userMsg.Action,
		Code:      userMsg.Code,
		RequestID: middleware.GetReqID(r.Context()),
	}, status)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, body ErrorResponse, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeJSON encodes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode error", "error", err)
	}
}
