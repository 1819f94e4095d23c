// Package httputil provides shared HTTP response/request helpers for API
// handlers, including the mapping from workflow error types to status codes.
// Handlers use these instead of raw http.ResponseWriter calls so JSON
// envelopes and error shapes stay consistent across endpoints.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// ErrorResponse is the standard error envelope for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("response encode failed", "error", err)
	}
}

// OK writes a 200 response with the given data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Created writes a 201 response with the given data.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// NoContent writes a 204 response with no body.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error writes a JSON error response. Use for client errors (4xx).
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// BadRequest writes a 400 error.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

// NotFound writes a 404 error.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message)
}

// InternalError writes a 500 error. Logs the real error but returns a
// generic message to the client.
func InternalError(w http.ResponseWriter, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal server error")
}

// WorkflowError maps a workflow error to the right status code and envelope.
// Gate violations and invalid transitions are 409, validation problems 400,
// missing entities 404, everything else 500.
func WorkflowError(w http.ResponseWriter, err error) {
	var ist *domain.InvalidStateTransitionError
	var spam *domain.SpamScoreExceededError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		NotFound(w, err.Error())
	case errors.Is(err, domain.ErrValidation):
		BadRequest(w, err.Error())
	case errors.As(err, &ist):
		JSON(w, http.StatusConflict, ErrorResponse{Error: ist.Error(), Code: "invalid_state_transition"})
	case errors.As(err, &spam):
		JSON(w, http.StatusConflict, ErrorResponse{Error: spam.Error(), Code: "spam_score_exceeded"})
	case errors.Is(err, domain.ErrDuplicateSend):
		JSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "duplicate_send"})
	case errors.Is(err, domain.ErrDraftNotApproved):
		JSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "draft_not_approved"})
	case errors.Is(err, domain.ErrContactUnsubscribed):
		JSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "contact_unsubscribed"})
	case errors.Is(err, domain.ErrContactDeleted):
		JSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "contact_deleted"})
	case errors.Is(err, domain.ErrQuotaExceeded):
		JSON(w, http.StatusTooManyRequests, ErrorResponse{Error: err.Error(), Code: "quota_exceeded"})
	case errors.Is(err, domain.ErrBudgetLimitReached):
		JSON(w, http.StatusTooManyRequests, ErrorResponse{Error: err.Error(), Code: "budget_limit_reached"})
	case errors.Is(err, domain.ErrUndoWindowExpired):
		JSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "undo_window_expired"})
	default:
		InternalError(w, err)
	}
}

// Decode reads JSON from the request body into dst. Returns false and
// writes a 400 response if parsing fails.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		BadRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
