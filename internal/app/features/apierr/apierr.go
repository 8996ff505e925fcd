// internal/app/features/apierr/apierr.go

// Package apierr renders workflow errors as JSON responses and maps the
// error taxonomy onto HTTP statuses. Coverage failures are rendered as
// 404s on purpose: a Forbidden that names an entity the actor cannot
// see would leak org structure.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dalemusser/taskhub/internal/app/workflow"
	"go.uber.org/zap"
)

// ErrorLogger wraps zap for handler-side error reporting.
type ErrorLogger struct {
	log *zap.Logger
}

// NewErrorLogger constructs an ErrorLogger.
func NewErrorLogger(logger *zap.Logger) *ErrorLogger {
	return &ErrorLogger{log: logger}
}

// body is the uniform error payload.
type body struct {
	Error string `json:"error"`
}

// Render writes err as JSON with the status the taxonomy dictates and
// logs server-side failures. Callers pass every error from the stores
// through here.
func (e *ErrorLogger) Render(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status == http.StatusInternalServerError && e != nil && e.log != nil {
		e.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal error"
	}
	WriteJSON(w, status, body{Error: msg})
}

// classify maps the workflow error taxonomy to HTTP statuses.
func classify(err error) (int, string) {
	var (
		invalid    *workflow.InvalidTransitionError
		outOfOrder *workflow.OutOfOrderApprovalError
		decided    *workflow.AlreadyDecidedError
		validation *workflow.ValidationError
	)
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, workflow.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, workflow.ErrVersionConflict):
		return http.StatusConflict, err.Error()
	case errors.As(err, &decided):
		return http.StatusConflict, err.Error()
	case errors.As(err, &invalid):
		return http.StatusConflict, err.Error()
	case errors.As(err, &outOfOrder):
		return http.StatusConflict, err.Error()
	case errors.As(err, &validation):
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, err.Error()
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NotFound writes the uniform 404 payload. Used where an authorization
// failure must read identically to a missing entity.
func NotFound(w http.ResponseWriter) {
	WriteJSON(w, http.StatusNotFound, body{Error: "not found"})
}

// Forbidden writes a plain 403 payload.
func Forbidden(w http.ResponseWriter) {
	WriteJSON(w, http.StatusForbidden, body{Error: "forbidden"})
}

// BadRequest writes a 400 with the given message.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusBadRequest, body{Error: msg})
}
