// Package response provides utilities for HTTP response handling.
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/greenpath/greenpath/internal/api/middleware"
	"github.com/greenpath/greenpath/internal/api/models"
	"github.com/greenpath/greenpath/internal/backend"
	"github.com/greenpath/greenpath/internal/monitor"
	"github.com/greenpath/greenpath/internal/preferences"
)

// JSON writes a JSON response with the given status code.
// Includes X-Request-Id header for correlation.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := middleware.GetRequestID(r.Context())
	if requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error writes a Problem+JSON error response.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// BadRequest writes a 400 Bad Request error response.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	traceID := middleware.GetRequestID(r.Context())
	Error(w, r, models.NewBadRequest(traceID, detail, errors))
}

// NotFound writes a 404 Not Found error response.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	Error(w, r, models.NewNotFound(traceID, detail))
}

// InternalError writes a 500 Internal Server Error response.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	Error(w, r, models.NewInternalError(traceID, detail))
}

// ServiceUnavailable writes a 503 Service Unavailable error response.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	Error(w, r, models.NewServiceUnavailable(traceID, detail))
}

// FromError writes the problem matching err. Unclassified errors are 500s.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	traceID := middleware.GetRequestID(r.Context())

	var opErr *monitor.OperationError
	switch {
	case errors.Is(err, preferences.ErrInvalidInput):
		Error(w, r, models.NewBadRequest(traceID, err.Error(), nil))
	case errors.Is(err, backend.ErrDataNotLoaded):
		Error(w, r, models.NewNotLoaded(traceID, backendMessage(err)))
	case errors.Is(err, backend.ErrNotFound):
		Error(w, r, models.NewNotFound(traceID, backendMessage(err)))
	case errors.Is(err, backend.ErrRejected):
		Error(w, r, models.NewBadRequest(traceID, backendMessage(err), nil))
	case errors.Is(err, backend.ErrUnavailable):
		Error(w, r, models.NewServiceUnavailable(traceID, backendMessage(err)))
	case errors.Is(err, backend.ErrBadResponse):
		Error(w, r, models.NewBadGateway(traceID, backendMessage(err)))
	case errors.As(err, &opErr):
		Error(w, r, models.NewBadGateway(traceID, opErr.Message))
	default:
		Error(w, r, models.NewInternalError(traceID, "internal server error"))
	}
}

// backendMessage returns the message of a backend error without the
// client operation prefix.
func backendMessage(err error) string {
	var be *backend.Error
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return err.Error()
}

// NoContent writes a 204 No Content response.
// Includes X-Request-Id header for correlation.
func NoContent(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	if requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
	w.WriteHeader(http.StatusNoContent)
}
