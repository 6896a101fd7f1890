package models

import (
	"encoding/json"
	"net/http"
)

// Problem represents an RFC7807 error response.
type Problem struct {
	// Type is a URI reference that identifies the problem type.
	Type string `json:"type"`

	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`

	// Status is the HTTP status code for this occurrence of the problem.
	Status int `json:"status"`

	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`

	// Instance is a URI reference that identifies the specific occurrence.
	Instance string `json:"instance,omitempty"`

	// TraceID is the request trace identifier for debugging.
	TraceID string `json:"traceId"`

	// Errors contains structured field validation errors.
	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Problem type URIs.
const (
	ProblemTypeValidation      = problemBase + "validation-error"
	ProblemTypeNotFound        = problemBase + "not-found"
	ProblemTypeNotLoaded       = problemBase + "city-data-not-loaded"
	ProblemTypeTooManyRequests = problemBase + "too-many-requests"
	ProblemTypeInternal        = problemBase + "internal-error"
	ProblemTypeBadGateway      = problemBase + "backend-error"
	ProblemTypeUnavailable     = problemBase + "backend-unavailable"
)

const problemBase = "https://greenpath.dev/problems/"

// NewProblem creates a new Problem with the given parameters.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   title,
		Status:  status,
		TraceID: traceID,
	}
}

// WithDetail adds a detail message to the Problem.
func (p *Problem) WithDetail(detail string) *Problem {
	p.Detail = detail
	return p
}

// WithInstance adds the request instance URI to the Problem.
func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

// WithErrors adds field errors to the Problem.
func (p *Problem) WithErrors(errors []FieldError) *Problem {
	p.Errors = errors
	return p
}

// Write writes the Problem as JSON to the ResponseWriter.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("X-Request-Id", p.TraceID)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

type problemKind struct {
	typ    string
	title  string
	status int
}

var (
	kindNotFound    = problemKind{ProblemTypeNotFound, "Not found", http.StatusNotFound}
	kindNotLoaded   = problemKind{ProblemTypeNotLoaded, "City data not loaded", http.StatusConflict}
	kindTooMany     = problemKind{ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests}
	kindInternal    = problemKind{ProblemTypeInternal, "Internal server error", http.StatusInternalServerError}
	kindBadGateway  = problemKind{ProblemTypeBadGateway, "Bad gateway", http.StatusBadGateway}
	kindUnavailable = problemKind{ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable}
)

func (k problemKind) problem(traceID, detail string) *Problem {
	return NewProblem(k.typ, k.title, k.status, traceID).WithDetail(detail)
}

// NewBadRequest creates a 400 problem listing the rejected fields.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	return NewProblem(ProblemTypeValidation, "Validation error", http.StatusBadRequest, traceID).
		WithDetail(detail).
		WithErrors(errors)
}

// NewNotFound creates a 404 problem.
func NewNotFound(traceID, detail string) *Problem { return kindNotFound.problem(traceID, detail) }

// NewNotLoaded creates a 409 problem for a city whose dataset has not been computed.
func NewNotLoaded(traceID, detail string) *Problem { return kindNotLoaded.problem(traceID, detail) }

// NewTooManyRequests creates a 429 problem.
func NewTooManyRequests(traceID, detail string) *Problem { return kindTooMany.problem(traceID, detail) }

// NewInternalError creates a 500 problem.
func NewInternalError(traceID, detail string) *Problem { return kindInternal.problem(traceID, detail) }

// NewBadGateway creates a 502 problem for a backend that answered with something unusable.
func NewBadGateway(traceID, detail string) *Problem { return kindBadGateway.problem(traceID, detail) }

// NewServiceUnavailable creates a 503 problem for an unreachable backend.
func NewServiceUnavailable(traceID, detail string) *Problem { return kindUnavailable.problem(traceID, detail) }
