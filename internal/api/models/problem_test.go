package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenpath/greenpath/internal/api/models"
)

func TestProblem_Builders(t *testing.T) {
	p := models.NewProblem(
		models.ProblemTypeValidation,
		"Validation error",
		http.StatusBadRequest,
		"req_test123",
	)

	assert.Equal(t, "req_test123", p.TraceID)
	assert.Empty(t, p.Detail)
	assert.Empty(t, p.Instance)
	assert.Nil(t, p.Errors)

	p.WithDetail("start.lat must be between -90 and 90").
		WithInstance("/v1/preferences/route-selections").
		WithErrors([]models.FieldError{{Field: "start.lat", Message: "out of range", Code: "OUT_OF_RANGE"}})

	assert.Equal(t, "start.lat must be between -90 and 90", p.Detail)
	assert.Equal(t, "/v1/preferences/route-selections", p.Instance)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "OUT_OF_RANGE", p.Errors[0].Code)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", "invalid input", []models.FieldError{
		{Field: "route_type", Message: "must be cool or fast"},
	})
	p.Instance = "/v1/preferences/route-selections"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var result models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))

	assert.Equal(t, models.ProblemTypeValidation, result.Type)
	assert.Equal(t, "invalid input", result.Detail)
	assert.Equal(t, "/v1/preferences/route-selections", result.Instance)
	assert.Equal(t, "req_test123", result.TraceID)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "route_type", result.Errors[0].Field)
}

func TestProblem_Constructors(t *testing.T) {
	tests := []struct {
		name   string
		p      *models.Problem
		typ    string
		title  string
		status int
	}{
		{"not found", models.NewNotFound("req_1", "d"), models.ProblemTypeNotFound, "Not found", http.StatusNotFound},
		{"not loaded", models.NewNotLoaded("req_1", "d"), models.ProblemTypeNotLoaded, "City data not loaded", http.StatusConflict},
		{"too many", models.NewTooManyRequests("req_1", "d"), models.ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests},
		{"internal", models.NewInternalError("req_1", "d"), models.ProblemTypeInternal, "Internal server error", http.StatusInternalServerError},
		{"bad gateway", models.NewBadGateway("req_1", "d"), models.ProblemTypeBadGateway, "Bad gateway", http.StatusBadGateway},
		{"unavailable", models.NewServiceUnavailable("req_1", "d"), models.ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.p.Type)
			assert.Equal(t, tt.title, tt.p.Title)
			assert.Equal(t, tt.status, tt.p.Status)
			assert.Equal(t, "d", tt.p.Detail)
			assert.Equal(t, "req_1", tt.p.TraceID)
		})
	}
}

func TestTimestamp_JSON(t *testing.T) {
	var ts models.Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2026-07-01T12:30:00Z"`), &ts))
	assert.Equal(t, 2026, ts.Time().Year())

	out, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.JSONEq(t, `"2026-07-01T12:30:00Z"`, string(out))

	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
}
