package handler

import (
	"encoding/json"
	"net/http"

	"github.com/greenpath/greenpath/internal/api/models"
	"github.com/greenpath/greenpath/internal/api/response"
	"github.com/greenpath/greenpath/internal/preferences"
)

// maxBodyBytes bounds request bodies of the companion API.
const maxBodyBytes = 64 << 10

// PreferencesHandler handles the preference endpoints.
type PreferencesHandler struct {
	service *preferences.Service
}

// NewPreferencesHandler creates a new PreferencesHandler.
func NewPreferencesHandler(service *preferences.Service) *PreferencesHandler {
	return &PreferencesHandler{service: service}
}

// GetPreferences handles GET /v1/preferences.
func (h *PreferencesHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.service.Preferences(r.Context()))
}

// ClearPreferences handles DELETE /v1/preferences.
func (h *PreferencesHandler) ClearPreferences(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearAll(r.Context()); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// GetRecommendation handles GET /v1/preferences/recommendation.
func (h *PreferencesHandler) GetRecommendation(w http.ResponseWriter, r *http.Request) {
	var out models.RecommendationResponse
	if rt := h.service.Recommendation(r.Context()); rt != preferences.RouteNone {
		s := string(rt)
		out.RouteType = &s
	}
	response.JSON(w, r, http.StatusOK, out)
}

// GetStatistics handles GET /v1/preferences/statistics.
func (h *PreferencesHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.service.Statistics(r.Context()))
}

// RecordRouteSelection handles POST /v1/preferences/route-selections.
func (h *PreferencesHandler) RecordRouteSelection(w http.ResponseWriter, r *http.Request) {
	var input models.RouteSelectionRequest
	if !decode(w, r, &input) {
		return
	}

	route, err := preferences.ParseRouteType(input.RouteType)
	if err != nil {
		response.BadRequest(w, r, "validation failed", []models.FieldError{
			{Field: "routeType", Message: "must be cool or fast", Code: "INVALID_ENUM"},
		})
		return
	}

	err = h.service.RecordRouteSelection(r.Context(),
		preferences.Coordinate{Lat: input.Start.Lat, Lon: input.Start.Lon},
		preferences.Coordinate{Lat: input.End.Lat, Lon: input.End.Lon},
		route,
	)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// AddFrequentLocation handles POST /v1/preferences/locations.
func (h *PreferencesHandler) AddFrequentLocation(w http.ResponseWriter, r *http.Request) {
	var input models.LocationRequest
	if !decode(w, r, &input) {
		return
	}

	if err := h.service.AddFrequentLocation(r.Context(), input.Name, input.Lat, input.Lon); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// UpdateAccessibility handles PUT /v1/preferences/accessibility.
func (h *PreferencesHandler) UpdateAccessibility(w http.ResponseWriter, r *http.Request) {
	var input models.AccessibilityRequest
	if !decode(w, r, &input) {
		return
	}

	update := preferences.AccessibilityUpdate{HighContrast: input.HighContrast}
	if input.FontSize != nil {
		size := preferences.FontSize(*input.FontSize)
		update.FontSize = &size
	}

	prefs, err := h.service.UpdateAccessibility(r.Context(), update)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, prefs)
}

// SetPrivacyMode handles PUT /v1/preferences/privacy.
func (h *PreferencesHandler) SetPrivacyMode(w http.ResponseWriter, r *http.Request) {
	var input models.PrivacyRequest
	if !decode(w, r, &input) {
		return
	}
	if input.Enabled == nil {
		response.BadRequest(w, r, "validation failed", []models.FieldError{
			{Field: "enabled", Message: "required", Code: "REQUIRED"},
		})
		return
	}

	if err := h.service.SetPrivacyMode(r.Context(), *input.Enabled); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// SetLastCity handles PUT /v1/preferences/last-city.
func (h *PreferencesHandler) SetLastCity(w http.ResponseWriter, r *http.Request) {
	var input models.LastCityRequest
	if !decode(w, r, &input) {
		return
	}

	if err := h.service.SetLastCity(r.Context(), input.City); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// decode reads a JSON body into v, writing a 400 and returning false on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return false
	}
	return true
}
