package models

// RouteSelectionRequest records which compared route the user picked.
type RouteSelectionRequest struct {
	Start     Point  `json:"start"`
	End       Point  `json:"end"`
	RouteType string `json:"routeType"`
}

// LocationRequest counts a visit to a named place.
type LocationRequest struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// AccessibilityRequest is a partial accessibility update; omitted fields
// are left unchanged.
type AccessibilityRequest struct {
	HighContrast *bool   `json:"highContrast,omitempty"`
	FontSize     *string `json:"fontSize,omitempty"`
}

// PrivacyRequest toggles privacy mode.
type PrivacyRequest struct {
	Enabled *bool `json:"enabled"`
}

// LastCityRequest remembers the city the user last opened.
type LastCityRequest struct {
	City string `json:"city"`
}

// RecommendationResponse is the learned route bias. RouteType is null
// until enough history exists.
type RecommendationResponse struct {
	RouteType *string `json:"routeType"`
}
