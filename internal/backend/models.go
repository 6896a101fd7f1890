// Package backend is a client for the GreenPath routing and analytics
// service: city catalogue, hexagon datasets, city load operations with
// their progress streams, and cool/fast route comparison.
package backend

import (
	"encoding/json"
)

// City is a city the backend can analyse.
type City struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

type citiesResponse struct {
	Cities []City `json:"cities"`
}

// Geometry is a GeoJSON geometry. Coordinates are kept raw because their
// nesting depends on Type.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// HexagonProperties are the comfort metrics of one H3 hexagon.
type HexagonProperties struct {
	HexID        string  `json:"hex_id"`
	ComfortScore float64 `json:"comfort_score"`
	NDVI         float64 `json:"ndvi"`
	LST          float64 `json:"lst"`
	Slope        float64 `json:"slope"`
	Shadow       float64 `json:"shadow"`
	Category     string  `json:"category"`
}

// HexagonFeature is one hexagon of a city dataset.
type HexagonFeature struct {
	Type       string            `json:"type"`
	Geometry   Geometry          `json:"geometry"`
	Properties HexagonProperties `json:"properties"`
}

// HexagonCollection is a GeoJSON FeatureCollection of hexagons.
type HexagonCollection struct {
	Type     string           `json:"type"`
	Features []HexagonFeature `json:"features"`
}

// CityStats summarises comfort across a city.
type CityStats struct {
	Total       int     `json:"total"`
	MeanComfort float64 `json:"mean_comfort"`
	MinComfort  float64 `json:"min_comfort"`
	MaxComfort  float64 `json:"max_comfort"`
}

// CityData is the hexagon dataset of a loaded city.
type CityData struct {
	City     string            `json:"city"`
	Hexagons HexagonCollection `json:"hexagons"`
	Stats    CityStats         `json:"stats"`
}

type startLoadResponse struct {
	OperationID string `json:"operation_id"`
}

// ProgressFrame is one event of an operation progress stream.
type ProgressFrame struct {
	Message   string          `json:"message"`
	Progress  *float64        `json:"progress,omitempty"`
	Complete  bool            `json:"complete,omitempty"`
	Error     bool            `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
	Keepalive bool            `json:"keepalive,omitempty"`
}

// CompareRequest asks for the fast and cool routes between two points.
type CompareRequest struct {
	City     string  `json:"city"`
	StartLat float64 `json:"start_lat"`
	StartLon float64 `json:"start_lon"`
	EndLat   float64 `json:"end_lat"`
	EndLon   float64 `json:"end_lon"`
}

// RouteStats are the properties of a computed route.
type RouteStats struct {
	DistanceKm      float64 `json:"distance_km"`
	AvgComfort      float64 `json:"avg_comfort"`
	WalkingTimeMin  float64 `json:"walking_time_min"`
	TreeCoveragePct float64 `json:"tree_coverage_pct"`
}

// RouteFeature is a route as a GeoJSON feature.
type RouteFeature struct {
	Type       string     `json:"type"`
	Geometry   Geometry   `json:"geometry"`
	Properties RouteStats `json:"properties"`
}

// Comparison describes how the cool route differs from the fast one.
type Comparison struct {
	DistanceDiffM      float64 `json:"distance_diff_m"`
	DistanceDiffPct    float64 `json:"distance_diff_pct"`
	ComfortImprovement float64 `json:"comfort_improvement"`
	TimeDiffMin        float64 `json:"time_diff_min"`
	UsedFallback       bool    `json:"used_fallback,omitempty"`
}

// RouteComparison is the result of a route comparison.
type RouteComparison struct {
	FastRoute  RouteFeature `json:"fast_route"`
	CoolRoute  RouteFeature `json:"cool_route"`
	Comparison Comparison   `json:"comparison"`
}

// errorResponse is the body of a non-2xx backend response.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
