package backendtest

import (
	"encoding/json"
	"time"

	"github.com/greenpath/greenpath/internal/backend"
)

// Lahore is the city most tests use.
var Lahore = backend.City{Name: "Lahore", Lat: 31.5204, Lon: 74.3587}

var frameTime = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC).Format(time.RFC3339)

// ProgressFrame returns a progress frame at pct percent.
func ProgressFrame(message string, pct float64) backend.ProgressFrame {
	return backend.ProgressFrame{Message: message, Progress: &pct, Timestamp: frameTime}
}

// MessageFrame returns a progress frame without a progress value.
func MessageFrame(message string) backend.ProgressFrame {
	return backend.ProgressFrame{Message: message, Timestamp: frameTime}
}

// KeepaliveFrame returns a keepalive frame.
func KeepaliveFrame() backend.ProgressFrame {
	return backend.ProgressFrame{Keepalive: true, Timestamp: frameTime}
}

// CompleteFrame returns a terminal success frame carrying data.
func CompleteFrame(message string, data any) backend.ProgressFrame {
	f := backend.ProgressFrame{Message: message, Complete: true, Timestamp: frameTime}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			panic(err)
		}
		f.Data = raw
	}
	return f
}

// ErrorFrame returns a terminal failure frame.
func ErrorFrame(message string) backend.ProgressFrame {
	return backend.ProgressFrame{Message: message, Error: true, Timestamp: frameTime}
}

// CityData returns a small two-hexagon dataset for name.
func CityData(name string) backend.CityData {
	return backend.CityData{
		City: name,
		Hexagons: backend.HexagonCollection{
			Type: "FeatureCollection",
			Features: []backend.HexagonFeature{
				hexagon("8a1f05a6a2dffff", 82.5, "Very Comfortable"),
				hexagon("8a1f05a6a2e7fff", 41.0, "Moderate"),
			},
		},
		Stats: backend.CityStats{Total: 2, MeanComfort: 61.75, MinComfort: 41.0, MaxComfort: 82.5},
	}
}

func hexagon(id string, score float64, category string) backend.HexagonFeature {
	return backend.HexagonFeature{
		Type: "Feature",
		Geometry: backend.Geometry{
			Type:        "Polygon",
			Coordinates: json.RawMessage(`[[[74.35,31.52],[74.36,31.52],[74.36,31.53],[74.35,31.52]]]`),
		},
		Properties: backend.HexagonProperties{
			HexID:        id,
			ComfortScore: score,
			NDVI:         0.42,
			LST:          38.1,
			Slope:        1.2,
			Shadow:       0.35,
			Category:     category,
		},
	}
}

// DefaultComparison returns a comparison where the cool route is 12%
// longer and 18 points more comfortable.
func DefaultComparison() backend.RouteComparison {
	line := backend.Geometry{Type: "LineString", Coordinates: json.RawMessage(`[[74.35,31.52],[74.36,31.53]]`)}
	return backend.RouteComparison{
		FastRoute: backend.RouteFeature{
			Type:       "Feature",
			Geometry:   line,
			Properties: backend.RouteStats{DistanceKm: 2.5, AvgComfort: 48, WalkingTimeMin: 30, TreeCoveragePct: 12},
		},
		CoolRoute: backend.RouteFeature{
			Type:       "Feature",
			Geometry:   line,
			Properties: backend.RouteStats{DistanceKm: 2.8, AvgComfort: 66, WalkingTimeMin: 34, TreeCoveragePct: 41},
		},
		Comparison: backend.Comparison{
			DistanceDiffM:      300,
			DistanceDiffPct:    12,
			ComfortImprovement: 18,
			TimeDiffMin:        4,
		},
	}
}
