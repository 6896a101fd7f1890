package models

import (
	"github.com/greenpath/greenpath/internal/backend"
	"github.com/greenpath/greenpath/internal/encourage"
)

// CompareRequest asks for the fast and cool routes between two points.
// When Select is set the choice is recorded in the preference history.
type CompareRequest struct {
	City   string  `json:"city"`
	Start  Point   `json:"start"`
	End    Point   `json:"end"`
	Select *string `json:"select,omitempty"`
}

// CompareResponse is the backend comparison plus an encouragement shown
// when the cool route was selected.
type CompareResponse struct {
	*backend.RouteComparison
	Encouragement *encourage.Message `json:"encouragement,omitempty"`
}

// CitiesResponse lists the cities the backend can analyse.
type CitiesResponse struct {
	Cities []backend.City `json:"cities"`
}

// StreamFailure is the payload of the terminal failure event of a city
// data stream.
type StreamFailure struct {
	Message     string `json:"message"`
	OperationID string `json:"operation_id,omitempty"`
}
