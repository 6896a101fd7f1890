package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/greenpath/greenpath/internal/api/models"
	"github.com/greenpath/greenpath/internal/api/response"
	"github.com/greenpath/greenpath/internal/backend"
	"github.com/greenpath/greenpath/internal/encourage"
	"github.com/greenpath/greenpath/internal/monitor"
	"github.com/greenpath/greenpath/internal/preferences"
)

// Backend is the subset of the backend client the city endpoints proxy.
type Backend interface {
	GetCities(ctx context.Context) ([]backend.City, error)
	CompareRoutes(ctx context.Context, req backend.CompareRequest) (*backend.RouteComparison, error)
}

// Loader fetches city data, loading it first when needed.
type Loader interface {
	Load(ctx context.Context, city string, onUpdate func(monitor.Snapshot)) (*backend.CityData, error)
}

// CitiesHandlerConfig holds configuration for the city endpoints.
type CitiesHandlerConfig struct {
	Backend     Backend
	Loader      Loader
	Preferences *preferences.Service
	Selector    *encourage.Selector
	Logger      zerolog.Logger
}

// CitiesHandler handles city catalogue, city data and route comparison endpoints.
type CitiesHandler struct {
	backend     Backend
	loader      Loader
	preferences *preferences.Service
	selector    *encourage.Selector
	logger      zerolog.Logger
}

// NewCitiesHandler creates a new CitiesHandler.
func NewCitiesHandler(cfg CitiesHandlerConfig) *CitiesHandler {
	selector := cfg.Selector
	if selector == nil {
		selector = encourage.NewSelector(nil)
	}
	return &CitiesHandler{
		backend:     cfg.Backend,
		loader:      cfg.Loader,
		preferences: cfg.Preferences,
		selector:    selector,
		logger:      cfg.Logger,
	}
}

// ListCities handles GET /v1/cities.
func (h *CitiesHandler) ListCities(w http.ResponseWriter, r *http.Request) {
	cities, err := h.backend.GetCities(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	if cities == nil {
		cities = []backend.City{}
	}
	response.JSON(w, r, http.StatusOK, models.CitiesResponse{Cities: cities})
}

// CityData handles GET /v1/cities/{name}/data. The response is an event
// stream of monitor snapshots while the city loads, ending with a result
// event carrying the dataset or a failure event. Errors raised before the
// first event are plain problem responses.
func (h *CitiesHandler) CityData(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(chi.URLParam(r, "name"))
	if city == "" {
		response.BadRequest(w, r, "city name is required", nil)
		return
	}

	stream := newEventStream(w)
	data, err := h.loader.Load(r.Context(), city, func(s monitor.Snapshot) {
		stream.send("snapshot", s)
	})

	if err != nil {
		if r.Context().Err() != nil {
			h.logger.Debug().Str("city", city).Msg("client went away during city load")
			return
		}
		if !stream.started() {
			response.FromError(w, r, err)
			return
		}

		failure := models.StreamFailure{Message: err.Error()}
		var opErr *monitor.OperationError
		if errors.As(err, &opErr) {
			failure = models.StreamFailure{Message: opErr.Message, OperationID: opErr.OperationID}
		}
		stream.send("failure", failure)
		return
	}

	if h.preferences != nil {
		if err := h.preferences.SetLastCity(r.Context(), city); err != nil {
			h.logger.Warn().Err(err).Str("city", city).Msg("failed to remember last city")
		}
	}
	stream.send("result", data)
}

// CompareRoutes handles POST /v1/routes/compare. When the request selects
// a route it is recorded in the preference history, and selecting the cool
// route adds an encouragement message to the response.
func (h *CitiesHandler) CompareRoutes(w http.ResponseWriter, r *http.Request) {
	var input models.CompareRequest
	if !decode(w, r, &input) {
		return
	}

	var fieldErrors []models.FieldError
	if strings.TrimSpace(input.City) == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "city", Message: "required", Code: "REQUIRED"})
	}
	fieldErrors = validatePoint(fieldErrors, input.Start, "start")
	fieldErrors = validatePoint(fieldErrors, input.End, "end")

	selected := preferences.RouteNone
	if input.Select != nil {
		route, err := preferences.ParseRouteType(*input.Select)
		if err != nil {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "select", Message: "must be cool or fast", Code: "INVALID_ENUM"})
		}
		selected = route
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "validation failed", fieldErrors)
		return
	}

	comparison, err := h.backend.CompareRoutes(r.Context(), backend.CompareRequest{
		City:     input.City,
		StartLat: input.Start.Lat,
		StartLon: input.Start.Lon,
		EndLat:   input.End.Lat,
		EndLon:   input.End.Lon,
	})
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	out := models.CompareResponse{RouteComparison: comparison}
	if selected != preferences.RouteNone {
		if h.preferences != nil {
			err := h.preferences.RecordRouteSelection(r.Context(),
				preferences.Coordinate{Lat: input.Start.Lat, Lon: input.Start.Lon},
				preferences.Coordinate{Lat: input.End.Lat, Lon: input.End.Lon},
				selected,
			)
			if err != nil {
				h.logger.Warn().Err(err).Msg("failed to record route selection")
			}
		}

		c := comparison.Comparison
		if msg, ok := h.selector.Select(c.ComfortImprovement, c.DistanceDiffPct, selected == preferences.RouteCool); ok {
			out.Encouragement = &msg
		}
	}

	response.JSON(w, r, http.StatusOK, out)
}

// validatePoint validates a coordinate field.
func validatePoint(errs []models.FieldError, p models.Point, field string) []models.FieldError {
	if p.Lat < -90 || p.Lat > 90 {
		errs = append(errs, models.FieldError{Field: field + ".lat", Message: "must be between -90 and 90", Code: "OUT_OF_RANGE"})
	}
	if p.Lon < -180 || p.Lon > 180 {
		errs = append(errs, models.FieldError{Field: field + ".lon", Message: "must be between -180 and 180", Code: "OUT_OF_RANGE"})
	}
	return errs
}

// eventStream writes server-sent events. Headers are sent with the first
// event so that earlier failures can still become problem responses.
type eventStream struct {
	mu     sync.Mutex
	w      http.ResponseWriter
	rc     *http.ResponseController
	opened bool
}

func newEventStream(w http.ResponseWriter) *eventStream {
	return &eventStream{w: w, rc: http.NewResponseController(w)}
}

func (s *eventStream) started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

func (s *eventStream) send(event string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		payload = []byte(`{}`)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.opened = true
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return
	}
	_ = s.rc.Flush()
}
