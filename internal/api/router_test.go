package api_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenpath/greenpath/internal/api"
	"github.com/greenpath/greenpath/internal/api/models"
	"github.com/greenpath/greenpath/internal/backend"
	"github.com/greenpath/greenpath/internal/backend/backendtest"
	"github.com/greenpath/greenpath/internal/monitor"
	"github.com/greenpath/greenpath/internal/preferences"
	"github.com/greenpath/greenpath/internal/provider/resilience"
)

type testEnv struct {
	router  http.Handler
	backend *backendtest.Server
}

func newTestEnv(t *testing.T, rateLimit int) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)

	fake := backendtest.New(t)
	fake.AddCity(backendtest.Lahore, false)
	fake.AddCity(backend.City{Name: "Karachi", Lat: 24.8607, Lon: 67.0011}, true)

	registry := resilience.NewRegistry()
	client := backend.NewClient(backend.ClientConfig{
		BaseURL:  fake.URL,
		Registry: registry,
		Logger:   logger,
	})
	mon := monitor.New(monitor.Config{Backend: client, Logger: logger})
	loader := monitor.NewLoader(monitor.LoaderConfig{
		Monitor:     mon,
		Backend:     client,
		GracePeriod: -1,
		Logger:      logger,
	})

	store := preferences.NewStore(preferences.StoreConfig{Storage: preferences.NewMemoryStorage(), Logger: logger})
	prefs := preferences.NewService(preferences.ServiceConfig{Store: store, Logger: logger})

	return &testEnv{
		backend: fake,
		router: api.NewRouter(api.RouterConfig{
			Version:     "test",
			Storage:     "memory",
			Logger:      logger,
			RateLimit:   rateLimit,
			Registry:    registry,
			Preferences: prefs,
			Backend:     client,
			Loader:      loader,
		}),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		if s, ok := body.(string); ok {
			reader = strings.NewReader(s)
		} else {
			encoded, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(encoded)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type sseEvent struct {
	name string
	data string
}

func parseEvents(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if cur.name != "" {
				events = append(events, cur)
			}
			cur = sseEvent{}
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		}
	}
	require.NoError(t, sc.Err())
	return events
}

func TestRouter_Health(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(t, http.MethodGet, "/v1/ops/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[models.Health](t, rec)
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Version)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRouter_Status(t *testing.T) {
	env := newTestEnv(t, 0)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/cities", nil).Code)

	rec := env.do(t, http.MethodGet, "/v1/ops/status", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[models.SystemStatus](t, rec)
	assert.Equal(t, models.HealthStatusOK, status.Status)
	assert.Equal(t, "memory", status.Storage)
	require.Len(t, status.Upstreams, 1)
	assert.Equal(t, backend.ProviderName, status.Upstreams[0].Name)
	assert.Equal(t, "closed", status.Upstreams[0].Circuit)
	assert.NotNil(t, status.Upstreams[0].LastSuccessAt)
}

func TestRouter_PreferencesDefaults(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(t, http.MethodGet, "/v1/preferences", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"preferredRouteType": null,
		"frequentLocations": [],
		"routeHistory": [],
		"accessibilityPreferences": {"highContrast": false, "fontSize": "normal"},
		"privacyMode": false,
		"lastCity": null
	}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/preferences/recommendation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"routeType": null}`, rec.Body.String())
}

func TestRouter_RecordRouteSelection(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(t, http.MethodPost, "/v1/preferences/route-selections", models.RouteSelectionRequest{
		Start:     models.Point{Lat: 31.52, Lon: 74.35},
		End:       models.Point{Lat: 31.53, Lon: 74.36},
		RouteType: "cool",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/preferences/recommendation", nil)
	assert.JSONEq(t, `{"routeType": "cool"}`, rec.Body.String())

	stats := decode[preferences.Statistics](t, env.do(t, http.MethodGet, "/v1/preferences/statistics", nil))
	assert.Equal(t, 1, stats.TotalRoutes)
	assert.Equal(t, 1, stats.CoolCount)
	assert.InDelta(t, 100.0, stats.CoolPct, 0.001)
}

func TestRouter_PreferencesValidation(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		field  string
	}{
		{
			name:   "unknown route type",
			method: http.MethodPost,
			path:   "/v1/preferences/route-selections",
			body:   models.RouteSelectionRequest{RouteType: "scenic"},
			field:  "routeType",
		},
		{
			name:   "latitude out of range",
			method: http.MethodPost,
			path:   "/v1/preferences/route-selections",
			body:   models.RouteSelectionRequest{Start: models.Point{Lat: 91}, RouteType: "fast"},
		},
		{
			name:   "location without name",
			method: http.MethodPost,
			path:   "/v1/preferences/locations",
			body:   models.LocationRequest{Lat: 31.5, Lon: 74.3},
		},
		{
			name:   "unknown font size",
			method: http.MethodPut,
			path:   "/v1/preferences/accessibility",
			body:   `{"fontSize":"huge"}`,
		},
		{
			name:   "privacy flag missing",
			method: http.MethodPut,
			path:   "/v1/preferences/privacy",
			body:   `{}`,
			field:  "enabled",
		},
		{
			name:   "empty city",
			method: http.MethodPut,
			path:   "/v1/preferences/last-city",
			body:   models.LastCityRequest{},
		},
		{
			name:   "unknown field",
			method: http.MethodPut,
			path:   "/v1/preferences/privacy",
			body:   `{"enabled":true,"forever":true}`,
		},
		{
			name:   "malformed JSON",
			method: http.MethodPost,
			path:   "/v1/preferences/locations",
			body:   `{"name":`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, 0)

			rec := env.do(t, tt.method, tt.path, tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			problem := decode[models.Problem](t, rec)
			assert.Equal(t, models.ProblemTypeValidation, problem.Type)
			assert.Equal(t, tt.path, problem.Instance)
			if tt.field != "" {
				require.Len(t, problem.Errors, 1)
				assert.Equal(t, tt.field, problem.Errors[0].Field)
			}
		})
	}
}

func TestRouter_PrivacyMode(t *testing.T) {
	env := newTestEnv(t, 0)
	selection := models.RouteSelectionRequest{
		Start:     models.Point{Lat: 31.52, Lon: 74.35},
		End:       models.Point{Lat: 31.53, Lon: 74.36},
		RouteType: "fast",
	}
	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/v1/preferences/route-selections", selection).Code)

	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodPut, "/v1/preferences/privacy", `{"enabled":true}`).Code)

	rec := env.do(t, http.MethodGet, "/v1/preferences", nil)
	record := decode[preferences.Record](t, rec)
	assert.True(t, record.PrivacyMode)
	assert.Empty(t, record.RouteHistory)

	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/v1/preferences/route-selections", selection).Code)
	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/v1/preferences/locations",
		models.LocationRequest{Name: "Home", Lat: 31.52, Lon: 74.35}).Code)

	stats := decode[preferences.Statistics](t, env.do(t, http.MethodGet, "/v1/preferences/statistics", nil))
	assert.Zero(t, stats.TotalRoutes)
	assert.Nil(t, stats.MostUsedLocation)

	status := decode[models.SystemStatus](t, env.do(t, http.MethodGet, "/v1/ops/status", nil))
	assert.True(t, status.PrivacyMode)
}

func TestRouter_AccessibilityAndClear(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(t, http.MethodPut, "/v1/preferences/accessibility", `{"fontSize":"large"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"highContrast": false, "fontSize": "large"}`, rec.Body.String())

	rec = env.do(t, http.MethodPut, "/v1/preferences/accessibility", `{"highContrast":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"highContrast": true, "fontSize": "large"}`, rec.Body.String())

	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/v1/preferences", nil).Code)

	record := decode[preferences.Record](t, env.do(t, http.MethodGet, "/v1/preferences", nil))
	assert.Equal(t, preferences.FontNormal, record.AccessibilityPreferences.FontSize)
	assert.False(t, record.AccessibilityPreferences.HighContrast)
}

func TestRouter_ListCities(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(t, http.MethodGet, "/v1/cities", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	cities := decode[models.CitiesResponse](t, rec)
	require.Len(t, cities.Cities, 2)
	assert.Equal(t, "Lahore", cities.Cities[0].Name)
}

func TestRouter_CityData_AlreadyLoaded(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(t, http.MethodGet, "/v1/cities/Karachi/data", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	events := parseEvents(t, rec.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, "result", events[0].name)

	var data backend.CityData
	require.NoError(t, json.Unmarshal([]byte(events[0].data), &data))
	assert.Equal(t, "Karachi", data.City)
	assert.Zero(t, env.backend.Requests(backendtest.Load))

	record := decode[preferences.Record](t, env.do(t, http.MethodGet, "/v1/preferences", nil))
	require.NotNil(t, record.LastCity)
	assert.Equal(t, "Karachi", *record.LastCity)
}

func TestRouter_CityData_StreamsLoad(t *testing.T) {
	env := newTestEnv(t, 0)
	env.backend.ScriptFrames(
		backendtest.ProgressFrame("Fetching boundary", 10),
		backendtest.ProgressFrame("Computing shade", 50),
		backendtest.KeepaliveFrame(),
		backendtest.CompleteFrame("Done", nil),
	)

	rec := env.do(t, http.MethodGet, "/v1/cities/Lahore/data", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	events := parseEvents(t, rec.Body.String())
	require.Len(t, events, 5)

	for _, ev := range events[:4] {
		assert.Equal(t, "snapshot", ev.name)
	}

	var first, last monitor.Snapshot
	require.NoError(t, json.Unmarshal([]byte(events[0].data), &first))
	require.NoError(t, json.Unmarshal([]byte(events[3].data), &last))
	assert.Equal(t, monitor.Pending, first.State)
	assert.Equal(t, monitor.Complete, last.State)
	assert.InDelta(t, 100.0, last.Progress, 0.001)
	assert.NotEmpty(t, last.OperationID)

	assert.Equal(t, "result", events[4].name)
	assert.Equal(t, 1, env.backend.Requests(backendtest.Load))
}

func TestRouter_CityData_Failure(t *testing.T) {
	env := newTestEnv(t, 0)
	env.backend.ScriptFrames(
		backendtest.ProgressFrame("Fetching boundary", 10),
		backendtest.ErrorFrame("Overpass timeout"),
	)

	rec := env.do(t, http.MethodGet, "/v1/cities/Lahore/data", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	events := parseEvents(t, rec.Body.String())
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, "failure", last.name)
	var failure models.StreamFailure
	require.NoError(t, json.Unmarshal([]byte(last.data), &failure))
	assert.Equal(t, "Overpass timeout", failure.Message)
	assert.NotEmpty(t, failure.OperationID)

	record := decode[preferences.Record](t, env.do(t, http.MethodGet, "/v1/preferences", nil))
	assert.Nil(t, record.LastCity)
}

func TestRouter_CityData_ErrorsBeforeStream(t *testing.T) {
	t.Run("unknown city", func(t *testing.T) {
		env := newTestEnv(t, 0)

		rec := env.do(t, http.MethodGet, "/v1/cities/Atlantis/data", nil)

		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, models.ProblemTypeNotFound, decode[models.Problem](t, rec).Type)
	})

	t.Run("start rejected", func(t *testing.T) {
		env := newTestEnv(t, 0)
		env.backend.SetFailStart(true)

		rec := env.do(t, http.MethodGet, "/v1/cities/Lahore/data", nil)

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	})
}

func TestRouter_CompareRoutes(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(t, http.MethodPost, "/v1/routes/compare", `{
		"city": "Lahore",
		"start": {"lat": 31.52, "lon": 74.35},
		"end": {"lat": 31.53, "lon": 74.36},
		"select": "cool"
	}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		backend.RouteComparison
		Encouragement *struct {
			Text     string `json:"text"`
			Bucket   string `json:"bucket"`
			Comfort  string `json:"comfort"`
			Distance string `json:"distance"`
		} `json:"encouragement"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.InDelta(t, 18.0, out.Comparison.ComfortImprovement, 0.001)
	require.NotNil(t, out.Encouragement)
	assert.Equal(t, "low_distance", out.Encouragement.Bucket)
	assert.Equal(t, "+18.0% comfort", out.Encouragement.Comfort)
	assert.Equal(t, "+12.0% distance", out.Encouragement.Distance)

	sent := env.backend.LastCompare()
	require.NotNil(t, sent)
	assert.Equal(t, backend.CompareRequest{City: "Lahore", StartLat: 31.52, StartLon: 74.35, EndLat: 31.53, EndLon: 74.36}, *sent)

	stats := decode[preferences.Statistics](t, env.do(t, http.MethodGet, "/v1/preferences/statistics", nil))
	assert.Equal(t, 1, stats.CoolCount)
}

func TestRouter_CompareRoutes_FastOrUnselected(t *testing.T) {
	env := newTestEnv(t, 0)
	body := func(sel string) string {
		s := `{"city":"Lahore","start":{"lat":31.52,"lon":74.35},"end":{"lat":31.53,"lon":74.36}`
		if sel != "" {
			s += `,"select":"` + sel + `"`
		}
		return s + "}"
	}

	for _, sel := range []string{"", "fast"} {
		rec := env.do(t, http.MethodPost, "/v1/routes/compare", body(sel))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "encouragement")
	}

	stats := decode[preferences.Statistics](t, env.do(t, http.MethodGet, "/v1/preferences/statistics", nil))
	assert.Equal(t, 1, stats.TotalRoutes)
	assert.Equal(t, 1, stats.FastCount)
}

func TestRouter_CompareRoutes_Validation(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(t, http.MethodPost, "/v1/routes/compare",
		`{"start":{"lat":95,"lon":74.35},"end":{"lat":31.53,"lon":190},"select":"scenic"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	problem := decode[models.Problem](t, rec)
	fields := make([]string, 0, len(problem.Errors))
	for _, fe := range problem.Errors {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{"city", "start.lat", "end.lon", "select"}, fields)
	assert.Zero(t, env.backend.Requests(backendtest.Compare))
}

func TestRouter_CompareRoutes_UnknownCity(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(t, http.MethodPost, "/v1/routes/compare",
		`{"city":"Atlantis","start":{"lat":31.52,"lon":74.35},"end":{"lat":31.53,"lon":74.36}}`)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "City Atlantis not found", decode[models.Problem](t, rec).Detail)
}

func TestRouter_RateLimitsMutations(t *testing.T) {
	env := newTestEnv(t, 2)

	for range 2 {
		require.Equal(t, http.StatusNoContent, env.do(t, http.MethodPut, "/v1/preferences/last-city", `{"city":"Lahore"}`).Code)
	}
	rec := env.do(t, http.MethodPut, "/v1/preferences/last-city", `{"city":"Lahore"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/preferences", nil).Code)
}
