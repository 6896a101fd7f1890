package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenpath/greenpath/internal/backend"
	"github.com/greenpath/greenpath/internal/backend/backendtest"
	"github.com/greenpath/greenpath/internal/preferences"
)

func newTestBackend(t *testing.T) *backendtest.Server {
	t.Helper()

	fake := backendtest.New(t)
	fake.AddCity(backendtest.Lahore, false)
	fake.AddCity(backend.City{Name: "Karachi", Lat: 24.8607, Lon: 67.0011}, true)

	t.Setenv("GREENPATH_API_URL", fake.URL)
	t.Setenv("GREENPATH_STORAGE", "sqlite")
	t.Setenv("GREENPATH_STATE_PATH", filepath.Join(t.TempDir(), "state.db"))
	t.Setenv("GREENPATH_GRACE_PERIOD", "0s")
	t.Setenv("GREENPATH_LOG_LEVEL", "error")
	t.Setenv("OTEL_ENABLED", "false")
	return fake
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func showPreferences(t *testing.T) preferences.Record {
	t.Helper()

	out, err := runCLI(t, "prefs", "show")
	require.NoError(t, err)

	var rec preferences.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	return rec
}

func TestCities(t *testing.T) {
	newTestBackend(t)

	out, err := runCLI(t, "cities")
	require.NoError(t, err)
	assert.Contains(t, out, "Lahore")
	assert.Contains(t, out, "Karachi")

	out, err = runCLI(t, "cities", "--json")
	require.NoError(t, err)
	var cities []backend.City
	require.NoError(t, json.Unmarshal([]byte(out), &cities))
	assert.Len(t, cities, 2)
}

func TestLoad_Plain(t *testing.T) {
	fake := newTestBackend(t)
	fake.ScriptFrames(
		backendtest.ProgressFrame("Fetching OSM data", 20),
		backendtest.ProgressFrame("Computing shade", 70),
		backendtest.CompleteFrame("done", backendtest.CityData("Lahore")),
	)

	out, err := runCLI(t, "load", "--plain", "Lahore")
	require.NoError(t, err)
	assert.Contains(t, out, "loading (operation ")
	assert.Contains(t, out, "Fetching OSM data")
	assert.Contains(t, out, "Computing shade")
	assert.Contains(t, out, "Lahore: 2 hexagons, comfort 61.8 (min 41.0, max 82.5)")

	rec := showPreferences(t)
	require.NotNil(t, rec.LastCity)
	assert.Equal(t, "Lahore", *rec.LastCity)
}

func TestLoad_Failure(t *testing.T) {
	fake := newTestBackend(t)
	fake.ScriptFrames(
		backendtest.ProgressFrame("Fetching OSM data", 20),
		backendtest.ErrorFrame("Overpass timeout"),
	)

	_, err := runCLI(t, "load", "--plain", "Lahore")
	require.Error(t, err)
	assert.Equal(t, "loading Lahore failed: Overpass timeout", err.Error())
	assert.Nil(t, showPreferences(t).LastCity)
}

func TestLoad_AlreadyLoaded(t *testing.T) {
	fake := newTestBackend(t)

	out, err := runCLI(t, "load", "--plain", "Karachi")
	require.NoError(t, err)
	assert.NotContains(t, out, "loading (operation")
	assert.Contains(t, out, "Karachi: 2 hexagons")
	assert.Zero(t, fake.Requests(backendtest.Load))
}

func TestCompare_RecordsSelection(t *testing.T) {
	fake := newTestBackend(t)

	out, err := runCLI(t, "compare", "Karachi", "--from", "24.86,67.00", "--to", "24.87,67.01", "--select", "cool")
	require.NoError(t, err)
	assert.Contains(t, out, "+18.0% comfort")
	assert.Contains(t, out, "+12.0% distance")

	last := fake.LastCompare()
	require.NotNil(t, last)
	assert.Equal(t, "Karachi", last.City)
	assert.InDelta(t, 24.86, last.StartLat, 1e-9)
	assert.InDelta(t, 67.01, last.EndLon, 1e-9)

	rec := showPreferences(t)
	require.Len(t, rec.RouteHistory, 1)
	assert.Equal(t, preferences.RouteCool, rec.RouteHistory[0].SelectedRoute)
	assert.Equal(t, preferences.RouteCool, rec.PreferredRouteType)

	out, err = runCLI(t, "prefs", "recommend")
	require.NoError(t, err)
	assert.Equal(t, "cool\n", out)
}

func TestCompare_InvalidInput(t *testing.T) {
	newTestBackend(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad point", []string{"--from", "24.86", "--to", "24.87,67.01"}, "--from: expected LAT,LON"},
		{"out of range", []string{"--from", "124.86,67.00", "--to", "24.87,67.01"}, "--from: invalid preference input"},
		{"bad selection", []string{"--from", "24.86,67.00", "--to", "24.87,67.01", "--select", "scenic"}, "--select: invalid preference input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, append([]string{"compare", "Karachi"}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPrefs_PrivacyWipesHistory(t *testing.T) {
	newTestBackend(t)

	_, err := runCLI(t, "compare", "Karachi", "--from", "24.86,67.00", "--to", "24.87,67.01", "--select", "fast")
	require.NoError(t, err)
	require.Len(t, showPreferences(t).RouteHistory, 1)

	out, err := runCLI(t, "prefs", "privacy", "on")
	require.NoError(t, err)
	assert.Equal(t, "privacy mode on\n", out)

	rec := showPreferences(t)
	assert.Empty(t, rec.RouteHistory)
	assert.Equal(t, preferences.RouteNone, rec.PreferredRouteType)
}

func TestPrefs_PrivacyLastsOneInvocation(t *testing.T) {
	newTestBackend(t)

	_, err := runCLI(t, "prefs", "privacy", "on")
	require.NoError(t, err)

	_, err = runCLI(t, "compare", "Karachi", "--from", "24.86,67.00", "--to", "24.87,67.01", "--select", "cool")
	require.NoError(t, err)

	rec := showPreferences(t)
	assert.False(t, rec.PrivacyMode)
	assert.Len(t, rec.RouteHistory, 1)

	out, err := runCLI(t, "prefs", "privacy", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "the next invocation")
	assert.Contains(t, out, "records route history again")
}

func TestPrefs_Accessibility(t *testing.T) {
	newTestBackend(t)

	out, err := runCLI(t, "prefs", "accessibility", "--high-contrast")
	require.NoError(t, err)
	assert.JSONEq(t, `{"highContrast":true,"fontSize":"normal"}`, out)

	out, err = runCLI(t, "prefs", "accessibility", "--font-size", "xlarge")
	require.NoError(t, err)
	assert.JSONEq(t, `{"highContrast":true,"fontSize":"xlarge"}`, out)

	_, err = runCLI(t, "prefs", "accessibility", "--font-size", "huge")
	require.ErrorIs(t, err, preferences.ErrInvalidInput)
}

func TestPrefs_LocationsAndStats(t *testing.T) {
	newTestBackend(t)

	for range 2 {
		_, err := runCLI(t, "prefs", "location", "Office", "24.86", "67.00")
		require.NoError(t, err)
	}
	_, err := runCLI(t, "prefs", "location", "Gym", "24.90", "67.05")
	require.NoError(t, err)

	out, err := runCLI(t, "prefs", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "routes: 0 (cool 0, fast 0)")
	assert.Contains(t, out, "most used location: Office (2)")
}

func TestPrefs_LastCityAndClear(t *testing.T) {
	newTestBackend(t)

	_, err := runCLI(t, "prefs", "last-city", "Karachi")
	require.NoError(t, err)
	out, err := runCLI(t, "prefs", "last-city")
	require.NoError(t, err)
	assert.Equal(t, "Karachi\n", out)

	out, err = runCLI(t, "prefs", "clear")
	require.NoError(t, err)
	assert.Equal(t, "preferences cleared\n", out)

	out, err = runCLI(t, "prefs", "last-city")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestInvalidStorageFlag(t *testing.T) {
	newTestBackend(t)

	_, err := runCLI(t, "--storage", "redis", "cities")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GREENPATH_STORAGE must be one of")
}

func TestParsePoint(t *testing.T) {
	p, err := parsePoint(" 31.52 , 74.35 ")
	require.NoError(t, err)
	assert.Equal(t, preferences.Coordinate{Lat: 31.52, Lon: 74.35}, p)

	_, err = parsePoint("31.52;74.35")
	assert.Error(t, err)
	_, err = parsePoint("abc,74.35")
	assert.Error(t, err)
}
