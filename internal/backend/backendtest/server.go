// Package backendtest provides a scriptable fake GreenPath backend for tests.
package backendtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/greenpath/greenpath/internal/backend"
)

// Handler names counted by Server.Requests.
const (
	Cities   = "cities"
	Data     = "data"
	Load     = "load"
	Progress = "progress"
	Compare  = "compare"
	Health   = "health"
)

type event struct {
	raw      string
	complete bool
}

type city struct {
	info   backend.City
	loaded bool
}

// Server is a fake backend. Its zero configuration knows no cities, is
// healthy and streams no frames.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	cities       map[string]*city
	order        []string
	script       []event
	frameDelay   time.Duration
	holdOpen     bool
	failStart    bool
	legacyErrors bool
	unhealthy    bool
	comparison   backend.RouteComparison
	lastCompare  *backend.CompareRequest
	operations   map[string]string
	requests     map[string]int
}

// New starts a fake backend that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		cities:     make(map[string]*city),
		operations: make(map[string]string),
		requests:   make(map[string]int),
		comparison: DefaultComparison(),
	}

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/cities", s.handleCities)
		r.Get("/city/{name}/data", s.handleData)
		r.Post("/city/{name}/load", s.handleLoad)
		r.Get("/progress/{id}", s.handleProgress)
		r.Post("/routes/compare", s.handleCompare)
		r.Get("/health", s.handleHealth)
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(func() {
		// Held-open streams only end when their connection does.
		s.CloseClientConnections()
		s.Close()
	})
	return s
}

// AddCity registers a city. A loaded city serves its dataset immediately.
func (s *Server) AddCity(info backend.City, loaded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cities[info.Name]; !ok {
		s.order = append(s.order, info.Name)
	}
	s.cities[info.Name] = &city{info: info, loaded: loaded}
}

// Loaded reports whether a city's dataset is available.
func (s *Server) Loaded(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cities[name]
	return ok && c.loaded
}

// ScriptFrames sets the frames streamed to every progress subscriber.
// Streaming a complete frame marks the operation's city as loaded.
func (s *Server) ScriptFrames(frames ...backend.ProgressFrame) {
	events := make([]event, 0, len(frames))
	for _, f := range frames {
		data, err := json.Marshal(f)
		if err != nil {
			panic(err)
		}
		events = append(events, event{raw: "data: " + string(data) + "\n\n", complete: f.Complete && !f.Error})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = events
}

// ScriptRaw sets raw event-stream chunks streamed verbatim.
func (s *Server) ScriptRaw(chunks ...string) {
	events := make([]event, 0, len(chunks))
	for _, c := range chunks {
		events = append(events, event{raw: c})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = events
}

// SetFrameDelay sets the pause before each streamed chunk.
func (s *Server) SetFrameDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameDelay = d
}

// SetHoldOpen keeps progress streams open after the script until the client leaves.
func (s *Server) SetHoldOpen(hold bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdOpen = hold
}

// SetFailStart makes load requests fail with a server error.
func (s *Server) SetFailStart(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStart = fail
}

// SetLegacyErrors drops structured error codes, leaving only messages.
func (s *Server) SetLegacyErrors(legacy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.legacyErrors = legacy
}

// SetHealthy controls the health endpoint.
func (s *Server) SetHealthy(healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unhealthy = !healthy
}

// SetComparison sets the route comparison returned by the compare endpoint.
func (s *Server) SetComparison(cmp backend.RouteComparison) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comparison = cmp
}

// Requests returns how many requests a handler served.
func (s *Server) Requests(handler string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[handler]
}

// LastCompare returns the last compare request body, or nil.
func (s *Server) LastCompare() *backend.CompareRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCompare
}

func (s *Server) count(handler string) {
	s.mu.Lock()
	s.requests[handler]++
	s.mu.Unlock()
}

func (s *Server) handleCities(w http.ResponseWriter, _ *http.Request) {
	s.count(Cities)

	s.mu.Lock()
	cities := make([]backend.City, 0, len(s.order))
	for _, name := range s.order {
		cities = append(cities, s.cities[name].info)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"cities": cities})
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	s.count(Data)
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	c, ok := s.cities[name]
	loaded := ok && c.loaded
	legacy := s.legacyErrors
	s.mu.Unlock()

	switch {
	case !ok:
		writeError(w, http.StatusNotFound, fmt.Sprintf("City %s not found", name), "")
	case !loaded:
		code := backend.CodeDataNotLoaded
		if legacy {
			code = ""
		}
		writeError(w, http.StatusNotFound, fmt.Sprintf("Data for %s not loaded yet. Please load first.", name), code)
	default:
		writeJSON(w, http.StatusOK, CityData(name))
	}
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	s.count(Load)
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	_, ok := s.cities[name]
	fail := s.failStart
	id := "op_" + uuid.NewString()
	if ok && !fail {
		s.operations[id] = name
	}
	s.mu.Unlock()

	switch {
	case fail:
		writeError(w, http.StatusInternalServerError, "Failed to start loading", "")
	case !ok:
		writeError(w, http.StatusNotFound, fmt.Sprintf("City %s not found", name), "")
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"operation_id": id})
	}
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	s.count(Progress)
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	name, ok := s.operations[id]
	script := append([]event(nil), s.script...)
	delay := s.frameDelay
	hold := s.holdOpen
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Operation not found", "")
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	for _, ev := range script {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if ev.complete {
			s.mu.Lock()
			if c, ok := s.cities[name]; ok {
				c.loaded = true
			}
			s.mu.Unlock()
		}
		if _, err := w.Write([]byte(ev.raw)); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if hold {
		<-r.Context().Done()
	}
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	s.count(Compare)

	var req backend.CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	s.mu.Lock()
	s.lastCompare = &req
	_, known := s.cities[req.City]
	cmp := s.comparison
	s.mu.Unlock()

	if !known {
		writeError(w, http.StatusNotFound, fmt.Sprintf("City %s not found", req.City), "")
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.count(Health)

	s.mu.Lock()
	unhealthy := s.unhealthy
	s.mu.Unlock()

	if unhealthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	body := map[string]string{"error": message}
	if code != "" {
		body["code"] = code
	}
	writeJSON(w, status, body)
}
