// Package api provides the GreenPath companion HTTP API.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/greenpath/greenpath/internal/api/handler"
	"github.com/greenpath/greenpath/internal/api/middleware"
	"github.com/greenpath/greenpath/internal/encourage"
	"github.com/greenpath/greenpath/internal/preferences"
	"github.com/greenpath/greenpath/internal/provider/resilience"
)

// DefaultRateLimit is the per-client limit on mutating requests per minute.
const DefaultRateLimit = 60

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	Storage     string
	Logger      zerolog.Logger
	Metrics     *middleware.Metrics
	Tracer      trace.Tracer
	RateLimit   int
	Registry    *resilience.Registry
	Preferences *preferences.Service
	Backend     handler.Backend
	Loader      handler.Loader
	Selector    *encourage.Selector
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID)           // Generate/propagate request ID first
	r.Use(middleware.Tracing(cfg.Tracer)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	mutationRateLimit := middleware.RateLimitByIP(middleware.PerMinute(limit))

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.Storage, cfg.Registry, cfg.Preferences)
	prefsHandler := handler.NewPreferencesHandler(cfg.Preferences)
	citiesHandler := handler.NewCitiesHandler(handler.CitiesHandlerConfig{
		Backend:     cfg.Backend,
		Loader:      cfg.Loader,
		Preferences: cfg.Preferences,
		Selector:    cfg.Selector,
		Logger:      cfg.Logger,
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/preferences", func(r chi.Router) {
			r.Get("/", prefsHandler.GetPreferences)
			r.Get("/recommendation", prefsHandler.GetRecommendation)
			r.Get("/statistics", prefsHandler.GetStatistics)

			r.Group(func(r chi.Router) {
				r.Use(mutationRateLimit)
				r.Delete("/", prefsHandler.ClearPreferences)
				r.Post("/route-selections", prefsHandler.RecordRouteSelection)
				r.Post("/locations", prefsHandler.AddFrequentLocation)
				r.Put("/accessibility", prefsHandler.UpdateAccessibility)
				r.Put("/privacy", prefsHandler.SetPrivacyMode)
				r.Put("/last-city", prefsHandler.SetLastCity)
			})
		})

		r.Route("/cities", func(r chi.Router) {
			r.Get("/", citiesHandler.ListCities)
			r.Get("/{name}/data", citiesHandler.CityData)
		})

		// Route comparison proxies an expensive backend computation.
		r.With(mutationRateLimit).Post("/routes/compare", citiesHandler.CompareRoutes)
	})

	return r
}
