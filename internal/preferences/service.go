package preferences

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the preference service.
type ServiceConfig struct {
	Store  *Store
	Logger zerolog.Logger
	Now    func() time.Time // Clock for route selection timestamps
}

// Service applies preference changes as read-modify-write cycles of the
// full record. It holds no cached copy of the record.
type Service struct {
	store  *Store
	logger zerolog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewService creates a new preference service.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		store:  cfg.Store,
		logger: cfg.Logger,
		now:    now,
	}
}

// RecordRouteSelection records which route the user picked between start and end.
func (s *Service) RecordRouteSelection(ctx context.Context, start, end Coordinate, route RouteType) error {
	if !route.Selectable() {
		return fmt.Errorf("%w: route type %q", ErrInvalidInput, string(route))
	}
	if err := start.Validate(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if err := end.Validate(); err != nil {
		return fmt.Errorf("end: %w", err)
	}

	return s.update(ctx, func(rec Record) Record {
		return RecordRouteSelection(rec, RouteSelection{
			StartLat:      start.Lat,
			StartLon:      start.Lon,
			EndLat:        end.Lat,
			EndLon:        end.Lon,
			SelectedRoute: route,
			Timestamp:     s.now().UTC(),
		})
	})
}

// AddFrequentLocation counts a visit to a named location.
func (s *Service) AddFrequentLocation(ctx context.Context, name string, lat, lon float64) error {
	if name == "" {
		return fmt.Errorf("%w: location name is required", ErrInvalidInput)
	}
	if err := (Coordinate{Lat: lat, Lon: lon}).Validate(); err != nil {
		return err
	}

	return s.update(ctx, func(rec Record) Record {
		return AddFrequentLocation(rec, name, lat, lon)
	})
}

// SetLastCity remembers the city the user last opened.
func (s *Service) SetLastCity(ctx context.Context, city string) error {
	if city == "" {
		return fmt.Errorf("%w: city is required", ErrInvalidInput)
	}

	return s.update(ctx, func(rec Record) Record {
		return SetLastCity(rec, city)
	})
}

// update runs fn over the current record and saves the result. Privacy mode
// short-circuits before fn so nothing reaches storage.
func (s *Service) update(ctx context.Context, fn func(Record) Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.store.Load(ctx)
	if rec.PrivacyMode {
		return nil
	}
	return s.store.Save(ctx, fn(rec))
}

// Recommendation returns the learned route bias.
func (s *Service) Recommendation(ctx context.Context) RouteType {
	return Recommendation(s.store.Load(ctx))
}

// Statistics returns aggregated route history statistics.
func (s *Service) Statistics(ctx context.Context) Statistics {
	return ComputeStatistics(s.store.Load(ctx))
}

// Preferences returns the current record.
func (s *Service) Preferences(ctx context.Context) Record {
	return s.store.Load(ctx)
}

// UpdateAccessibility applies a partial accessibility update. It is
// persisted even in privacy mode.
func (s *Service) UpdateAccessibility(ctx context.Context, update AccessibilityUpdate) (AccessibilityPreferences, error) {
	if update.FontSize != nil && !update.FontSize.Valid() {
		return AccessibilityPreferences{}, fmt.Errorf("%w: font size %q", ErrInvalidInput, string(*update.FontSize))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := UpdateAccessibility(s.store.Load(ctx), update)
	if err := s.store.SaveAccessibilityOnly(ctx, rec.AccessibilityPreferences); err != nil {
		return AccessibilityPreferences{}, err
	}
	return rec.AccessibilityPreferences, nil
}

// SetPrivacyMode toggles privacy mode. Enabling it wipes history and
// locations and deletes the persisted record before returning.
func (s *Service) SetPrivacyMode(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := SetPrivacyMode(s.store.Load(ctx), enabled)
	if err := s.store.Save(ctx, rec); err != nil {
		return err
	}

	s.logger.Info().Bool("enabled", enabled).Msg("privacy mode changed")
	return nil
}

// ClearAll deletes all stored preferences.
func (s *Service) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		return err
	}

	s.logger.Info().Msg("preferences cleared")
	return nil
}
