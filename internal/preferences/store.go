package preferences

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

const accessibilityField = "accessibilityPreferences"

// StoreConfig holds configuration for a Store.
type StoreConfig struct {
	Storage Storage
	Logger  zerolog.Logger
}

// Store loads and saves the preference record. Saving a record with privacy
// mode on deletes the persisted copy, so the flag itself is kept in a
// session latch that lives as long as the Store.
type Store struct {
	storage Storage
	logger  zerolog.Logger

	mu            sync.Mutex
	private       bool
	accessibility AccessibilityPreferences
}

// NewStore creates a Store over the given storage.
func NewStore(cfg StoreConfig) *Store {
	return &Store{
		storage:       cfg.Storage,
		logger:        cfg.Logger,
		accessibility: DefaultRecord().AccessibilityPreferences,
	}
}

// Load returns the persisted record merged over the defaults. It never
// fails: missing, unreadable or corrupt data yields the defaults.
func (s *Store) Load(ctx context.Context) Record {
	rec, persisted := s.read(ctx)

	s.mu.Lock()
	private, session := s.private, s.accessibility
	s.mu.Unlock()

	if private {
		access := session
		if persisted {
			access = rec.AccessibilityPreferences
		}
		rec = SetPrivacyMode(DefaultRecord(), true)
		rec.AccessibilityPreferences = access
		return rec
	}

	if rec.PrivacyMode {
		rec = SetPrivacyMode(rec, true)
	}
	return rec
}

// read decodes the persisted record. persisted reports whether a readable
// record was found.
func (s *Store) read(ctx context.Context) (rec Record, persisted bool) {
	data, err := s.storage.Get(ctx, StorageKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn().Err(err).Msg("failed to read preferences, using defaults")
		}
		return DefaultRecord(), false
	}

	rec = DefaultRecord()
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn().Err(err).Msg("stored preferences are corrupt, using defaults")
		return DefaultRecord(), false
	}
	return normalize(rec), true
}

// Save persists rec. A record in privacy mode is never written: the
// persisted copy is deleted instead and the session latch is set.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if rec.PrivacyMode {
		s.mu.Lock()
		s.private = true
		s.accessibility = rec.AccessibilityPreferences
		s.mu.Unlock()

		if err := s.storage.Delete(ctx, StorageKey); err != nil {
			return fmt.Errorf("delete preferences: %w", err)
		}
		return nil
	}

	s.mu.Lock()
	s.private = false
	s.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := s.storage.Set(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return nil
}

// SaveAccessibilityOnly merges prefs into whatever object is persisted,
// leaving every other field as it is. It bypasses the privacy gate.
func (s *Store) SaveAccessibilityOnly(ctx context.Context, prefs AccessibilityPreferences) error {
	fields := map[string]json.RawMessage{}

	data, err := s.storage.Get(ctx, StorageKey)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return fmt.Errorf("read preferences: %w", err)
	default:
		if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
			s.logger.Warn().Err(err).Msg("stored preferences are corrupt, replacing with accessibility only")
			fields = map[string]json.RawMessage{}
		}
	}

	encoded, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode accessibility preferences: %w", err)
	}
	fields[accessibilityField] = encoded

	out, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := s.storage.Set(ctx, StorageKey, out); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}

	s.mu.Lock()
	s.accessibility = prefs
	s.mu.Unlock()
	return nil
}

// Clear deletes the persisted record. Privacy mode stays latched.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.accessibility = DefaultRecord().AccessibilityPreferences
	s.mu.Unlock()

	if err := s.storage.Delete(ctx, StorageKey); err != nil {
		return fmt.Errorf("delete preferences: %w", err)
	}
	return nil
}

// Private reports whether privacy mode is latched for this session.
func (s *Store) Private() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.private
}
