// Package preferences stores a user's routing preferences and learns their
// cool/fast bias from route history. Nothing behavioral is persisted while
// privacy mode is on.
package preferences

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// StorageKey is the key the preference record is persisted under.
const StorageKey = "greenpath_user_preferences"

// Limits on the persisted record.
const (
	// MaxHistory is the number of route selections kept.
	MaxHistory = 50

	// MaxFrequentLocations is the number of frequent locations kept.
	MaxFrequentLocations = 10

	// RecentWindow is the number of most recent selections the preferred route type is derived from.
	RecentWindow = 10

	// LocationTolerance is the per-axis distance in degrees (about 100m)
	// under which two coordinates are the same frequent location.
	LocationTolerance = 0.001
)

// Sentinel errors for preference operations.
var (
	// ErrNotFound is returned by a Storage when no value exists for a key.
	ErrNotFound = errors.New("preference record not found")

	// ErrInvalidInput indicates a rejected route type, font size or coordinate.
	ErrInvalidInput = errors.New("invalid preference input")
)

// RouteType is the kind of route a user picked or is biased towards.
type RouteType string

const (
	// RouteNone means no preference has been learned yet.
	RouteNone RouteType = ""
	// RouteCool is the shaded, thermally comfortable route.
	RouteCool RouteType = "cool"
	// RouteFast is the shortest route.
	RouteFast RouteType = "fast"
)

// ParseRouteType parses "cool" or "fast".
func ParseRouteType(s string) (RouteType, error) {
	t := RouteType(s)
	if !t.Selectable() {
		return RouteNone, fmt.Errorf("%w: route type %q", ErrInvalidInput, s)
	}
	return t, nil
}

// Selectable reports whether t is a route a user can pick.
func (t RouteType) Selectable() bool {
	return t == RouteCool || t == RouteFast
}

func (t RouteType) String() string {
	if t == RouteNone {
		return "none"
	}
	return string(t)
}

// MarshalJSON encodes RouteNone as null.
func (t RouteType) MarshalJSON() ([]byte, error) {
	if t == RouteNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(t))
}

// UnmarshalJSON decodes null and unknown values as RouteNone.
func (t *RouteType) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil {
		*t = RouteNone
		return nil
	}
	if rt := RouteType(*s); rt.Selectable() {
		*t = rt
		return nil
	}
	*t = RouteNone
	return nil
}

// FontSize is the text size accessibility setting.
type FontSize string

// Supported font sizes.
const (
	FontNormal FontSize = "normal"
	FontLarge  FontSize = "large"
	FontXLarge FontSize = "xlarge"
)

// Valid reports whether f is a supported font size.
func (f FontSize) Valid() bool {
	switch f {
	case FontNormal, FontLarge, FontXLarge:
		return true
	}
	return false
}

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks the coordinate is within range.
func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %f out of range [-90, 90]", ErrInvalidInput, c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %f out of range [-180, 180]", ErrInvalidInput, c.Lon)
	}
	return nil
}

// FrequentLocation is a place the user routes from or to often.
type FrequentLocation struct {
	Name       string  `json:"name"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	UsageCount int     `json:"usageCount"`
}

// RouteSelection records which of the compared routes the user picked.
type RouteSelection struct {
	StartLat      float64   `json:"startLat"`
	StartLon      float64   `json:"startLon"`
	EndLat        float64   `json:"endLat"`
	EndLon        float64   `json:"endLon"`
	SelectedRoute RouteType `json:"selectedRoute"`
	Timestamp     time.Time `json:"timestamp"`
}

// AccessibilityPreferences are display settings. They are persisted even in privacy mode.
type AccessibilityPreferences struct {
	HighContrast bool     `json:"highContrast"`
	FontSize     FontSize `json:"fontSize"`
}

// AccessibilityUpdate is a partial update; nil fields are left unchanged.
type AccessibilityUpdate struct {
	HighContrast *bool     `json:"highContrast,omitempty"`
	FontSize     *FontSize `json:"fontSize,omitempty"`
}

// Record is the single preference record of a client installation.
type Record struct {
	// PreferredRouteType is derived from RouteHistory and never set directly.
	PreferredRouteType       RouteType                `json:"preferredRouteType"`
	FrequentLocations        []FrequentLocation       `json:"frequentLocations"`
	RouteHistory             []RouteSelection         `json:"routeHistory"`
	AccessibilityPreferences AccessibilityPreferences `json:"accessibilityPreferences"`
	PrivacyMode              bool                     `json:"privacyMode"`
	LastCity                 *string                  `json:"lastCity"`
}

// DefaultRecord returns the record of a fresh installation.
func DefaultRecord() Record {
	return Record{
		PreferredRouteType: RouteNone,
		FrequentLocations:  []FrequentLocation{},
		RouteHistory:       []RouteSelection{},
		AccessibilityPreferences: AccessibilityPreferences{
			HighContrast: false,
			FontSize:     FontNormal,
		},
	}
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	out.FrequentLocations = append([]FrequentLocation{}, r.FrequentLocations...)
	out.RouteHistory = append([]RouteSelection{}, r.RouteHistory...)
	if r.LastCity != nil {
		city := *r.LastCity
		out.LastCity = &city
	}
	return out
}

// LocationUsage names the most used frequent location.
type LocationUsage struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Statistics summarises route history for the privacy and insights views.
type Statistics struct {
	TotalRoutes      int            `json:"totalRoutes"`
	CoolCount        int            `json:"coolRoutesCount"`
	FastCount        int            `json:"fastRoutesCount"`
	CoolPct          float64        `json:"coolRoutePercentage"`
	MostUsedLocation *LocationUsage `json:"mostUsedLocation"`
}
