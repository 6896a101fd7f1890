package preferences

import (
	"math"
	"sort"
)

// The functions in this file are pure: they never modify their input record
// and never touch storage. Service decides what to persist.

// RecordRouteSelection prepends sel to the history and re-derives the
// preferred route type. It is a no-op in privacy mode.
func RecordRouteSelection(rec Record, sel RouteSelection) Record {
	if rec.PrivacyMode {
		return rec
	}

	out := rec.Clone()
	history := make([]RouteSelection, 0, min(len(rec.RouteHistory)+1, MaxHistory))
	history = append(history, sel)
	history = append(history, rec.RouteHistory...)
	if len(history) > MaxHistory {
		history = history[:MaxHistory]
	}
	out.RouteHistory = history
	out.PreferredRouteType = derivePreference(history, rec.PreferredRouteType)
	return out
}

// derivePreference picks cool or fast when one outnumbers the other by more
// than 1.5x among the most recent selections. Otherwise the previous value
// stands, so a mixed history does not flap.
func derivePreference(history []RouteSelection, previous RouteType) RouteType {
	recent := history[:min(len(history), RecentWindow)]

	var cool, fast int
	for _, sel := range recent {
		switch sel.SelectedRoute {
		case RouteCool:
			cool++
		case RouteFast:
			fast++
		}
	}

	// c > 1.5f is evaluated as 2c > 3f to stay in integers.
	switch {
	case 2*cool > 3*fast:
		return RouteCool
	case 2*fast > 3*cool:
		return RouteFast
	default:
		return previous
	}
}

// AddFrequentLocation counts a visit to (lat, lon). A location within
// LocationTolerance on both axes is reused, otherwise a new one is added.
// It is a no-op in privacy mode.
func AddFrequentLocation(rec Record, name string, lat, lon float64) Record {
	if rec.PrivacyMode {
		return rec
	}

	out := rec.Clone()
	if i := findLocation(out.FrequentLocations, lat, lon); i >= 0 {
		out.FrequentLocations[i].UsageCount++
	} else {
		out.FrequentLocations = append(out.FrequentLocations, FrequentLocation{
			Name:       name,
			Lat:        lat,
			Lon:        lon,
			UsageCount: 1,
		})
	}

	sort.SliceStable(out.FrequentLocations, func(i, j int) bool {
		return out.FrequentLocations[i].UsageCount > out.FrequentLocations[j].UsageCount
	})
	if len(out.FrequentLocations) > MaxFrequentLocations {
		out.FrequentLocations = out.FrequentLocations[:MaxFrequentLocations]
	}
	return out
}

func findLocation(locations []FrequentLocation, lat, lon float64) int {
	for i, loc := range locations {
		if math.Abs(loc.Lat-lat) < LocationTolerance && math.Abs(loc.Lon-lon) < LocationTolerance {
			return i
		}
	}
	return -1
}

// Recommendation returns the learned route bias.
func Recommendation(rec Record) RouteType {
	return rec.PreferredRouteType
}

// ComputeStatistics aggregates the route history and frequent locations.
func ComputeStatistics(rec Record) Statistics {
	stats := Statistics{TotalRoutes: len(rec.RouteHistory)}
	for _, sel := range rec.RouteHistory {
		switch sel.SelectedRoute {
		case RouteCool:
			stats.CoolCount++
		case RouteFast:
			stats.FastCount++
		}
	}
	if stats.TotalRoutes > 0 {
		stats.CoolPct = float64(stats.CoolCount) / float64(stats.TotalRoutes) * 100
	}
	if len(rec.FrequentLocations) > 0 {
		top := rec.FrequentLocations[0]
		stats.MostUsedLocation = &LocationUsage{Name: top.Name, Count: top.UsageCount}
	}
	return stats
}

// SetPrivacyMode flips privacy mode. Enabling it drops all behavioral data.
func SetPrivacyMode(rec Record, enabled bool) Record {
	out := rec.Clone()
	out.PrivacyMode = enabled
	if enabled {
		out.RouteHistory = []RouteSelection{}
		out.FrequentLocations = []FrequentLocation{}
		out.PreferredRouteType = RouteNone
	}
	return out
}

// SetLastCity remembers the last city the user opened. It is a no-op in privacy mode.
func SetLastCity(rec Record, city string) Record {
	if rec.PrivacyMode {
		return rec
	}
	out := rec.Clone()
	out.LastCity = &city
	return out
}

// UpdateAccessibility applies a partial accessibility update to rec.
// Accessibility is not behavioral data, so privacy mode does not gate it.
func UpdateAccessibility(rec Record, update AccessibilityUpdate) Record {
	out := rec.Clone()
	out.AccessibilityPreferences = ApplyAccessibility(rec.AccessibilityPreferences, update)
	return out
}

// ApplyAccessibility applies a partial accessibility update.
func ApplyAccessibility(prefs AccessibilityPreferences, update AccessibilityUpdate) AccessibilityPreferences {
	if update.HighContrast != nil {
		prefs.HighContrast = *update.HighContrast
	}
	if update.FontSize != nil {
		prefs.FontSize = *update.FontSize
	}
	return prefs
}

// normalize repairs a record decoded from storage: lists are capped,
// entries with unknown route types are dropped and unknown font sizes fall
// back to the default.
func normalize(rec Record) Record {
	history := make([]RouteSelection, 0, min(len(rec.RouteHistory), MaxHistory))
	for _, sel := range rec.RouteHistory {
		if !sel.SelectedRoute.Selectable() {
			continue
		}
		history = append(history, sel)
		if len(history) == MaxHistory {
			break
		}
	}
	rec.RouteHistory = history

	locations := make([]FrequentLocation, 0, min(len(rec.FrequentLocations), MaxFrequentLocations))
	for _, loc := range rec.FrequentLocations {
		if loc.UsageCount <= 0 {
			continue
		}
		locations = append(locations, loc)
		if len(locations) == MaxFrequentLocations {
			break
		}
	}
	rec.FrequentLocations = locations

	if !rec.AccessibilityPreferences.FontSize.Valid() {
		rec.AccessibilityPreferences.FontSize = FontNormal
	}
	if rec.LastCity != nil && *rec.LastCity == "" {
		rec.LastCity = nil
	}
	return rec
}
