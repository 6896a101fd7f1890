package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/greenpath/greenpath/internal/preferences"
)

func newPrefsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show and change your route preferences",
	}
	cmd.AddCommand(
		newPrefsShowCmd(a),
		newPrefsStatsCmd(a),
		newPrefsRecommendCmd(a),
		newPrefsPrivacyCmd(a),
		newPrefsAccessibilityCmd(a),
		newPrefsLocationCmd(a),
		newPrefsLastCityCmd(a),
		newPrefsClearCmd(a),
	)
	return cmd
}

func newPrefsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the preference record as JSON",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			return writeJSON(a.stdout, a.prefs.Preferences(cmd.Context()))
		}),
	}
}

func newPrefsStatsCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarise your route history",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			stats := a.prefs.Statistics(cmd.Context())
			if asJSON {
				return writeJSON(a.stdout, stats)
			}
			fmt.Fprintf(a.stdout, "routes: %d (cool %d, fast %d)\n", stats.TotalRoutes, stats.CoolCount, stats.FastCount)
			fmt.Fprintf(a.stdout, "cool share: %.0f%%\n", stats.CoolPct)
			if loc := stats.MostUsedLocation; loc != nil {
				fmt.Fprintf(a.stdout, "most used location: %s (%d)\n", loc.Name, loc.Count)
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newPrefsRecommendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "recommend",
		Short: "Print the route type your history leans towards",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(a.stdout, a.prefs.Recommendation(cmd.Context()))
			return nil
		}),
	}
}

func newPrefsPrivacyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "privacy on|off",
		Short: "Turn privacy mode on or off",
		Long: `Turning privacy mode on wipes route history and frequent locations and
deletes the stored record.

Privacy mode lasts for the running process only: the next invocation
starts with privacy mode off, so a later "greenpath compare --select"
records route history again. Use "greenpath serve" to keep a session
in privacy mode.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch args[0] {
			case "on":
				enabled = true
			case "off":
			default:
				return fmt.Errorf("expected on or off, got %q", args[0])
			}
			if err := a.prefs.SetPrivacyMode(cmd.Context(), enabled); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "privacy mode %s\n", args[0])
			return nil
		}),
	}
}

func newPrefsAccessibilityCmd(a *app) *cobra.Command {
	var (
		fontSize     string
		highContrast bool
	)

	cmd := &cobra.Command{
		Use:   "accessibility",
		Short: "Change display settings",
		Long:  "Changes only the settings given as flags. Display settings are kept in privacy mode.",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			var update preferences.AccessibilityUpdate
			if cmd.Flags().Changed("font-size") {
				size := preferences.FontSize(fontSize)
				update.FontSize = &size
			}
			if cmd.Flags().Changed("high-contrast") {
				update.HighContrast = &highContrast
			}

			prefs, err := a.prefs.UpdateAccessibility(cmd.Context(), update)
			if err != nil {
				return err
			}
			return writeJSON(a.stdout, prefs)
		}),
	}
	cmd.Flags().StringVar(&fontSize, "font-size", "", "normal, large or xlarge")
	cmd.Flags().BoolVar(&highContrast, "high-contrast", false, "use the high-contrast palette")
	return cmd
}

func newPrefsLocationCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "location NAME LAT LON",
		Short: "Record a visit to a frequent location",
		Args:  cobra.ExactArgs(3),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			lat, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("latitude: %w", err)
			}
			lon, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("longitude: %w", err)
			}
			return a.prefs.AddFrequentLocation(cmd.Context(), args[0], lat, lon)
		}),
	}
}

func newPrefsLastCityCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "last-city [CITY]",
		Short: "Print or set the last viewed city",
		Args:  cobra.MaximumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return a.prefs.SetLastCity(cmd.Context(), args[0])
			}
			if city := a.prefs.Preferences(cmd.Context()).LastCity; city != nil {
				fmt.Fprintln(a.stdout, *city)
			}
			return nil
		}),
	}
}

func newPrefsClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all stored preferences",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			if err := a.prefs.ClearAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "preferences cleared")
			return nil
		}),
	}
}
