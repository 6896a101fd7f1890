package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/greenpath/greenpath/internal/backend"
	"github.com/greenpath/greenpath/internal/monitor"
	"github.com/greenpath/greenpath/internal/preferences"
	"github.com/greenpath/greenpath/internal/tui"
)

func newCitiesCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "cities",
		Short: "List the cities the backend can analyse",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			cities, err := a.backend.GetCities(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(a.stdout, cities)
			}
			for _, c := range cities {
				fmt.Fprintf(a.stdout, "%-20s %9.4f %9.4f\n", c.Name, c.Lat, c.Lon)
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newLoadCmd(a *app) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "load CITY",
		Short: "Fetch a city's comfort dataset, loading it on the backend if needed",
		Long: `Fetches the hexagon comfort dataset of a city. When the backend has not
computed it yet, a load operation is started and its progress is shown
until it completes. Press q or Ctrl+C to stop following the operation.`,
		Args: cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			city := args[0]

			var (
				data *backend.CityData
				err  error
			)
			if plain || !isTerminalWriter(a.stdout) {
				data, err = a.loader.Load(ctx, city, tui.Plain(a.stdout))
			} else {
				data, err = tui.Run(ctx, city, a.loader.Load, tea.WithOutput(a.stdout))
			}

			var opErr *monitor.OperationError
			switch {
			case errors.As(err, &opErr):
				return fmt.Errorf("loading %s failed: %s", city, opErr.Message)
			case errors.Is(err, context.Canceled):
				fmt.Fprintln(a.stdout, "Cancelled.")
				return nil
			case err != nil:
				return err
			}

			if err := a.prefs.SetLastCity(ctx, city); err != nil {
				a.log.Warn().Err(err).Msg("failed to remember last city")
			}

			fmt.Fprintf(a.stdout, "%s: %d hexagons, comfort %.1f (min %.1f, max %.1f)\n",
				data.City, data.Stats.Total, data.Stats.MeanComfort, data.Stats.MinComfort, data.Stats.MaxComfort)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "print progress lines instead of the interactive view")
	return cmd
}

func newCompareCmd(a *app) *cobra.Command {
	var (
		from, to string
		sel      string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "compare CITY --from LAT,LON --to LAT,LON",
		Short: "Compare the fast and the cool route between two points",
		Long: `Asks the backend for the shortest route and the most comfortable route
between two points. With --select the chosen route is recorded in your
preference history, which drives the route recommendation.`,
		Args: cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			start, err := parsePoint(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			end, err := parsePoint(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			selected := preferences.RouteNone
			if sel != "" {
				if selected, err = preferences.ParseRouteType(sel); err != nil {
					return fmt.Errorf("--select: %w", err)
				}
			}

			cmp, err := a.backend.CompareRoutes(ctx, backend.CompareRequest{
				City:     args[0],
				StartLat: start.Lat,
				StartLon: start.Lon,
				EndLat:   end.Lat,
				EndLon:   end.Lon,
			})
			if err != nil {
				return err
			}

			if asJSON {
				if err := writeJSON(a.stdout, cmp); err != nil {
					return err
				}
			} else {
				printComparison(a.stdout, cmp)
			}

			if selected == preferences.RouteNone {
				return nil
			}
			if err := a.prefs.RecordRouteSelection(ctx, start, end, selected); err != nil {
				return err
			}
			c := cmp.Comparison
			if msg, ok := a.selector.Select(c.ComfortImprovement, c.DistanceDiffPct, selected == preferences.RouteCool); ok && !asJSON {
				fmt.Fprintf(a.stdout, "\n%s\n%s", msg.Text, msg.Comfort)
				if msg.Distance != "" {
					fmt.Fprintf(a.stdout, ", %s", msg.Distance)
				}
				fmt.Fprintln(a.stdout)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&from, "from", "", "start point as LAT,LON")
	cmd.Flags().StringVar(&to, "to", "", "end point as LAT,LON")
	cmd.Flags().StringVar(&sel, "select", "", "record the route you take: cool or fast")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func printComparison(w io.Writer, cmp *backend.RouteComparison) {
	row := func(name string, r backend.RouteStats) {
		fmt.Fprintf(w, "%-5s %6.2f km %5.0f min  comfort %5.1f  trees %4.1f%%\n",
			name, r.DistanceKm, r.WalkingTimeMin, r.AvgComfort, r.TreeCoveragePct)
	}
	row("fast", cmp.FastRoute.Properties)
	row("cool", cmp.CoolRoute.Properties)

	c := cmp.Comparison
	fmt.Fprintf(w, "cool route: %+.0f m (%+.1f%%), %+.1f min, comfort %+.1f%%\n",
		c.DistanceDiffM, c.DistanceDiffPct, c.TimeDiffMin, c.ComfortImprovement)
	if c.UsedFallback {
		fmt.Fprintln(w, "note: no distinct cool route was found; both routes are the shortest path")
	}
}

// parsePoint parses "LAT,LON".
func parsePoint(s string) (preferences.Coordinate, error) {
	latStr, lonStr, ok := strings.Cut(s, ",")
	if !ok {
		return preferences.Coordinate{}, fmt.Errorf("expected LAT,LON, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return preferences.Coordinate{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return preferences.Coordinate{}, fmt.Errorf("longitude: %w", err)
	}
	c := preferences.Coordinate{Lat: lat, Lon: lon}
	return c, c.Validate()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminal(f)
}
