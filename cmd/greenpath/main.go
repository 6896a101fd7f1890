// Package main provides the greenpath command: thermal-comfort route
// planning against a GreenPath backend, from the terminal or through a
// local companion API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/greenpath/greenpath/internal/config"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1) //nolint:gocritic // stop already ran
	}
}

// newRootCmd builds the command tree. Components are wired once per
// invocation in PersistentPreRunE and released when the command returns.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	var o overrides

	root := &cobra.Command{
		Use:   "greenpath",
		Short: "Thermal-comfort route planning",
		Long: `greenpath plans walking routes that trade a little distance for shade
and cooler surfaces.

It talks to a GreenPath backend (GREENPATH_API_URL), loads city comfort
datasets with live progress, compares fast and cool routes, and keeps a
local record of your route preferences. Run "greenpath serve" to expose
the same operations as a local HTTP API.`,
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			if err := a.setup(cmd.Context(), o); err != nil {
				_ = a.close()
				return err
			}
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&o.envFile, "env-file", "", "read settings from this .env file instead of ./.env")
	flags.StringVar(&o.apiURL, "api-url", "", "backend base URL (overrides GREENPATH_API_URL)")
	flags.StringVar(&o.storage, "storage", "", fmt.Sprintf("preference storage: %s, %s or %s (overrides GREENPATH_STORAGE)",
		config.StorageSQLite, config.StoragePostgres, config.StorageMemory))
	flags.StringVar(&o.logLevel, "log-level", "", "log level (overrides GREENPATH_LOG_LEVEL)")

	root.AddCommand(
		newCitiesCmd(a),
		newLoadCmd(a),
		newCompareCmd(a),
		newPrefsCmd(a),
		newServeCmd(a),
	)
	return root
}
