// Command feedwatch polls RSS and Atom feeds and publishes entries it has
// not delivered before.
//
// Usage:
//
//	feedwatch serve [flags]        # Poll feeds and serve the HTTP API
//	feedwatch check <url|file>     # Fetch and parse one feed once
//	feedwatch version              # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lysyi3m/feedwatch/app/cfg"
)

var rootCmd = &cobra.Command{
	Use:   "feedwatch",
	Short: "RSS/Atom feed poller with deduplicated entry events",
	Long: `feedwatch polls a set of RSS and Atom feeds with conditional GET,
backs off failing feeds and publishes only the entries it has not
delivered before.

Quick start:
  1. List your feeds in feeds.yml
  2. Run: feedwatch serve --feeds-file feeds.yml
  3. Check http://localhost:8080/health`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "feedwatch %s\n", cfg.GetVersion())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
