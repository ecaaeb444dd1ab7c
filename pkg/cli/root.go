// Package cli implements the mockenv command line.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mockenv/mockenv/pkg/logging"
)

var (
	// Persistent flags available to all subcommands
	logLevel   string
	logFormat  string
	logFile    string
	jsonOutput bool

	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mockenv",
	Short: "mockenv serves mock API environments",
	Long: `mockenv serves mock API environments described in JSON or YAML documents.

Each environment listens on its own port and answers requests from its routes:
templated responses, rule-based response selection, CRUD routes over data
buckets, WebSocket routes, callbacks and an optional proxy to a real backend.`,
	SilenceUsage:  true,
	SilenceErrors: true, // We handle errors in Execute()
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also append JSON log records to this file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output command results in JSON format")
}

// newLogger builds the operational logger from the persistent flags. The
// returned func closes the log file, if any.
func newLogger() (*slog.Logger, func(), error) {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(logLevel)
	cfg.Format = logging.ParseFormat(logFormat)
	if logFile == "" {
		return logging.New(cfg), func() {}, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	cfg.Mirror = f
	return logging.New(cfg), func() { _ = f.Close() }, nil
}
