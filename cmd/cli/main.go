// Package main implements the insights CLI for managing AI access grants and
// asking questions against the configured backends.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dvloznov/finance-insights/internal/app"
	"github.com/dvloznov/finance-insights/internal/config"
	"github.com/dvloznov/finance-insights/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath string
	outputJSON bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "insights",
		Short: "Manage AI access grants and ask finance questions",
		Long: `insights talks to the same grant store, record backends and model as the API
server, using the configuration file given by --config.

Examples:
  # Allow the assistant to read transactions and liabilities
  insights grant --user u1 transactions liabilities

  # Ask a question
  insights ask --user u1 "How much did I spend on groceries last month?"`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("INSIGHTS_CONFIG"), "Path to the YAML config file")
	root.PersistentFlags().BoolVar(&opts.outputJSON, "json", false, "Output results as JSON")

	root.AddCommand(newGrantCmd(opts))
	root.AddCommand(newRevokeCmd(opts))
	root.AddCommand(newGrantsCmd(opts))
	root.AddCommand(newAskCmd(opts))
	root.AddCommand(newRunsCmd(opts))
	root.AddCommand(newSnapshotCmd(opts))
	return root
}

// loadApp builds the application from --config. Logs go to stderr so
// command output stays machine readable.
func (o *rootOptions) loadApp(ctx context.Context, stderr io.Writer) (*app.App, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, stderr)
}

func newApp(ctx context.Context, cfg *config.Config, stderr io.Writer) (*app.App, error) {
	log := logger.Configure(cfg.Log.Level, cfg.Log.Format, stderr)
	return app.New(ctx, cfg, log)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
