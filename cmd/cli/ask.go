package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dvloznov/finance-insights/internal/config"
	"github.com/dvloznov/finance-insights/internal/domain"
)

func newAskCmd(opts *rootOptions) *cobra.Command {
	var (
		userID    string
		sessionID string
		grantArgs []string
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about a user's finances",
		Long: `Answer a question through the full pipeline: grants are read, the
permission-filtered snapshot is assembled, and the model answers over it.

With the in-memory grant store nothing persists between runs, so --grant
enables categories for this invocation only. It is refused for any other
grant store; use "insights grant" to change stored grants.

Examples:
  insights ask --user u1 --grant transactions "Where did my money go last month?"
  insights ask --user u1 --json "What is my net worth?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if len(grantArgs) > 0 && cfg.Storage.Grants != config.BackendMemory {
				return fmt.Errorf("--grant needs the memory grant store, got %q; use \"insights grant\" instead", cfg.Storage.Grants)
			}

			a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			if err := a.Start(ctx); err != nil {
				return err
			}

			if len(grantArgs) > 0 {
				categories, err := parseCategories(grantArgs)
				if err != nil {
					return err
				}
				toggles := make(map[domain.Category]bool, len(categories))
				for _, c := range categories {
					toggles[c] = true
				}
				if err := a.Grants.SetPermissions(ctx, userID, toggles); err != nil {
					return err
				}
			}

			if sessionID == "" {
				sessionID = userID
			}
			result, err := a.Pipeline.AnswerQuery(ctx, userID, sessionID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printResult(cmd, opts, result)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User ID (required)")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID (defaults to the user ID)")
	cmd.Flags().StringSliceVar(&grantArgs, "grant", nil, "Categories to enable for this run (memory grant store only)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printResult(cmd *cobra.Command, opts *rootOptions, result *domain.InsightResult) error {
	out := cmd.OutOrStdout()
	if opts.outputJSON {
		return writeJSON(out, result)
	}

	fmt.Fprintln(out, result.AnswerText)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "status: %s", result.Status)
	if result.Reason != "" {
		fmt.Fprintf(out, " (%s)", result.Reason)
	}
	fmt.Fprintln(out)
	if len(result.GroundedCategories) > 0 {
		fmt.Fprintf(out, "based on: %s\n", joinCategories(result.GroundedCategories))
	}
	if len(result.OmittedCategories) > 0 {
		fmt.Fprintf(out, "unavailable: %s\n", joinCategories(result.OmittedCategories))
	}
	return nil
}

func joinCategories(cs []domain.Category) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}
