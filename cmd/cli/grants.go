package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dvloznov/finance-insights/internal/domain"
)

func parseCategories(args []string) ([]domain.Category, error) {
	out := make([]domain.Category, 0, len(args))
	for _, a := range args {
		c, err := domain.ParseCategory(a)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func newGrantCmd(opts *rootOptions) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "grant <category>...",
		Short: "Allow the assistant to read categories",
		Long: `Enable AI access to one or more categories for a user. Granting an
already enabled category is a no-op.

Categories: assets, liabilities, investments, transactions, savings, income`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setGrants(cmd, opts, userID, args, true)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User ID (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newRevokeCmd(opts *rootOptions) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "revoke <category>...",
		Short: "Stop the assistant from reading categories",
		Long:  `Disable AI access to one or more categories. Takes effect from the next question.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setGrants(cmd, opts, userID, args, false)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User ID (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func setGrants(cmd *cobra.Command, opts *rootOptions, userID string, args []string, enabled bool) error {
	categories, err := parseCategories(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := opts.loadApp(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	toggles := make(map[domain.Category]bool, len(categories))
	for _, c := range categories {
		toggles[c] = enabled
	}
	if err := a.Grants.SetPermissions(ctx, userID, toggles); err != nil {
		return err
	}
	return printPermissions(cmd, opts, a.Grants.Permissions, userID)
}

func newGrantsCmd(opts *rootOptions) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "grants",
		Short: "List a user's category permissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.loadApp(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			return printPermissions(cmd, opts, a.Grants.Permissions, userID)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User ID (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

type permissionsFunc func(ctx context.Context, userID string) (map[domain.Category]bool, error)

func printPermissions(cmd *cobra.Command, opts *rootOptions, list permissionsFunc, userID string) error {
	perms, err := list(cmd.Context(), userID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if opts.outputJSON {
		byName := make(map[string]bool, len(perms))
		for c, enabled := range perms {
			byName[string(c)] = enabled
		}
		return writeJSON(out, map[string]interface{}{"user_id": userID, "permissions": byName})
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tAI ACCESS")
	for _, c := range domain.AllCategories() {
		state := "denied"
		if perms[c] {
			state = "granted"
		}
		fmt.Fprintf(w, "%s\t%s\n", c, state)
	}
	return w.Flush()
}
