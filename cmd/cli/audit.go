package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dvloznov/finance-insights/internal/audit"
	"github.com/dvloznov/finance-insights/internal/config"
	infraBQ "github.com/dvloznov/finance-insights/internal/infra/bigquery"
)

func newRunsCmd(opts *rootOptions) *cobra.Command {
	var (
		userID string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded insight runs for a user",
		Long: `List the audit trail of answered questions from the BigQuery insight_runs
table. Requires storage.bigquery_project.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if cfg.Storage.BigQueryProject == "" {
				return fmt.Errorf("storage.bigquery_project is not configured")
			}

			w, err := infraBQ.NewWarehouse(ctx, cfg.Storage.BigQueryProject, cfg.Storage.BigQueryDataset)
			if err != nil {
				return err
			}
			defer w.Close()

			runs, err := w.ListRuns(ctx, userID, limit)
			if err != nil {
				return err
			}
			if opts.outputJSON {
				return writeJSON(cmd.OutOrStdout(), runs)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RECORDED\tQUERY\tSTATUS\tREASON\tCATEGORIES\tRECORDS")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
					r.RecordedTS.Format("2006-01-02 15:04"),
					r.QueryID,
					r.Status,
					r.Reason.StringVal,
					strings.Join(r.Categories, ","),
					r.RecordCount,
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User ID (required)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newSnapshotCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect archived snapshots",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "fetch <gs://bucket/object>",
		Short: "Print an archived snapshot envelope and verify its digest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			bucket, _, err := audit.ParseGCSURI(args[0])
			if err != nil {
				return err
			}
			archive, err := audit.NewGCSArchive(ctx, bucket)
			if err != nil {
				return err
			}
			defer archive.Close()

			data, err := archive.FetchSnapshot(ctx, args[0])
			if err != nil {
				return err
			}
			digest, err := audit.DigestJCS(data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "digest:", digest)
			_, err = cmd.OutOrStdout().Write(append(data, '\n'))
			return err
		},
	})
	return cmd
}
