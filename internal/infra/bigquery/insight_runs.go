package bigquery

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-insights/internal/audit"
)

type InsightRunRow struct {
	RunID   string `bigquery:"run_id"`   // REQUIRED
	QueryID string `bigquery:"query_id"` // REQUIRED
	UserID  string `bigquery:"user_id"`  // REQUIRED

	AssembledTS time.Time `bigquery:"assembled_ts"` // REQUIRED
	RecordedTS  time.Time `bigquery:"recorded_ts"`  // REQUIRED

	Status   string              `bigquery:"status"`   // REQUIRED
	Intent   bigquery.NullString `bigquery:"intent"`   // NULLABLE
	Reason   bigquery.NullString `bigquery:"reason"`   // NULLABLE
	Attempts int64               `bigquery:"attempts"` // REQUIRED
	Narrowed bool                `bigquery:"narrowed"` // REQUIRED

	Categories         []string `bigquery:"categories"`          // REPEATED STRING
	GroundedCategories []string `bigquery:"grounded_categories"` // REPEATED STRING
	OmittedCategories  []string `bigquery:"omitted_categories"`  // REPEATED STRING
	AggregateNames     []string `bigquery:"aggregate_names"`     // REPEATED STRING

	RecordCount    int64               `bigquery:"record_count"`    // REQUIRED
	SnapshotDigest string              `bigquery:"snapshot_digest"` // REQUIRED
	ArchiveURI     bigquery.NullString `bigquery:"archive_uri"`     // NULLABLE

	Metadata bigquery.NullJSON `bigquery:"metadata"` // NULLABLE, per-category record counts
}

// NewInsightRunRow converts an audit record into its table row.
func NewInsightRunRow(run audit.Run) *InsightRunRow {
	row := &InsightRunRow{
		RunID:              run.RunID,
		QueryID:            run.QueryID,
		UserID:             run.UserID,
		AssembledTS:        run.AssembledAt,
		RecordedTS:         run.RecordedAt,
		Status:             string(run.Status),
		Intent:             nullString(string(run.Intent)),
		Reason:             nullString(run.Reason),
		Attempts:           int64(run.Attempts),
		Narrowed:           run.Narrowed,
		RecordCount:        int64(run.TotalRecords()),
		SnapshotDigest:     run.SnapshotDigest,
		ArchiveURI:         nullString(run.ArchiveURI),
		AggregateNames:     append([]string{}, run.AggregateNames...),
		Categories:         []string{},
		GroundedCategories: []string{},
		OmittedCategories:  []string{},
	}
	for _, c := range run.Categories {
		row.Categories = append(row.Categories, string(c))
	}
	for _, c := range run.GroundedCategories {
		row.GroundedCategories = append(row.GroundedCategories, string(c))
	}
	for _, c := range run.OmittedCategories {
		row.OmittedCategories = append(row.OmittedCategories, string(c))
	}
	if len(run.RecordCounts) > 0 {
		if raw, err := json.Marshal(run.RecordCounts); err == nil {
			row.Metadata = bigquery.NullJSON{JSONVal: string(raw), Valid: true}
		}
	}
	return row
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}
