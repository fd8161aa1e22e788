package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

const insightRunsTable = "insight_runs"

// InsertInsightRunWithClient streams one row into insight_runs. The run id is
// used as the insert id so retried jobs are deduplicated.
func InsertInsightRunWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string, row *InsightRunRow) error {
	table := client.DatasetInProject(projectID, datasetID).Table(insightRunsTable)
	inserter := table.Inserter()
	saver := &bigquery.StructSaver{Struct: row, InsertID: row.RunID}
	if err := inserter.Put(ctx, saver); err != nil {
		return fmt.Errorf("InsertInsightRun: inserting row: %w", err)
	}
	return nil
}

// ListInsightRunsWithClient returns the user's most recent runs, newest first.
func ListInsightRunsWithClient(ctx context.Context, client *bigquery.Client, datasetID, userID string, limit int) ([]*InsightRunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	q := client.Query(fmt.Sprintf(`
		SELECT
			run_id,
			query_id,
			user_id,
			assembled_ts,
			recorded_ts,
			status,
			intent,
			reason,
			attempts,
			narrowed,
			categories,
			grounded_categories,
			omitted_categories,
			aggregate_names,
			record_count,
			snapshot_digest,
			archive_uri,
			metadata
		FROM %s.%s
		WHERE user_id = @user_id
		ORDER BY recorded_ts DESC
		LIMIT @limit
	`, datasetID, insightRunsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "limit", Value: int64(limit)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListInsightRuns: query read: %w", err)
	}

	var rows []*InsightRunRow
	for {
		var r InsightRunRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListInsightRuns: iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}
