package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-insights/internal/audit"
	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/records"
)

// DefaultDatasetID is the dataset used when none is configured.
const DefaultDatasetID = "finance"

// Warehouse reads financial records from and writes audit runs to BigQuery.
// It holds a shared client to avoid creating a new connection for each
// operation.
type Warehouse struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewWarehouse creates a Warehouse with a shared BigQuery client.
func NewWarehouse(ctx context.Context, projectID, datasetID string) (*Warehouse, error) {
	if datasetID == "" {
		datasetID = DefaultDatasetID
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewWarehouse: creating client: %w", err)
	}
	return &Warehouse{client: client, projectID: projectID, datasetID: datasetID}, nil
}

// Close closes the BigQuery client connection.
func (w *Warehouse) Close() error {
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}

// Categories lists the categories the warehouse can serve.
func (w *Warehouse) Categories() []domain.Category {
	return []domain.Category{domain.CategoryTransactions, domain.CategoryIncome}
}

// FetchRecords implements records.Repository for transactions and income.
func (w *Warehouse) FetchRecords(ctx context.Context, userID string, category domain.Category, maxCount int, since time.Time) ([]domain.FinancialRecord, error) {
	rows, err := QueryUserTransactionsWithClient(ctx, w.client, w.datasetID, userID, category, since, maxCount)
	if err != nil {
		return nil, fmt.Errorf("FetchRecords: %w: %w", domain.ErrRepositoryUnavailable, err)
	}

	out := make([]domain.FinancialRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.ToRecord(category)
		if err != nil {
			return nil, fmt.Errorf("FetchRecords: %w", err)
		}
		out = append(out, rec)
	}
	return records.Bound(out, maxCount, since), nil
}

// InsertRun implements audit.RunSink.
func (w *Warehouse) InsertRun(ctx context.Context, run audit.Run) error {
	return InsertInsightRunWithClient(ctx, w.client, w.projectID, w.datasetID, NewInsightRunRow(run))
}

// ListRuns delegates to ListInsightRunsWithClient with the shared client.
func (w *Warehouse) ListRuns(ctx context.Context, userID string, limit int) ([]*InsightRunRow, error) {
	return ListInsightRunsWithClient(ctx, w.client, w.datasetID, userID, limit)
}

var (
	_ records.Repository = (*Warehouse)(nil)
	_ audit.RunSink      = (*Warehouse)(nil)
)
