package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-insights/internal/domain"
	"google.golang.org/api/iterator"
)

const transactionsTable = "transactions"

// incomePredicate selects credits that count as income. Refunds and
// transfers between own accounts are not income.
const incomePredicate = `t.amount > 0
		  AND NOT COALESCE(t.is_refund, FALSE)
		  AND NOT COALESCE(t.is_internal_transfer, FALSE)`

// categoryPredicate returns the WHERE fragment that splits the transactions
// table into the transactions and income categories.
func categoryPredicate(c domain.Category) (string, error) {
	switch c {
	case domain.CategoryIncome:
		return incomePredicate, nil
	case domain.CategoryTransactions:
		return "NOT (" + incomePredicate + ")", nil
	default:
		return "", fmt.Errorf("category %s is not stored in %s: %w", c, transactionsTable, domain.ErrRepositoryUnavailable)
	}
}

// QueryUserTransactionsWithClient returns up to limit of the user's most
// recent settled rows for category c on or after since, oldest first.
func QueryUserTransactionsWithClient(ctx context.Context, client *bigquery.Client, datasetID, userID string, c domain.Category, since time.Time, limit int) ([]*TransactionRow, error) {
	predicate, err := categoryPredicate(c)
	if err != nil {
		return nil, fmt.Errorf("QueryUserTransactions: %w", err)
	}
	if limit <= 0 {
		return nil, nil
	}

	sinceDate := civil.Date{Year: 1970, Month: time.January, Day: 1}
	if !since.IsZero() {
		sinceDate = civil.DateOf(since.UTC())
	}

	q := client.Query(fmt.Sprintf(`
		SELECT
			t.transaction_id,
			t.user_id,
			t.transaction_date,
			t.booking_datetime,
			t.amount,
			t.currency,
			t.raw_description,
			t.normalized_description,
			t.category_name,
			t.subcategory_name,
			t.created_ts
		FROM %s.%s t
		WHERE t.user_id = @user_id
		  AND t.transaction_date >= @since_date
		  AND NOT COALESCE(t.is_pending, FALSE)
		  AND %s
		ORDER BY t.transaction_date DESC, t.created_ts DESC
		LIMIT @limit
	`, datasetID, transactionsTable, predicate))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "since_date", Value: sinceDate},
		{Name: "limit", Value: int64(limit)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryUserTransactions: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryUserTransactions: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	// newest first from the query, callers expect oldest first
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}
