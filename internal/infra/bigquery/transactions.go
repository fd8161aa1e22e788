package bigquery

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/shopspring/decimal"
)

// TransactionRow is the subset of finance.transactions read for insights.
// Amounts are signed: outflows are negative.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	UserID        string `bigquery:"user_id"`        // NULLABLE

	TransactionDate civil.Date            `bigquery:"transaction_date"` // REQUIRED in schema
	BookingDatetime bigquery.NullDateTime `bigquery:"booking_datetime"` // NULLABLE

	Amount   *big.Rat `bigquery:"amount"`   // REQUIRED NUMERIC
	Currency string   `bigquery:"currency"` // REQUIRED STRING

	RawDescription        string              `bigquery:"raw_description"`        // REQUIRED STRING
	NormalizedDescription bigquery.NullString `bigquery:"normalized_description"` // NULLABLE STRING

	CategoryName    bigquery.NullString `bigquery:"category_name"`    // NULLABLE
	SubcategoryName bigquery.NullString `bigquery:"subcategory_name"` // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED (default CURRENT_TIMESTAMP)
}

// ToRecord converts the row into a record of category c.
func (r *TransactionRow) ToRecord(c domain.Category) (domain.FinancialRecord, error) {
	if r.Amount == nil {
		return domain.FinancialRecord{}, fmt.Errorf("transaction %s: amount is NULL", r.TransactionID)
	}
	amount, err := decimal.NewFromString(r.Amount.FloatString(4))
	if err != nil {
		return domain.FinancialRecord{}, fmt.Errorf("transaction %s: amount: %w", r.TransactionID, err)
	}

	ts := r.TransactionDate.In(time.UTC)
	if r.BookingDatetime.Valid {
		ts = r.BookingDatetime.DateTime.In(time.UTC)
	}

	meta := map[string]string{domain.MetaCurrency: r.Currency}
	desc := strings.TrimSpace(r.RawDescription)
	if r.NormalizedDescription.Valid && r.NormalizedDescription.StringVal != "" {
		desc = r.NormalizedDescription.StringVal
	}
	if desc != "" {
		meta[domain.MetaDescription] = desc
	}
	if r.CategoryName.Valid && r.CategoryName.StringVal != "" {
		meta[domain.MetaLabel] = strings.ToLower(r.CategoryName.StringVal)
	}
	if r.SubcategoryName.Valid && r.SubcategoryName.StringVal != "" {
		meta[domain.MetaType] = strings.ToLower(r.SubcategoryName.StringVal)
	}

	return domain.FinancialRecord{
		UserID:    r.UserID,
		Category:  c,
		RecordID:  r.TransactionID,
		Amount:    amount,
		Timestamp: ts,
		Metadata:  meta,
	}, nil
}
