package bigquery

import (
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-insights/internal/audit"
	"github.com/dvloznov/finance-insights/internal/domain"
)

func TestTransactionRow_ToRecord(t *testing.T) {
	row := &TransactionRow{
		TransactionID:         "tx-1",
		UserID:                "u1",
		TransactionDate:       civil.Date{Year: 2025, Month: time.March, Day: 4},
		Amount:                big.NewRat(-12345, 100),
		Currency:              "GBP",
		RawDescription:        "TESCO STORES 1234 ",
		NormalizedDescription: bigquery.NullString{StringVal: "Tesco", Valid: true},
		CategoryName:          bigquery.NullString{StringVal: "Groceries", Valid: true},
	}

	rec, err := row.ToRecord(domain.CategoryTransactions)
	if err != nil {
		t.Fatalf("ToRecord failed: %v", err)
	}
	if rec.RecordID != "tx-1" || rec.UserID != "u1" || rec.Category != domain.CategoryTransactions {
		t.Errorf("Unexpected identity %+v", rec)
	}
	if rec.Amount.String() != "-123.45" {
		t.Errorf("Expected -123.45, got %s", rec.Amount)
	}
	if !rec.Timestamp.Equal(time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected timestamp %v", rec.Timestamp)
	}
	if rec.Metadata[domain.MetaLabel] != "groceries" || rec.Metadata[domain.MetaDescription] != "Tesco" || rec.Metadata[domain.MetaCurrency] != "GBP" {
		t.Errorf("Unexpected metadata %v", rec.Metadata)
	}

	row.BookingDatetime = bigquery.NullDateTime{
		DateTime: civil.DateTime{Date: row.TransactionDate, Time: civil.Time{Hour: 14, Minute: 30}},
		Valid:    true,
	}
	rec, _ = row.ToRecord(domain.CategoryTransactions)
	if rec.Timestamp.Hour() != 14 {
		t.Errorf("Expected booking time to win, got %v", rec.Timestamp)
	}

	row.Amount = nil
	if _, err := row.ToRecord(domain.CategoryTransactions); err == nil {
		t.Error("Expected error for NULL amount")
	}
}

func TestCategoryPredicate(t *testing.T) {
	income, err := categoryPredicate(domain.CategoryIncome)
	if err != nil || !strings.Contains(income, "t.amount > 0") {
		t.Errorf("Unexpected income predicate %q, %v", income, err)
	}
	tx, err := categoryPredicate(domain.CategoryTransactions)
	if err != nil || !strings.HasPrefix(tx, "NOT (") {
		t.Errorf("Unexpected transactions predicate %q, %v", tx, err)
	}
	if _, err := categoryPredicate(domain.CategoryAssets); !errors.Is(err, domain.ErrRepositoryUnavailable) {
		t.Errorf("Expected ErrRepositoryUnavailable for assets, got %v", err)
	}
}

func TestNewInsightRunRow(t *testing.T) {
	run := audit.Run{
		RunID:              "r1",
		QueryID:            "q1",
		UserID:             "u1",
		Status:             domain.StatusFailed,
		Reason:             domain.ReasonModelTimeout,
		Attempts:           2,
		Categories:         []domain.Category{domain.CategoryTransactions, domain.CategoryIncome},
		GroundedCategories: []domain.Category{domain.CategoryTransactions},
		RecordCounts:       map[domain.Category]int{domain.CategoryTransactions: 4, domain.CategoryIncome: 1},
		SnapshotDigest:     "abc",
	}

	row := NewInsightRunRow(run)
	if row.Status != "failed" || !row.Reason.Valid || row.Intent.Valid {
		t.Errorf("Unexpected status fields %+v", row)
	}
	if row.RecordCount != 5 || row.Attempts != 2 {
		t.Errorf("Expected 5 records and 2 attempts, got %d and %d", row.RecordCount, row.Attempts)
	}
	if len(row.OmittedCategories) != 0 || row.OmittedCategories == nil {
		t.Error("Repeated fields must be empty, not NULL")
	}
	if !row.Metadata.Valid || !strings.Contains(row.Metadata.JSONVal, `"transactions":4`) {
		t.Errorf("Unexpected metadata %+v", row.Metadata)
	}
	if row.ArchiveURI.Valid {
		t.Error("Archive URI must be NULL when not archived")
	}
}
