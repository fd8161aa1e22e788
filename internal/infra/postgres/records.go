package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/records"
)

// BalanceCategories are the categories the OLTP store owns by default.
// Transactions and income normally come from the warehouse.
var BalanceCategories = []domain.Category{
	domain.CategoryAssets,
	domain.CategoryLiabilities,
	domain.CategoryInvestments,
	domain.CategorySavings,
}

// RecordRepository implements records.Repository on the financial_records table.
type RecordRepository struct {
	db *gorm.DB
}

// NewRecordRepository creates a repository. The table must already exist.
func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// FetchRecords implements records.Repository.
func (r *RecordRepository) FetchRecords(ctx context.Context, userID string, category domain.Category, maxCount int, since time.Time) ([]domain.FinancialRecord, error) {
	if maxCount <= 0 {
		return nil, nil
	}

	q := r.db.WithContext(ctx).
		Where("user_id = ? AND category = ?", userID, string(category))
	if !since.IsZero() {
		q = q.Where("occurred_at >= ?", since.UTC())
	}

	var rows []RecordRow
	err := q.Order("occurred_at DESC").Order("record_id DESC").Limit(maxCount).Find(&rows).Error
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("RecordRepository.FetchRecords: %s: %w: %w", category, domain.ErrRepositoryUnavailable, err)
	}

	out := make([]domain.FinancialRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToRecord())
	}
	return records.Bound(out, maxCount, since), nil
}

// SaveRecords upserts rs by record id. Missing ids are generated.
func (r *RecordRepository) SaveRecords(ctx context.Context, rs ...domain.FinancialRecord) error {
	if len(rs) == 0 {
		return nil
	}
	rows := make([]RecordRow, 0, len(rs))
	for _, rec := range rs {
		if rec.UserID == "" {
			return fmt.Errorf("RecordRepository.SaveRecords: user id is required")
		}
		if !rec.Category.Valid() {
			return fmt.Errorf("RecordRepository.SaveRecords: %w: %q", domain.ErrUnknownCategory, rec.Category)
		}
		if rec.RecordID == "" {
			rec.RecordID = uuid.NewString()
		}
		rows = append(rows, newRecordRow(rec))
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "record_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"amount",
			"occurred_at",
			"name",
			"type",
			"label",
			"description",
			"currency",
			"interest_rate",
		}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("RecordRepository.SaveRecords: %w", err)
	}
	return nil
}

var _ records.Repository = (*RecordRepository)(nil)
