package postgres

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-insights/internal/domain"
)

// GrantRow is one row of the access_grants table. (user_id, category) is
// the primary key; rows are toggled, never deleted.
type GrantRow struct {
	UserID    string    `gorm:"column:user_id;primaryKey;size:128"`
	Category  string    `gorm:"column:category;primaryKey;size:32"`
	Enabled   bool      `gorm:"column:enabled;not null;default:false"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (GrantRow) TableName() string { return "access_grants" }

func newGrantRow(g domain.AccessGrant) GrantRow {
	return GrantRow{
		UserID:    g.UserID,
		Category:  string(g.Category),
		Enabled:   g.Enabled,
		UpdatedAt: g.UpdatedAt.UTC(),
	}
}

func (r GrantRow) toGrant() domain.AccessGrant {
	return domain.AccessGrant{
		UserID:    r.UserID,
		Category:  domain.Category(r.Category),
		Enabled:   r.Enabled,
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

// RecordRow is one row of the financial_records table.
type RecordRow struct {
	RecordID     string          `gorm:"column:record_id;primaryKey;size:64"`
	UserID       string          `gorm:"column:user_id;not null;index:idx_records_user_category,priority:1"`
	Category     string          `gorm:"column:category;not null;size:32;index:idx_records_user_category,priority:2"`
	Amount       decimal.Decimal `gorm:"column:amount;type:numeric(18,4);not null"`
	OccurredAt   time.Time       `gorm:"column:occurred_at;not null;index"`
	Name         string          `gorm:"column:name"`
	Type         string          `gorm:"column:type"`
	Label        string          `gorm:"column:label"`
	Description  string          `gorm:"column:description"`
	Currency     string          `gorm:"column:currency;size:3"`
	InterestRate string          `gorm:"column:interest_rate"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
}

func (RecordRow) TableName() string { return "financial_records" }

func newRecordRow(r domain.FinancialRecord) RecordRow {
	meta := r.Metadata
	return RecordRow{
		RecordID:     r.RecordID,
		UserID:       r.UserID,
		Category:     string(r.Category),
		Amount:       r.Amount,
		OccurredAt:   r.Timestamp.UTC(),
		Name:         meta[domain.MetaName],
		Type:         meta[domain.MetaType],
		Label:        meta[domain.MetaLabel],
		Description:  meta[domain.MetaDescription],
		Currency:     meta[domain.MetaCurrency],
		InterestRate: meta[domain.MetaRate],
	}
}

// ToRecord converts the row to a domain record. Empty columns are left out
// of Metadata.
func (r RecordRow) ToRecord() domain.FinancialRecord {
	meta := make(map[string]string)
	for k, v := range map[string]string{
		domain.MetaName:        r.Name,
		domain.MetaType:        r.Type,
		domain.MetaLabel:       r.Label,
		domain.MetaDescription: r.Description,
		domain.MetaCurrency:    r.Currency,
		domain.MetaRate:        r.InterestRate,
	} {
		if v != "" {
			meta[k] = v
		}
	}
	return domain.FinancialRecord{
		UserID:    r.UserID,
		Category:  domain.Category(r.Category),
		RecordID:  r.RecordID,
		Amount:    r.Amount,
		Timestamp: r.OccurredAt.UTC(),
		Metadata:  meta,
	}
}
