package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/grants"
)

// GrantStore implements grants.Store on the access_grants table.
type GrantStore struct {
	db *gorm.DB
}

// NewGrantStore creates a grant store. The table must already exist.
func NewGrantStore(db *gorm.DB) *GrantStore {
	return &GrantStore{db: db}
}

// Upsert implements grants.Store.
func (s *GrantStore) Upsert(ctx context.Context, grant domain.AccessGrant) error {
	if grant.UserID == "" {
		return fmt.Errorf("GrantStore.Upsert: user id is required")
	}
	row := newGrantRow(grant)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "category"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("GrantStore.Upsert: %w", err)
	}
	return nil
}

// List implements grants.Store. Rows come back in category order.
func (s *GrantStore) List(ctx context.Context, userID string) ([]domain.AccessGrant, error) {
	var rows []GrantRow
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("category").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("GrantStore.List: %w", err)
	}
	out := make([]domain.AccessGrant, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toGrant())
	}
	return out, nil
}

var _ grants.Store = (*GrantStore)(nil)
