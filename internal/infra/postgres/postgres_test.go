package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/grants"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), Config(zerolog.Nop()))
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func TestGrantStore_UpsertAndList(t *testing.T) {
	ctx := context.Background()
	store := NewGrantStore(openTestDB(t))

	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Upsert(ctx, domain.AccessGrant{UserID: "u1", Category: domain.CategoryTransactions, Enabled: true, UpdatedAt: t0}))
	require.NoError(t, store.Upsert(ctx, domain.AccessGrant{UserID: "u1", Category: domain.CategoryAssets, Enabled: true, UpdatedAt: t0}))
	require.NoError(t, store.Upsert(ctx, domain.AccessGrant{UserID: "u2", Category: domain.CategoryIncome, Enabled: true, UpdatedAt: t0}))

	t1 := t0.Add(time.Hour)
	require.NoError(t, store.Upsert(ctx, domain.AccessGrant{UserID: "u1", Category: domain.CategoryAssets, Enabled: false, UpdatedAt: t1}))

	got, err := store.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, domain.CategoryAssets, got[0].Category)
	assert.False(t, got[0].Enabled)
	assert.True(t, got[0].UpdatedAt.Equal(t1))

	assert.Equal(t, domain.CategoryTransactions, got[1].Category)
	assert.True(t, got[1].Enabled)
}

func TestGrantStore_UnknownUser(t *testing.T) {
	store := NewGrantStore(openTestDB(t))

	got, err := store.List(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGrantStore_RequiresUserID(t *testing.T) {
	store := NewGrantStore(openTestDB(t))

	err := store.Upsert(context.Background(), domain.AccessGrant{Category: domain.CategoryAssets, Enabled: true})
	assert.Error(t, err)
}

func TestGrantStore_WithService(t *testing.T) {
	ctx := context.Background()
	svc := grants.NewService(NewGrantStore(openTestDB(t)), zerolog.Nop())

	require.NoError(t, svc.Grant(ctx, "u1", domain.CategoryLiabilities))
	require.NoError(t, svc.Grant(ctx, "u1", domain.CategoryLiabilities))
	require.NoError(t, svc.Grant(ctx, "u1", domain.CategorySavings))
	require.NoError(t, svc.Revoke(ctx, "u1", domain.CategorySavings))

	set, err := svc.AuthorizedCategories(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Category{domain.CategoryLiabilities}, set.Sorted())
}

func balance(id string, c domain.Category, amount string, at time.Time, name string) domain.FinancialRecord {
	return domain.FinancialRecord{
		UserID:    "u1",
		Category:  c,
		RecordID:  id,
		Amount:    decimal.RequireFromString(amount),
		Timestamp: at,
		Metadata:  map[string]string{domain.MetaName: name, domain.MetaCurrency: "GBP"},
	}
}

func TestRecordRepository_FetchRecords(t *testing.T) {
	ctx := context.Background()
	repo := NewRecordRepository(openTestDB(t))

	base := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveRecords(ctx,
		balance("l1", domain.CategoryLiabilities, "5000", base, "car loan"),
		balance("l2", domain.CategoryLiabilities, "1500", base.AddDate(0, 1, 0), "Visa"),
		balance("l3", domain.CategoryLiabilities, "900", base.AddDate(0, 2, 0), "overdraft"),
		balance("a1", domain.CategoryAssets, "250000", base, "house"),
	))

	t.Run("oldest first within category", func(t *testing.T) {
		got, err := repo.FetchRecords(ctx, "u1", domain.CategoryLiabilities, 10, time.Time{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "l1", got[0].RecordID)
		assert.Equal(t, "l3", got[2].RecordID)
		assert.True(t, got[0].Amount.Equal(decimal.NewFromInt(5000)))
		assert.Equal(t, "car loan", got[0].Metadata[domain.MetaName])
		assert.Equal(t, "GBP", got[0].Metadata[domain.MetaCurrency])
		assert.NotContains(t, got[0].Metadata, domain.MetaLabel)
	})

	t.Run("keeps newest when over the bound", func(t *testing.T) {
		got, err := repo.FetchRecords(ctx, "u1", domain.CategoryLiabilities, 2, time.Time{})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "l2", got[0].RecordID)
		assert.Equal(t, "l3", got[1].RecordID)
	})

	t.Run("since filter", func(t *testing.T) {
		got, err := repo.FetchRecords(ctx, "u1", domain.CategoryLiabilities, 10, base.AddDate(0, 1, 0))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "l2", got[0].RecordID)
	})

	t.Run("other user sees nothing", func(t *testing.T) {
		got, err := repo.FetchRecords(ctx, "u2", domain.CategoryLiabilities, 10, time.Time{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("zero bound", func(t *testing.T) {
		got, err := repo.FetchRecords(ctx, "u1", domain.CategoryAssets, 0, time.Time{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestRecordRepository_SaveRecordsUpserts(t *testing.T) {
	ctx := context.Background()
	repo := NewRecordRepository(openTestDB(t))
	at := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveRecords(ctx, balance("s1", domain.CategorySavings, "1000", at, "ISA")))
	require.NoError(t, repo.SaveRecords(ctx, balance("s1", domain.CategorySavings, "1200", at, "ISA")))

	got, err := repo.FetchRecords(ctx, "u1", domain.CategorySavings, 10, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Amount.Equal(decimal.NewFromInt(1200)))
}

func TestRecordRepository_SaveRecordsValidates(t *testing.T) {
	repo := NewRecordRepository(openTestDB(t))

	err := repo.SaveRecords(context.Background(), domain.FinancialRecord{UserID: "u1", Category: "crypto"})
	assert.ErrorIs(t, err, domain.ErrUnknownCategory)

	err = repo.SaveRecords(context.Background(), domain.FinancialRecord{Category: domain.CategoryAssets})
	assert.Error(t, err)
}

func TestRecordRepository_Unavailable(t *testing.T) {
	db := openTestDB(t)
	repo := NewRecordRepository(db)
	require.NoError(t, db.Migrator().DropTable(&RecordRow{}))

	_, err := repo.FetchRecords(context.Background(), "u1", domain.CategoryAssets, 10, time.Time{})
	assert.ErrorIs(t, err, domain.ErrRepositoryUnavailable)
}
