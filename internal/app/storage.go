package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/dvloznov/finance-insights/internal/config"
	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/grants"
	grantsmem "github.com/dvloznov/finance-insights/internal/grants/inmemory"
	infraBQ "github.com/dvloznov/finance-insights/internal/infra/bigquery"
	"github.com/dvloznov/finance-insights/internal/infra/postgres"
	"github.com/dvloznov/finance-insights/internal/records"
	recordsmem "github.com/dvloznov/finance-insights/internal/records/inmemory"
)

// postgresDB opens the shared gorm connection on first use.
func (a *App) postgresDB() (*gorm.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := postgres.Open(a.Cfg.Storage.PostgresDSN, a.Log)
	if err != nil {
		return nil, err
	}
	a.onClose(func() error { return postgres.Close(db) })

	if a.Cfg.Storage.AutoMigrate {
		if err := postgres.AutoMigrate(db); err != nil {
			return nil, err
		}
		a.Log.Info().Msg("Postgres tables migrated")
	}
	a.db = db
	return db, nil
}

// bigQuery opens the shared warehouse client on first use.
func (a *App) bigQuery(ctx context.Context) (*infraBQ.Warehouse, error) {
	if a.warehouse != nil {
		return a.warehouse, nil
	}
	w, err := infraBQ.NewWarehouse(ctx, a.Cfg.Storage.BigQueryProject, a.Cfg.Storage.BigQueryDataset)
	if err != nil {
		return nil, err
	}
	a.onClose(w.Close)
	a.warehouse = w
	return w, nil
}

func (a *App) grantStore() (grants.Store, error) {
	switch a.Cfg.Storage.Grants {
	case config.BackendPostgres:
		db, err := a.postgresDB()
		if err != nil {
			return nil, fmt.Errorf("grant store: %w", err)
		}
		return postgres.NewGrantStore(db), nil
	default:
		return grantsmem.NewStore(), nil
	}
}

// records routes every category to the configured backend. In hybrid mode
// the warehouse serves its categories and Postgres serves the rest.
func (a *App) records(ctx context.Context) (records.Repository, error) {
	router := records.NewRouter()

	switch a.Cfg.Storage.Records {
	case config.BackendPostgres:
		db, err := a.postgresDB()
		if err != nil {
			return nil, fmt.Errorf("records: %w", err)
		}
		router.Route(postgres.NewRecordRepository(db), domain.AllCategories()...)

	case config.BackendBigQuery:
		w, err := a.bigQuery(ctx)
		if err != nil {
			return nil, fmt.Errorf("records: %w", err)
		}
		router.Route(w, w.Categories()...)

	case config.BackendHybrid:
		db, err := a.postgresDB()
		if err != nil {
			return nil, fmt.Errorf("records: %w", err)
		}
		w, err := a.bigQuery(ctx)
		if err != nil {
			return nil, fmt.Errorf("records: %w", err)
		}
		router.Route(postgres.NewRecordRepository(db), postgres.BalanceCategories...)
		router.Route(w, w.Categories()...)

	default:
		repo := recordsmem.NewRepository()
		if path := a.Cfg.Storage.RecordsFile; path != "" {
			if err := repo.LoadFile(path); err != nil {
				return nil, fmt.Errorf("records: %w", err)
			}
			a.Log.Info().Str("path", path).Msg("Loaded records fixture")
		}
		router.Route(repo, domain.AllCategories()...)
	}
	return router, nil
}
