// Package app wires configuration into a running insight service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/dvloznov/finance-insights/internal/api/handlers"
	"github.com/dvloznov/finance-insights/internal/api/middleware"
	"github.com/dvloznov/finance-insights/internal/assembler"
	"github.com/dvloznov/finance-insights/internal/config"
	"github.com/dvloznov/finance-insights/internal/grants"
	infraBQ "github.com/dvloznov/finance-insights/internal/infra/bigquery"
	"github.com/dvloznov/finance-insights/internal/jobs"
	jobsmem "github.com/dvloznov/finance-insights/internal/jobs/inmemory"
	"github.com/dvloznov/finance-insights/internal/logger"
	"github.com/dvloznov/finance-insights/internal/pipeline"
)

// App holds every long-lived component of the service.
type App struct {
	Cfg      *config.Config
	Log      zerolog.Logger
	Grants   *grants.Service
	Pipeline *pipeline.Service
	Jobs     jobs.JobStore

	db        *gorm.DB
	warehouse *infraBQ.Warehouse
	queue     *jobsmem.Queue
	handler   jobs.JobHandler
	closers   []func() error
}

// New builds the service described by cfg. Close must be called on the
// returned App even when Start is never called.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: log}

	if err := a.wire(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	grantStore, err := a.grantStore()
	if err != nil {
		return err
	}
	a.Grants = grants.NewService(grantStore, a.Log.With().Str("component", "grants").Logger())

	repo, err := a.records(ctx)
	if err != nil {
		return err
	}

	sessions, err := a.sessions(ctx)
	if err != nil {
		return err
	}

	model, err := a.model(ctx)
	if err != nil {
		return err
	}

	recorder, err := a.audit(ctx)
	if err != nil {
		return err
	}

	asm := assembler.New(a.Grants, repo, assembler.Options{
		MaxRecordsPerCategory: a.Cfg.Assembler.MaxRecordsPerCategory,
		Lookback:              a.Cfg.Assembler.Lookback,
		FetchTimeout:          a.Cfg.Assembler.FetchTimeout,
		DisableHints:          a.Cfg.Assembler.DisableHints,
	}, a.Log.With().Str("component", "assembler").Logger())

	engine := pipeline.NewEngine(model, pipeline.Options{
		SynthesisAttempts: a.Cfg.Workflow.SynthesisAttempts,
		Backoff:           a.Cfg.Workflow.Backoff,
		MaxTokens:         a.Cfg.Workflow.MaxTokens,
		ProjectionMonths:  a.Cfg.Workflow.ProjectionMonths,
	}, a.Log.With().Str("component", "workflow").Logger())

	// a nil *audit.Recorder must not become a non-nil interface
	var rr pipeline.RunRecorder
	if recorder != nil {
		rr = recorder
	}
	a.Pipeline = pipeline.NewService(asm, engine, sessions, rr, a.Log)
	return nil
}

// Start launches the audit workers. ctx carries the logger handed to job
// handlers; cancelling it does not interrupt jobs already queued.
func (a *App) Start(ctx context.Context) error {
	if a.queue == nil {
		return nil
	}
	ctx = logger.WithContext(ctx, a.Log.With().Str("component", "audit").Logger())
	if err := a.queue.Start(ctx, a.handler); err != nil {
		return fmt.Errorf("Start: audit queue: %w", err)
	}
	a.Log.Info().Int("workers", a.Cfg.Audit.Workers).Msg("Audit workers started")
	return nil
}

// Handler returns the HTTP handler with the standard middleware chain.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	var jobsHandler *handlers.JobsHandler
	if a.Jobs != nil {
		jobsHandler = handlers.NewJobsHandler(a.Jobs, a.Log)
	}
	handlers.Routes(mux,
		handlers.NewChatHandler(a.Pipeline, a.Log),
		handlers.NewPermissionsHandler(a.Grants, a.Log),
		jobsHandler,
	)

	return middleware.Chain(mux,
		middleware.Recovery(a.Log),
		middleware.RequestID,
		middleware.Logger(a.Log),
		middleware.CORS,
	)
}

// Close drains the audit queue, then releases clients in reverse order of
// creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping audit queue: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}
