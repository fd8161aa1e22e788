package app

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-insights/internal/audit"
	"github.com/dvloznov/finance-insights/internal/config"
	jobsmem "github.com/dvloznov/finance-insights/internal/jobs/inmemory"
	"github.com/dvloznov/finance-insights/internal/llm"
	"github.com/dvloznov/finance-insights/internal/pipeline"
	"github.com/dvloznov/finance-insights/internal/session"
)

func (a *App) sessions(ctx context.Context) (pipeline.SessionStore, error) {
	cfg := a.Cfg.Session
	switch cfg.Backend {
	case config.BackendRedis:
		rdb, err := session.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("sessions: %w", err)
		}
		a.onClose(rdb.Close)
		return session.NewRedisStore(rdb, cfg.Window, cfg.TTL), nil
	default:
		return session.NewMemoryStore(cfg.Window, cfg.TTL), nil
	}
}

// model returns the language model behind timeout and rate limiting. The
// "none" provider always fails, so every answer is the computed fallback.
func (a *App) model(ctx context.Context) (llm.Model, error) {
	cfg := a.Cfg.Model
	if cfg.Provider == config.ProviderNone {
		a.Log.Warn().Msg("No language model configured, answers will be degraded")
		return llm.Unavailable{}, nil
	}

	gemini, err := llm.NewGeminiModel(ctx, cfg.Name, cfg.APIVersion, a.Log.With().Str("component", "llm").Logger())
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	var m llm.Model = gemini
	m = llm.WithTimeout(m, a.Cfg.Workflow.ModelTimeout)
	m = llm.WithRateLimit(m, cfg.RateLimit, cfg.Burst)
	return m, nil
}

// audit builds the run recorder and the queue behind it. It returns nil
// when auditing is disabled.
func (a *App) audit(ctx context.Context) (*audit.Recorder, error) {
	cfg := a.Cfg.Audit
	if !cfg.Enabled {
		return nil, nil
	}

	var sink audit.RunSink = audit.NewLogSink(a.Log.With().Str("component", "audit").Logger())
	if cfg.BigQuery {
		w, err := a.bigQuery(ctx)
		if err != nil {
			return nil, fmt.Errorf("audit: %w", err)
		}
		sink = w
	}

	var archive audit.SnapshotArchive
	if cfg.GCSBucket != "" {
		gcs, err := audit.NewGCSArchive(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("audit: %w", err)
		}
		a.onClose(gcs.Close)
		archive = gcs
	}

	store := jobsmem.NewStore()
	a.Jobs = store
	a.queue = jobsmem.NewQueue(jobsmem.Options{
		BufferSize: cfg.QueueSize,
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		Backoff:    cfg.Backoff,
	}, store)
	a.handler = audit.NewJobHandler(sink, archive)

	return audit.NewRecorder(a.queue, archive != nil, a.Log.With().Str("component", "audit").Logger()), nil
}
