// Package pipeline answers natural-language finance questions. It assembles
// a permission-filtered snapshot, runs the intent, compute and synthesis
// stages over it, and keeps the chat session and audit trail up to date.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/finance-insights/internal/assembler"
	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/logger"
	"github.com/dvloznov/finance-insights/internal/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service is the entry point for answering queries.
type Service struct {
	assembler SnapshotAssembler
	engine    *Engine
	sessions  SessionStore
	recorder  RunRecorder
	now       func() time.Time
	log       zerolog.Logger
}

// NewService wires the pipeline. recorder may be nil.
func NewService(asm SnapshotAssembler, engine *Engine, sessions SessionStore, recorder RunRecorder, log zerolog.Logger) *Service {
	return &Service{
		assembler: asm,
		engine:    engine,
		sessions:  sessions,
		recorder:  recorder,
		now:       time.Now,
		log:       log,
	}
}

// AnswerQuery answers queryText for userID within sessionID. Grants are
// read fresh on every call, and the session history is re-filtered against
// the resulting snapshot before it reaches the model.
//
// Degraded outcomes (no data, model failure, unsupported question) are
// returned as results. An error is returned only when ctx is done or an
// internal invariant is violated; in both cases nothing is persisted.
func (s *Service) AnswerQuery(ctx context.Context, userID, sessionID, queryText string) (*domain.InsightResult, error) {
	queryID := uuid.NewString()
	if _, ok := ctx.Value(logger.LoggerKey).(zerolog.Logger); !ok {
		ctx = logger.WithContext(ctx, s.log)
	}
	log := logger.ForQuery(ctx, userID, sessionID, queryID)
	ctx = logger.WithContext(ctx, log)
	start := s.now()

	history, err := s.sessions.RecentHistory(ctx, sessionID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Warn().Err(err).Msg("Session history unavailable, answering without it")
		history = nil
	}

	snap, err := s.assembler.Assemble(ctx, assembler.Request{
		UserID:    userID,
		QueryID:   queryID,
		QueryText: queryText,
		History:   history,
	})
	var result *domain.InsightResult
	switch {
	case err == nil:
		visible := session.VisibleTo(history, snap.CategorySet())
		if dropped := len(history) - len(visible); dropped > 0 {
			log.Debug().Int("dropped_turns", dropped).Msg("History filtered to current grants")
		}
		result, err = s.engine.Run(ctx, snap, queryText, visible)
		if err != nil {
			return nil, s.fail(ctx, err)
		}
	case errors.Is(err, domain.ErrDataUnavailable) && ctx.Err() == nil:
		log.Warn().Err(err).Msg("Snapshot unavailable")
		result = &domain.InsightResult{
			QueryID:            queryID,
			Status:             domain.StatusFailed,
			Reason:             domain.ReasonFor(err),
			AnswerText:         DataUnavailableAnswer,
			DerivedAggregates:  map[string]domain.Series{},
			GroundedCategories: []domain.Category{},
		}
		snap = domain.EmptySnapshot(domain.SnapshotMeta{UserID: userID, QueryID: queryID, AssembledAt: start.UTC()})
	default:
		return nil, s.fail(ctx, err)
	}

	s.persist(ctx, sessionID, queryText, snap, result)

	QueriesTotal.WithLabelValues(string(result.Status), result.Reason).Inc()
	log.Info().
		Str("status", string(result.Status)).
		Str("intent", string(result.Intent)).
		Str("reason", result.Reason).
		Int("attempts", result.Attempts).
		Dur("duration", s.now().Sub(start)).
		Msg("Query answered")
	return result, nil
}

func (s *Service) fail(ctx context.Context, err error) error {
	log := logger.FromContext(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Info().Err(ctxErr).Msg("Query abandoned")
		return ctxErr
	}
	log.Error().Err(err).Msg("Query failed")
	return fmt.Errorf("AnswerQuery: %w", err)
}

// persist appends both turns to the session and hands the run to the
// recorder. Failures are logged, never surfaced to the caller.
func (s *Service) persist(ctx context.Context, sessionID, queryText string, snap *domain.ContextSnapshot, result *domain.InsightResult) {
	log := logger.FromContext(ctx)
	now := s.now().UTC()
	refs := result.GroundedCategories

	turns := []domain.ConversationTurn{
		{TurnID: uuid.NewString(), Role: domain.RoleUser, Text: queryText, ReferencedCategories: refs, Timestamp: now},
		{TurnID: uuid.NewString(), Role: domain.RoleAssistant, Text: result.AnswerText, ReferencedCategories: refs, Timestamp: now},
	}
	for _, t := range turns {
		if err := s.sessions.AppendTurn(ctx, sessionID, t); err != nil {
			log.Warn().Err(err).Str("role", string(t.Role)).Msg("Failed to append session turn")
			break
		}
	}

	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, snap, result); err != nil {
		log.Warn().Err(err).Msg("Failed to record insight run")
	}
}
