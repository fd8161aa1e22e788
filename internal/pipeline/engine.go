package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/llm"
	"github.com/rs/zerolog"
)

// Engine runs the insight workflow over an assembled snapshot. It never
// reads grants or records itself.
type Engine struct {
	model llm.Model
	opts  Options
	log   zerolog.Logger
}

// NewEngine creates an Engine. A nil model behaves like llm.Unavailable.
func NewEngine(model llm.Model, opts Options, log zerolog.Logger) *Engine {
	if model == nil {
		model = llm.Unavailable{}
	}
	return &Engine{model: model, opts: opts.withDefaults(), log: log}
}

// Run answers query from snap. Degraded outcomes are returned as results
// with a Failed or Rejected status; an error is returned only when ctx is
// done or a category outside the snapshot was about to reach the result.
func (e *Engine) Run(ctx context.Context, snap *domain.ContextSnapshot, query string, history []domain.ConversationTurn) (*domain.InsightResult, error) {
	if snap == nil {
		return nil, fmt.Errorf("Run: nil snapshot: %w", domain.ErrInternalInvariantViolation)
	}

	if snap.Empty() {
		return &domain.InsightResult{
			QueryID:            snap.QueryID(),
			Status:             domain.StatusDone,
			Reason:             domain.ReasonNoAuthorizedData,
			AnswerText:         NoDataAnswer,
			DerivedAggregates:  map[string]domain.Series{},
			GroundedCategories: []domain.Category{},
		}, nil
	}

	state := &WorkflowState{
		Snapshot: snap,
		Query:    query,
		History:  history,
		Status:   domain.StatusPending,
	}
	return e.run(ctx, snap, state, e.steps()...)
}

func (e *Engine) steps() []WorkflowStep {
	return []WorkflowStep{
		&IntentStep{},
		&ComputeStep{ProjectionMonths: e.opts.ProjectionMonths},
		&SynthesizeStep{
			Model:     e.model,
			Attempts:  e.opts.SynthesisAttempts,
			Backoff:   e.opts.Backoff,
			MaxTokens: e.opts.MaxTokens,
			Log:       e.log,
		},
	}
}

func (e *Engine) run(ctx context.Context, snap *domain.ContextSnapshot, state *WorkflowState, steps ...WorkflowStep) (*domain.InsightResult, error) {
	if err := NewPipeline(steps...).Execute(ctx, state); err != nil {
		if errors.Is(err, domain.ErrInternalInvariantViolation) {
			InvariantViolations.Inc()
			return nil, fmt.Errorf("Run: %w", err)
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("Run: %w", err)
		}
		e.degrade(state, err)
	}

	result := &domain.InsightResult{
		QueryID:            snap.QueryID(),
		Intent:             state.Intent,
		Reason:             state.Reason,
		AnswerText:         state.Answer,
		DerivedAggregates:  map[string]domain.Series{},
		GroundedCategories: []domain.Category{},
		Attempts:           state.Attempts,
	}
	for _, o := range snap.Omitted() {
		result.OmittedCategories = append(result.OmittedCategories, o.Category)
	}

	grounded := make(domain.CategorySet)
	switch state.Status {
	case domain.StatusSynthesized:
		result.Status = domain.StatusDone
		grounded = state.PromptCategories
		result.DerivedAggregates = state.Aggregates.Map()
	case domain.StatusFailed:
		result.Status = domain.StatusFailed
		if state.Aggregates != nil {
			grounded = state.Aggregates.Sources()
			result.DerivedAggregates = state.Aggregates.Map()
		}
	case domain.StatusRejected:
		result.Status = domain.StatusRejected
	default:
		return nil, fmt.Errorf("Run: workflow ended in non-terminal state %s: %w", state.Status, domain.ErrInternalInvariantViolation)
	}

	if state.Aggregates != nil {
		if err := checkGrounded(state.Aggregates.Sources(), snap); err != nil {
			InvariantViolations.Inc()
			return nil, fmt.Errorf("Run: aggregates: %w", err)
		}
	}
	if err := checkGrounded(grounded, snap); err != nil {
		InvariantViolations.Inc()
		return nil, fmt.Errorf("Run: %w", err)
	}
	result.GroundedCategories = grounded.Sorted()
	return result, nil
}

// degrade turns a failed stage into a Failed state, keeping whatever
// aggregates were computed before it.
func (e *Engine) degrade(state *WorkflowState, err error) {
	stage := "unknown"
	var se *StageError
	if errors.As(err, &se) {
		stage = se.Stage
	}
	e.log.Warn().Err(err).Str("stage", stage).Msg("Workflow stage failed, returning degraded result")

	state.Status = domain.StatusFailed
	state.Reason = domain.ReasonFor(err)
	if state.Reason == "" {
		state.Reason = domain.ReasonStageFailed
	}
	state.PromptCategories = nil
	if state.Aggregates != nil {
		state.Answer = fallbackAnswer(state.Aggregates)
	} else {
		state.Answer = GenericFailureAnswer
	}
}
