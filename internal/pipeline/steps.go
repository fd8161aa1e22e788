package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/llm"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dvloznov/finance-insights/internal/pipeline"

// WorkflowStep represents a single stage of the insight workflow.
type WorkflowStep interface {
	Name() string
	Execute(ctx context.Context, state *WorkflowState) error
}

// WorkflowState holds the shared state across all workflow stages.
type WorkflowState struct {
	Snapshot *domain.ContextSnapshot
	Query    string
	History  []domain.ConversationTurn

	Status     domain.Status
	Intent     domain.Intent
	Aggregates *Aggregates

	// PromptCategories are the categories that contributed content to the
	// synthesis prompt.
	PromptCategories domain.CategorySet
	Answer           string
	Attempts         int
	Reason           string
}

// IntentStep classifies the query. Unsupported queries end the workflow in
// the Rejected state.
type IntentStep struct{}

func (s *IntentStep) Name() string { return "intent" }

func (s *IntentStep) Execute(ctx context.Context, state *WorkflowState) error {
	state.Intent = ClassifyIntent(state.Query, state.History)
	if state.Intent == domain.IntentUnsupported {
		state.Status = domain.StatusRejected
		state.Reason = domain.ReasonFor(domain.ErrUnsupportedIntent)
		state.Answer = RejectionAnswer
		return nil
	}
	state.Status = domain.StatusIntentClassified
	return nil
}

// ComputeStep derives the deterministic aggregates.
type ComputeStep struct {
	ProjectionMonths int
}

func (s *ComputeStep) Name() string { return "compute" }

func (s *ComputeStep) Execute(ctx context.Context, state *WorkflowState) error {
	if state.Status != domain.StatusIntentClassified {
		return fmt.Errorf("compute: unexpected state %s", state.Status)
	}
	state.Aggregates = Compute(state.Snapshot, state.Intent, s.ProjectionMonths)
	state.Status = domain.StatusComputed
	return nil
}

// SynthesizeStep asks the model for a natural-language answer built only
// from the aggregates, a compact snapshot summary and filtered history.
// Model failures are retried with backoff; once attempts run out the state
// moves to Failed with a fallback answer rendered from the aggregates.
type SynthesizeStep struct {
	Model     llm.Model
	Attempts  int
	Backoff   time.Duration
	MaxTokens int
	Log       zerolog.Logger
}

func (s *SynthesizeStep) Name() string { return "synthesize" }

func (s *SynthesizeStep) Execute(ctx context.Context, state *WorkflowState) error {
	if state.Status != domain.StatusComputed {
		return fmt.Errorf("synthesize: unexpected state %s", state.Status)
	}

	prompt, used := buildSynthesisPrompt(promptInput{
		Query:      state.Query,
		Intent:     state.Intent,
		Snapshot:   state.Snapshot,
		Aggregates: state.Aggregates,
		History:    state.History,
	})
	state.PromptCategories = used
	if err := checkGrounded(used, state.Snapshot); err != nil {
		return fmt.Errorf("synthesize: prompt: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= s.Attempts; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, time.Duration(attempt-1)*s.Backoff); err != nil {
				return err
			}
		}
		state.Attempts = attempt

		raw, err := s.Model.Complete(ctx, prompt, s.MaxTokens)
		if err == nil {
			var reply *synthesisReply
			reply, err = parseSynthesisReply(raw, used)
			if err == nil {
				state.Answer = reply.Answer
				state.Status = domain.StatusSynthesized
				SynthesisAttempts.Observe(float64(attempt))
				return nil
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		lastErr = err
		s.Log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", s.Attempts).
			Msg("Synthesis attempt failed")
	}

	SynthesisAttempts.Observe(float64(s.Attempts))
	state.Status = domain.StatusFailed
	state.Reason = domain.ReasonFor(lastErr)
	if state.Reason != domain.ReasonModelTimeout {
		state.Reason = domain.ReasonModelError
	}
	state.Answer = fallbackAnswer(state.Aggregates)
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// StageError reports which workflow stage failed.
type StageError struct {
	Stage string
	Index int
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("workflow step %d (%s) failed: %v", e.Index, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline executes a sequence of steps in order, stopping early once the
// state reaches a terminal status.
type Pipeline struct {
	steps []WorkflowStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...WorkflowStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs the steps sequentially, one span per step.
func (p *Pipeline) Execute(ctx context.Context, state *WorkflowState) error {
	tracer := otel.Tracer(tracerName)
	for i, step := range p.steps {
		if state.Status.Terminal() {
			return nil
		}

		sctx, span := tracer.Start(ctx, "workflow."+step.Name(),
			trace.WithAttributes(attribute.Int("workflow.stage_index", i+1)))
		start := time.Now()
		err := step.Execute(sctx, state)
		StageDuration.WithLabelValues(step.Name()).Observe(time.Since(start).Seconds())

		span.SetAttributes(attribute.String("workflow.status", string(state.Status)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stage failed")
			span.End()
			return &StageError{Stage: step.Name(), Index: i + 1, Err: err}
		}
		span.End()
	}
	return nil
}
