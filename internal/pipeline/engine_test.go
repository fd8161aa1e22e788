package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/rs/zerolog"
)

const validReply = `{"answer":"You spent 745.75 across 5 transactions.","cited_categories":["transactions"]}`

func newTestEngine(model *MockModel) *Engine {
	return NewEngine(model, Options{SynthesisAttempts: 2}, zerolog.New(io.Discard))
}

func TestEngineRun_Done(t *testing.T) {
	model := &MockModel{Replies: []string{validReply}}
	snap := fiveTransactionsTwoLiabilities()

	res, err := newTestEngine(model).Run(context.Background(), snap, "How much did I spend?", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Status != domain.StatusDone {
		t.Errorf("Expected done, got %s (%s)", res.Status, res.Reason)
	}
	if res.Intent != domain.IntentFactual {
		t.Errorf("Expected factual intent, got %s", res.Intent)
	}
	if res.AnswerText != "You spent 745.75 across 5 transactions." {
		t.Errorf("Unexpected answer %q", res.AnswerText)
	}
	if res.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", res.Attempts)
	}
	if _, ok := res.DerivedAggregates["monthly_spending"]; !ok {
		t.Errorf("Expected monthly_spending aggregate, got %v", res.DerivedAggregates)
	}
	if !domain.NewCategorySet(res.GroundedCategories...).SubsetOf(snap.CategorySet()) {
		t.Errorf("Grounded categories %v exceed snapshot %v", res.GroundedCategories, snap.Categories())
	}
	if res.QueryID != "q1" {
		t.Errorf("Expected query id q1, got %s", res.QueryID)
	}
}

func TestEngineRun_RetriesThenSucceeds(t *testing.T) {
	model := &MockModel{
		Errs:    []error{domain.ErrModelTimeout},
		Replies: []string{"", validReply},
	}
	res, err := newTestEngine(model).Run(context.Background(), fiveTransactionsTwoLiabilities(), "How much did I spend?", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Status != domain.StatusDone || res.Attempts != 2 {
		t.Errorf("Expected done after 2 attempts, got %s after %d", res.Status, res.Attempts)
	}
	if model.Calls() != 2 {
		t.Errorf("Expected 2 model calls, got %d", model.Calls())
	}
}

func TestEngineRun_DegradesAfterAttempts(t *testing.T) {
	tests := []struct {
		name       string
		model      *MockModel
		wantReason string
	}{
		{
			name:       "timeouts",
			model:      &MockModel{Errs: []error{domain.ErrModelTimeout, domain.ErrModelTimeout}},
			wantReason: domain.ReasonModelTimeout,
		},
		{
			name:       "model errors",
			model:      &MockModel{Errs: []error{domain.ErrModelError, domain.ErrModelError}},
			wantReason: domain.ReasonModelError,
		},
		{
			name:       "cites data it was not given",
			model:      &MockModel{Replies: []string{`{"answer":"Your portfolio is up.","cited_categories":["investments"]}`}},
			wantReason: domain.ReasonModelError,
		},
		{
			name:       "unparseable output",
			model:      &MockModel{Replies: []string{"I cannot answer in JSON"}},
			wantReason: domain.ReasonModelError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := fiveTransactionsTwoLiabilities()
			res, err := newTestEngine(tt.model).Run(context.Background(), snap, "How much did I spend?", nil)
			if err != nil {
				t.Fatalf("Run returned error instead of degraded result: %v", err)
			}
			if res.Status != domain.StatusFailed {
				t.Errorf("Expected failed, got %s", res.Status)
			}
			if res.Reason != tt.wantReason {
				t.Errorf("Expected reason %s, got %s", tt.wantReason, res.Reason)
			}
			if res.Attempts != 2 || tt.model.Calls() != 2 {
				t.Errorf("Expected 2 attempts, got %d (calls %d)", res.Attempts, tt.model.Calls())
			}
			if !strings.HasPrefix(res.AnswerText, FallbackAnswerPrefix) {
				t.Errorf("Expected fallback answer, got %q", res.AnswerText)
			}
			if len(res.DerivedAggregates) == 0 {
				t.Error("Expected aggregates to survive degradation")
			}
			if !domain.NewCategorySet(res.GroundedCategories...).SubsetOf(snap.CategorySet()) {
				t.Errorf("Grounded categories %v exceed snapshot", res.GroundedCategories)
			}
		})
	}
}

func TestEngineRun_Rejected(t *testing.T) {
	for _, q := range []string{"Transfer money to my savings account", "What's the weather like tomorrow?", ""} {
		t.Run(q, func(t *testing.T) {
			model := &MockModel{Replies: []string{validReply}}
			res, err := newTestEngine(model).Run(context.Background(), fiveTransactionsTwoLiabilities(), q, nil)
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if res.Status != domain.StatusRejected || res.Reason != domain.ReasonUnsupported {
				t.Errorf("Expected rejected/unsupported, got %s/%s", res.Status, res.Reason)
			}
			if res.AnswerText != RejectionAnswer {
				t.Errorf("Unexpected answer %q", res.AnswerText)
			}
			if model.Calls() != 0 {
				t.Errorf("Model must not be called for rejected queries, got %d calls", model.Calls())
			}
			if len(res.GroundedCategories) != 0 || len(res.DerivedAggregates) != 0 {
				t.Errorf("Rejected result must carry no data, got %v %v", res.GroundedCategories, res.DerivedAggregates)
			}
		})
	}
}

func TestEngineRun_EmptySnapshot(t *testing.T) {
	model := &MockModel{Replies: []string{validReply}}
	res, err := newTestEngine(model).Run(context.Background(), snapshotOf(nil), "What is my net worth?", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Status != domain.StatusDone || res.Reason != domain.ReasonNoAuthorizedData {
		t.Errorf("Expected done/no_authorized_data, got %s/%s", res.Status, res.Reason)
	}
	if res.AnswerText != NoDataAnswer {
		t.Errorf("Unexpected answer %q", res.AnswerText)
	}
	if model.Calls() != 0 {
		t.Errorf("Model must not be called without data, got %d calls", model.Calls())
	}
	if len(res.DerivedAggregates) != 0 || len(res.GroundedCategories) != 0 {
		t.Error("Expected empty aggregates and grounded categories")
	}
}

func TestEngineRun_OmittedCategoriesReported(t *testing.T) {
	snap := snapshotOf(
		map[domain.Category][]domain.FinancialRecord{
			domain.CategoryTransactions: fiveTransactionsTwoLiabilities().Records(domain.CategoryTransactions),
		},
		domain.OmittedCategory{Category: domain.CategoryLiabilities, Reason: "timeout"},
	)
	model := &MockModel{Replies: []string{validReply}}
	res, err := newTestEngine(model).Run(context.Background(), snap, "What is my net worth?", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.OmittedCategories) != 1 || res.OmittedCategories[0] != domain.CategoryLiabilities {
		t.Errorf("Expected liabilities omitted, got %v", res.OmittedCategories)
	}
	for _, c := range res.GroundedCategories {
		if c == domain.CategoryLiabilities {
			t.Error("Omitted category must not be grounded")
		}
	}
	if !strings.Contains(model.Prompts[0], "Temporarily unavailable: liabilities") {
		t.Error("Expected prompt to mention the unavailable category")
	}
}

func TestEngineRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model := &MockModel{Replies: []string{validReply}}
	res, err := newTestEngine(model).Run(ctx, fiveTransactionsTwoLiabilities(), "How much did I spend?", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got result %+v err %v", res, err)
	}
	var se *StageError
	if !errors.As(err, &se) || se.Stage != "synthesize" {
		t.Errorf("Expected synthesize StageError, got %v", err)
	}
}

// failingStep fails with a fixed error.
type failingStep struct {
	err error
}

func (s *failingStep) Name() string { return "failing" }

func (s *failingStep) Execute(ctx context.Context, state *WorkflowState) error { return s.err }

func TestEngineRun_StageErrorDegrades(t *testing.T) {
	e := newTestEngine(&MockModel{})
	snap := fiveTransactionsTwoLiabilities()

	t.Run("after compute", func(t *testing.T) {
		state := &WorkflowState{Snapshot: snap, Query: "How much did I spend?", Status: domain.StatusPending}
		res, err := e.run(context.Background(), snap, state,
			&IntentStep{}, &ComputeStep{ProjectionMonths: DefaultProjectionMonths}, &failingStep{err: errors.New("renderer crashed")})
		if err != nil {
			t.Fatalf("Expected degraded result, got error %v", err)
		}
		if res.Status != domain.StatusFailed || res.Reason != domain.ReasonStageFailed {
			t.Errorf("Expected failed/stage_failed, got %s/%s", res.Status, res.Reason)
		}
		if len(res.DerivedAggregates) == 0 {
			t.Error("Expected computed aggregates to survive")
		}
		if !strings.HasPrefix(res.AnswerText, FallbackAnswerPrefix) {
			t.Errorf("Expected fallback answer, got %q", res.AnswerText)
		}
		if !domain.NewCategorySet(res.GroundedCategories...).SubsetOf(snap.CategorySet()) {
			t.Errorf("Grounded categories %v exceed snapshot", res.GroundedCategories)
		}
	})

	t.Run("before compute", func(t *testing.T) {
		state := &WorkflowState{Snapshot: snap, Query: "How much did I spend?", Status: domain.StatusPending}
		res, err := e.run(context.Background(), snap, state, &failingStep{err: domain.ErrModelError})
		if err != nil {
			t.Fatalf("Expected degraded result, got error %v", err)
		}
		if res.Status != domain.StatusFailed || res.Reason != domain.ReasonModelError {
			t.Errorf("Expected failed/model_error, got %s/%s", res.Status, res.Reason)
		}
		if res.AnswerText != GenericFailureAnswer || len(res.GroundedCategories) != 0 {
			t.Errorf("Expected generic answer without grounding, got %q %v", res.AnswerText, res.GroundedCategories)
		}
	})

	t.Run("invariant violation propagates", func(t *testing.T) {
		state := &WorkflowState{Snapshot: snap, Query: "How much did I spend?", Status: domain.StatusPending}
		_, err := e.run(context.Background(), snap, state, &failingStep{err: domain.ErrInternalInvariantViolation})
		if !errors.Is(err, domain.ErrInternalInvariantViolation) {
			t.Errorf("Expected invariant violation, got %v", err)
		}
	})
}

func TestEngineRun_UsesFilteredHistoryOnly(t *testing.T) {
	model := &MockModel{Replies: []string{validReply}}
	history := []domain.ConversationTurn{
		{Role: domain.RoleUser, Text: "And compared to last month?", ReferencedCategories: []domain.Category{domain.CategoryTransactions}},
	}
	_, err := newTestEngine(model).Run(context.Background(), fiveTransactionsTwoLiabilities(), "How much did I spend?", history)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(model.Prompts[0], "User: And compared to last month?") {
		t.Error("Expected history in prompt")
	}
}

func TestCheckGrounded(t *testing.T) {
	snap := fiveTransactionsTwoLiabilities()
	if err := checkGrounded(domain.NewCategorySet(domain.CategoryTransactions), snap); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	err := checkGrounded(domain.NewCategorySet(domain.CategoryInvestments), snap)
	if !errors.Is(err, domain.ErrInternalInvariantViolation) {
		t.Errorf("Expected invariant violation, got %v", err)
	}
}
