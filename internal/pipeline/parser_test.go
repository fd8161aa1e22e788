package pipeline

import (
	"errors"
	"strings"
	"testing"

	"github.com/dvloznov/finance-insights/internal/domain"
)

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"answer":"ok"}`, `{"answer":"ok"}`},
		{"json fence", "```json\n{\"answer\":\"ok\"}\n```", `{"answer":"ok"}`},
		{"bare fence", "```\n{\"answer\":\"ok\"}\n```", `{"answer":"ok"}`},
		{"surrounding prose", "Here you go:\n{\"answer\":\"ok\"}\nHope that helps", `{"answer":"ok"}`},
		{"whitespace", "  \n{\"answer\":\"ok\"}  \n", `{"answer":"ok"}`},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanModelJSON(tt.in); got != tt.want {
				t.Errorf("cleanModelJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseSynthesisReply(t *testing.T) {
	allowed := domain.NewCategorySet(domain.CategoryTransactions, domain.CategoryLiabilities)

	tests := []struct {
		name    string
		raw     string
		wantErr bool
		answer  string
	}{
		{"valid", `{"answer":" You spent 745.75. ","cited_categories":["transactions"]}`, false, "You spent 745.75."},
		{"no citations", `{"answer":"Fine."}`, false, "Fine."},
		{"fenced", "```json\n{\"answer\":\"ok\",\"cited_categories\":[\"liabilities\"]}\n```", false, "ok"},
		{"cites unauthorized category", `{"answer":"Your stocks...","cited_categories":["investments"]}`, true, ""},
		{"cites unknown category", `{"answer":"x","cited_categories":["crypto"]}`, true, ""},
		{"missing answer", `{"cited_categories":["transactions"]}`, true, ""},
		{"blank answer", `{"answer":"   "}`, true, ""},
		{"not json", `I think you spent a lot.`, true, ""},
		{"empty", ``, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := parseSynthesisReply(tt.raw, allowed)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got reply %+v", reply)
				}
				if !errors.Is(err, domain.ErrModelError) {
					t.Errorf("Expected ErrModelError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if reply.Answer != tt.answer {
				t.Errorf("Expected answer %q, got %q", tt.answer, reply.Answer)
			}
		})
	}
}

func TestBuildSynthesisPrompt(t *testing.T) {
	snap := fiveTransactionsTwoLiabilities()
	aggs := Compute(snap, domain.IntentFactual, 6)
	history := []domain.ConversationTurn{
		{Role: domain.RoleUser, Text: "What do I owe?", ReferencedCategories: []domain.Category{domain.CategoryLiabilities}},
		{Role: domain.RoleAssistant, Text: "You owe 6500.", ReferencedCategories: []domain.Category{domain.CategoryLiabilities}},
	}

	prompt, used := buildSynthesisPrompt(promptInput{
		Query:      "How much did I spend?",
		Intent:     domain.IntentFactual,
		Snapshot:   snap,
		Aggregates: aggs,
		History:    history,
	})

	if !used.SubsetOf(snap.CategorySet()) {
		t.Errorf("Prompt used %v outside snapshot %v", used.Sorted(), snap.Categories())
	}
	for _, want := range []string{
		"DATA CATEGORIES YOU MAY USE: liabilities, transactions",
		"- transactions: 5 records, total -745.75",
		"monthly_spending: 2025-01=200.50",
		"Assistant: You owe 6500.",
		"QUESTION: How much did I spend?",
		`"cited_categories"`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Expected prompt to contain %q", want)
		}
	}
	for _, c := range []domain.Category{domain.CategoryInvestments, domain.CategoryAssets, domain.CategorySavings, domain.CategoryIncome} {
		if strings.Contains(prompt, string(c)+":") {
			t.Errorf("Prompt mentions category %s which is not in the snapshot", c)
		}
	}
	// individual record ids never reach the model
	for _, r := range snap.Records(domain.CategoryTransactions) {
		if strings.Contains(prompt, r.RecordID) {
			t.Errorf("Prompt leaks record id %s", r.RecordID)
		}
	}
}

func TestFallbackAnswer(t *testing.T) {
	aggs := Compute(fiveTransactionsTwoLiabilities(), domain.IntentFactual, 6)
	got := fallbackAnswer(aggs)
	if !strings.HasPrefix(got, FallbackAnswerPrefix) {
		t.Errorf("Expected fallback prefix, got %q", got)
	}
	if !strings.Contains(got, "net worth: net_worth=-6500.00") {
		t.Errorf("Expected net worth line, got %q", got)
	}
	if got := fallbackAnswer(newAggregates()); !strings.HasSuffix(got, "(none)") {
		t.Errorf("Expected empty marker, got %q", got)
	}
}
