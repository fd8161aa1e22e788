package pipeline

import (
	"strings"

	"github.com/dvloznov/finance-insights/internal/assembler"
	"github.com/dvloznov/finance-insights/internal/domain"
)

// financeTerms mark a query as being about the user's finances even when no
// single category is named.
var financeTerms = []string{
	"money", "balance", "net worth", "finance", "financial", "budget", "afford", "cost",
	"total", "how much", "worth", "cash flow", "pay", "price", "rich", "broke", "retire",
}

// actionTerms ask the system to move money or act on an account. The system
// is read-only so these are rejected.
var actionTerms = []string{
	"transfer money", "send money", "make a payment", "place a trade", "place an order",
	"open an account", "close my account", "wire ",
}

var projectionTerms = []string{
	"afford", "will i", "will my", "project", "forecast", "predict", "in the future",
	"next year", "next month", "by the end of", "months from now", "if i save", "if i keep",
	"retire", "how long until", "how long will", "reach", "goal",
}

var trendTerms = []string{
	"compare", "comparison", " vs", "versus", "trend", "change", "changed", "increase",
	"decrease", "grow", "growth", "over time", "last month", "previous month", "month over month",
	"than last", "higher", "lower", "went up", "went down", "history",
	"month before", "week before", "year before", "earlier",
}

// ClassifyIntent assigns a query to one of the supported intents using
// deterministic keyword rules. A query with no finance wording is still
// supported when it follows an answered turn in history, as in "and last
// month?".
func ClassifyIntent(query string, history []domain.ConversationTurn) domain.Intent {
	q := " " + strings.ToLower(strings.TrimSpace(query)) + " "
	if strings.TrimSpace(q) == "" {
		return domain.IntentUnsupported
	}

	if containsAny(q, actionTerms) {
		return domain.IntentUnsupported
	}
	if !containsAny(q, financeTerms) && len(assembler.Hints(q)) == 0 && !strings.Contains(q, "net worth") &&
		!followsAnswer(history) {
		return domain.IntentUnsupported
	}

	switch {
	case containsAny(q, projectionTerms):
		return domain.IntentProjection
	case containsAny(q, trendTerms):
		return domain.IntentTrend
	default:
		return domain.IntentFactual
	}
}

// followsAnswer reports whether the latest assistant turn answered from data.
func followsAnswer(history []domain.ConversationTurn) bool {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleAssistant {
			return len(history[i].ReferencedCategories) > 0
		}
	}
	return false
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
