package assembler

import (
	"strings"
	"unicode"

	"github.com/dvloznov/finance-insights/internal/domain"
)

// categoryKeywords maps query keywords to the category they point at.
var categoryKeywords = map[domain.Category][]string{
	domain.CategoryLiabilities:  {"loan", "debt", "mortgage", "credit card", "liabilit", "owe", "borrow", "installment"},
	domain.CategoryAssets:       {"asset", "property", "house", "car ", "vehicle", "cash"},
	domain.CategoryInvestments:  {"invest", "stock", "portfolio", "shares", "bond", "dividend", "mutual fund", "etf"},
	domain.CategoryTransactions: {"spend", "spent", "transaction", "expense", "purchase", "bought", "shopping", "bill", "budget"},
	domain.CategorySavings:      {"saving", "emergency fund", "fixed deposit", "epf", "rainy day"},
	domain.CategoryIncome:       {"income", "salary", "earn", "paycheck", "wage", "bonus"},
}

// broadTerms mark questions about the whole financial picture. They turn
// hint narrowing off so the full authorized set is used.
var broadTerms = []string{
	"net worth", "overall", "everything", "financial health", "summary", "overview", "whole picture",
}

// Hints returns the categories a query mentions. Keywords match at the start
// of a word. A nil result means the query carries no usable hint.
func Hints(query string) domain.CategorySet {
	q := " " + normalize(query) + " "
	for _, term := range broadTerms {
		if strings.Contains(q, term) {
			return nil
		}
	}

	var out domain.CategorySet
	for c, words := range categoryKeywords {
		for _, w := range words {
			if strings.Contains(q, " "+w) {
				if out == nil {
					out = make(domain.CategorySet)
				}
				out[c] = struct{}{}
				break
			}
		}
	}
	return out
}

// narrow scopes authorized by the query hints, falling back to the most
// recent turn's referenced categories for follow-ups. The result is always
// a subset of authorized.
func narrow(authorized domain.CategorySet, query string, history []domain.ConversationTurn) (domain.CategorySet, bool) {
	hinted := Hints(query)
	if hinted == nil && !isBroad(query) {
		hinted = lastReferenced(history)
	}
	if len(hinted) == 0 {
		return authorized, false
	}

	scoped := hinted.Intersect(authorized)
	if len(scoped) == 0 || len(scoped) == len(authorized) {
		return authorized, false
	}
	return scoped, true
}

func isBroad(query string) bool {
	q := strings.ToLower(query)
	for _, term := range broadTerms {
		if strings.Contains(q, term) {
			return true
		}
	}
	return false
}

func lastReferenced(history []domain.ConversationTurn) domain.CategorySet {
	for i := len(history) - 1; i >= 0; i-- {
		t := history[i]
		if t.Role == domain.RoleAssistant && len(t.ReferencedCategories) > 0 {
			return domain.NewCategorySet(t.ReferencedCategories...)
		}
	}
	return nil
}

// normalize lowercases s and turns punctuation into spaces.
func normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
}
