package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/shopspring/decimal"
)

func rec(c domain.Category, amount string, ts time.Time, meta map[string]string) domain.FinancialRecord {
	return domain.FinancialRecord{
		UserID:    "u1",
		Category:  c,
		RecordID:  fmt.Sprintf("%s-%d", c, ts.UnixNano()),
		Amount:    decimal.RequireFromString(amount),
		Timestamp: ts,
		Metadata:  meta,
	}
}

func month(m int) time.Time {
	return time.Date(2025, time.Month(m), 15, 12, 0, 0, 0, time.UTC)
}

func snapshotOf(records map[domain.Category][]domain.FinancialRecord, omitted ...domain.OmittedCategory) *domain.ContextSnapshot {
	return domain.NewContextSnapshot(domain.SnapshotMeta{
		UserID:      "u1",
		QueryID:     "q1",
		AssembledAt: month(4),
	}, records, omitted)
}

// fiveTransactionsTwoLiabilities is the snapshot used across the workflow
// tests.
func fiveTransactionsTwoLiabilities() *domain.ContextSnapshot {
	return snapshotOf(map[domain.Category][]domain.FinancialRecord{
		domain.CategoryTransactions: {
			rec(domain.CategoryTransactions, "-120.50", month(1), map[string]string{domain.MetaLabel: "groceries"}),
			rec(domain.CategoryTransactions, "-80", month(1).Add(24*time.Hour), map[string]string{domain.MetaLabel: "transport"}),
			rec(domain.CategoryTransactions, "-200", month(2), map[string]string{domain.MetaLabel: "groceries"}),
			rec(domain.CategoryTransactions, "-45.25", month(2).Add(24*time.Hour), map[string]string{domain.MetaLabel: "dining"}),
			rec(domain.CategoryTransactions, "-300", month(3), map[string]string{domain.MetaLabel: "rent"}),
		},
		domain.CategoryLiabilities: {
			rec(domain.CategoryLiabilities, "5000", month(1), map[string]string{domain.MetaName: "Car loan", domain.MetaType: "loan"}),
			rec(domain.CategoryLiabilities, "1500", month(2), map[string]string{domain.MetaName: "Visa", domain.MetaType: "credit_card"}),
		},
	})
}

// MockModel returns scripted replies in order and records every prompt.
type MockModel struct {
	mu      sync.Mutex
	Replies []string
	Errs    []error
	Prompts []string
}

func (m *MockModel) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := len(m.Prompts)
	m.Prompts = append(m.Prompts, prompt)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if i < len(m.Errs) && m.Errs[i] != nil {
		return "", m.Errs[i]
	}
	if i < len(m.Replies) {
		return m.Replies[i], nil
	}
	if len(m.Replies) > 0 {
		return m.Replies[len(m.Replies)-1], nil
	}
	return "", fmt.Errorf("mock: no reply scripted: %w", domain.ErrModelError)
}

func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}

func timeOffset(i int) time.Duration { return time.Duration(i) * time.Minute }

func decimalFrom(s string) decimal.Decimal { return decimal.RequireFromString(s) }
