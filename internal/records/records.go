// Package records defines category-scoped read access to user financial data.
package records

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dvloznov/finance-insights/internal/domain"
)

// Repository reads financial records for one category at a time.
//
// FetchRecords returns at most maxCount records with Timestamp at or after
// since, ordered oldest first. When more match, the oldest are dropped.
// Backend outages are reported as domain.ErrRepositoryUnavailable.
type Repository interface {
	FetchRecords(ctx context.Context, userID string, category domain.Category, maxCount int, since time.Time) ([]domain.FinancialRecord, error)
}

// Router dispatches each category to the repository that owns it.
type Router struct {
	routes map[domain.Category]Repository
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[domain.Category]Repository)}
}

// Route assigns repo to the given categories and returns the router.
func (r *Router) Route(repo Repository, categories ...domain.Category) *Router {
	for _, c := range categories {
		r.routes[c] = repo
	}
	return r
}

// FetchRecords implements Repository.
func (r *Router) FetchRecords(ctx context.Context, userID string, category domain.Category, maxCount int, since time.Time) ([]domain.FinancialRecord, error) {
	repo, ok := r.routes[category]
	if !ok {
		return nil, fmt.Errorf("Router.FetchRecords: no backend for %s: %w", category, domain.ErrRepositoryUnavailable)
	}
	return repo.FetchRecords(ctx, userID, category, maxCount, since)
}

// Bound sorts rs oldest first, drops anything before since and keeps the
// newest maxCount. A non-positive maxCount keeps nothing.
func Bound(rs []domain.FinancialRecord, maxCount int, since time.Time) []domain.FinancialRecord {
	out := make([]domain.FinancialRecord, 0, len(rs))
	for _, r := range rs {
		if !since.IsZero() && r.Timestamp.Before(since) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].RecordID < out[j].RecordID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if maxCount <= 0 {
		return out[:0]
	}
	if len(out) > maxCount {
		out = out[len(out)-maxCount:]
	}
	return out
}

var _ Repository = (*Router)(nil)
