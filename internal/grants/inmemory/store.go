package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/grants"
)

// Store is an in-memory grant store, safe for concurrent use.
// Data is lost on restart; use the Postgres store for persistence.
type Store struct {
	mu     sync.RWMutex
	grants map[string]map[domain.Category]domain.AccessGrant
}

// NewStore creates an empty in-memory grant store.
func NewStore() *Store {
	return &Store{
		grants: make(map[string]map[domain.Category]domain.AccessGrant),
	}
}

// Upsert implements grants.Store.
func (s *Store) Upsert(ctx context.Context, grant domain.AccessGrant) error {
	if grant.UserID == "" {
		return fmt.Errorf("user ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byCategory, ok := s.grants[grant.UserID]
	if !ok {
		byCategory = make(map[domain.Category]domain.AccessGrant)
		s.grants[grant.UserID] = byCategory
	}
	byCategory[grant.Category] = grant
	return nil
}

// List implements grants.Store. Rows come back in category order.
func (s *Store) List(ctx context.Context, userID string) ([]domain.AccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCategory := s.grants[userID]
	result := make([]domain.AccessGrant, 0, len(byCategory))
	for _, g := range byCategory {
		result = append(result, g)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Category < result[j].Category })
	return result, nil
}

// Ensure Store implements grants.Store.
var _ grants.Store = (*Store)(nil)
