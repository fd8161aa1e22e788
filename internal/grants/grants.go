// Package grants manages which financial data categories each user allows
// the AI agent to read. Absence of a grant means denied.
package grants

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/rs/zerolog"
)

// Store persists access grants. Implementations never delete rows; revoking
// flips Enabled and moves UpdatedAt.
type Store interface {
	// Upsert creates or updates the grant for (userID, category).
	Upsert(ctx context.Context, grant domain.AccessGrant) error

	// List returns every grant row recorded for userID, enabled or not.
	List(ctx context.Context, userID string) ([]domain.AccessGrant, error)
}

// Service is the access grant API used by the rest of the system.
// Writes for one user are serialized; different users never contend.
type Service struct {
	store Store
	locks *keyedMutex
	now   func() time.Time
	log   zerolog.Logger
}

// NewService creates a grant service on top of store.
func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		locks: newKeyedMutex(),
		now:   time.Now,
		log:   log,
	}
}

// Grant enables AI access to category for userID. Idempotent.
func (s *Service) Grant(ctx context.Context, userID string, category domain.Category) error {
	return s.SetGrant(ctx, userID, category, true)
}

// Revoke disables AI access to category for userID. Idempotent. Takes effect
// from the next snapshot assembled for the user.
func (s *Service) Revoke(ctx context.Context, userID string, category domain.Category) error {
	return s.SetGrant(ctx, userID, category, false)
}

// SetGrant sets the grant for (userID, category) to enabled.
func (s *Service) SetGrant(ctx context.Context, userID string, category domain.Category, enabled bool) error {
	return s.SetPermissions(ctx, userID, map[domain.Category]bool{category: enabled})
}

// SetPermissions applies several toggles for one user under a single lock.
// Toggles that match the stored state are skipped so their timestamps
// do not move.
func (s *Service) SetPermissions(ctx context.Context, userID string, toggles map[domain.Category]bool) error {
	if userID == "" {
		return fmt.Errorf("SetPermissions: user id is required")
	}
	for c := range toggles {
		if !c.Valid() {
			return fmt.Errorf("SetPermissions: %w: %q", domain.ErrUnknownCategory, c)
		}
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	current, err := s.store.List(ctx, userID)
	if err != nil {
		return fmt.Errorf("SetPermissions: listing grants: %w", err)
	}
	existing := make(map[domain.Category]domain.AccessGrant, len(current))
	for _, g := range current {
		existing[g.Category] = g
	}

	now := s.now().UTC()
	for _, c := range domain.AllCategories() {
		enabled, ok := toggles[c]
		if !ok {
			continue
		}
		if g, found := existing[c]; found && g.Enabled == enabled {
			continue
		}
		// an absent grant already means denied
		if _, found := existing[c]; !found && !enabled {
			continue
		}

		grant := domain.AccessGrant{UserID: userID, Category: c, Enabled: enabled, UpdatedAt: now}
		if err := s.store.Upsert(ctx, grant); err != nil {
			return fmt.Errorf("SetPermissions: storing %s grant: %w", c, err)
		}

		s.log.Info().
			Str("user_id", userID).
			Str("category", string(c)).
			Bool("enabled", enabled).
			Msg("Access grant changed")
	}
	return nil
}

// AuthorizedCategories returns the categories currently enabled for userID.
// Unknown users get an empty set.
func (s *Service) AuthorizedCategories(ctx context.Context, userID string) (domain.CategorySet, error) {
	set := make(domain.CategorySet)
	if userID == "" {
		return set, nil
	}

	current, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("AuthorizedCategories: listing grants: %w", err)
	}
	for _, g := range current {
		if g.Enabled && g.UserID == userID && g.Category.Valid() {
			set[g.Category] = struct{}{}
		}
	}
	return set, nil
}

// Permissions returns every category with its enabled flag.
func (s *Service) Permissions(ctx context.Context, userID string) (map[domain.Category]bool, error) {
	authorized, err := s.AuthorizedCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Permissions: %w", err)
	}
	out := make(map[domain.Category]bool, len(domain.AllCategories()))
	for _, c := range domain.AllCategories() {
		out[c] = authorized.Has(c)
	}
	return out, nil
}
