package pipeline

import (
	"fmt"

	"github.com/dvloznov/finance-insights/internal/domain"
)

// checkGrounded fails with domain.ErrInternalInvariantViolation when any
// category outside the snapshot reached the model or the result.
func checkGrounded(grounded domain.CategorySet, snap *domain.ContextSnapshot) error {
	allowed := snap.CategorySet()
	if grounded.SubsetOf(allowed) {
		return nil
	}
	var extra []domain.Category
	for _, c := range grounded.Sorted() {
		if !allowed.Has(c) {
			extra = append(extra, c)
		}
	}
	return fmt.Errorf("grounded categories %v not in snapshot %v: %w", extra, snap.Categories(), domain.ErrInternalInvariantViolation)
}
