package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Category is a coarse class of financial data that can be independently
// granted to or withheld from the AI agent.
type Category string

const (
	CategoryAssets       Category = "assets"
	CategoryLiabilities  Category = "liabilities"
	CategoryInvestments  Category = "investments"
	CategoryTransactions Category = "transactions"
	CategorySavings      Category = "savings"
	CategoryIncome       Category = "income"
)

// AllCategories returns the fixed category set in display order.
func AllCategories() []Category {
	return []Category{
		CategoryAssets,
		CategoryLiabilities,
		CategoryInvestments,
		CategoryTransactions,
		CategorySavings,
		CategoryIncome,
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryAssets, CategoryLiabilities, CategoryInvestments,
		CategoryTransactions, CategorySavings, CategoryIncome:
		return true
	}
	return false
}

// ParseCategory normalizes s and returns the matching category.
// The legacy permission column prefix "perm_" is accepted.
func ParseCategory(s string) (Category, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.TrimPrefix(norm, "perm_")
	c := Category(norm)
	if !c.Valid() {
		return "", fmt.Errorf("ParseCategory: %w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// CategorySet is an unordered set of categories.
type CategorySet map[Category]struct{}

// NewCategorySet builds a set from the given categories.
func NewCategorySet(cats ...Category) CategorySet {
	s := make(CategorySet, len(cats))
	for _, c := range cats {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether c is in the set.
func (s CategorySet) Has(c Category) bool {
	_, ok := s[c]
	return ok
}

// SubsetOf reports whether every member of s is also in other.
func (s CategorySet) SubsetOf(other CategorySet) bool {
	for c := range s {
		if !other.Has(c) {
			return false
		}
	}
	return true
}

// Intersect returns the members of s that are also in other.
func (s CategorySet) Intersect(other CategorySet) CategorySet {
	out := make(CategorySet)
	for c := range s {
		if other.Has(c) {
			out[c] = struct{}{}
		}
	}
	return out
}

// Sorted returns the members in AllCategories order.
func (s CategorySet) Sorted() []Category {
	out := make([]Category, 0, len(s))
	for _, c := range AllCategories() {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	// unknown values sort last, alphabetically
	var extra []Category
	for c := range s {
		if !c.Valid() {
			extra = append(extra, c)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}
