// Package audit records every answered query: which categories were read,
// which reached the answer, and a digest of the exact snapshot. Query and
// answer text are not stored.
package audit

import (
	"sort"
	"time"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/google/uuid"
)

// Run is the audit record of one answered query.
type Run struct {
	RunID              string                  `json:"run_id"`
	QueryID            string                  `json:"query_id"`
	UserID             string                  `json:"user_id"`
	AssembledAt        time.Time               `json:"assembled_at"`
	RecordedAt         time.Time               `json:"recorded_at"`
	Status             domain.Status           `json:"status"`
	Intent             domain.Intent           `json:"intent,omitempty"`
	Reason             string                  `json:"reason,omitempty"`
	Attempts           int                     `json:"attempts"`
	Narrowed           bool                    `json:"narrowed"`
	Categories         []domain.Category       `json:"categories"`
	GroundedCategories []domain.Category       `json:"grounded_categories"`
	OmittedCategories  []domain.Category       `json:"omitted_categories"`
	RecordCounts       map[domain.Category]int `json:"record_counts"`
	AggregateNames     []string                `json:"aggregate_names"`
	SnapshotDigest     string                  `json:"snapshot_digest"`
	ArchiveURI         string                  `json:"archive_uri,omitempty"`
}

// NewRun builds the audit record for result answered from snap.
func NewRun(snap *domain.ContextSnapshot, result *domain.InsightResult, digest string, now time.Time) Run {
	run := Run{
		RunID:              uuid.NewString(),
		QueryID:            result.QueryID,
		UserID:             snap.UserID(),
		AssembledAt:        snap.AssembledAt().UTC(),
		RecordedAt:         now.UTC(),
		Status:             result.Status,
		Intent:             result.Intent,
		Reason:             result.Reason,
		Attempts:           result.Attempts,
		Narrowed:           snap.Narrowed(),
		Categories:         snap.Categories(),
		GroundedCategories: append([]domain.Category{}, result.GroundedCategories...),
		OmittedCategories:  append([]domain.Category{}, result.OmittedCategories...),
		RecordCounts:       snap.Counts(),
		SnapshotDigest:     digest,
	}
	for name := range result.DerivedAggregates {
		run.AggregateNames = append(run.AggregateNames, name)
	}
	sort.Strings(run.AggregateNames)
	return run
}

// TotalRecords sums the per-category record counts.
func (r Run) TotalRecords() int {
	n := 0
	for _, c := range r.RecordCounts {
		n += c
	}
	return n
}
