package domain

import (
	"time"
)

// OmittedCategory records an authorized category that could not be loaded
// into a snapshot.
type OmittedCategory struct {
	Category Category `json:"category"`
	Reason   string   `json:"reason"`
}

// SnapshotMeta describes the request a snapshot was assembled for.
type SnapshotMeta struct {
	UserID      string
	QueryID     string
	AssembledAt time.Time
	Since       time.Time
	// Narrowed is true when query hints scoped the snapshot to a subset of
	// the authorized categories.
	Narrowed bool
}

// ContextSnapshot is the immutable, bounded view of a user's data that the
// insight workflow reasons over. It is built once per query and never reused.
type ContextSnapshot struct {
	meta       SnapshotMeta
	categories []Category
	records    map[Category][]FinancialRecord
	omitted    []OmittedCategory
}

// NewContextSnapshot copies records and omitted into a new snapshot.
// The snapshot's categories are exactly the keys of records.
func NewContextSnapshot(meta SnapshotMeta, records map[Category][]FinancialRecord, omitted []OmittedCategory) *ContextSnapshot {
	set := make(CategorySet, len(records))
	copied := make(map[Category][]FinancialRecord, len(records))
	for c, rs := range records {
		set[c] = struct{}{}
		copied[c] = cloneRecords(rs)
	}
	om := make([]OmittedCategory, len(omitted))
	copy(om, omitted)
	return &ContextSnapshot{
		meta:       meta,
		categories: set.Sorted(),
		records:    copied,
		omitted:    om,
	}
}

// EmptySnapshot returns a snapshot with zero categories.
func EmptySnapshot(meta SnapshotMeta) *ContextSnapshot {
	return NewContextSnapshot(meta, nil, nil)
}

func (s *ContextSnapshot) UserID() string         { return s.meta.UserID }
func (s *ContextSnapshot) QueryID() string        { return s.meta.QueryID }
func (s *ContextSnapshot) AssembledAt() time.Time { return s.meta.AssembledAt }
func (s *ContextSnapshot) Since() time.Time       { return s.meta.Since }
func (s *ContextSnapshot) Narrowed() bool         { return s.meta.Narrowed }

// Categories returns the categories present in the snapshot.
func (s *ContextSnapshot) Categories() []Category {
	out := make([]Category, len(s.categories))
	copy(out, s.categories)
	return out
}

// CategorySet returns the snapshot categories as a set.
func (s *ContextSnapshot) CategorySet() CategorySet {
	return NewCategorySet(s.categories...)
}

// Has reports whether c was loaded into the snapshot.
func (s *ContextSnapshot) Has(c Category) bool {
	_, ok := s.records[c]
	return ok
}

// Records returns a copy of the records loaded for c, oldest first.
func (s *ContextSnapshot) Records(c Category) []FinancialRecord {
	return cloneRecords(s.records[c])
}

// RecordCount returns how many records were loaded for c.
func (s *ContextSnapshot) RecordCount(c Category) int {
	return len(s.records[c])
}

// Counts returns the record count per loaded category.
func (s *ContextSnapshot) Counts() map[Category]int {
	out := make(map[Category]int, len(s.records))
	for c, rs := range s.records {
		out[c] = len(rs)
	}
	return out
}

// Omitted returns the authorized categories that failed to load.
func (s *ContextSnapshot) Omitted() []OmittedCategory {
	out := make([]OmittedCategory, len(s.omitted))
	copy(out, s.omitted)
	return out
}

// Empty reports whether the snapshot carries no categories.
func (s *ContextSnapshot) Empty() bool {
	return len(s.categories) == 0
}

// SnapshotEnvelope is the serializable form of a snapshot, used for audit.
type SnapshotEnvelope struct {
	UserID      string                     `json:"user_id"`
	QueryID     string                     `json:"query_id"`
	AssembledAt time.Time                  `json:"assembled_at"`
	Since       time.Time                  `json:"since"`
	Narrowed    bool                       `json:"narrowed"`
	Categories  []Category                 `json:"categories"`
	Omitted     []OmittedCategory          `json:"omitted"`
	Records     map[Category][]RecordEntry `json:"records"`
}

// RecordEntry is the serializable form of a FinancialRecord.
type RecordEntry struct {
	RecordID  string            `json:"record_id"`
	Amount    string            `json:"amount"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Envelope converts the snapshot into its serializable form.
func (s *ContextSnapshot) Envelope() SnapshotEnvelope {
	env := SnapshotEnvelope{
		UserID:      s.meta.UserID,
		QueryID:     s.meta.QueryID,
		AssembledAt: s.meta.AssembledAt.UTC(),
		Since:       s.meta.Since.UTC(),
		Narrowed:    s.meta.Narrowed,
		Categories:  s.Categories(),
		Omitted:     s.Omitted(),
		Records:     make(map[Category][]RecordEntry, len(s.records)),
	}
	for c, rs := range s.records {
		entries := make([]RecordEntry, 0, len(rs))
		for _, r := range rs {
			entries = append(entries, RecordEntry{
				RecordID:  r.RecordID,
				Amount:    r.Amount.String(),
				Timestamp: r.Timestamp.UTC(),
				Metadata:  r.Metadata,
			})
		}
		env.Records[c] = entries
	}
	return env
}

func cloneRecords(rs []FinancialRecord) []FinancialRecord {
	if rs == nil {
		return nil
	}
	out := make([]FinancialRecord, len(rs))
	for i, r := range rs {
		out[i] = r
		if r.Metadata != nil {
			md := make(map[string]string, len(r.Metadata))
			for k, v := range r.Metadata {
				md[k] = v
			}
			out[i].Metadata = md
		}
	}
	return out
}
