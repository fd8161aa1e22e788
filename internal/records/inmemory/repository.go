package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/records"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository is an in-memory record repository used by tests, the CLI and
// local runs. Failures can be injected per category.
type Repository struct {
	mu       sync.RWMutex
	records  map[string]map[domain.Category][]domain.FinancialRecord
	failures map[domain.Category]error
}

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{
		records:  make(map[string]map[domain.Category][]domain.FinancialRecord),
		failures: make(map[domain.Category]error),
	}
}

// Add stores records. Missing record IDs are generated.
func (r *Repository) Add(rs ...domain.FinancialRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range rs {
		if rec.RecordID == "" {
			rec.RecordID = uuid.NewString()
		}
		byCategory, ok := r.records[rec.UserID]
		if !ok {
			byCategory = make(map[domain.Category][]domain.FinancialRecord)
			r.records[rec.UserID] = byCategory
		}
		byCategory[rec.Category] = append(byCategory[rec.Category], rec)
	}
}

// Fail makes every fetch of category return err. A nil err clears it.
func (r *Repository) Fail(category domain.Category, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err == nil {
		delete(r.failures, category)
		return
	}
	r.failures[category] = err
}

// FetchRecords implements records.Repository.
func (r *Repository) FetchRecords(ctx context.Context, userID string, category domain.Category, maxCount int, since time.Time) ([]domain.FinancialRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.failures[category]; err != nil {
		return nil, fmt.Errorf("inmemory.FetchRecords: %s: %w", category, err)
	}
	// copies keep callers from mutating stored rows
	src := r.records[userID][category]
	cp := make([]domain.FinancialRecord, len(src))
	copy(cp, src)
	return records.Bound(cp, maxCount, since), nil
}

// fixtureRecord is the JSON shape accepted by Load.
type fixtureRecord struct {
	UserID    string            `json:"user_id"`
	Category  string            `json:"category"`
	RecordID  string            `json:"record_id"`
	Amount    decimal.Decimal   `json:"amount"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata"`
}

// Load reads a JSON array of records into the repository.
func (r *Repository) Load(rd io.Reader) error {
	var rows []fixtureRecord
	if err := json.NewDecoder(rd).Decode(&rows); err != nil {
		return fmt.Errorf("Load: decoding records: %w", err)
	}

	parsed := make([]domain.FinancialRecord, 0, len(rows))
	for i, row := range rows {
		c, err := domain.ParseCategory(row.Category)
		if err != nil {
			return fmt.Errorf("Load: record %d: %w", i, err)
		}
		parsed = append(parsed, domain.FinancialRecord{
			UserID:    row.UserID,
			Category:  c,
			RecordID:  row.RecordID,
			Amount:    row.Amount,
			Timestamp: row.Timestamp,
			Metadata:  row.Metadata,
		})
	}
	r.Add(parsed...)
	return nil
}

// LoadFile reads records from a JSON file.
func (r *Repository) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("LoadFile: %w", err)
	}
	defer f.Close()
	return r.Load(f)
}

var _ records.Repository = (*Repository)(nil)
