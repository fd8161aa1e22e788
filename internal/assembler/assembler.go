// Package assembler builds the permission-filtered context snapshot that an
// insight query reasons over.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/records"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// GrantReader resolves the categories a user has authorized.
type GrantReader interface {
	AuthorizedCategories(ctx context.Context, userID string) (domain.CategorySet, error)
}

// Options bound the size and age of a snapshot.
type Options struct {
	MaxRecordsPerCategory int
	Lookback              time.Duration
	FetchTimeout          time.Duration
	DisableHints          bool
}

// Request is the input to one assembly.
type Request struct {
	UserID    string
	QueryID   string
	QueryText string
	History   []domain.ConversationTurn
}

// Assembler reads grants, then only the authorized categories' records.
type Assembler struct {
	grants GrantReader
	repo   records.Repository
	opts   Options
	now    func() time.Time
	log    zerolog.Logger
}

// New creates an Assembler.
func New(grants GrantReader, repo records.Repository, opts Options, log zerolog.Logger) *Assembler {
	if opts.MaxRecordsPerCategory <= 0 {
		opts.MaxRecordsPerCategory = 200
	}
	return &Assembler{
		grants: grants,
		repo:   repo,
		opts:   opts,
		now:    time.Now,
		log:    log,
	}
}

type fetchResult struct {
	category domain.Category
	records  []domain.FinancialRecord
	err      error
}

// Assemble builds a snapshot for req. The snapshot's categories are always a
// subset of the categories authorized when grants were read. A user without
// grants gets an empty snapshot. When every hinted category fails, the
// remaining grants are fetched instead. If nothing loads, Assemble returns
// domain.ErrDataUnavailable.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*domain.ContextSnapshot, error) {
	queryID := req.QueryID
	if queryID == "" {
		queryID = uuid.NewString()
	}
	log := a.log.With().Str("user_id", req.UserID).Str("query_id", queryID).Logger()

	authorized, err := a.grants.AuthorizedCategories(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("Assemble: reading grants: %w: %w", domain.ErrDataUnavailable, err)
	}

	now := a.now().UTC()
	meta := domain.SnapshotMeta{UserID: req.UserID, QueryID: queryID, AssembledAt: now}
	if a.opts.Lookback > 0 {
		meta.Since = now.Add(-a.opts.Lookback)
	}

	if len(authorized) == 0 {
		log.Info().Msg("No authorized categories, returning empty snapshot")
		return domain.EmptySnapshot(meta), nil
	}

	targeted := authorized
	if !a.opts.DisableHints {
		targeted, meta.Narrowed = narrow(authorized, req.QueryText, req.History)
	}

	loaded, omitted, err := a.load(ctx, log, req.UserID, targeted.Sorted(), meta.Since)
	if err != nil {
		return nil, fmt.Errorf("Assemble: %w", err)
	}

	// hints only scope the fetch; when every hinted category is down the
	// rest of the grants still answer
	if len(loaded) == 0 && meta.Narrowed {
		var rest []domain.Category
		for _, c := range authorized.Sorted() {
			if !targeted.Has(c) {
				rest = append(rest, c)
			}
		}
		log.Warn().
			Strs("hinted", categoryStrings(targeted.Sorted())).
			Strs("categories", categoryStrings(rest)).
			Msg("Hinted categories unavailable, fetching remaining grants")

		var more []domain.OmittedCategory
		loaded, more, err = a.load(ctx, log, req.UserID, rest, meta.Since)
		if err != nil {
			return nil, fmt.Errorf("Assemble: %w", err)
		}
		omitted = append(omitted, more...)
		meta.Narrowed = false
	}

	if len(loaded) == 0 {
		return nil, fmt.Errorf("Assemble: all %d authorized categories failed: %w", len(omitted), domain.ErrDataUnavailable)
	}

	snap := domain.NewContextSnapshot(meta, loaded, omitted)
	if !snap.CategorySet().SubsetOf(authorized) {
		return nil, fmt.Errorf("Assemble: snapshot categories exceed grants: %w", domain.ErrInternalInvariantViolation)
	}

	log.Debug().
		Strs("categories", categoryStrings(snap.Categories())).
		Int("omitted", len(omitted)).
		Bool("narrowed", meta.Narrowed).
		Msg("Snapshot assembled")
	return snap, nil
}

// load fetches categories and splits the outcome into sanitized records and
// omissions.
func (a *Assembler) load(ctx context.Context, log zerolog.Logger, userID string, categories []domain.Category, since time.Time) (map[domain.Category][]domain.FinancialRecord, []domain.OmittedCategory, error) {
	results, err := a.fetchAll(ctx, userID, categories, since)
	if err != nil {
		return nil, nil, err
	}

	loaded := make(map[domain.Category][]domain.FinancialRecord, len(results))
	var omitted []domain.OmittedCategory
	for _, r := range results {
		if r.err != nil {
			CategoryFetchTotal.WithLabelValues(string(r.category), "error").Inc()
			log.Warn().Err(r.err).Str("category", string(r.category)).Msg("Category omitted from snapshot")
			omitted = append(omitted, domain.OmittedCategory{Category: r.category, Reason: omissionReason(r.err)})
			continue
		}
		CategoryFetchTotal.WithLabelValues(string(r.category), "ok").Inc()
		recs := a.sanitize(log, userID, r.category, r.records, since)
		RecordsLoaded.WithLabelValues(string(r.category)).Observe(float64(len(recs)))
		loaded[r.category] = recs
	}
	return loaded, omitted, nil
}

// fetchAll reads every category concurrently. Category errors are returned
// in the results; only cancellation of ctx aborts the whole call.
func (a *Assembler) fetchAll(ctx context.Context, userID string, categories []domain.Category, since time.Time) ([]fetchResult, error) {
	results := make([]fetchResult, len(categories))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range categories {
		g.Go(func() error {
			fctx := gctx
			if a.opts.FetchTimeout > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(gctx, a.opts.FetchTimeout)
				defer cancel()
			}
			recs, err := a.repo.FetchRecords(fctx, userID, c, a.opts.MaxRecordsPerCategory, since)
			results[i] = fetchResult{category: c, records: recs, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// sanitize drops rows that do not belong to the requested user and category
// and re-applies the count and age bounds.
func (a *Assembler) sanitize(log zerolog.Logger, userID string, c domain.Category, rs []domain.FinancialRecord, since time.Time) []domain.FinancialRecord {
	kept := rs[:0:0]
	for _, r := range rs {
		if r.UserID != userID || r.Category != c {
			log.Warn().
				Err(domain.ErrAccessDenied).
				Str("category", string(c)).
				Str("record_category", string(r.Category)).
				Str("record_id", r.RecordID).
				Msg("Dropping record outside request scope")
			continue
		}
		kept = append(kept, r)
	}
	return records.Bound(kept, a.opts.MaxRecordsPerCategory, since)
}

func omissionReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrRepositoryUnavailable):
		return "repository unavailable"
	default:
		return "fetch failed"
	}
}

func categoryStrings(cs []domain.Category) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}
