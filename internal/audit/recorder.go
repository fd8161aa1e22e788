package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/jobs"
	"github.com/rs/zerolog"
)

// Recorder turns answered queries into audit jobs. Record only encodes and
// enqueues; sinks are written by the job handler.
type Recorder struct {
	publisher       jobs.Publisher
	archiveSnapshot bool
	now             func() time.Time
	log             zerolog.Logger
}

// NewRecorder creates a Recorder. When archiveSnapshot is set, the
// canonical snapshot envelope travels with the job so the handler can
// archive it.
func NewRecorder(publisher jobs.Publisher, archiveSnapshot bool, log zerolog.Logger) *Recorder {
	return &Recorder{
		publisher:       publisher,
		archiveSnapshot: archiveSnapshot,
		now:             time.Now,
		log:             log,
	}
}

// Record implements the pipeline's run recorder.
func (r *Recorder) Record(ctx context.Context, snap *domain.ContextSnapshot, result *domain.InsightResult) error {
	canonical, digest, err := Digest(snap.Envelope())
	if err != nil {
		return fmt.Errorf("Record: %w", err)
	}

	run := NewRun(snap, result, digest, r.now())
	raw, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("Record: marshal run: %w", err)
	}

	job := &jobs.RecordRunJob{QueryID: run.QueryID, Run: raw}
	if r.archiveSnapshot && !snap.Empty() {
		job.Snapshot = canonical
	}
	if err := r.publisher.PublishRecordRun(ctx, job); err != nil {
		RunsTotal.WithLabelValues("dropped").Inc()
		return fmt.Errorf("Record: publish: %w", err)
	}

	RunsTotal.WithLabelValues("queued").Inc()
	r.log.Debug().
		Str("query_id", run.QueryID).
		Str("job_id", job.JobID).
		Str("snapshot_digest", digest).
		Msg("Insight run queued for audit")
	return nil
}
