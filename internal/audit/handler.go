package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dvloznov/finance-insights/internal/jobs"
	"github.com/dvloznov/finance-insights/internal/logger"
)

// RunSink persists audit records.
type RunSink interface {
	InsertRun(ctx context.Context, run Run) error
}

// SnapshotArchive stores canonical snapshot envelopes and returns their URI.
type SnapshotArchive interface {
	PutSnapshot(ctx context.Context, run Run, canonical []byte) (string, error)
}

// NewJobHandler returns the job handler that writes runs to sink, archiving
// the snapshot first when archive is set. Either may be nil.
func NewJobHandler(sink RunSink, archive SnapshotArchive) jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		j, ok := job.(*jobs.RecordRunJob)
		if !ok {
			return fmt.Errorf("audit: unexpected job type %s", job.GetType())
		}
		log := logger.FromContext(ctx).With().
			Str("job_id", j.JobID).
			Str("query_id", j.QueryID).
			Int("retry", j.RetryCount).
			Logger()

		var run Run
		if err := json.Unmarshal(j.Run, &run); err != nil {
			return fmt.Errorf("audit: decode run: %w", err)
		}

		if archive != nil && len(j.Snapshot) > 0 && run.ArchiveURI == "" {
			uri, err := archive.PutSnapshot(ctx, run, j.Snapshot)
			if err != nil {
				RunsTotal.WithLabelValues("archive_error").Inc()
				return fmt.Errorf("audit: archive snapshot: %w", err)
			}
			run.ArchiveURI = uri
			// keep the uri on retries so the object is not written twice
			if raw, err := json.Marshal(run); err == nil {
				j.Run = raw
			}
		}

		if sink != nil {
			if err := sink.InsertRun(ctx, run); err != nil {
				RunsTotal.WithLabelValues("sink_error").Inc()
				return fmt.Errorf("audit: insert run: %w", err)
			}
		}

		RunsTotal.WithLabelValues("written").Inc()
		log.Debug().Str("archive_uri", run.ArchiveURI).Msg("Insight run written")
		return nil
	}
}
