package audit

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes audit records to the structured log. It is used when no
// warehouse is configured.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

// InsertRun implements RunSink.
func (s *LogSink) InsertRun(ctx context.Context, run Run) error {
	cats := make([]string, len(run.GroundedCategories))
	for i, c := range run.GroundedCategories {
		cats[i] = string(c)
	}
	s.log.Info().
		Str("run_id", run.RunID).
		Str("query_id", run.QueryID).
		Str("user_id", run.UserID).
		Str("status", string(run.Status)).
		Str("reason", run.Reason).
		Strs("grounded_categories", cats).
		Int("records", run.TotalRecords()).
		Str("snapshot_digest", run.SnapshotDigest).
		Str("archive_uri", run.ArchiveURI).
		Msg("Insight run")
	return nil
}

var _ RunSink = (*LogSink)(nil)
