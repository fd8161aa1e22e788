package pipeline

import (
	"context"

	"github.com/dvloznov/finance-insights/internal/assembler"
	"github.com/dvloznov/finance-insights/internal/domain"
)

// SnapshotAssembler builds the permission-filtered snapshot for a query.
type SnapshotAssembler interface {
	Assemble(ctx context.Context, req assembler.Request) (*domain.ContextSnapshot, error)
}

// SessionStore keeps the recent turns of each chat session.
type SessionStore interface {
	AppendTurn(ctx context.Context, sessionID string, turn domain.ConversationTurn) error
	RecentHistory(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error)
}

// RunRecorder receives every answered query for auditing. Implementations
// must not block the caller for long.
type RunRecorder interface {
	Record(ctx context.Context, snapshot *domain.ContextSnapshot, result *domain.InsightResult) error
}
