// Package session keeps a short sliding window of conversation turns per
// chat session. History is only ever a hint: it is re-filtered against the
// current snapshot before any of it reaches the model.
package session

import (
	"errors"
	"time"

	"github.com/dvloznov/finance-insights/internal/domain"
)

// DefaultWindow is the number of turns kept per session.
const DefaultWindow = 10

// ErrEmptySessionID is returned when a turn is appended without a session.
var ErrEmptySessionID = errors.New("session id is required")

// VisibleTo returns the turns whose referenced categories all lie within
// allowed, preserving order. Turns that reference nothing are kept.
func VisibleTo(turns []domain.ConversationTurn, allowed domain.CategorySet) []domain.ConversationTurn {
	out := make([]domain.ConversationTurn, 0, len(turns))
	for _, t := range turns {
		if domain.NewCategorySet(t.ReferencedCategories...).SubsetOf(allowed) {
			out = append(out, t)
		}
	}
	return out
}

func prepare(sessionID string, turn domain.ConversationTurn, now time.Time) (domain.ConversationTurn, error) {
	if sessionID == "" {
		return turn, ErrEmptySessionID
	}
	turn.SessionID = sessionID
	if turn.Timestamp.IsZero() {
		turn.Timestamp = now
	}
	turn.ReferencedCategories = append([]domain.Category(nil), turn.ReferencedCategories...)
	return turn, nil
}
