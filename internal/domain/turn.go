package domain

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one message in a chat session.
type ConversationTurn struct {
	SessionID            string     `json:"session_id"`
	TurnID               string     `json:"turn_id"`
	Role                 Role       `json:"role"`
	Text                 string     `json:"text"`
	ReferencedCategories []Category `json:"referenced_categories,omitempty"`
	Timestamp            time.Time  `json:"timestamp"`
}
