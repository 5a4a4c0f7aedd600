package chat

import (
	"strings"

	"github.com/google/uuid"
)

// Role identifies the author of an outbound message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the caller's chat history. The assistant turn is created
// empty and filled in by the caller as fragments arrive.
type Turn struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	IsUser  bool   `json:"is_user"`
	Context string `json:"context,omitempty"`
}

// NewTurn returns a turn with a fresh identifier.
func NewTurn(text string, isUser bool) Turn {
	return Turn{ID: uuid.New().String(), Text: text, IsUser: isUser}
}

// Role reports the outbound role for the turn.
func (t Turn) Role() Role {
	if t.IsUser {
		return RoleUser
	}
	return RoleAssistant
}

// Empty reports whether the turn carries nothing worth sending.
func (t Turn) Empty() bool {
	return strings.TrimSpace(t.Text) == "" && strings.TrimSpace(t.Context) == ""
}

// Message is the provider-neutral form produced by the conversation builder.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
