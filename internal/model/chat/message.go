package chat

import "time"

// Role identifies the author of a persisted conversation row.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation. Messages are immutable once
// created; ordering is insertion order and duplicates are allowed.
type Message struct {
	Text       string    `json:"text"`
	IsFromUser bool      `json:"isFromUser"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewUserMessage wraps raw user text in a timestamped message.
func NewUserMessage(text string) Message {
	return Message{Text: text, IsFromUser: true, Timestamp: time.Now().UTC()}
}

// NewAssistantMessage wraps an assistant reply in a timestamped message.
func NewAssistantMessage(text string) Message {
	return Message{Text: text, IsFromUser: false, Timestamp: time.Now().UTC()}
}

// Role maps the message author onto the persisted row role.
func (m Message) Role() Role {
	if m.IsFromUser {
		return RoleUser
	}
	return RoleAssistant
}
