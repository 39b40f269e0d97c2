package session

import "time"

// Message represents a single chat message
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// UserInfo holds the lightweight caller metadata attached to a session.
// Fields are sticky: once set they survive until a full reset.
type UserInfo struct {
	Name         string `json:"name,omitempty"`
	BusinessType string `json:"business_type,omitempty"`
}

// ResetScope selects how much of a session a reset clears.
type ResetScope int

const (
	// ScopeConversation clears history and the pending question but keeps
	// user info, so personalization survives a "start over".
	ScopeConversation ResetScope = iota
	// ScopeAll clears everything known about the session.
	ScopeAll
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)
