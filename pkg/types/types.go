// Package types holds the entities shared between the orchestration engine
// and its collaborators: sessions, messages, and reasoning steps.
package types

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Step is one action taken during an agent run: the tool invoked, the input
// it was given, the model's free-text rationale, and the observation the tool
// returned. Steps are owned by exactly one message and are never shared.
type Step struct {
	Tool        string `json:"tool"`
	Input       string `json:"tool_input"`
	Log         string `json:"log"`
	Observation string `json:"observation"`
}

// Session is one conversation scope. OwnerID is empty for anonymous,
// local-only sessions.
type Session struct {
	ID        string    `json:"session_id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message belongs to exactly one session and is immutable once stored. Steps
// is empty unless the message was produced by the reasoning agent.
type Message struct {
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Steps     []Step    `json:"thinking,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
