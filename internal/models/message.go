package models

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an individual entry in a chat session. It contains the participant's role, the text
// content, and the time when the message was created. Messages are never modified once appended.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a message typed by the user.
	RoleUser Role = "user"
	// RoleAssistant represents a reply from the model, or a description of why the reply failed.
	RoleAssistant Role = "assistant"
)

// FallbackReply is the assistant content used when the endpoint answers without any response text.
const FallbackReply = "No response"

// NewMessage creates a message with a fresh ID, stamped with the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// FailureReply renders the assistant content reporting a failed request, naming the reason and the endpoint
// the request was sent to so the user can check whether the local model is running.
func FailureReply(err error, endpoint string) string {
	return "Connection error: " + err.Error() + ". Make sure the local model is running at " + endpoint
}
