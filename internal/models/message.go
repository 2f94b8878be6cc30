package models

import "time"

// Message is a single entry in the chat view's message log. Content is mutated in place while
// Streaming is true and is treated as immutable once the stream has ended.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time

	Streaming bool
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a message typed by the operator.
	RoleUser Role = "user"
	// RoleModel represents a message produced by the remote text-generation service.
	RoleModel Role = "model"
)
