package chat

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/devilai/devil-console/internal/models"
	"github.com/google/uuid"
)

// DefaultWelcomeMessage greets the operator at the top of every fresh conversation.
const DefaultWelcomeMessage = "Devil AI System Booted. I am the Overseer. How may I assist you?"

// ErrMessageNotFound is returned when a message ID is not part of the conversation.
var ErrMessageNotFound = errors.New("message not found")

// Conversation is the chat view's message log. It is safe for concurrent use.
type Conversation struct {
	welcome string
	now     func() time.Time

	mu       sync.RWMutex
	messages []models.Message
}

// NewConversation creates a log holding only the welcome message. An empty welcome uses
// DefaultWelcomeMessage.
func NewConversation(welcome string) *Conversation {
	if welcome == "" {
		welcome = DefaultWelcomeMessage
	}
	c := &Conversation{
		welcome: welcome,
		now:     time.Now,
	}
	c.Reset()
	return c
}

// Reset drops every message and starts over with the welcome message.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = []models.Message{c.newMessage(models.RoleModel, c.welcome, false)}
}

// AddUser appends the operator's message.
func (c *Conversation) AddUser(text string) models.Message {
	return c.add(models.RoleUser, text, false)
}

// AddModelPlaceholder appends an empty model message that is still streaming.
func (c *Conversation) AddModelPlaceholder() models.Message {
	return c.add(models.RoleModel, "", true)
}

// AppendContent appends a fragment to a streaming message and returns the updated message.
// Messages that already finished streaming are left untouched.
func (c *Conversation) AppendContent(id, fragment string) (models.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.index(id)
	if idx == -1 {
		return models.Message{}, ErrMessageNotFound
	}
	if c.messages[idx].Streaming {
		c.messages[idx].Content += fragment
	}
	return c.messages[idx], nil
}

// FinishStreaming freezes the message content.
func (c *Conversation) FinishStreaming(id string) (models.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.index(id)
	if idx == -1 {
		return models.Message{}, ErrMessageNotFound
	}
	c.messages[idx].Streaming = false
	return c.messages[idx], nil
}

// Messages returns a copy of the log in insertion order.
func (c *Conversation) Messages() []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.messages)
}

func (c *Conversation) add(role models.Role, text string, streaming bool) models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := c.newMessage(role, text, streaming)
	c.messages = append(c.messages, msg)
	return msg
}

func (c *Conversation) newMessage(role models.Role, text string, streaming bool) models.Message {
	return models.Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   text,
		Timestamp: c.now(),
		Streaming: streaming,
	}
}

func (c *Conversation) index(id string) int {
	return slices.IndexFunc(c.messages, func(m models.Message) bool { return m.ID == id })
}
