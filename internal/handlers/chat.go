package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/devilai/devil-console/internal/chat"
	"github.com/devilai/devil-console/internal/models"
	"github.com/tmaxmax/go-sse"
)

type message struct {
	ID        string
	Role      string
	Content   string
	Timestamp time.Time

	Streaming bool
}

type chatPageData struct {
	Page     string
	Agents   []models.Agent
	Messages []message
}

// SSE event types for real-time updates.
var (
	messagesSSEType     = sse.Type("messages")
	closeMessageSSEType = sse.Type("closeMessage")
)

func newMessage(msg models.Message) message {
	return message{
		ID:        msg.ID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
		Streaming: msg.Streaming,
	}
}

// HandleHome renders the chat view. Rendering the view mounts a fresh chat: a new session is created,
// discarding the previous one, and the message log starts over from the welcome message.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	m.chats.Create(r.Context())
	m.conversation.Reset()

	msgs := m.conversation.Messages()
	data := chatPageData{
		Page:     "chat",
		Agents:   m.roster.List(),
		Messages: make([]message, len(msgs)),
	}
	for i, msg := range msgs {
		data.Messages[i] = newMessage(msg)
	}

	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		m.logger.Error("Failed to render home", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleChats accepts an operator message through the "message" form field, renders the user message
// together with an empty streaming placeholder for the reply, and streams the reply to the placeholder
// over SSE in the background.
//
// Blank messages are ignored with 204 No Content. While a previous reply is still streaming the
// handler answers 409 Conflict, so there is never more than one send in flight.
func (m Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	msg := r.FormValue("message")
	if strings.TrimSpace(msg) == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if !m.chats.Initialized() {
		m.chats.Create(r.Context())
	}

	if !m.chats.TryBegin() {
		http.Error(w, "A reply is still streaming", http.StatusConflict)
		return
	}

	um := m.conversation.AddUser(msg)
	am := m.conversation.AddModelPlaceholder()

	go m.chat(msg, am.ID)

	if err := m.templates.ExecuteTemplate(w, "user_message", newMessage(um)); err != nil {
		m.logger.Error("Failed to render user message", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := m.templates.ExecuteTemplate(w, "ai_message", newMessage(am)); err != nil {
		m.logger.Error("Failed to render ai message", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleMessage renders the current state of a single message. Clients call it right after
// subscribing to the message topic to catch up with fragments published before they connected.
func (m Main) HandleMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, msg := range m.conversation.Messages() {
		if msg.ID != id {
			continue
		}
		tmpl := "ai_message"
		if msg.Role == models.RoleUser {
			tmpl = "user_message"
		}
		if err := m.templates.ExecuteTemplate(w, tmpl, newMessage(msg)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	http.NotFound(w, r)
}

// HandleSSE subscribes the client to chat message updates.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

func (m Main) chat(text, aiMsgID string) {
	defer m.chats.End()

	// The stream has no cancellation primitive, it always runs to completion or failure.
	ctx := context.Background()
	start := time.Now()
	m.recorder.ChatSent(ctx, m.providerName)

	var reply strings.Builder
	err := m.chats.Send(ctx, text, func(chunk string) {
		reply.WriteString(chunk)
		m.recorder.ChatChunk(ctx)

		updated, err := m.conversation.AppendContent(aiMsgID, chunk)
		if err != nil {
			m.logger.Warn("Dropping fragment for a message that left the conversation",
				slog.String("messageID", aiMsgID))
			return
		}
		m.publishMessage(updated)
	})
	if err != nil && !errors.Is(err, chat.ErrEmptyMessage) {
		m.logger.Error("Failed to send message", slog.String(errLoggerKey, err.Error()))
	}

	m.recorder.ChatFinished(ctx, m.providerName, time.Since(start), chat.IsSystemError(reply.String()))

	finished, err := m.conversation.FinishStreaming(aiMsgID)
	if err == nil {
		m.publishMessage(finished)
	}

	e := &sse.Message{Type: closeMessageSSEType}
	e.AppendData(aiMsgID)
	_ = m.sseSrv.Publish(e, messageIDTopic(aiMsgID))
}

func (m Main) publishMessage(msg models.Message) {
	var sb strings.Builder
	if err := m.templates.ExecuteTemplate(&sb, "ai_message_body", newMessage(msg)); err != nil {
		m.logger.Error("Failed to render message",
			slog.String("messageID", msg.ID),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	e := &sse.Message{Type: messagesSSEType}
	e.AppendData(sb.String())
	if err := m.sseSrv.Publish(e, messageIDTopic(msg.ID)); err != nil {
		m.logger.Error("Failed to publish message",
			slog.String("messageID", msg.ID),
			slog.String(errLoggerKey, err.Error()))
	}
}
