package services

import (
	"context"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/devilai/devil-console/internal/chat"
	"github.com/devilai/devil-console/internal/models"
	"github.com/google/uuid"
)

// LLM is a stateless text-generation back-end. It receives the whole conversation on every call and
// streams the reply as text fragments.
type LLM interface {
	Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error]
}

// HistoryProvider turns a stateless LLM into a chat.Provider. Each session it creates keeps the
// conversation history itself and replays it on every send.
type HistoryProvider struct {
	llm LLM
}

// NewHistoryProvider wraps llm so it can back a chat.Manager.
func NewHistoryProvider(llm LLM) HistoryProvider {
	return HistoryProvider{llm: llm}
}

// NewSession implements chat.Provider. It never fails, the back-end is only contacted on send.
func (h HistoryProvider) NewSession(context.Context) (chat.Session, error) {
	return &historySession{llm: h.llm}, nil
}

type historySession struct {
	llm LLM

	mu       sync.Mutex
	messages []models.Message
}

// Stream sends the history plus text. The exchange is only committed to the history once the
// reply has streamed completely, a failed exchange leaves the history as it was.
func (s *historySession) Stream(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		s.mu.Lock()
		defer s.mu.Unlock()

		msgs := append(slices.Clone(s.messages), historyMessage(models.RoleUser, text))

		var reply strings.Builder
		for chunk, err := range s.llm.Chat(ctx, msgs) {
			if err != nil {
				yield("", err)
				return
			}
			reply.WriteString(chunk)
			if !yield(chunk, nil) {
				return
			}
		}

		s.messages = append(msgs, historyMessage(models.RoleModel, reply.String()))
	}
}

func historyMessage(role models.Role, text string) models.Message {
	return models.Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   text,
		Timestamp: time.Now(),
	}
}

// apiRole maps our roles to the names used by OpenAI-style chat APIs.
func apiRole(r models.Role) string {
	if r == models.RoleModel {
		return "assistant"
	}
	return string(r)
}
