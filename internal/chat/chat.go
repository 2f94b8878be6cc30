// Package chat owns the operator's single conversational session with a remote text-generation
// service and relays its streamed reply fragments to the chat view.
package chat

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// SystemErrorMessage is delivered to the chat view, appended to any partial reply, when the
// remote service fails during a send.
const SystemErrorMessage = "\n\n[SYSTEM ERROR: Unable to communicate with the Devil Core. " +
	"Please check API Key configuration.]"

const errLoggerKey = "err"

var (
	// ErrEmptyMessage is returned by Send when the text is empty or whitespace only.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNoSession is returned by Send when Create has not been called.
	ErrNoSession = errors.New("chat session is not initialized")
)

// Session is an opaque handle to a remote conversational context. The conversation history lives
// behind the handle, callers only ever create it and send to it.
type Session interface {
	// Stream sends text within the session and yields reply fragments in arrival order. A non-nil
	// error ends the stream.
	Stream(ctx context.Context, text string) iter.Seq2[string, error]
}

// Provider creates sessions configured with a fixed system instruction and model.
type Provider interface {
	NewSession(ctx context.Context) (Session, error)
}

// Manager holds exactly one active session and mediates streaming exchanges with it.
type Manager struct {
	provider Provider

	mu      sync.RWMutex
	session Session

	busy atomic.Bool

	logger *slog.Logger
}

// NewManager creates a Manager that obtains sessions from provider. No session exists until Create
// is called.
func NewManager(provider Provider, logger *slog.Logger) *Manager {
	return &Manager{
		provider: provider,
		logger:   logger.With(slog.String("module", "chat")),
	}
}

// Create initializes a new session, replacing any previous one without shutting it down. A factory
// failure is not returned: it is kept in the handle and reported through the regular error text
// on the first Send.
func (m *Manager) Create(ctx context.Context) {
	s, err := m.provider.NewSession(ctx)
	if err != nil {
		m.logger.Warn("Failed to create session", slog.String(errLoggerKey, err.Error()))
		s = failedSession{err: err}
	}

	m.mu.Lock()
	m.session = s
	m.mu.Unlock()
}

// Initialized reports whether Create has been called at least once.
func (m *Manager) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session != nil
}

// TryBegin marks the manager busy and reports whether it was idle before. Callers use it to keep a
// single outstanding Send per session and must call End once the send is over.
func (m *Manager) TryBegin() bool {
	return m.busy.CompareAndSwap(false, true)
}

// End clears the busy mark set by TryBegin.
func (m *Manager) End() {
	m.busy.Store(false)
}

// Busy reports whether a send is in flight.
func (m *Manager) Busy() bool {
	return m.busy.Load()
}

// Send streams text to the active session and invokes onChunk synchronously for every reply
// fragment, in arrival order, without buffering or rewriting them.
//
// Any failure of the remote service is logged and turned into exactly one extra onChunk call
// carrying SystemErrorMessage, after which Send returns nil. Only precondition violations are
// returned as errors, and in that case the session is never contacted.
func (m *Manager) Send(ctx context.Context, text string, onChunk func(string)) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	m.mu.RLock()
	s := m.session
	m.mu.RUnlock()
	if s == nil {
		return ErrNoSession
	}

	for chunk, err := range s.Stream(ctx, text) {
		if err != nil {
			m.logger.Error("Error from text generation service", slog.String(errLoggerKey, err.Error()))
			onChunk(SystemErrorMessage)
			return nil
		}
		if chunk == "" {
			continue
		}
		onChunk(chunk)
	}
	return nil
}

// IsSystemError reports whether text delivered by Send ended in a service failure.
func IsSystemError(text string) bool {
	return strings.Contains(text, strings.TrimSpace(SystemErrorMessage))
}

type failedSession struct {
	err error
}

func (f failedSession) Stream(context.Context, string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield("", f.err)
	}
}
