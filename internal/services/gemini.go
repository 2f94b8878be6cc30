package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"sync"

	"github.com/devilai/devil-console/internal/chat"
	"google.golang.org/genai"
)

// DefaultGeminiModel is the model used when the configuration does not name one.
const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini implements chat.Provider on top of Gemini chat sessions, which keep the conversation
// history themselves. The underlying client is created lazily on the first send, so a missing API
// key only surfaces once the operator talks to the console.
type Gemini struct {
	apiKey       string
	model        string
	systemPrompt string
	baseURL      string

	httpClient *http.Client

	mu     sync.Mutex
	client *genai.Client

	logger *slog.Logger
}

// NewGemini creates a Gemini provider for model, with every session primed with systemPrompt.
func NewGemini(apiKey, model, systemPrompt string, logger *slog.Logger) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{
		apiKey:       apiKey,
		model:        model,
		systemPrompt: systemPrompt,
		httpClient:   &http.Client{},
		logger:       logger.With(slog.String("module", "gemini")),
	}
}

// WithBaseURL points the provider at a different Gemini API endpoint.
func (g *Gemini) WithBaseURL(u string) *Gemini {
	g.baseURL = u
	return g
}

// NewSession implements chat.Provider.
func (g *Gemini) NewSession(context.Context) (chat.Session, error) {
	return &geminiSession{provider: g}, nil
}

func (g *Gemini) genaiClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}
	if g.apiKey == "" {
		return nil, errors.New("gemini API key not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      g.apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  g.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: g.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	g.logger.Debug("Gemini client initialized", slog.String("model", g.model))

	g.client = client
	return client, nil
}

type geminiSession struct {
	provider *Gemini

	mu   sync.Mutex
	chat *genai.Chat
}

func (s *geminiSession) remote(ctx context.Context) (*genai.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chat != nil {
		return s.chat, nil
	}

	client, err := s.provider.genaiClient(ctx)
	if err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{}
	if s.provider.systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(s.provider.systemPrompt, genai.RoleUser)
	}

	c, err := client.Chats.Create(ctx, s.provider.model, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini chat: %w", err)
	}
	s.chat = c
	return c, nil
}

// Stream implements chat.Session.
func (s *geminiSession) Stream(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		c, err := s.remote(ctx)
		if err != nil {
			yield("", err)
			return
		}

		for res, err := range c.SendMessageStream(ctx, genai.Part{Text: text}) {
			if err != nil {
				yield("", fmt.Errorf("error receiving response: %w", err))
				return
			}
			if !yield(res.Text(), nil) {
				return
			}
		}
	}
}
