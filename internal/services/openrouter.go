package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"slices"

	"github.com/devilai/devil-console/internal/models"
	"github.com/tmaxmax/go-sse"
)

// OpenRouter provides an implementation of the LLM interface for interacting with OpenRouter's language models.
type OpenRouter struct {
	apiKey       string
	model        string
	systemPrompt string

	endpoint string
	client   *http.Client

	logger *slog.Logger
}

type openRouterChatRequest struct {
	Model    string              `json:"model"`
	Messages []openRouterMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
}

type openRouterStreamingResponse struct {
	Choices []openRouterStreamingChoice `json:"choices"`
}

type openRouterStreamingChoice struct {
	Delta openRouterMessage `json:"delta"`
}

const (
	openRouterAPIEndpoint = "https://openrouter.ai/api/v1"
)

// NewOpenRouter creates a new OpenRouter instance with the specified API key, model name, and system prompt.
func NewOpenRouter(apiKey, model, systemPrompt string, logger *slog.Logger) OpenRouter {
	return OpenRouter{
		apiKey:       apiKey,
		model:        model,
		systemPrompt: systemPrompt,
		endpoint:     openRouterAPIEndpoint,
		client:       &http.Client{},
		logger:       logger.With(slog.String("module", "openrouter")),
	}
}

// WithEndpoint returns a copy of o that talks to endpoint instead of the public API.
func (o OpenRouter) WithEndpoint(endpoint string) OpenRouter {
	o.endpoint = endpoint
	return o
}

// Chat streams responses from the OpenRouter API for a given sequence of messages. It returns an
// iterator that yields response chunks and potential errors. The context can be used to cancel
// ongoing requests.
func (o OpenRouter) Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := o.doRequest(ctx, messages)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				yield("", fmt.Errorf("error reading response: %w", err))
				return
			}

			o.logger.Debug("Received event",
				slog.String("event", ev.Data),
			)

			if ev.Data == "[DONE]" {
				return
			}

			var res openRouterStreamingResponse
			if err := json.Unmarshal([]byte(ev.Data), &res); err != nil {
				yield("", fmt.Errorf("error unmarshaling response: %w", err))
				return
			}

			if len(res.Choices) == 0 || res.Choices[0].Delta.Content == "" {
				continue
			}
			if !yield(res.Choices[0].Delta.Content, nil) {
				return
			}
		}
	}
}

func (o OpenRouter) doRequest(ctx context.Context, messages []models.Message) (*http.Response, error) {
	msgs := make([]openRouterMessage, 0, len(messages)+1)
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		msgs = append(msgs, openRouterMessage{
			Role:    apiRole(msg.Role),
			Content: msg.Content,
		})
	}
	msgs = slices.Insert(msgs, 0, openRouterMessage{
		Role:    "system",
		Content: o.systemPrompt,
	})

	reqBody := openRouterChatRequest{
		Model:    o.model,
		Messages: msgs,
		Stream:   true,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	o.logger.Debug("Request Body", slog.String("body", string(jsonBody)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.endpoint+"/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("X-Title", "Devil AI Console")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}
