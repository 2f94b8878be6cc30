package services_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/devilai/devil-console/internal/models"
	"github.com/devilai/devil-console/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func conversation() []models.Message {
	return []models.Message{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleModel, Content: "hello operator"},
		{Role: models.RoleModel, Content: ""},
		{Role: models.RoleUser, Content: "status?"},
	}
}

func TestOpenAIChat(t *testing.T) {
	var got struct {
		Model    string        `json:"model"`
		Stream   bool          `json:"stream"`
		Messages []wireMessage `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	o := services.NewOpenAI("key", srv.URL, "gpt", "be terse", services.LLMParameters{}, discardLogger())

	out, err := collect(t, o.Chat(context.Background(), conversation()))
	require.NoError(t, err)
	assert.Equal(t, "Hello", out)

	assert.Equal(t, "gpt", got.Model)
	assert.True(t, got.Stream)
	assert.Equal(t, []wireMessage{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello operator"},
		{Role: "user", Content: "status?"},
	}, got.Messages)
}

func TestOpenAIUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	o := services.NewOpenAI("", srv.URL, "gpt", "", services.LLMParameters{}, discardLogger())

	_, err := collect(t, o.Chat(context.Background(), userMessages("hi")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Incorrect API key")
}

func ollamaServer(t *testing.T, got *[]wireMessage, chunks ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req struct {
			Model    string        `json:"model"`
			Messages []wireMessage `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		if got != nil {
			*got = req.Messages
		}

		// Every chunk goes out in a single write so the client has them all buffered at once.
		var body strings.Builder
		for _, c := range chunks {
			fmt.Fprintf(&body, "{\"model\":\"llama3\",\"message\":{\"role\":\"assistant\",\"content\":%q},\"done\":false}\n", c)
		}
		body.WriteString("{\"model\":\"llama3\",\"message\":{\"role\":\"assistant\",\"content\":\"\"},\"done\":true}\n")

		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprint(w, body.String())
	}))
}

func TestOllamaChat(t *testing.T) {
	var got []wireMessage
	srv := ollamaServer(t, &got, "Hel", "lo")
	defer srv.Close()

	o, err := services.NewOllama(srv.URL, "llama3", "be terse")
	require.NoError(t, err)

	out, err := collect(t, o.Chat(context.Background(), conversation()[:2]))
	require.NoError(t, err)
	assert.Equal(t, "Hello", out)
	assert.Equal(t, []wireMessage{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello operator"},
	}, got)
}

func TestOllamaChatStopsWhenConsumerBreaks(t *testing.T) {
	srv := ollamaServer(t, nil, "one", "two", "three")
	defer srv.Close()

	o, err := services.NewOllama(srv.URL, "llama3", "")
	require.NoError(t, err)

	var seen []string
	for chunk, err := range o.Chat(context.Background(), userMessages("count")) {
		require.NoError(t, err)
		seen = append(seen, chunk)
		break
	}
	assert.Equal(t, []string{"one"}, seen)
}

func TestOllamaServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model \"llama3\" not found"}`)
	}))
	defer srv.Close()

	o, err := services.NewOllama(srv.URL, "llama3", "")
	require.NoError(t, err)

	_, err = collect(t, o.Chat(context.Background(), userMessages("hi")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestGeminiStream(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash:streamGenerateContent"),
			"unexpected path %s", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-goog-api-key"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		reqJSON, err := json.Marshal(req)
		require.NoError(t, err)
		bodies = append(bodies, string(reqJSON))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, text := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":%q}]}}]}\n\n", text)
		}
	}))
	defer srv.Close()

	g := services.NewGemini("key", "", "persona", discardLogger()).WithBaseURL(srv.URL + "/")

	s, err := g.NewSession(context.Background())
	require.NoError(t, err)

	out, err := collect(t, s.Stream(context.Background(), "hi"))
	require.NoError(t, err)
	assert.Equal(t, "Hello", out)

	joined := strings.Join(bodies, "\n")
	assert.Contains(t, joined, "persona")
	assert.Contains(t, joined, `"hi"`)
}
