package handlers

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	devilconsole "github.com/devilai/devil-console"
	"github.com/devilai/devil-console/internal/chat"
	"github.com/devilai/devil-console/internal/metrics"
	"github.com/devilai/devil-console/internal/roster"
	"github.com/devilai/devil-console/internal/telemetry"
	"github.com/tmaxmax/go-sse"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

const errLoggerKey = "err"

// Options configures Main. Zero values fall back to sensible defaults.
type Options struct {
	// ProviderName labels metrics and logs with the configured text generation back-end.
	ProviderName   string
	WelcomeMessage string
	Telemetry      telemetry.Options

	Recorder *metrics.Recorder
	Logger   *slog.Logger
}

// Main handles the core functionality of the console, managing server-sent events, HTML templates,
// and the interactions between the chat session manager, the agent roster and the telemetry
// simulator.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template
	markdown  goldmark.Markdown

	chats        *chat.Manager
	conversation *chat.Conversation
	roster       *roster.Roster

	telemetryOpts telemetry.Options
	providerName  string

	recorder *metrics.Recorder
	logger   *slog.Logger
}

// NewMain creates a new Main instance backed by provider and agents. It initializes the SSE server
// and parses the required HTML templates from the embedded filesystem. No chat session exists until
// the chat view is first rendered.
func NewMain(provider chat.Provider, agents *roster.Roster, opts Options) (Main, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.Noop()
	}

	m := Main{
		markdown: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				highlighting.NewHighlighting(highlighting.WithStyle("monokai")),
			),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		chats:         chat.NewManager(provider, logger),
		conversation:  chat.NewConversation(opts.WelcomeMessage),
		roster:        agents,
		telemetryOpts: opts.Telemetry,
		providerName:  opts.ProviderName,
		recorder:      recorder,
		logger:        logger.With(slog.String("module", "main")),
	}

	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"markdown": m.renderMarkdown,
		"clock": func(t time.Time) string {
			return t.Format("15:04")
		},
	}).ParseFS(
		devilconsole.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, err
	}
	m.templates = tmpl

	m.sseSrv = &sse.Server{
		OnSession: func(s *sse.Session) (sse.Subscription, bool) {
			topics := []string{sse.DefaultTopic}

			// We create a message-specific topic if the client requests updates for a particular message
			messageID := s.Req.URL.Query().Get("message_id")
			if messageID != "" {
				topics = append(topics, messageIDTopic(messageID))
			}

			return sse.Subscription{
				Client:      s,
				LastEventID: s.LastEventID,
				Topics:      topics,
			}, true
		},
	}

	return m, nil
}

func messageIDTopic(messageID string) string {
	return fmt.Sprintf("message-%s", messageID)
}

func (m Main) renderMarkdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := m.markdown.Convert([]byte(src), &buf); err != nil {
		m.logger.Error("Failed to render markdown", slog.String(errLoggerKey, err.Error()))
		return template.HTML(template.HTMLEscapeString(src))
	}
	// Raw HTML in src is escaped since the renderer is not built with html.WithUnsafe.
	return template.HTML(buf.String())
}

// Shutdown gracefully terminates the Main instance's SSE server. It broadcasts a close message to all
// connected clients and waits up to 5 seconds for connections to terminate. After the timeout, any
// remaining connections are forcefully closed.
func (m Main) Shutdown(ctx context.Context) error {
	e := &sse.Message{Type: sse.Type("closeChat")}
	// We create a close event that complies with SSE spec requiring data
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}
