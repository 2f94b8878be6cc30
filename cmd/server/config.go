package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/devilai/devil-console/internal/chat"
	"github.com/devilai/devil-console/internal/models"
	"github.com/devilai/devil-console/internal/roster"
	"github.com/devilai/devil-console/internal/services"
	"github.com/devilai/devil-console/internal/telemetry"
	"gopkg.in/yaml.v3"
)

const defaultSystemPrompt = `You are the Devil AI Overseer, a highly advanced AI agent responsible for managing a distributed multi-agent system.
Your tone is precise, technical, and objective.
You assist the user in planning tasks, debugging code, and analyzing system performance.
Always adhere to the Devil AI protocol: Be concise, structured, and objective.`

type llmConfig interface {
	name() string
	provider(systemPrompt string, logger *slog.Logger) (chat.Provider, error)
}

// BaseLLMConfig contains the common fields for all LLM configurations.
type BaseLLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
}

type config struct {
	Port           string          `yaml:"port"`
	SystemPrompt   string          `yaml:"systemPrompt"`
	WelcomeMessage string          `yaml:"welcomeMessage"`
	LLM            llmConfig       `yaml:"llm"`
	Telemetry      telemetryConfig `yaml:"telemetry"`
	Log            logConfig       `yaml:"log"`
	Metrics        metricsConfig   `yaml:"metrics"`
	Agents         []agentConfig   `yaml:"agents"`
}

type telemetryConfig struct {
	WindowSize      int `yaml:"windowSize"`
	IntervalSeconds int `yaml:"intervalSeconds"`
}

type logConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type metricsConfig struct {
	File            string `yaml:"file"`
	IntervalSeconds int    `yaml:"intervalSeconds"`
}

type agentConfig struct {
	Name         string   `yaml:"name"`
	Role         string   `yaml:"role"`
	Status       string   `yaml:"status"`
	Capabilities []string `yaml:"capabilities"`
}

type geminiConfig struct {
	BaseLLMConfig `yaml:",inline"`
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string `yaml:"host"`
}

type openAIConfig struct {
	BaseLLMConfig `yaml:",inline"`
	BaseURL       string                 `yaml:"baseURL"`
	Parameters    services.LLMParameters `yaml:"parameters"`
}

type anthropicConfig struct {
	BaseLLMConfig `yaml:",inline"`
	MaxTokens     int `yaml:"maxTokens"`
}

type openRouterConfig struct {
	BaseLLMConfig `yaml:",inline"`
}

func defaultConfig() config {
	return config{
		Port:         "8080",
		SystemPrompt: defaultSystemPrompt,
		LLM: &geminiConfig{
			BaseLLMConfig: BaseLLMConfig{Provider: "gemini", Model: services.DefaultGeminiModel},
		},
		Telemetry: telemetryConfig{
			WindowSize:      telemetry.DefaultWindowSize,
			IntervalSeconds: int(telemetry.DefaultInterval / time.Second),
		},
		Log: logConfig{Level: "info"},
		Metrics: metricsConfig{
			IntervalSeconds: 10,
		},
	}
}

// loadConfig reads the configuration at path on top of the defaults. A missing file is not an
// error, the console then runs on defaults alone.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return config{}, fmt.Errorf("error decoding config file: %w", err)
	}
	return cfg, nil
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port           string          `yaml:"port"`
		SystemPrompt   string          `yaml:"systemPrompt"`
		WelcomeMessage string          `yaml:"welcomeMessage"`
		LLM            map[string]any  `yaml:"llm"`
		Telemetry      telemetryConfig `yaml:"telemetry"`
		Log            logConfig       `yaml:"log"`
		Metrics        metricsConfig   `yaml:"metrics"`
		Agents         []agentConfig   `yaml:"agents"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	if rawConfig.Port != "" {
		c.Port = rawConfig.Port
	}
	if rawConfig.SystemPrompt != "" {
		c.SystemPrompt = rawConfig.SystemPrompt
	}
	c.WelcomeMessage = rawConfig.WelcomeMessage
	if rawConfig.Telemetry.WindowSize > 0 {
		c.Telemetry.WindowSize = rawConfig.Telemetry.WindowSize
	}
	if rawConfig.Telemetry.IntervalSeconds > 0 {
		c.Telemetry.IntervalSeconds = rawConfig.Telemetry.IntervalSeconds
	}
	if rawConfig.Log.Level != "" {
		c.Log.Level = rawConfig.Log.Level
	}
	c.Log.File = rawConfig.Log.File
	c.Metrics.File = rawConfig.Metrics.File
	if rawConfig.Metrics.IntervalSeconds > 0 {
		c.Metrics.IntervalSeconds = rawConfig.Metrics.IntervalSeconds
	}
	c.Agents = rawConfig.Agents

	if rawConfig.LLM == nil {
		return nil
	}

	llmProvider, ok := rawConfig.LLM["provider"].(string)
	if !ok {
		return fmt.Errorf("llm provider is required")
	}

	llmRawYAML, err := yaml.Marshal(rawConfig.LLM)
	if err != nil {
		return err
	}

	var llm llmConfig
	switch llmProvider {
	case "gemini":
		llm = &geminiConfig{}
	case "ollama":
		llm = &ollamaConfig{}
	case "openai":
		llm = &openAIConfig{}
	case "anthropic":
		llm = &anthropicConfig{}
	case "openrouter":
		llm = &openRouterConfig{}
	default:
		return fmt.Errorf("unknown llm provider: %s", llmProvider)
	}

	if err := yaml.Unmarshal(llmRawYAML, llm); err != nil {
		return err
	}

	c.LLM = llm

	return nil
}

func (c config) telemetryOptions() telemetry.Options {
	return telemetry.Options{
		WindowSize: c.Telemetry.WindowSize,
		Interval:   time.Duration(c.Telemetry.IntervalSeconds) * time.Second,
	}
}

// seedAgents returns the configured roster, or the default fleet when none is configured.
func (c config) seedAgents() ([]models.Agent, error) {
	if len(c.Agents) == 0 {
		return roster.DefaultAgents(), nil
	}

	agents := make([]models.Agent, len(c.Agents))
	for i, a := range c.Agents {
		role := models.AgentRole(strings.ToUpper(a.Role))
		if !role.Valid() {
			return nil, fmt.Errorf("agent %q: %w: %q", a.Name, roster.ErrInvalidRole, a.Role)
		}
		status := models.AgentStatus(strings.ToLower(a.Status))
		if status == "" {
			status = models.AgentStatusIdle
		}
		if !status.Valid() {
			return nil, fmt.Errorf("agent %q: %w: %q", a.Name, roster.ErrInvalidStatus, a.Status)
		}
		agents[i] = models.Agent{
			ID:           fmt.Sprintf("%d", i+1),
			Name:         a.Name,
			Role:         role,
			Status:       status,
			Capabilities: a.Capabilities,
		}
	}
	return agents, nil
}

// apiKey resolves the credential for a provider: the configured value first, then API_KEY, then the
// provider's own environment variable. An empty result is not an error here, it surfaces on the
// first send.
func apiKey(configured, providerEnv string) string {
	if configured != "" {
		return configured
	}
	if k := os.Getenv("API_KEY"); k != "" {
		return k
	}
	return os.Getenv(providerEnv)
}

func (g geminiConfig) name() string { return "gemini" }

func (g geminiConfig) provider(systemPrompt string, logger *slog.Logger) (chat.Provider, error) {
	return services.NewGemini(apiKey(g.APIKey, "GEMINI_API_KEY"), g.Model, systemPrompt, logger), nil
}

func (o ollamaConfig) name() string { return "ollama" }

func (o ollamaConfig) provider(systemPrompt string, _ *slog.Logger) (chat.Provider, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = "http://localhost:11434"
	}
	llm, err := services.NewOllama(host, o.Model, systemPrompt)
	if err != nil {
		return nil, err
	}
	return services.NewHistoryProvider(llm), nil
}

func (o openAIConfig) name() string { return "openai" }

func (o openAIConfig) provider(systemPrompt string, logger *slog.Logger) (chat.Provider, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	llm := services.NewOpenAI(apiKey(o.APIKey, "OPENAI_API_KEY"), o.BaseURL, o.Model, systemPrompt, o.Parameters, logger)
	return services.NewHistoryProvider(llm), nil
}

func (a anthropicConfig) name() string { return "anthropic" }

func (a anthropicConfig) provider(systemPrompt string, _ *slog.Logger) (chat.Provider, error) {
	if a.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if a.MaxTokens == 0 {
		return nil, fmt.Errorf("maxTokens is required")
	}
	llm := services.NewAnthropic(apiKey(a.APIKey, "ANTHROPIC_API_KEY"), a.Model, systemPrompt, a.MaxTokens)
	return services.NewHistoryProvider(llm), nil
}

func (o openRouterConfig) name() string { return "openrouter" }

func (o openRouterConfig) provider(systemPrompt string, logger *slog.Logger) (chat.Provider, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	llm := services.NewOpenRouter(apiKey(o.APIKey, "OPENROUTER_API_KEY"), o.Model, systemPrompt, logger)
	return services.NewHistoryProvider(llm), nil
}
