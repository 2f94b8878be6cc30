package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devilai/devil-console/internal/models"
	"github.com/devilai/devil-console/internal/roster"
	"github.com/devilai/devil-console/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, defaultSystemPrompt, cfg.SystemPrompt)
	assert.Equal(t, "gemini", cfg.LLM.name())
	assert.Equal(t, services.DefaultGeminiModel, cfg.LLM.(*geminiConfig).Model)
	assert.Equal(t, 21, cfg.telemetryOptions().WindowSize)
	assert.Equal(t, 2*time.Second, cfg.telemetryOptions().Interval)
}

func TestLoadConfigEmptyFile(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.name())
}

func TestLoadConfigProviders(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		provider string
		wantErr  string
	}{
		{
			name:     "gemini",
			yaml:     "llm:\n  provider: gemini\n  model: gemini-2.5-pro\n",
			provider: "gemini",
		},
		{
			name:     "ollama",
			yaml:     "llm:\n  provider: ollama\n  model: llama3\n  host: http://localhost:11434\n",
			provider: "ollama",
		},
		{
			name:     "openai",
			yaml:     "llm:\n  provider: openai\n  model: gpt-4o\n  parameters:\n    temperature: 0.2\n",
			provider: "openai",
		},
		{
			name:     "anthropic",
			yaml:     "llm:\n  provider: anthropic\n  model: claude\n  maxTokens: 1024\n",
			provider: "anthropic",
		},
		{
			name:     "openrouter",
			yaml:     "llm:\n  provider: openrouter\n  model: some/model\n",
			provider: "openrouter",
		},
		{
			name:    "unknown provider",
			yaml:    "llm:\n  provider: skynet\n",
			wantErr: "unknown llm provider",
		},
		{
			name:    "missing provider",
			yaml:    "llm:\n  model: x\n",
			wantErr: "llm provider is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadConfig(writeConfig(t, tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.provider, cfg.LLM.name())

			p, err := cfg.LLM.provider(cfg.SystemPrompt, slog.Default())
			require.NoError(t, err)
			assert.NotNil(t, p)
		})
	}
}

func TestProviderValidation(t *testing.T) {
	_, err := anthropicConfig{BaseLLMConfig: BaseLLMConfig{Model: "claude"}}.provider("", slog.Default())
	assert.ErrorContains(t, err, "maxTokens")

	_, err = ollamaConfig{}.provider("", slog.Default())
	assert.ErrorContains(t, err, "model is required")
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, `
port: "9000"
welcomeMessage: Ready.
telemetry:
  windowSize: 30
  intervalSeconds: 1
log:
  level: debug
agents:
  - name: Omega
    role: overseer
    capabilities: [Planning]
  - name: Sigma
    role: ANALYST
    status: offline
`))
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "Ready.", cfg.WelcomeMessage)
	assert.Equal(t, defaultSystemPrompt, cfg.SystemPrompt)
	assert.Equal(t, 30, cfg.telemetryOptions().WindowSize)
	assert.Equal(t, time.Second, cfg.telemetryOptions().Interval)
	assert.Equal(t, slog.LevelDebug, parseLevel(cfg.Log.Level))

	agents, err := cfg.seedAgents()
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, models.AgentRoleOverseer, agents[0].Role)
	assert.Equal(t, models.AgentStatusIdle, agents[0].Status)
	assert.Equal(t, []string{"Planning"}, agents[0].Capabilities)
	assert.Equal(t, models.AgentStatusOffline, agents[1].Status)
}

func TestSeedAgentsDefaultsAndValidation(t *testing.T) {
	agents, err := defaultConfig().seedAgents()
	require.NoError(t, err)
	assert.Equal(t, roster.DefaultAgents(), agents)

	cfg := defaultConfig()
	cfg.Agents = []agentConfig{{Name: "x", Role: "PILOT"}}
	_, err = cfg.seedAgents()
	assert.ErrorIs(t, err, roster.ErrInvalidRole)
}

func TestAPIKeyResolution(t *testing.T) {
	t.Setenv("API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "provider-key")
	assert.Equal(t, "provider-key", apiKey("", "GEMINI_API_KEY"))

	t.Setenv("API_KEY", "shared-key")
	assert.Equal(t, "shared-key", apiKey("", "GEMINI_API_KEY"))
	assert.Equal(t, "configured", apiKey("configured", "GEMINI_API_KEY"))
}

func TestNewLoggerWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")

	logger, closer := newLogger(logConfig{Level: "warn", File: path})
	logger.With(slog.String("module", "test")).Info("quiet")
	logger.With(slog.String("module", "test")).Warn("loud")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "loud", rec["msg"])
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "test", rec["module"])
	assert.NotContains(t, string(data), "quiet")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}
