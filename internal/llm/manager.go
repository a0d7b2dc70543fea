package llm

import (
	"github.com/jacques-ia/relais/internal/config"
	"github.com/jacques-ia/relais/internal/logger"
)

// ModelInfo describes one configurable provider for API listings
type ModelInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// Manager selects the completion client from configuration. Anthropic is
// preferred when both providers carry keys, matching the original
// product's ordering of paid providers.
type Manager struct {
	client    Client
	anthropic bool
	openai    bool
}

// NewManager builds the manager from config, falling back to the canned
// client when no key is configured.
func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		anthropic: cfg.Anthropic.APIKey != "",
		openai:    cfg.OpenAI.APIKey != "",
	}

	switch {
	case m.anthropic:
		client, err := NewAnthropicClient(cfg.Anthropic.APIKey, cfg.Anthropic.Model)
		if err != nil {
			logger.Warn("Anthropic client unavailable: %v", err)
			break
		}
		m.client = client
	case m.openai:
		client, err := NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
		if err != nil {
			logger.Warn("OpenAI client unavailable: %v", err)
			break
		}
		m.client = client
	}

	if m.client == nil {
		logger.Info("No AI provider configured, using fallback responses")
		m.client = NewFallbackClient()
	}

	return m
}

// Client returns the active completion client
func (m *Manager) Client() Client {
	return m.client
}

// Models lists the known providers and their availability
func (m *Manager) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "anthropic", Name: "Claude 3.5 Sonnet", Available: m.anthropic},
		{ID: "openai", Name: "OpenAI GPT-4", Available: m.openai},
	}
}
