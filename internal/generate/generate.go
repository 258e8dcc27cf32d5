// Package generate turns a natural-language goal into a list of task titles.
package generate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrGeneration wraps every failure of the text-generation backend.
var ErrGeneration = errors.New("generation failed")

// Generator breaks a goal down into task titles, in the order they should be done.
type Generator interface {
	Breakdown(ctx context.Context, goal string) ([]string, error)
}

// Provider names accepted in config.
const (
	ProviderSimulated = "simulated"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
)

type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	// Latency only applies to the simulated provider.
	Latency  time.Duration
	Timeout  time.Duration
	MaxTasks int
}

// New builds the generator for cfg.Provider.
func New(ctx context.Context, cfg Config) (Generator, error) {
	switch cfg.Provider {
	case "", ProviderSimulated:
		return Simulated{Latency: cfg.Latency}, nil
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderOllama:
		cm, err := NewChatModel(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewLLM(ctx, cm, LLMOptions{Timeout: cfg.Timeout, MaxTasks: cfg.MaxTasks})
	default:
		return nil, fmt.Errorf("unsupported generator provider: %s (supported: simulated, openai, anthropic, gemini, ollama)", cfg.Provider)
	}
}
