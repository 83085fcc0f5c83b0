package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Provider names a Generator backend.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
)

// ProviderConfig selects and configures a Generator.
type ProviderConfig struct {
	Provider Provider
	Model    string
	BaseURL  string

	// APIKey overrides the provider's environment variable.
	APIKey string
}

// New builds an LLM oracle for cfg. Keys default to GEMINI_API_KEY or
// OPENAI_API_KEY.
func New(ctx context.Context, cfg ProviderConfig, logger *slog.Logger) (*LLM, error) {
	var gen Generator
	switch cfg.Provider {
	case ProviderGemini, "":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("GEMINI_API_KEY")
		}
		g, err := NewGemini(ctx, key, cfg.Model)
		if err != nil {
			return nil, err
		}
		gen = g
	case ProviderOpenAI:
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		if key == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai: OPENAI_API_KEY is not set")
		}
		gen = NewOpenAI(key, cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
	return NewLLM(gen, logger), nil
}
