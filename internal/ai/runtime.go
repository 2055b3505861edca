package ai

import (
	"context"
	"strings"
)

// Runtime is implemented by every chat backend.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers accepted by GetRuntime.
const (
	ProviderGroq       = "groq"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// RequiresAPIKey reports whether provider is a remote service needing a credential.
func RequiresAPIKey(provider string) bool {
	return !strings.EqualFold(provider, ProviderOllama)
}
