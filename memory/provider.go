package memory

import (
	"context"

	"github.com/beadswarm/beads/types"
)

var errUnavailable = types.NewError(types.ErrExternalUnavailable, "no embedding provider configured")

// ProviderKind identifies an embedding provider implementation.
type ProviderKind string

const (
	ProviderOpenAI ProviderKind = "openai"
	ProviderOllama ProviderKind = "ollama"
	ProviderNone   ProviderKind = "none"
)

// Embedding is the result of a single Generate call.
type Embedding struct {
	Vector     []float64
	Model      string
	TokensUsed int
}

// Provider is the external embedding collaborator. The core only ever
// depends on this interface; no concrete OpenAI/Ollama client lives in
// this module.
type Provider interface {
	Kind() ProviderKind
	Generate(ctx context.Context, text string) (*Embedding, error)
	GenerateBatch(ctx context.Context, texts []string) ([]*Embedding, error)
	HealthCheck(ctx context.Context) bool
	IsAvailable() bool
}

// NoneProvider is the degrade-gracefully default: it reports itself
// unavailable so callers fall back to substring search over content.
type NoneProvider struct{}

var _ Provider = NoneProvider{}

func (NoneProvider) Kind() ProviderKind { return ProviderNone }

func (NoneProvider) Generate(ctx context.Context, text string) (*Embedding, error) {
	return nil, errUnavailable
}

func (NoneProvider) GenerateBatch(ctx context.Context, texts []string) ([]*Embedding, error) {
	return nil, errUnavailable
}

func (NoneProvider) HealthCheck(ctx context.Context) bool { return false }

func (NoneProvider) IsAvailable() bool { return false }
