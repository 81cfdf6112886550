package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/quantdesk/agentmem/pkg/log"
	"github.com/sashabaranov/go-openai"
)

var (
	// ErrEmptyAPIKey is returned when the API key is missing.
	ErrEmptyAPIKey = errors.New("API key cannot be empty")
)

// Config holds the configuration for the OpenAI embedding provider.
type Config struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// Model is the embedding model, e.g., "text-embedding-3-small".
	Model string
	// Dimensions is the expected vector length for the model.
	Dimensions int
	// BaseURL is the base URL for the OpenAI API (for testing).
	BaseURL string
}

// Provider implements the embedding.Provider interface using the OpenAI API.
type Provider struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewProvider creates a new OpenAI embedding provider.
func NewProvider(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	// Set defaults if not specified
	if config.Model == "" {
		config.Model = "text-embedding-3-small"
	}
	if config.Dimensions <= 0 {
		config.Dimensions = 1536
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &Provider{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      config.Model,
		dimensions: config.Dimensions,
	}, nil
}

// Embed generates the embedding for text using the OpenAI API.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	request := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.model),
	}

	response, err := p.client.CreateEmbeddings(ctx, request)
	if err != nil {
		log.Error("Failed to generate embedding", "error", err, "model", p.model)
		return nil, err
	}

	if len(response.Data) == 0 {
		return nil, fmt.Errorf("empty embedding response from model %s", p.model)
	}

	vec := response.Data[0].Embedding
	if len(vec) != p.dimensions {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, expected %d", len(vec), p.dimensions)
	}

	log.Debug("Generated embedding", "model", p.model, "dimension", len(vec))

	return vec, nil
}

// Dimensions returns the fixed vector length for the configured model.
func (p *Provider) Dimensions() int {
	return p.dimensions
}
