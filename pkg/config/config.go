package config

import "github.com/quantdesk/agentmem/pkg/log"

// Config represents the top-level configuration for the agentmem library.
type Config struct {
	// Storage configures the backing relational store
	Storage StorageConfig `yaml:"storage"`

	// Memory configures the agent memory store and its ranking function
	Memory MemoryConfig `yaml:"memory"`

	// Reflection configures the verification scheduler
	Reflection ReflectionConfig `yaml:"reflection"`

	// Embedding configures the embedding provider
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Pricing configures the price oracle used by the verification cycle
	Pricing PricingConfig `yaml:"pricing"`

	// Logging configures the logging behavior
	Logging log.Config `yaml:"logging"`
}

// StorageConfig configures the relational store shared by memories and
// reflection records.
type StorageConfig struct {
	// Driver is the storage backend ("postgres", "sqlite")
	Driver string `yaml:"driver"`

	// DSN is the data source name (connection string or sqlite path)
	DSN string `yaml:"dsn"`
}

// MemoryConfig configures the memory store and the ranking weights.
// All values are read once at construction and fixed for the component's
// lifetime.
type MemoryConfig struct {
	// EnableVector toggles embedding generation; when false, queries rely on
	// the text-similarity fallback. Unset means enabled.
	EnableVector *bool `yaml:"enable_vector"`

	// CandidateLimit bounds how many most-recent records a query considers
	CandidateLimit int `yaml:"candidate_limit"`

	// HalfLifeDays is the age at which the recency score reaches 0.5
	HalfLifeDays float64 `yaml:"half_life_days"`

	// SimilarityWeight weights the similarity component of the ranking score
	SimilarityWeight float64 `yaml:"w_sim"`

	// RecencyWeight weights the recency component of the ranking score
	RecencyWeight float64 `yaml:"w_recency"`

	// ReturnsWeight weights the outcome component of the ranking score
	ReturnsWeight float64 `yaml:"w_returns"`
}

// VectorsEnabled reports whether embedding generation is on. An absent
// enable_vector field counts as enabled.
func (m MemoryConfig) VectorsEnabled() bool {
	return m.EnableVector == nil || *m.EnableVector
}

// ReflectionConfig configures the verification scheduler.
type ReflectionConfig struct {
	// CheckDays is the default number of days between recording a prediction
	// and verifying it
	CheckDays int `yaml:"check_days"`

	// Schedule is a cron expression controlling how often the reflection
	// daemon runs a verification cycle
	Schedule string `yaml:"schedule"`

	// MemoryAgent is the agent whose memory receives verification verdicts
	MemoryAgent string `yaml:"memory_agent"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is the embedding backend ("local", "openai", "mock")
	Provider string `yaml:"provider"`

	// Dimensions is the fixed embedding vector length
	Dimensions int `yaml:"dimensions"`

	// OpenAI configures the OpenAI provider
	OpenAI OpenAIConfig `yaml:"openai"`
}

// OpenAIConfig configures the OpenAI embedding provider.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key
	APIKey string `yaml:"api_key"`

	// Model is the embedding model to use
	Model string `yaml:"model"`

	// BaseURL overrides the API endpoint (for testing)
	BaseURL string `yaml:"base_url"`
}

// PricingConfig configures the price oracle.
type PricingConfig struct {
	// BaseURL is the address of the market-data service exposing the
	// current-price endpoint
	BaseURL string `yaml:"base_url"`

	// TimeoutSeconds bounds each price lookup; a timeout is treated the same
	// as missing price data
	TimeoutSeconds int `yaml:"timeout_seconds"`
}
