package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/adhocore/gronx"
	"gopkg.in/yaml.v3"
)

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from a byte slice.
func LoadFromBytes(data []byte) (*Config, error) {
	var config Config

	err := yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply environment variable overrides
	if err := applyEnvironmentOverrides(&config); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	// Validate configuration and apply defaults
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// ParseBool parses a configuration boolean using an explicit grammar:
// {"1", "true", "yes", "y", "on"} and {"0", "false", "no", "n", "off"},
// case-insensitive. Anything else is an error rather than a truthy coercion.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("unrecognized boolean value: %q", s)
	}
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
func applyEnvironmentOverrides(config *Config) error {
	if driver := os.Getenv("AGENTMEM_STORAGE_DRIVER"); driver != "" {
		config.Storage.Driver = driver
	}
	if dsn := os.Getenv("AGENTMEM_STORAGE_DSN"); dsn != "" {
		config.Storage.DSN = dsn
	}

	if v := os.Getenv("AGENTMEM_MEMORY_ENABLE_VECTOR"); v != "" {
		enabled, err := ParseBool(v)
		if err != nil {
			return fmt.Errorf("AGENTMEM_MEMORY_ENABLE_VECTOR: %w", err)
		}
		config.Memory.EnableVector = &enabled
	}
	if v := os.Getenv("AGENTMEM_MEMORY_CANDIDATE_LIMIT"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AGENTMEM_MEMORY_CANDIDATE_LIMIT: %w", err)
		}
		config.Memory.CandidateLimit = limit
	}
	if v := os.Getenv("AGENTMEM_MEMORY_HALF_LIFE_DAYS"); v != "" {
		halfLife, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("AGENTMEM_MEMORY_HALF_LIFE_DAYS: %w", err)
		}
		config.Memory.HalfLifeDays = halfLife
	}
	for env, target := range map[string]*float64{
		"AGENTMEM_MEMORY_W_SIM":     &config.Memory.SimilarityWeight,
		"AGENTMEM_MEMORY_W_RECENCY": &config.Memory.RecencyWeight,
		"AGENTMEM_MEMORY_W_RETURNS": &config.Memory.ReturnsWeight,
	} {
		if v := os.Getenv(env); v != "" {
			w, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", env, err)
			}
			*target = w
		}
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.Embedding.OpenAI.APIKey = apiKey
	}

	if baseURL := os.Getenv("AGENTMEM_PRICING_BASE_URL"); baseURL != "" {
		config.Pricing.BaseURL = baseURL
	}

	return nil
}

// validateConfig validates the configuration and applies defaults.
func validateConfig(config *Config) error {
	// Validate storage configuration
	config.Storage.Driver = strings.ToLower(config.Storage.Driver)
	switch config.Storage.Driver {
	case "postgres", "sqlite":
		if config.Storage.DSN == "" {
			return fmt.Errorf("storage DSN is required for %s driver", config.Storage.Driver)
		}
	case "":
		return fmt.Errorf("storage driver is required")
	default:
		return fmt.Errorf("unsupported storage driver: %s", config.Storage.Driver)
	}

	// Validate memory configuration (apply defaults if needed)
	if config.Memory.EnableVector == nil {
		enabled := true
		config.Memory.EnableVector = &enabled
	}
	if config.Memory.CandidateLimit <= 0 {
		config.Memory.CandidateLimit = 500
	}
	if config.Memory.HalfLifeDays <= 0 {
		config.Memory.HalfLifeDays = 30
	}
	if config.Memory.SimilarityWeight == 0 && config.Memory.RecencyWeight == 0 && config.Memory.ReturnsWeight == 0 {
		config.Memory.SimilarityWeight = 0.75
		config.Memory.RecencyWeight = 0.20
		config.Memory.ReturnsWeight = 0.05
	}
	if config.Memory.SimilarityWeight < 0 || config.Memory.RecencyWeight < 0 || config.Memory.ReturnsWeight < 0 {
		return fmt.Errorf("ranking weights must be non-negative")
	}

	// Validate reflection configuration
	if config.Reflection.CheckDays <= 0 {
		config.Reflection.CheckDays = 7
	}
	if config.Reflection.Schedule == "" {
		config.Reflection.Schedule = "*/5 * * * *"
	}
	if !gronx.New().IsValid(config.Reflection.Schedule) {
		return fmt.Errorf("invalid reflection schedule: %s", config.Reflection.Schedule)
	}
	if config.Reflection.MemoryAgent == "" {
		config.Reflection.MemoryAgent = "trader_agent"
	}

	// Validate embedding configuration
	config.Embedding.Provider = strings.ToLower(config.Embedding.Provider)
	switch config.Embedding.Provider {
	case "", "local":
		config.Embedding.Provider = "local"
		if config.Embedding.Dimensions <= 0 {
			config.Embedding.Dimensions = 256
		}
	case "openai":
		if config.Embedding.OpenAI.Model == "" {
			config.Embedding.OpenAI.Model = "text-embedding-3-small"
		}
		if config.Embedding.Dimensions <= 0 {
			config.Embedding.Dimensions = 1536
		}
	case "mock":
		if config.Embedding.Dimensions <= 0 {
			config.Embedding.Dimensions = 8
		}
	default:
		return fmt.Errorf("unsupported embedding provider: %s", config.Embedding.Provider)
	}

	// Validate pricing configuration
	if config.Pricing.BaseURL == "" {
		return fmt.Errorf("pricing base URL is required")
	}
	if config.Pricing.TimeoutSeconds <= 0 {
		config.Pricing.TimeoutSeconds = 10
	}

	return nil
}
