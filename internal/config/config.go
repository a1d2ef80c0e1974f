// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (GROWLOG_ prefix, runtime override)
//  2. Config file (./growlog.yaml or --config)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, model selection, temperatures, embedder
//   - Storage: PostgreSQL connection for the pgvector knowledge base
//   - Collections: knowledge and nutrition collection names
//   - Server: HTTP listen address
//
// Sensitive data (the Postgres password) is never logged.
// Validation uses sentinel errors for errors.Is checks.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates a model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates a temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidCollection indicates a collection name is not a valid identifier.
	ErrInvalidCollection = errors.New("invalid collection name")

	// ErrInvalidPostgres indicates the PostgreSQL settings are incomplete.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL configuration")

	// ErrInvalidTimeout indicates the external call timeout is out of range.
	ErrInvalidTimeout = errors.New("invalid call timeout")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"
)

// Default model identifiers. Model names carry the provider prefix so
// Genkit can resolve them directly via ai.WithModelName.
const (
	DefaultModel       = "googleai/gemini-2.5-flash"
	DefaultAdviceModel = "googleai/gemini-2.5-flash-lite"
	DefaultEmbedder    = "gemini-embedding-001"
)

// Config stores application configuration.
type Config struct {
	// AI provider and model configuration
	Provider    string `mapstructure:"provider" json:"provider"`         // "googleai" (default) or "openai"
	ModelName   string `mapstructure:"model_name" json:"model_name"`     // chat/vision model
	AdviceModel string `mapstructure:"advice_model" json:"advice_model"` // lighter model for short advice text

	// Task temperatures. Classification is pinned near zero so the
	// model behaves as a deterministic classifier; plan generation is
	// allowed to be creative.
	ClassifyTemperature float32 `mapstructure:"classify_temperature" json:"classify_temperature"`
	AdviceTemperature   float32 `mapstructure:"advice_temperature" json:"advice_temperature"`
	PlanTemperature     float32 `mapstructure:"plan_temperature" json:"plan_temperature"`

	// RAG configuration
	EmbedderModel       string `mapstructure:"embedder_model" json:"embedder_model"`
	KnowledgeCollection string `mapstructure:"knowledge_collection" json:"knowledge_collection"`
	NutritionCollection string `mapstructure:"nutrition_collection" json:"nutrition_collection"`
	RetrievalTopK       int    `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`

	// External call budget. Every embedding/completion/vector call is
	// bounded by CallTimeout; transient failures are retried up to
	// MaxRetries times with exponential backoff.
	CallTimeout time.Duration `mapstructure:"call_timeout" json:"call_timeout"`
	MaxRetries  int           `mapstructure:"max_retries" json:"max_retries"`

	// Outbound model call rate limit (requests per second).
	ModelRateLimit float64 `mapstructure:"model_rate_limit" json:"model_rate_limit"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"-"` // SENSITIVE: excluded from JSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Server configuration
	HTTPAddr string `mapstructure:"http_addr" json:"http_addr"`

	// Observability (OTLP trace export, disabled when AgentHost empty)
	OTLPAgentHost string `mapstructure:"otlp_agent_host" json:"otlp_agent_host"`
	ServiceName   string `mapstructure:"service_name" json:"service_name"`
	Environment   string `mapstructure:"environment" json:"environment"`
}

// Load reads configuration from defaults, an optional config file, and
// GROWLOG_-prefixed environment variables.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("GROWLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("growlog")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		// Missing file is fine; env vars and defaults still apply.
		var notFound viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGoogleAI)
	v.SetDefault("model_name", DefaultModel)
	v.SetDefault("advice_model", DefaultAdviceModel)

	v.SetDefault("classify_temperature", 0.0)
	v.SetDefault("advice_temperature", 0.5)
	v.SetDefault("plan_temperature", 0.7)

	v.SetDefault("embedder_model", DefaultEmbedder)
	v.SetDefault("knowledge_collection", "exercise_knowledge")
	v.SetDefault("nutrition_collection", "nutrition_facts")
	v.SetDefault("retrieval_top_k", 5)

	v.SetDefault("call_timeout", 30*time.Second)
	v.SetDefault("max_retries", 3)
	v.SetDefault("model_rate_limit", 5.0)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "growlog")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_db_name", "growlog")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("http_addr", "127.0.0.1:8000")

	v.SetDefault("otlp_agent_host", "")
	v.SetDefault("service_name", "growlog-ai")
	v.SetDefault("environment", "development")
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGoogleAI, ProviderOpenAI:
	default:
		return fmt.Errorf("%w: %q (expected %q or %q)",
			ErrInvalidProvider, c.Provider, ProviderGoogleAI, ProviderOpenAI)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name is empty", ErrInvalidModelName)
	}
	if c.AdviceModel == "" {
		return fmt.Errorf("%w: advice_model is empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model is empty", ErrInvalidModelName)
	}

	for _, temp := range []float32{c.ClassifyTemperature, c.AdviceTemperature, c.PlanTemperature} {
		if temp < 0 || temp > 2 {
			return fmt.Errorf("%w: %v (expected 0.0-2.0)", ErrInvalidTemperature, temp)
		}
	}

	for _, name := range []string{c.KnowledgeCollection, c.NutritionCollection} {
		if !validCollectionName(name) {
			return fmt.Errorf("%w: %q (expected lowercase letters, digits, underscores)",
				ErrInvalidCollection, name)
		}
	}

	if c.PostgresHost == "" || c.PostgresDBName == "" || c.PostgresUser == "" {
		return fmt.Errorf("%w: host, user and db_name are required", ErrInvalidPostgres)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidPostgres, c.PostgresPort)
	}

	if c.CallTimeout < time.Second || c.CallTimeout > 5*time.Minute {
		return fmt.Errorf("%w: %v (expected 1s-5m)", ErrInvalidTimeout, c.CallTimeout)
	}

	return nil
}

// validCollectionName reports whether name is safe to embed in a SQL
// identifier: lowercase letter first, then lowercase letters, digits or
// underscores, at most 48 characters.
func validCollectionName(name string) bool {
	if name == "" || len(name) > 48 {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r == '_' && i > 0:
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// PostgresURL returns the connection URL in postgres:// format, as
// expected by golang-migrate and pgx.
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   c.PostgresDBName,
	}
	if c.PostgresPassword != "" {
		u.User = url.UserPassword(c.PostgresUser, c.PostgresPassword)
	} else {
		u.User = url.User(c.PostgresUser)
	}
	q := u.Query()
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
