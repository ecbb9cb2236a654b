package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/email-classifier/")
	v.AddConfigPath("$HOME/.email-classifier")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("EMAIL_CLASSIFIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// LLM provider defaults, settable per task
	v.SetDefault("llm.classification_provider", "openai")
	v.SetDefault("llm.extraction_provider", "openai")

	// HTTP server defaults
	v.SetDefault("server.http.enabled", true)
	v.SetDefault("server.http.listen_address", "0.0.0.0:8080")
	v.SetDefault("server.http.read_timeout", "30s")
	v.SetDefault("server.http.write_timeout", "120s")

	// SMTP ingestion defaults
	v.SetDefault("server.smtp.enabled", false)
	v.SetDefault("server.smtp.listen_address", "0.0.0.0:10025")
	v.SetDefault("server.smtp.relay_address", "")
	v.SetDefault("server.smtp.domain", "localhost")
	v.SetDefault("server.smtp.headers.request_type", "X-Classification-Request-Type")
	v.SetDefault("server.smtp.headers.sub_request_type", "X-Classification-Sub-Request-Type")
	v.SetDefault("server.smtp.headers.confidence", "X-Classification-Confidence")
	v.SetDefault("server.smtp.headers.support_group", "X-Classification-Support-Group")
	v.SetDefault("server.smtp.headers.duplicate", "X-Duplicate-Status")
	v.SetDefault("server.smtp.headers.duplicate_reason", "X-Duplicate-Reason")

	// OpenAI defaults
	v.SetDefault("openai.model_name", "gpt-4o")
	v.SetDefault("openai.max_tokens", 2000)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)
	v.SetDefault("openai.timeout", "60s")

	// Gemini defaults
	v.SetDefault("gemini.model_name", "gemini-1.5-pro")
	v.SetDefault("gemini.max_tokens", 2000)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)
	v.SetDefault("gemini.timeout", "60s")

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-3-sonnet-20240229-v1:0")
	v.SetDefault("bedrock.max_tokens", 2000)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)
	v.SetDefault("bedrock.timeout", "60s")

	// Embedding defaults
	v.SetDefault("embedding.provider", "lexical")
	v.SetDefault("embedding.model_name", "text-embedding-3-small")
	v.SetDefault("embedding.timeout", "30s")
	v.SetDefault("embedding.requests_per_second", 5.0)

	// Duplicate detection defaults
	v.SetDefault("dedupe.cache_days", 14)
	v.SetDefault("dedupe.cache_size", 10000)
	v.SetDefault("dedupe.semantic_threshold", 0.8)
	v.SetDefault("dedupe.metadata_weight", 0.6)
	v.SetDefault("dedupe.subject_weight", 0.3)
	v.SetDefault("dedupe.content_weight", 0.7)
	v.SetDefault("dedupe.time_window_hours", 72)

	// Taxonomy and extraction rules
	v.SetDefault("taxonomy.path", "./configs/request_types.json")
	v.SetDefault("extraction.rules_path", "")
	v.SetDefault("extraction.max_body_size", 16384)

	// Analytics defaults
	v.SetDefault("analytics.type", "none")
	v.SetDefault("analytics.sqlite_path", "/data/classification_history.db")
	v.SetDefault("analytics.mysql_dsn", "user:password@tcp(localhost:3306)/email_classifier")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
