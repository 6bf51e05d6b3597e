// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.faithh/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Providers: cloud/local model selection, Ollama host, timeouts
//   - Storage: PostgreSQL connection for the vector index, data
//     directory for persistent JSON documents
//   - Retrieval: distance threshold, result caps, domain keywords
//   - Sessions: history cap, idle timeout, sweep threshold
//
// Security: sensitive data (passwords) is never logged; the data
// directory is created with 0750 permissions.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidThreshold indicates the retrieval distance threshold is out of range.
	ErrInvalidThreshold = errors.New("invalid retrieval distance threshold")

	// ErrInvalidHistoryLimit indicates the session history cap is out of range.
	ErrInvalidHistoryLimit = errors.New("invalid session history limit")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidTimeout indicates a timeout value is out of range.
	ErrInvalidTimeout = errors.New("invalid timeout")
)

// Provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Provider preference: which backend is tried first.
	Provider string `mapstructure:"provider" json:"provider"` // "gemini" (default) or "ollama"

	// CloudModel is the Gemini model used by the cloud provider.
	CloudModel string `mapstructure:"cloud_model" json:"cloud_model"`

	// LocalModel is the Ollama model used by the local provider.
	LocalModel string `mapstructure:"local_model" json:"local_model"`

	// OllamaHost is the local model server address.
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// EmbedderModel generates vectors for the knowledge index.
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Timeouts, in seconds.
	GenerationTimeoutSeconds int `mapstructure:"generation_timeout_seconds" json:"generation_timeout_seconds"`
	RetrievalTimeoutSeconds  int `mapstructure:"retrieval_timeout_seconds" json:"retrieval_timeout_seconds"`
	StatusTimeoutSeconds     int `mapstructure:"status_timeout_seconds" json:"status_timeout_seconds"`

	// DataDir holds the persistent JSON documents (profile, decisions,
	// project states, scaffold).
	DataDir string `mapstructure:"data_dir" json:"data_dir"`

	// PostgreSQL connection for the vector index.
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Retrieval tuning. The distance threshold gates the
	// conversation-first search path; results at or above it fall
	// through to broader filters.
	RetrievalDistanceThreshold float64  `mapstructure:"retrieval_distance_threshold" json:"retrieval_distance_threshold"`
	RetrievalTopK              int      `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`
	DomainKeywords             []string `mapstructure:"domain_keywords" json:"domain_keywords"`
	DomainCategory             string   `mapstructure:"domain_category" json:"domain_category"`

	// Session management.
	SessionHistoryLimit   int `mapstructure:"session_history_limit" json:"session_history_limit"`
	SessionIdleMinutes    int `mapstructure:"session_idle_minutes" json:"session_idle_minutes"`
	SessionSweepWatermark int `mapstructure:"session_sweep_watermark" json:"session_sweep_watermark"`

	// IndexQueueSize bounds the background indexing queue.
	IndexQueueSize int `mapstructure:"index_queue_size" json:"index_queue_size"`

	// ListenAddr is the HTTP API bind address (serve mode).
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".faithh")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults(configDir)
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(configDir string) {
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("cloud_model", "gemini-2.5-flash")
	viper.SetDefault("local_model", "llama3.1")
	viper.SetDefault("ollama_host", "http://localhost:11434")
	viper.SetDefault("embedder_model", "gemini-embedding-001")

	viper.SetDefault("generation_timeout_seconds", 90)
	viper.SetDefault("retrieval_timeout_seconds", 5)
	viper.SetDefault("status_timeout_seconds", 5)

	viper.SetDefault("data_dir", filepath.Join(configDir, "data"))

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "faithh")
	viper.SetDefault("postgres_password", "faithh_dev_password")
	viper.SetDefault("postgres_db_name", "faithh")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("retrieval_distance_threshold", 0.7)
	viper.SetDefault("retrieval_top_k", 3)
	viper.SetDefault("domain_keywords", []string{
		"constella", "astris", "auctor", "civic tome", "penumbra",
		"ucf", "resonance gap", "harmonic", "celestial equilibrium",
	})
	viper.SetDefault("domain_category", "domain_reference")

	viper.SetDefault("session_history_limit", 10)
	viper.SetDefault("session_idle_minutes", 60)
	viper.SetDefault("session_sweep_watermark", 50)

	viper.SetDefault("index_queue_size", 64)

	viper.SetDefault("listen_addr", "localhost:5557")
}

// bindEnvVariables binds environment overrides explicitly.
// GEMINI_API_KEY is read directly by the Genkit googleai plugin, not
// via viper; its presence decides whether the cloud provider exists.
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "FAITHH_PROVIDER")
	mustBind("cloud_model", "FAITHH_CLOUD_MODEL")
	mustBind("local_model", "FAITHH_LOCAL_MODEL")
	mustBind("ollama_host", "FAITHH_OLLAMA_HOST")
	mustBind("data_dir", "FAITHH_DATA_DIR")
	mustBind("listen_addr", "FAITHH_LISTEN_ADDR")
	mustBind("postgres_host", "FAITHH_POSTGRES_HOST")
	mustBind("postgres_password", "FAITHH_POSTGRES_PASSWORD")
}

// PostgresURL returns the postgres:// URL form of the connection,
// used by golang-migrate.
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.PostgresUser),
		url.QueryEscape(c.PostgresPassword),
		c.PostgresHost, c.PostgresPort, c.PostgresDBName, c.PostgresSSLMode)
}

// PostgresConnectionString returns the keyword/value form used by pgx.
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword,
		c.PostgresDBName, c.PostgresSSLMode)
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Short secrets are
// fully masked to prevent substring matching; longer ones keep the
// first and last two characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field
// masking. When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
