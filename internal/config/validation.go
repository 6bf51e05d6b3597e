package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for invalid values. It is called by
// Load after unmarshalling, and may be called again on a Config built
// by hand in tests.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini, ProviderOllama:
	default:
		return fmt.Errorf("%w: %q (must be %q or %q)",
			ErrInvalidProvider, c.Provider, ProviderGemini, ProviderOllama)
	}

	if err := validateModelName(c.CloudModel); err != nil {
		return fmt.Errorf("cloud_model: %w", err)
	}
	if err := validateModelName(c.LocalModel); err != nil {
		return fmt.Errorf("local_model: %w", err)
	}
	if err := validateModelName(c.EmbedderModel); err != nil {
		return fmt.Errorf("embedder_model: %w", err)
	}

	if err := validateOllamaHost(c.OllamaHost); err != nil {
		return err
	}

	for _, t := range []struct {
		name    string
		seconds int
	}{
		{"generation_timeout_seconds", c.GenerationTimeoutSeconds},
		{"retrieval_timeout_seconds", c.RetrievalTimeoutSeconds},
		{"status_timeout_seconds", c.StatusTimeoutSeconds},
	} {
		if t.seconds < 1 || t.seconds > 600 {
			return fmt.Errorf("%w: %s = %d (must be 1-600)",
				ErrInvalidTimeout, t.name, t.seconds)
		}
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.RetrievalDistanceThreshold <= 0 || c.RetrievalDistanceThreshold > 2 {
		// Cosine distance ranges over [0, 2].
		return fmt.Errorf("%w: %g (must be in (0, 2])",
			ErrInvalidThreshold, c.RetrievalDistanceThreshold)
	}

	if c.RetrievalTopK < 1 || c.RetrievalTopK > 50 {
		return fmt.Errorf("retrieval_top_k out of range: %d (must be 1-50)", c.RetrievalTopK)
	}

	if c.SessionHistoryLimit < 1 || c.SessionHistoryLimit > 1000 {
		return fmt.Errorf("%w: %d (must be 1-1000)",
			ErrInvalidHistoryLimit, c.SessionHistoryLimit)
	}
	if c.SessionIdleMinutes < 1 {
		return fmt.Errorf("session_idle_minutes out of range: %d (must be >= 1)", c.SessionIdleMinutes)
	}
	if c.SessionSweepWatermark < 1 {
		return fmt.Errorf("session_sweep_watermark out of range: %d (must be >= 1)", c.SessionSweepWatermark)
	}

	if c.IndexQueueSize < 1 || c.IndexQueueSize > 10000 {
		return fmt.Errorf("index_queue_size out of range: %d (must be 1-10000)", c.IndexQueueSize)
	}

	return nil
}

// validateModelName validates an AI model name. Model names look like
// "gemini-2.5-flash" or "llama3.1:8b"; the check rejects empty names
// and anything that smells like injection into a request path.
func validateModelName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidModelName)
	}
	if len(name) > 128 {
		return fmt.Errorf("%w: too long (%d chars)", ErrInvalidModelName, len(name))
	}
	if strings.ContainsAny(name, " \t\n/\\") {
		return fmt.Errorf("%w: %q contains illegal characters", ErrInvalidModelName, name)
	}
	return nil
}

// validateOllamaHost validates the Ollama server address.
func validateOllamaHost(host string) error {
	if host == "" {
		return fmt.Errorf("%w: empty", ErrInvalidOllamaHost)
	}
	u, err := url.Parse(host)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidOllamaHost, host, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q (scheme must be http or https)", ErrInvalidOllamaHost, host)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %q (missing host)", ErrInvalidOllamaHost, host)
	}
	return nil
}
