package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/norkodev/finbot/internal/common"
	"github.com/spf13/viper"
)

// MaxBatchSize is the largest batch the classification service accepts.
const MaxBatchSize = 20

// Config is the typed view of the application configuration.
type Config struct {
	DatabasePath   string
	Classification ClassificationConfig
	LLM            LLMConfig
	Ingest         IngestConfig
}

// ClassificationConfig configures the rule tier and review policy.
type ClassificationConfig struct {
	RulesFile       string
	ReviewThreshold float64
	RuleConfidence  float64
}

// LLMConfig configures the AI fallback tier.
type LLMConfig struct {
	Provider          string
	Model             string
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RetryDelay        time.Duration
	Temperature       float64
	DefaultConfidence float64
	BatchSize         int
	// Workers bounds the AI batches in flight across all documents.
	Workers           int
	MaxTokens         int
	MaxRetries        int
	RateLimit         int
	Enabled           bool
}

// IngestConfig configures document processing.
type IngestConfig struct {
	Extensions []string
	Workers    int
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "$HOME/.local/share/finbot/finbot.db")
	v.SetDefault("classification.review_threshold", 0.5)
	v.SetDefault("classification.rule_confidence", 0.9)
	v.SetDefault("llm.enabled", true)
	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.batch_size", MaxBatchSize)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.workers", 2)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 500)
	v.SetDefault("llm.default_confidence", 0.5)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.retry_delay", time.Second)
	v.SetDefault("llm.rate_limit", 60)
	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.extensions", []string{".pdf", ".txt", ".ofx", ".qfx"})
}

// Load builds a Config from v. Values come from the config file or FINBOT_
// environment variables first, then provider-specific environment
// variables, then defaults.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{
		DatabasePath: ExpandPath(v.GetString("database.path")),
		Classification: ClassificationConfig{
			RulesFile:       ExpandPath(v.GetString("classification.rules_file")),
			ReviewThreshold: v.GetFloat64("classification.review_threshold"),
			RuleConfidence:  v.GetFloat64("classification.rule_confidence"),
		},
		LLM: LLMConfig{
			Enabled:           v.GetBool("llm.enabled"),
			Provider:          strings.ToLower(v.GetString("llm.provider")),
			Model:             v.GetString("llm.model"),
			BaseURL:           v.GetString("llm.base_url"),
			APIKey:            v.GetString("llm.api_key"),
			BatchSize:         v.GetInt("llm.batch_size"),
			Timeout:           v.GetDuration("llm.timeout"),
			Workers:           v.GetInt("llm.workers"),
			Temperature:       v.GetFloat64("llm.temperature"),
			MaxTokens:         v.GetInt("llm.max_tokens"),
			DefaultConfidence: v.GetFloat64("llm.default_confidence"),
			MaxRetries:        v.GetInt("llm.max_retries"),
			RetryDelay:        v.GetDuration("llm.retry_delay"),
			RateLimit:         v.GetInt("llm.rate_limit"),
		},
		Ingest: IngestConfig{
			Workers:    v.GetInt("ingest.workers"),
			Extensions: normalizeExtensions(v.GetStringSlice("ingest.extensions")),
		},
	}

	// Override with provider environment variables if not set
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "gemini":
			cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
			if cfg.LLM.APIKey == "" {
				cfg.LLM.APIKey = os.Getenv("GOOGLE_API_KEY")
			}
		}
	}
	if cfg.LLM.BaseURL == "" && cfg.LLM.Provider == "ollama" {
		cfg.LLM.BaseURL = os.Getenv("OLLAMA_HOST")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and required values.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("%w: database.path", common.ErrMissingConfig)
	}
	if c.Classification.ReviewThreshold < 0 || c.Classification.ReviewThreshold > 1 {
		return fmt.Errorf("%w: classification.review_threshold must be between 0 and 1", common.ErrInvalidConfig)
	}
	if c.Classification.RuleConfidence <= 0 || c.Classification.RuleConfidence > 1 {
		return fmt.Errorf("%w: classification.rule_confidence must be in (0, 1]", common.ErrInvalidConfig)
	}
	if c.LLM.BatchSize <= 0 || c.LLM.BatchSize > MaxBatchSize {
		return fmt.Errorf("%w: llm.batch_size must be between 1 and %d", common.ErrInvalidConfig, MaxBatchSize)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("%w: llm.timeout must be positive", common.ErrInvalidConfig)
	}
	if c.LLM.Workers <= 0 || c.Ingest.Workers <= 0 {
		return fmt.Errorf("%w: worker counts must be positive", common.ErrInvalidConfig)
	}
	if c.LLM.DefaultConfidence < 0 || c.LLM.DefaultConfidence > 1 {
		return fmt.Errorf("%w: llm.default_confidence must be between 0 and 1", common.ErrInvalidConfig)
	}
	if c.LLM.Enabled {
		switch c.LLM.Provider {
		case "ollama":
		case "openai", "gemini":
			if c.LLM.APIKey == "" {
				return fmt.Errorf("%w: API key for %s provider", common.ErrMissingConfig, c.LLM.Provider)
			}
		default:
			return fmt.Errorf("%w: unsupported llm.provider %q", common.ErrInvalidConfig, c.LLM.Provider)
		}
	}
	return nil
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
