package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/norkodev/finbot/internal/common"
	"github.com/norkodev/finbot/internal/config"
	"github.com/norkodev/finbot/internal/model"
	"github.com/norkodev/finbot/internal/service"
	"github.com/shopspring/decimal"
)

// Config holds configuration for the LLM classifier.
type Config struct {
	Provider          string
	Model             string
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RetryDelay        time.Duration
	CacheTTL          time.Duration
	Temperature       float64
	DefaultConfidence float64
	MaxTokens         int
	MaxRetries        int
	RateLimit         int
}

// ConfigFrom converts the application configuration.
func ConfigFrom(c config.LLMConfig) Config {
	return Config{
		Provider:          c.Provider,
		Model:             c.Model,
		BaseURL:           c.BaseURL,
		APIKey:            c.APIKey,
		Timeout:           c.Timeout,
		RetryDelay:        c.RetryDelay,
		Temperature:       c.Temperature,
		DefaultConfidence: c.DefaultConfidence,
		MaxTokens:         c.MaxTokens,
		MaxRetries:        c.MaxRetries,
		RateLimit:         c.RateLimit,
	}
}

// Item is one transaction sent for classification.
type Item struct {
	Amount      decimal.Decimal
	ID          string
	Description string
}

// Result is the model's answer for one item. Items without a result stay
// unclassified.
type Result struct {
	ID          string
	Category    string
	Subcategory string
	Confidence  float64
}

// BatchClassifier classifies batches of transactions with a language model.
type BatchClassifier struct {
	client            Client
	cache             *resultCache
	logger            *slog.Logger
	rateLimiter       *rateLimiter
	vocabulary        model.Vocabulary
	retryOpts         service.RetryOptions
	defaultConfidence float64
}

// NewClassifier creates the provider client named by cfg and wraps it.
func NewClassifier(ctx context.Context, cfg Config, vocabulary model.Vocabulary, logger *slog.Logger) (*BatchClassifier, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return NewBatchClassifier(client, vocabulary, cfg, logger), nil
}

// NewBatchClassifier wraps an existing client.
func NewBatchClassifier(client Client, vocabulary model.Vocabulary, cfg Config, logger *slog.Logger) *BatchClassifier {
	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries + 1,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	defaultConfidence := cfg.DefaultConfidence
	if defaultConfidence <= 0 || defaultConfidence > 1 {
		defaultConfidence = 0.5
	}
	if vocabulary == nil {
		vocabulary = model.DefaultVocabulary()
	}

	return &BatchClassifier{
		client:            client,
		cache:             newResultCache(cfg.CacheTTL),
		logger:            common.LoggerOrDefault(logger),
		rateLimiter:       newRateLimiter(cfg.RateLimit),
		vocabulary:        vocabulary,
		retryOpts:         retryOpts,
		defaultConfidence: defaultConfidence,
	}
}

// Provider names the backing service.
func (c *BatchClassifier) Provider() string {
	return c.client.Provider()
}

// ClassifyBatch classifies up to config.MaxBatchSize items in one model
// call. The result holds only the items the model answered for with a
// category from the vocabulary.
func (c *BatchClassifier) ClassifyBatch(ctx context.Context, items []Item) ([]Result, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if len(items) > config.MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds the maximum of %d", len(items), config.MaxBatchSize)
	}

	results := make([]Result, 0, len(items))
	pending := make([]Item, 0, len(items))
	for _, item := range items {
		if cached, ok := c.cache.get(cacheKey(item)); ok {
			cached.ID = item.ID
			results = append(results, cached)
			continue
		}
		pending = append(pending, item)
	}
	if len(pending) == 0 {
		return results, nil
	}

	if err := c.rateLimiter.wait(ctx); err != nil {
		return results, err
	}

	request := Request{
		System: systemInstruction,
		Prompt: buildPrompt(pending, c.vocabulary),
	}

	start := time.Now()
	var parsed []Result
	err := common.WithRetry(ctx, func() error {
		content, err := c.client.Complete(ctx, request)
		if err != nil {
			return err
		}
		parsed, err = parseBatchResponse(content, pending, c.vocabulary, c.defaultConfidence)
		if err != nil {
			c.logger.Debug("unparseable classification response",
				"provider", c.client.Provider(),
				"response", truncate(content, 200))
			return common.Permanent(err)
		}
		return nil
	}, c.retryOpts)
	if err != nil {
		return results, fmt.Errorf("%s batch classification failed: %w", c.client.Provider(), err)
	}

	byID := make(map[string]Item, len(pending))
	for _, item := range pending {
		byID[item.ID] = item
	}
	for _, r := range parsed {
		c.cache.set(cacheKey(byID[r.ID]), r)
	}
	results = append(results, parsed...)

	c.logger.Debug("batch classified",
		"provider", c.client.Provider(),
		"batch_size", len(pending),
		"resolved", len(parsed),
		"duration", time.Since(start))

	return results, nil
}

// HealthCheck reports whether the provider is reachable.
func (c *BatchClassifier) HealthCheck(ctx context.Context) error {
	checker, ok := c.client.(HealthChecker)
	if !ok {
		return nil
	}
	return checker.HealthCheck(ctx)
}

// Close stops background goroutines.
func (c *BatchClassifier) Close() error {
	c.cache.Close()
	c.rateLimiter.Close()
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
