package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/norkodev/finbot/internal/common"
)

// Request is a single completion request.
type Request struct {
	System string
	Prompt string
}

// Client defines the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	Provider() string
}

// HealthChecker is implemented by providers that can report whether the
// configured model is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

const maxErrorBody = 200

// statusError maps a non-200 response onto the retry taxonomy: 429 is a rate
// limit, 5xx is retried and anything else is permanent.
func statusError(provider string, status int, body []byte) error {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	err := fmt.Errorf("%s API error (status %d): %s", provider, status, string(body))

	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", common.ErrRateLimit, err)
	case status >= http.StatusInternalServerError:
		return &common.RetryableError{Err: err, Retryable: true}
	default:
		return common.Permanent(err)
	}
}

// transportError handles a request that never produced a response. Deadline
// and cancellation errors pass through; anything else means the service is
// unreachable and is not retried.
func transportError(ctx context.Context, provider string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s request failed: %w", provider, err)
	}
	return common.Permanent(&common.ClassificationServiceUnavailableError{Provider: provider, Err: err})
}
