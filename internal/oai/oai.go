// Package oai builds the OpenAI client shared by the transcription,
// completion and embedding adapters and classifies its failures.
package oai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	phonecall "github.com/drewburns/ai-phonecall"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Config holds OpenAI connection settings.
type Config struct {
	APIKey  string
	BaseURL string // Optional, for proxies and tests
	Timeout time.Duration
}

// NewClient returns a client with SDK retries disabled; retry policy belongs
// to the caller.
func NewClient(cfg Config, extra ...option.RequestOption) openai.Client {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	opts = append(opts, extra...)
	return openai.NewClient(opts...)
}

// Wrap annotates err with op and class, marking it temporary when a retry
// could plausibly succeed.
func Wrap(op string, err error, class error) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w: %w", op, class, err)
	if Retryable(err) {
		return phonecall.Temporary(wrapped)
	}
	return wrapped
}

// Retryable reports whether err is a rate limit, server error or timeout.
func Retryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return RetryableStatus(apiErr.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// RetryableStatus reports whether an HTTP status is worth retrying.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}
