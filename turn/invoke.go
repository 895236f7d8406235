package turn

import (
	"context"
	"errors"
	"fmt"
	"time"

	phonecall "github.com/drewburns/ai-phonecall"
	"github.com/sethvargo/go-retry"
)

// invoke runs fn with a per-attempt timeout. When retryable is set, failures
// marked temporary and attempts that hit their own deadline are retried with
// exponential backoff. A retry is not started when less than timeout remains
// before ctx's deadline. The returned error always wraps class.
func (c *Controller) invoke(ctx context.Context, adapter string, class error, timeout time.Duration, retryable bool, fn func(context.Context) error) error {
	maxRetries := uint64(0)
	if retryable {
		maxRetries = uint64(c.cfg.RetryMax)
	}
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(c.cfg.RetryBase))

	start := time.Now()
	attempt := 0
	var last error
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if attempt > 0 {
			if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
				return last
			}
			c.metrics.RecordRetry(adapter)
		}
		attempt++

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		last = err
		timedOut := errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
		if phonecall.IsTemporary(err) || timedOut {
			return retry.RetryableError(err)
		}
		return err
	})
	c.metrics.RecordAdapter(adapter, time.Since(start), err)

	if err != nil && !errors.Is(err, class) {
		err = fmt.Errorf("%s: %w: %w", adapter, class, err)
	}
	return err
}
