// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bureau-foundation/reportbot/lib/netutil"
	"github.com/bureau-foundation/reportbot/lib/secret"
)

// RetryPolicy bounds retries of idempotent requests.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the
	// first. Default 5. A value of 1 disables retries.
	MaxAttempts int

	// InitialBackoff is the wait after the first failure. It doubles
	// after each further failure. Default 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the doubled backoff. A server-requested
	// retry_after_ms is honoured even when it is longer. Default 30s.
	MaxBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = time.Second
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 30 * time.Second
	}
	return p
}

// retryDelay decides whether err is worth retrying and how long to wait
// first. backoff is the current exponential delay.
func retryDelay(err error, backoff time.Duration) (time.Duration, bool) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		switch {
		case matrixErr.Code == ErrCodeLimitExceeded || matrixErr.StatusCode == http.StatusTooManyRequests:
			if matrixErr.RetryAfterMS > 0 {
				return time.Duration(matrixErr.RetryAfterMS) * time.Millisecond, true
			}
			return backoff, true
		case matrixErr.StatusCode >= 500:
			return backoff, true
		default:
			return 0, false
		}
	}

	return backoff, netutil.IsTransient(err)
}

// doIdempotent performs a request that is safe to repeat, retrying
// under the client's policy. Waits end early when ctx is done.
func (c *Client) doIdempotent(ctx context.Context, method, path string, accessToken *secret.Buffer, requestBody any) ([]byte, error) {
	backoff := c.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		body, err := c.doRequest(ctx, method, path, accessToken, requestBody)
		if err == nil {
			return body, nil
		}

		wait, retryable := retryDelay(err, backoff)
		if !retryable {
			return nil, err
		}
		if attempt >= c.retry.MaxAttempts {
			return nil, fmt.Errorf("messaging: giving up after %d attempts: %w", attempt, err)
		}

		c.logger.Warn("matrix request failed, retrying",
			"method", method,
			"attempt", attempt,
			"max_attempts", c.retry.MaxAttempts,
			"wait", wait,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("messaging: retry interrupted: %w (last error: %w)", ctx.Err(), err)
		case <-c.clock.After(wait):
		}
		backoff = min(backoff*2, c.retry.MaxBackoff)
	}
}
