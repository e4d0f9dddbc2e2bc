// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides the retrying request helper shared by the
// bibliographic lookup, LLM, and reference-manager clients.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// RetryBaseDelay is the first backoff delay; each further attempt doubles
// it. Tests override this to avoid real sleeps.
var RetryBaseDelay = 1 * time.Second

const defaultMaxAttempts = 3

// ErrNetwork wraps transport failures that persisted through every attempt.
var ErrNetwork = errors.New("network error")

// Retryable reports whether a response status should be retried:
// 429 Too Many Requests and every 5xx.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// DoWithRetry executes req up to maxAttempts times. Transport errors,
// HTTP 429 and 5xx responses are retried with exponential backoff starting
// at RetryBaseDelay (1s, 2s, 4s, ...). Any other response is returned
// immediately, including 4xx, so callers can map 404 to "not found".
//
// When maxAttempts is 0 the default (3) is used. After the last attempt a
// retryable response is returned as-is for the caller to inspect; a
// persistent transport error is returned wrapped in ErrNetwork. A request
// body must be replayable (set req.GetBody, as http.NewRequest does for
// bytes readers).
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxAttempts int) (*http.Response, error) {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if client == nil {
		client = http.DefaultClient
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * RetryBaseDelay
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		attemptReq := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewinding request body: %w", err)
			}
			attemptReq.Body = body
		}

		resp, err := client.Do(attemptReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if !Retryable(resp.StatusCode) || attempt == maxAttempts-1 {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrNetwork, maxAttempts, lastErr)
}
