// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared by source, embedding, and
// generation clients.
package httputil

import (
	"context"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"
)

// RetryBaseDelay controls the base duration for exponential backoff on
// throttled responses. Tests override this to avoid real sleeps.
var RetryBaseDelay = 2 * time.Second

// MaxRetryAfter caps a server-provided Retry-After so that one throttled
// call cannot outlive its caller's timeout budget by much.
var MaxRetryAfter = 30 * time.Second

const defaultMaxRetries = 3

// DoWithRetry executes an HTTP request and retries on HTTP 429 (Too Many
// Requests) and 503 (Service Unavailable). The delay honors a numeric
// Retry-After header when present, otherwise it starts at RetryBaseDelay and
// doubles each attempt.
//
// When maxRetries is 0 the default (3) is used. On each retry the response
// body is drained and closed before sleeping. If the context is cancelled
// during a backoff wait the function returns ctx.Err(). After exhausting
// retries the last throttled response is returned so the caller can inspect it.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if client == nil {
		client = http.DefaultClient
	}

	for attempt := 0; ; attempt++ {
		r := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			r.Body = body
		}

		resp, err := client.Do(r)
		if err != nil {
			return nil, err
		}

		if !retryable(resp.StatusCode) || attempt >= maxRetries {
			return resp, nil
		}

		wait := backoff(attempt, resp.Header.Get("Retry-After"))

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// backoff returns the wait before the next attempt.
func backoff(attempt int, retryAfter string) time.Duration {
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
		d := time.Duration(secs) * time.Second
		if d > MaxRetryAfter {
			d = MaxRetryAfter
		}
		return d
	}
	return time.Duration(math.Pow(2, float64(attempt))) * RetryBaseDelay
}
