// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"

	"golang.org/x/time/rate"
)

type limited struct {
	next    Provider
	limiter *rate.Limiter
}

// RateLimited wraps p so that at most rps batch calls per second reach it.
func RateLimited(p Provider, rps float64) Provider {
	return &limited{next: p, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

func (l *limited) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, providerError("rate limiter: %v", err)
	}
	return l.next.Embed(ctx, texts)
}
