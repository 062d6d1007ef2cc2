package upstream

import (
	"context"

	"telegram-api-relay/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.UpstreamClient = (*limitedClient)(nil)

type limitedClient struct {
	inner adapter.UpstreamClient
	sem   chan struct{}
}

// NewLimitedClient caps in-flight Fetch calls at maxConcurrent.
func NewLimitedClient(inner adapter.UpstreamClient, maxConcurrent int) adapter.UpstreamClient {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedClient{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedClient) Fetch(ctx context.Context, url string) (string, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Fetch(ctx, url)
}
