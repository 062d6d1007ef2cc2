package adapter

import "context"

// UpstreamClient performs the single outbound call behind a relayed command.
type UpstreamClient interface {
	// Fetch issues a GET to url and returns the normalized response text.
	Fetch(ctx context.Context, url string) (string, error)
}
