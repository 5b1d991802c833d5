package llm

import (
	"context"
	"time"
)

// TimeoutClient bounds every completion with a deadline so a hung provider
// cannot stall a conversation turn.
type TimeoutClient struct {
	inner   Client
	timeout time.Duration
}

// NewTimeoutClient wraps client with a per-call timeout. A non-positive
// timeout leaves calls unbounded.
func NewTimeoutClient(inner Client, timeout time.Duration) *TimeoutClient {
	if inner == nil {
		panic("llm: inner client cannot be nil")
	}
	return &TimeoutClient{inner: inner, timeout: timeout}
}

func (c *TimeoutClient) Complete(ctx context.Context, req Request) (Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.inner.Complete(ctx, req)
}
