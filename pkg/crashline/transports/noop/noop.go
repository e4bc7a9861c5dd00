// Package noop provides a transport that discards every payload.
// Useful for tests and for disabling delivery while keeping the queue.
package noop

import (
	"context"
	"time"

	"github.com/strongdm/crashline/pkg/crashline"
)

type noopTransport struct{}

// New creates a transport that discards payloads and always succeeds.
func New() crashline.Transport {
	return noopTransport{}
}

// Deliver discards the payload and returns nil.
func (noopTransport) Deliver(ctx context.Context, payload []byte, timeout time.Duration) error {
	return nil
}
