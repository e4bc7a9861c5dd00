// Package multi provides a transport that fans out to several transports.
package multi

import (
	"context"
	"errors"
	"time"

	"github.com/strongdm/crashline/pkg/crashline"
)

type multiTransport struct {
	transports []crashline.Transport
}

// New creates a transport that delivers to every transport in order.
// All transports are tried even if some fail; errors are joined. A delivery
// only counts as successful, and the queue entry removed, when all succeed.
func New(transports ...crashline.Transport) crashline.Transport {
	return &multiTransport{transports: transports}
}

// Deliver sends payload to all transports, collecting any errors.
func (m *multiTransport) Deliver(ctx context.Context, payload []byte, timeout time.Duration) error {
	var errs []error
	for _, t := range m.transports {
		if err := t.Deliver(ctx, payload, timeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
