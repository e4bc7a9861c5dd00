// flush.go drains the durable queue when the collector is reachable.

package crashline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrUnreachable is returned by Flush when the network is unavailable.
var ErrUnreachable = errors.New("collector unreachable")

// Flush delivers queued reports oldest slot first. It stops at the first
// failed delivery, leaving that entry and everything after it queued in
// order. After a full drain the storage area is pruned.
func (c *Client) Flush(ctx context.Context, timeout time.Duration) error {
	if !c.hasAPIKey() {
		return ErrNoAPIKey
	}
	if !c.reach.Reachable(ctx) {
		return ErrUnreachable
	}
	return c.drain(ctx, timeout)
}

// drain is Flush without the reachability check. A drain that starts while
// another is running returns nil without sending; the running one already
// owns the queue.
func (c *Client) drain(ctx context.Context, timeout time.Duration) (err error) {
	if !c.flushMu.TryLock() {
		c.logger.Debug("flush already in progress, skipped")
		return nil
	}
	defer c.flushMu.Unlock()

	ctx, span := c.tracer.Start(ctx, "crashline.flush")
	sent := 0
	defer func() {
		span.SetAttributes(attribute.Int("crashline.sent", sent))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	names, err := c.queue.Names()
	if err != nil {
		c.logger.Error("list queued reports", slog.String("error", err.Error()))
		return err
	}

	for _, name := range names {
		payload, err := c.queue.Read(name)
		if errors.Is(err, ErrBlobNotFound) {
			continue
		}
		if err != nil {
			c.logger.Error("read queued report", slog.String("name", name), slog.String("error", err.Error()))
			return fmt.Errorf("read %s: %w", name, err)
		}

		if err := c.deliver(ctx, payload, timeout); err != nil {
			return fmt.Errorf("deliver %s: %w", name, err)
		}
		sent++
		c.logger.Debug("sent queued report", slog.String("name", name))

		if err := c.queue.Delete(name); err != nil {
			c.logger.Error("delete sent report", slog.String("name", name), slog.String("error", err.Error()))
			return fmt.Errorf("delete %s: %w", name, err)
		}
	}

	if err := c.queue.Prune(); err != nil {
		c.logger.Warn("prune queue storage", slog.String("error", err.Error()))
	}
	if sent > 0 {
		c.logger.Debug("sent all pending reports", slog.Int("count", sent))
	}
	return nil
}
