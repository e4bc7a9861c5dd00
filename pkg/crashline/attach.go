// attach.go wires host error notifications to a Client.

package crashline

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// Flusher is anything that should be drained when the process is crashing,
// such as a pulse tracker with buffered events.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Controller owns at most one Client and its host subscriptions. The host
// integration layer holds the Controller; there is no package-level state.
type Controller struct {
	host Host

	// attachMu serializes Attach, AttachClient and Detach; mu guards the fields.
	attachMu sync.Mutex

	mu       sync.Mutex
	client   *Client
	cancels  []func()
	flushers []Flusher
}

// NewController creates a Controller listening on host.
func NewController(host Host) *Controller {
	return &Controller{host: host}
}

// Current returns the attached client, or nil.
func (c *Controller) Current() *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

// Attach creates a client on first use and starts reporting unhandled and
// unobserved task errors. Calling Attach again re-subscribes but keeps the
// existing client; opts are ignored in that case.
func (c *Controller) Attach(apiKey string, opts ...Option) *Client {
	c.attachMu.Lock()
	defer c.attachMu.Unlock()

	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	if client == nil {
		client = NewClient(append([]Option{WithAPIKey(apiKey)}, opts...)...)
	}
	return c.attachLocked(client)
}

// AttachClient attaches an existing client, replacing any previous one.
func (c *Controller) AttachClient(client *Client) *Client {
	c.attachMu.Lock()
	defer c.attachMu.Unlock()
	return c.attachLocked(client)
}

func (c *Controller) attachLocked(client *Client) *Client {
	if client == nil {
		return nil
	}
	c.detachLocked()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.client = client
	if c.host == nil {
		return client
	}
	c.cancels = append(c.cancels,
		c.host.OnUnhandledError(c.handleUnhandled),
		c.host.OnUnobservedTaskError(c.handleUnobserved),
	)

	if client.crashInfoDir != "" {
		if err := writeClientInfo(client.crashInfoDir); err != nil {
			client.logger.Warn("populate crash report directory", slog.String("error", err.Error()))
		}
	}
	return client
}

// AddFlusher registers f to be flushed after an unhandled error is reported.
func (c *Controller) AddFlusher(f Flusher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushers = append(c.flushers, f)
}

// Detach stops listening to the host. The client stays current.
func (c *Controller) Detach() {
	c.attachMu.Lock()
	defer c.attachMu.Unlock()
	c.detachLocked()
}

func (c *Controller) detachLocked() {
	c.mu.Lock()
	cancels := c.cancels
	c.cancels = nil
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

func (c *Controller) handleUnhandled(ctx context.Context, err error) {
	c.mu.Lock()
	client := c.client
	flushers := append([]Flusher(nil), c.flushers...)
	c.mu.Unlock()

	if client == nil || err == nil {
		return
	}

	tags := slices.Concat(TagsFromContext(ctx), []string{UnhandledTag})
	client.Send(ctx, err, tags, CustomDataFromContext(ctx))

	if client.crashInfoDir != "" {
		if werr := writeExceptionInfo(client.crashInfoDir, err); werr != nil {
			client.logger.Warn("write exception information", slog.String("error", werr.Error()))
		}
	}

	for _, f := range flushers {
		if ferr := f.Flush(ctx); ferr != nil {
			client.logger.Warn("flush on crash", slog.String("error", ferr.Error()))
		}
	}
}

func (c *Controller) handleUnobserved(ctx context.Context, err error) {
	client := c.Current()
	if client == nil || err == nil {
		return
	}
	client.Send(ctx, err, TagsFromContext(ctx), CustomDataFromContext(ctx))
}
