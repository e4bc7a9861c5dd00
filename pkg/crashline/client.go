// client.go provides the Client that turns errors into delivered reports.

package crashline

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// UnhandledTag is attached to reports of errors nothing else caught.
const UnhandledTag = "UnhandledException"

const tracerName = "github.com/strongdm/crashline"

// Client captures errors, queues their reports and delivers them.
// Its send methods never panic and never return errors: failures are logged.
type Client struct {
	apiKey         string
	syncTimeout    time.Duration
	transport      Transport
	pulseTransport Transport
	reach          Reachability
	queue          *Queue
	normalizer     *Normalizer
	builder        builder
	beforeSend     func(*Report) bool
	scrubber       *Scrubber
	crashInfoDir   string
	logger         *slog.Logger
	tracer         trace.Tracer

	identityMu sync.RWMutex
	user       string
	userInfo   *UserInfo

	pool    *errgroup.Group
	flushMu sync.Mutex
	closed  atomic.Bool
}

// NewClient creates a Client. Unless disabled with WithStartupFlush(false),
// it drains previously queued reports in the background.
func NewClient(opts ...Option) *Client {
	cfg := &clientConfig{
		endpoint:      DefaultEndpoint,
		pulseEndpoint: DefaultPulseEndpoint,
		workers:       4,
		startupFlush:  true,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.store == nil {
		cfg.logger.Debug("no store configured, queued reports are kept in memory and lost on exit")
		cfg.store = NewMemoryStore()
	}
	if cfg.transport == nil {
		cfg.transport = NewHTTPTransport(cfg.endpoint, cfg.apiKey)
	}
	if cfg.pulseTransport == nil {
		cfg.pulseTransport = NewHTTPTransport(cfg.pulseEndpoint, cfg.apiKey)
	}
	if cfg.reachability == nil {
		cfg.reachability = NewDialReachability(cfg.endpoint, 0)
	}
	if cfg.host == nil {
		cfg.host = NewSystemHost()
	}

	pool := &errgroup.Group{}
	pool.SetLimit(cfg.workers)

	c := &Client{
		apiKey:         cfg.apiKey,
		syncTimeout:    cfg.syncTimeout,
		transport:      cfg.transport,
		pulseTransport: cfg.pulseTransport,
		reach:          cfg.reachability,
		queue:          NewQueue(cfg.store),
		normalizer:     NewNormalizer(),
		beforeSend:     cfg.beforeSend,
		scrubber:       cfg.scrubber,
		crashInfoDir:   cfg.crashInfoDir,
		logger:         cfg.logger,
		tracer:         otel.Tracer(tracerName),
		user:           cfg.user,
		userInfo:       cfg.userInfo,
		pool:           pool,
	}
	c.normalizer.Add(cfg.wrapperKinds...)
	c.builder = builder{
		host:        cfg.host,
		deviceIDs:   cfg.deviceIDs,
		appVersion:  cfg.appVersion,
		groupingKey: cfg.groupingKey,
		identity:    c.identity,
		logger:      cfg.logger,
		now:         cfg.now,
	}

	if cfg.startupFlush && c.hasAPIKey() {
		c.goBackground(func(ctx context.Context) {
			_ = c.Flush(ctx, 0)
		})
	}

	return c
}

// SetUser sets the login identifier. Safe for concurrent use; last write wins.
func (c *Client) SetUser(user string) {
	c.identityMu.Lock()
	defer c.identityMu.Unlock()
	c.user = user
}

// User returns the login identifier.
func (c *Client) User() string {
	c.identityMu.RLock()
	defer c.identityMu.RUnlock()
	return c.user
}

// SetUserInfo sets the explicit user identity; nil clears it.
func (c *Client) SetUserInfo(info *UserInfo) {
	c.identityMu.Lock()
	defer c.identityMu.Unlock()
	c.userInfo = info.clone()
}

// UserInfo returns a copy of the explicit user identity.
func (c *Client) UserInfo() *UserInfo {
	c.identityMu.RLock()
	defer c.identityMu.RUnlock()
	return c.userInfo.clone()
}

func (c *Client) identity() (*UserInfo, string) {
	c.identityMu.RLock()
	defer c.identityMu.RUnlock()
	return c.userInfo.clone(), c.user
}

// Identity returns the identity reports are currently attributed to.
func (c *Client) Identity() *UserInfo {
	return c.builder.user(c.builder.machineName())
}

// AppVersion returns the version reports carry.
func (c *Client) AppVersion() string {
	return c.builder.version()
}

// Environment returns a fresh snapshot of the host environment.
func (c *Client) Environment() EnvironmentInfo {
	return c.builder.environment()
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// Queue exposes the durable queue, mainly for inspection.
func (c *Client) Queue() *Queue {
	return c.queue
}

// AddWrapperErrors registers additional wrapper kinds to strip.
func (c *Client) AddWrapperErrors(kinds ...Kind) {
	c.normalizer.Add(kinds...)
}

// RemoveWrapperErrors stops stripping the given kinds, including the defaults.
func (c *Client) RemoveWrapperErrors(kinds ...Kind) {
	c.normalizer.Remove(kinds...)
}

// BuildReport creates the report for err without sending it. err is not
// normalized; use Send for that.
func (c *Client) BuildReport(err error, tags []string, customData map[string]any) *Report {
	return c.builder.build(err, tags, customData)
}

// Send reports err synchronously, bounded by the configured sync timeout.
// Wrapper errors are stripped and each remaining cause becomes its own report.
func (c *Client) Send(ctx context.Context, err error, tags []string, customData map[string]any) {
	c.stripAndSend(ctx, err, tags, customData, c.syncTimeout)
}

// SendAsync reports err on the background worker pool with the default timeout.
func (c *Client) SendAsync(err error, tags []string, customData map[string]any) {
	c.goBackground(func(ctx context.Context) {
		c.stripAndSend(ctx, err, tags, customData, 0)
	})
}

// SendReport sends a pre-built report synchronously.
func (c *Client) SendReport(ctx context.Context, report *Report) {
	if report == nil {
		return
	}
	c.send(ctx, report, c.syncTimeout)
}

// SendReportAsync sends a pre-built report on the background worker pool.
func (c *Client) SendReportAsync(report *Report) {
	if report == nil {
		return
	}
	c.goBackground(func(ctx context.Context) {
		c.send(ctx, report, 0)
	})
}

// DeliverPulse sends a serialized pulse message directly. Pulse messages are
// never queued.
func (c *Client) DeliverPulse(ctx context.Context, payload []byte) error {
	if !c.validateAPIKey() {
		return ErrNoAPIKey
	}
	if err := c.pulseTransport.Deliver(ctx, payload, 0); err != nil {
		c.logger.Warn("deliver pulse message", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Go runs fn on the client's background worker pool.
func (c *Client) Go(fn func(ctx context.Context)) {
	c.goBackground(fn)
}

// Wait blocks until all background work queued so far has finished.
func (c *Client) Wait() {
	_ = c.pool.Wait()
}

// Close stops accepting background work and waits for in-flight work.
func (c *Client) Close() error {
	c.closed.Store(true)
	c.Wait()
	return nil
}

func (c *Client) stripAndSend(ctx context.Context, err error, tags []string, customData map[string]any, timeout time.Duration) {
	if err == nil {
		return
	}
	for e := range c.normalizer.Strip(err) {
		c.send(ctx, c.builder.build(e, tags, customData), timeout)
	}
}

// send persists the report and opportunistically flushes the queue.
func (c *Client) send(ctx context.Context, report *Report, timeout time.Duration) {
	if !c.validateAPIKey() {
		return
	}
	if c.beforeSend != nil && !c.safeBeforeSend(report) {
		c.logger.Debug("report vetoed by before-send hook")
		return
	}
	if c.scrubber != nil {
		c.scrubber.ScrubReport(report)
	}

	payload, err := json.Marshal(report)
	if err != nil {
		c.logger.Error("serialize report", slog.String("error", err.Error()))
		return
	}

	online := c.reach.Reachable(ctx)

	name, err := c.queue.Save(payload)
	if err != nil {
		c.logger.Error("save report to queue", slog.String("error", err.Error()))
		if online {
			_ = c.deliver(ctx, payload, timeout)
		}
	} else {
		c.logger.Debug("report queued", slog.String("name", name))
	}

	// A crashing process should not stay alive draining a large backlog.
	if online && c.queue.Count() <= 2 {
		_ = c.drain(ctx, timeout)
	}
}

// deliver makes a single delivery attempt, logging failure.
func (c *Client) deliver(ctx context.Context, payload []byte, timeout time.Duration) error {
	if err := c.transport.Deliver(ctx, payload, timeout); err != nil {
		c.logger.Warn("deliver report", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (c *Client) hasAPIKey() bool {
	return strings.TrimSpace(c.apiKey) != ""
}

func (c *Client) validateAPIKey() bool {
	if c.hasAPIKey() {
		return true
	}
	c.logger.Warn("api key has not been provided, report will not be sent")
	return false
}

// safeBeforeSend runs the veto hook; a panicking hook vetoes the report.
func (c *Client) safeBeforeSend(report *Report) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("before-send hook panicked", slog.String("panic", formatRecovered(r)))
			ok = false
		}
	}()
	return c.beforeSend(report)
}

// goBackground schedules fn on the worker pool, shielding the pool from panics.
func (c *Client) goBackground(fn func(ctx context.Context)) {
	if c.closed.Load() {
		c.logger.Warn("client closed, background work dropped")
		return
	}
	c.pool.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("background task panicked", slog.String("panic", formatRecovered(r)))
			}
		}()
		fn(context.Background())
		return nil
	})
}
