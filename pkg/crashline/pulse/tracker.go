// Package pulse reports session and timing events on the secondary channel.
// Events are batched in memory and never written to the durable queue.
package pulse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strongdm/crashline/pkg/crashline"
)

// Source supplies the metadata events carry and delivers serialized
// messages. *crashline.Client implements it.
type Source interface {
	Identity() *crashline.UserInfo
	AppVersion() string
	Environment() crashline.EnvironmentInfo
	DeliverPulse(ctx context.Context, payload []byte) error
}

var _ Source = (*crashline.Client)(nil)

// Option configures a Tracker.
type Option func(*config)

type config struct {
	batchSize     int
	maxPending    int
	flushInterval time.Duration
	logger        *slog.Logger
	onDropped     func(count int)
	now           func() time.Time
}

// WithBatchSize sends the active batch as soon as it holds n events (default: 50).
func WithBatchSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithMaxPending bounds buffered events; the oldest are dropped beyond it
// (default: 500).
func WithMaxPending(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxPending = n
		}
	}
}

// WithFlushInterval sets how often the active batch is sent (default: 30s).
func WithFlushInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.flushInterval = d
		}
	}
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithOnDropped sets a callback invoked when events are dropped on overflow.
func WithOnDropped(fn func(count int)) Option {
	return func(c *config) {
		c.onDropped = fn
	}
}

func withClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

type pendingEvent struct {
	kind      EventType
	name      string
	duration  time.Duration
	sessionID string
	timestamp time.Time
}

// Tracker batches timing events and reports session boundaries.
type Tracker struct {
	src        Source
	batchSize  int
	maxPending int
	logger     *slog.Logger
	onDropped  func(count int)
	now        func() time.Time

	mu        sync.Mutex
	sessionID string
	batch     []pendingEvent

	sendMu    sync.Mutex
	kick      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewTracker creates a Tracker and starts its background batch loop.
func NewTracker(src Source, opts ...Option) *Tracker {
	cfg := &config{
		batchSize:     50,
		maxPending:    500,
		flushInterval: 30 * time.Second,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	t := &Tracker{
		src:        src,
		batchSize:  cfg.batchSize,
		maxPending: cfg.maxPending,
		logger:     cfg.logger,
		onDropped:  cfg.onDropped,
		now:        cfg.now,
		kick:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	t.wg.Add(1)
	go t.loop(cfg.flushInterval)
	return t
}

// SessionID returns the current session id, or "" before a session starts.
func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// StartSession begins a new session and reports it immediately.
func (t *Tracker) StartSession(ctx context.Context) error {
	t.mu.Lock()
	t.sessionID = uuid.NewString()
	id := t.sessionID
	t.mu.Unlock()
	return t.sendSessionEvent(ctx, TypeSessionStart, id)
}

// EndSession sends any batched events, then reports the end of the session.
func (t *Tracker) EndSession(ctx context.Context) error {
	if err := t.Flush(ctx); err != nil {
		t.logger.Warn("send remaining pulse events", slog.String("error", err.Error()))
	}

	t.mu.Lock()
	id := t.sessionID
	t.sessionID = ""
	t.mu.Unlock()

	if id == "" {
		return nil
	}
	return t.sendSessionEvent(ctx, TypeSessionEnd, id)
}

// Timing records a timing event in the active batch, starting a session if
// none is active.
func (t *Tracker) Timing(ctx context.Context, kind EventType, name string, d time.Duration) {
	t.mu.Lock()
	startSession := t.sessionID == ""
	if startSession {
		t.sessionID = uuid.NewString()
	}
	ev := pendingEvent{
		kind:      kind,
		name:      name,
		duration:  d,
		sessionID: t.sessionID,
		timestamp: t.now().UTC().Add(-d),
	}
	dropped := 0
	if len(t.batch) >= t.maxPending {
		dropped = len(t.batch) - t.maxPending + 1
		t.batch = t.batch[dropped:]
	}
	t.batch = append(t.batch, ev)
	full := len(t.batch) >= t.batchSize
	t.mu.Unlock()

	if dropped > 0 && t.onDropped != nil {
		t.onDropped(dropped)
	}
	if startSession {
		if err := t.sendSessionEvent(ctx, TypeSessionStart, ev.sessionID); err != nil {
			t.logger.Warn("start pulse session", slog.String("error", err.Error()))
		}
	}
	if full {
		select {
		case t.kick <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of events waiting in the active batch.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.batch)
}

// Flush sends the active batch now. It satisfies crashline.Flusher so a
// Controller can send remaining events when the process crashes.
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	batch := t.batch
	t.batch = nil
	t.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return t.sendBatch(ctx, batch)
}

// Close stops the batch loop and sends whatever is left.
func (t *Tracker) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.wg.Wait()
	})
	return t.Flush(context.Background())
}

func (t *Tracker) loop(interval time.Duration) {
	defer t.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		case <-t.kick:
		}
		if err := t.Flush(context.Background()); err != nil {
			t.logger.Debug("pulse batch not delivered", slog.String("error", err.Error()))
		}
	}
}

func (t *Tracker) base(sessionID, eventType string, ts time.Time) DataMessage {
	env := t.src.Environment()
	return DataMessage{
		SessionID: sessionID,
		Timestamp: ts,
		Type:      eventType,
		Version:   t.src.AppVersion(),
		OS:        env.OS,
		OSVersion: env.OSVersion,
		Platform:  env.Platform,
		User:      t.src.Identity(),
	}
}

func (t *Tracker) sendSessionEvent(ctx context.Context, eventType, sessionID string) error {
	msg := Message{EventData: []DataMessage{t.base(sessionID, eventType, t.now().UTC())}}
	return t.send(ctx, msg)
}

func (t *Tracker) sendBatch(ctx context.Context, batch []pendingEvent) error {
	msg := Message{EventData: make([]DataMessage, 0, len(batch))}
	for _, ev := range batch {
		data, err := json.Marshal([]Data{{
			Name:   ev.name,
			Timing: Timing{Type: ev.kind.Code(), Duration: ev.duration.Milliseconds()},
		}})
		if err != nil {
			return fmt.Errorf("encode timing data: %w", err)
		}
		dm := t.base(ev.sessionID, TypeTiming, ev.timestamp)
		dm.Data = string(data)
		msg.EventData = append(msg.EventData, dm)
	}
	return t.send(ctx, msg)
}

func (t *Tracker) send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		t.logger.Error("serialize pulse message", slog.String("error", err.Error()))
		return err
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	if err := t.src.DeliverPulse(ctx, payload); err != nil {
		return fmt.Errorf("deliver pulse message: %w", err)
	}
	return nil
}
