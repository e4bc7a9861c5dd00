// options.go holds the functional options for NewClient.

package crashline

import (
	"log/slog"
	"time"
)

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	apiKey         string
	endpoint       string
	pulseEndpoint  string
	syncTimeout    time.Duration
	user           string
	userInfo       *UserInfo
	deviceIDs      DeviceIDSource
	appVersion     string
	wrapperKinds   []Kind
	groupingKey    GroupingKeyFunc
	beforeSend     func(*Report) bool
	store          BlobStore
	transport      Transport
	pulseTransport Transport
	reachability   Reachability
	host           HostInfo
	logger         *slog.Logger
	scrubber       *Scrubber
	workers        int
	startupFlush   bool
	crashInfoDir   string
	now            func() time.Time
}

// WithAPIKey sets the application's API key. Without one, nothing is sent.
func WithAPIKey(key string) Option {
	return func(c *clientConfig) {
		c.apiKey = key
	}
}

// WithEndpoint sets the crash report endpoint (default: DefaultEndpoint).
func WithEndpoint(url string) Option {
	return func(c *clientConfig) {
		c.endpoint = url
	}
}

// WithPulseEndpoint sets the pulse event endpoint (default: DefaultPulseEndpoint).
func WithPulseEndpoint(url string) Option {
	return func(c *clientConfig) {
		c.pulseEndpoint = url
	}
}

// WithSyncTimeout bounds each delivery made by Send. Zero means DefaultDeliveryTimeout.
func WithSyncTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		if d >= 0 {
			c.syncTimeout = d
		}
	}
}

// WithUser sets the login identifier reported when no UserInfo is set.
func WithUser(user string) Option {
	return func(c *clientConfig) {
		c.user = user
	}
}

// WithUserInfo sets the explicit user identity.
func WithUserInfo(info *UserInfo) Option {
	return func(c *clientConfig) {
		c.userInfo = info.clone()
	}
}

// WithDeviceID sets the source of the per-install device identifier.
func WithDeviceID(src DeviceIDSource) Option {
	return func(c *clientConfig) {
		c.deviceIDs = src
	}
}

// WithAppVersion overrides the version read from build metadata.
func WithAppVersion(v string) Option {
	return func(c *clientConfig) {
		c.appVersion = v
	}
}

// WithWrapperErrors adds error kinds to strip in favour of their causes.
func WithWrapperErrors(kinds ...Kind) Option {
	return func(c *clientConfig) {
		c.wrapperKinds = append(c.wrapperKinds, kinds...)
	}
}

// WithGroupingKey installs a hook that may override server-side grouping.
func WithGroupingKey(fn GroupingKeyFunc) Option {
	return func(c *clientConfig) {
		c.groupingKey = fn
	}
}

// WithBeforeSend installs a hook that can veto a report by returning false.
// The hook may also modify the report.
func WithBeforeSend(fn func(*Report) bool) Option {
	return func(c *clientConfig) {
		c.beforeSend = fn
	}
}

// WithStore sets where unsent reports are queued (default: in memory).
func WithStore(store BlobStore) Option {
	return func(c *clientConfig) {
		c.store = store
	}
}

// WithTransport replaces the HTTP transport for crash reports.
func WithTransport(t Transport) Option {
	return func(c *clientConfig) {
		c.transport = t
	}
}

// WithPulseTransport replaces the HTTP transport for pulse events.
func WithPulseTransport(t Transport) Option {
	return func(c *clientConfig) {
		c.pulseTransport = t
	}
}

// WithReachability sets the network availability check
// (default: TCP dial to the endpoint host).
func WithReachability(r Reachability) Option {
	return func(c *clientConfig) {
		c.reachability = r
	}
}

// WithHostInfo sets the metadata source (default: SystemHost).
func WithHostInfo(h HostInfo) Option {
	return func(c *clientConfig) {
		c.host = h
	}
}

// WithLogger sets the logger for diagnostics (default: slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithScrubber scrubs every report with a custom configuration.
func WithScrubber(cfg ScrubberConfig) Option {
	return func(c *clientConfig) {
		c.scrubber = NewScrubber(cfg)
	}
}

// WithDefaultScrubbing enables scrubbing with production-safe defaults.
func WithDefaultScrubbing() Option {
	return func(c *clientConfig) {
		c.scrubber = NewScrubber(DefaultScrubberConfig())
	}
}

// WithWorkers bounds the background worker pool (default: 4).
func WithWorkers(n int) Option {
	return func(c *clientConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithStartupFlush controls whether NewClient drains the queue in the
// background (default: true).
func WithStartupFlush(enabled bool) Option {
	return func(c *clientConfig) {
		c.startupFlush = enabled
	}
}

// WithCrashInfoDir enables hand-off files for an out-of-process native crash
// reporter. See Controller.Attach.
func WithCrashInfoDir(dir string) Option {
	return func(c *clientConfig) {
		c.crashInfoDir = dir
	}
}

// withClock overrides time.Now in tests.
func withClock(now func() time.Time) Option {
	return func(c *clientConfig) {
		c.now = now
	}
}
