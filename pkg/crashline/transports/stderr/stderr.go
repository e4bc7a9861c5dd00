// Package stderr provides a transport that prints reports to stderr in
// human-readable form instead of sending them. Useful for development.
package stderr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/strongdm/crashline/pkg/crashline"
)

// Option configures the stderr transport.
type Option func(*config)

type config struct {
	verbose bool
	out     io.Writer
}

// WithVerbose includes stack frames and custom data.
func WithVerbose() Option {
	return func(c *config) {
		c.verbose = true
	}
}

// WithWriter redirects output (default: os.Stderr).
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.out = w
		}
	}
}

type stderrTransport struct {
	verbose bool
	out     io.Writer
}

// New creates a transport that writes to stderr.
func New(opts ...Option) crashline.Transport {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	return &stderrTransport{verbose: cfg.verbose, out: cfg.out}
}

func (s *stderrTransport) writer() io.Writer {
	if s.out != nil {
		return s.out
	}
	return os.Stderr
}

// Deliver decodes the payload and prints it. Payloads that are not reports,
// such as pulse messages, are printed raw.
func (s *stderrTransport) Deliver(ctx context.Context, payload []byte, timeout time.Duration) error {
	w := s.writer()

	var report crashline.Report
	if err := json.Unmarshal(payload, &report); err != nil || report.Details.Error.ClassName == "" {
		fmt.Fprintf(w, "[CRASHLINE] %s\n", strings.TrimSpace(string(payload)))
		return nil
	}

	d := report.Details
	// Format: [CRASHLINE] <timestamp> <class> on <machine> (version <v>)
	fmt.Fprintf(w, "[CRASHLINE] %s %s on %s (version %s)\n",
		report.OccurredOn.Format(time.RFC3339), d.Error.ClassName, d.MachineName, d.Version)

	if d.Error.Message != "" {
		fmt.Fprintf(w, "        Message: %s\n", d.Error.Message)
	}
	if len(d.Tags) > 0 {
		fmt.Fprintf(w, "        Tags: %s\n", strings.Join(d.Tags, ", "))
	}
	if d.GroupingKey != "" {
		fmt.Fprintf(w, "        Grouping key: %s\n", d.GroupingKey)
	}
	if d.User != nil && d.User.Identifier != "" {
		fmt.Fprintf(w, "        User: %s\n", d.User.Identifier)
	}

	if s.verbose {
		for inner := d.Error.InnerError; inner != nil; inner = inner.InnerError {
			fmt.Fprintf(w, "        Caused by: %s: %s\n", inner.ClassName, inner.Message)
		}
		if len(d.Error.StackTrace) > 0 {
			fmt.Fprintf(w, "        Stack trace:\n")
			for _, f := range d.Error.StackTrace {
				fmt.Fprintf(w, "          %s.%s (%s:%d)\n", f.ClassName, f.MethodName, f.FileName, f.LineNumber)
			}
		}
		for k, v := range d.UserCustomData {
			fmt.Fprintf(w, "        %s: %v\n", k, v)
		}
	}
	return nil
}
