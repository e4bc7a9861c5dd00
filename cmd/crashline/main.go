// crashline is a small operator tool for the crash report queue: it can send
// a test report, drain the queue, and inspect or clear queued entries.
//
// Settings come from an optional YAML file (--config) and CRASHLINE_*
// environment variables; a .env file in the working directory is loaded
// first when present.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/strongdm/crashline/pkg/crashline"
	"github.com/strongdm/crashline/pkg/crashline/config"
	"github.com/strongdm/crashline/pkg/crashline/transports/multi"
	"github.com/strongdm/crashline/pkg/crashline/transports/noop"
	"github.com/strongdm/crashline/pkg/crashline/transports/stderr"
)

func main() {
	_ = godotenv.Load()

	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type globals struct {
	configPath string
	debug      bool
	stdout     io.Writer
	stderr     io.Writer
}

func run(ctx context.Context, args []string, stdout, stderrW io.Writer) error {
	g := globals{stdout: stdout, stderr: stderrW}

	flagSet := pflag.NewFlagSet("crashline", pflag.ContinueOnError)
	flagSet.SetOutput(stderrW)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&g.configPath, "config", "crashline.yaml", "path to YAML settings file")
	flagSet.BoolVar(&g.debug, "debug", false, "enable debug logging")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stderrW, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(stderrW, flagSet)
		return nil
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(stderrW, flagSet)
		return errors.New("missing command")
	}

	switch rest[0] {
	case "send":
		return g.send(ctx, rest[1:])
	case "flush":
		return g.flush(ctx, rest[1:])
	case "queue":
		return g.queue(ctx, rest[1:])
	default:
		return fmt.Errorf("unknown command %q", rest[0])
	}
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `crashline manages the local crash report queue.

Usage:
  crashline [flags] send [--message TEXT] [--tag TAG]... [--data KEY=VALUE]... [--dry-run|--echo]
  crashline [flags] flush [--timeout DURATION]
  crashline [flags] queue list|show NAME|clear

Flags:
%s`, flagSet.FlagUsages())
}

// settings loads configuration and builds the logger.
func (g *globals) settings() (*config.Settings, *slog.Logger, error) {
	s, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	level := slog.LevelWarn
	if g.debug || s.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(g.stderr, &slog.HandlerOptions{Level: level}))
	return s, logger, nil
}

// client builds a Client from settings plus extra options. Startup flushing
// is always off: every command decides itself whether to drain.
func (g *globals) client(extra ...crashline.Option) (*crashline.Client, func() error, error) {
	s, logger, err := g.settings()
	if err != nil {
		return nil, nil, err
	}
	opts, closeStore, err := s.Options()
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts, crashline.WithLogger(logger), crashline.WithStartupFlush(false))
	opts = append(opts, extra...)

	c := crashline.NewClient(opts...)
	cleanup := func() error {
		return errors.Join(c.Close(), closeStore())
	}
	return c, cleanup, nil
}

func (g *globals) send(ctx context.Context, args []string) error {
	var message string
	var tags, data []string
	var dryRun, echo bool

	flagSet := pflag.NewFlagSet("send", pflag.ContinueOnError)
	flagSet.SetOutput(g.stderr)
	flagSet.StringVarP(&message, "message", "m", "crashline test report", "error message")
	flagSet.StringArrayVarP(&tags, "tag", "t", nil, "tag to attach (repeatable)")
	flagSet.StringArrayVarP(&data, "data", "d", nil, "custom data as key=value (repeatable)")
	flagSet.BoolVar(&dryRun, "dry-run", false, "print the report instead of sending it")
	flagSet.BoolVar(&echo, "echo", false, "print the report as well as sending it")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	customData := make(map[string]any, len(data))
	for _, kv := range data {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("custom data %q: expected key=value", kv)
		}
		customData[k] = v
	}

	s, _, err := g.settings()
	if err != nil {
		return err
	}
	printer := stderr.New(stderr.WithVerbose(), stderr.WithWriter(g.stdout))

	var extra []crashline.Option
	switch {
	case dryRun:
		extra = append(extra,
			crashline.WithTransport(printer),
			crashline.WithReachability(crashline.AlwaysReachable),
			crashline.WithStore(crashline.NewMemoryStore()),
		)
		if s.APIKey == "" {
			extra = append(extra, crashline.WithAPIKey("dry-run"))
		}
	case echo:
		extra = append(extra, crashline.WithTransport(multi.New(
			crashline.NewHTTPTransport(s.Endpoint, s.APIKey),
			printer,
		)))
	}

	c, cleanup, err := g.client(extra...)
	if err != nil {
		return err
	}
	defer cleanup()

	c.Send(ctx, errors.New(message), tags, customData)
	fmt.Fprintf(g.stdout, "queued entries: %d\n", c.Queue().Count())
	return nil
}

func (g *globals) flush(ctx context.Context, args []string) error {
	var timeout time.Duration

	flagSet := pflag.NewFlagSet("flush", pflag.ContinueOnError)
	flagSet.SetOutput(g.stderr)
	flagSet.DurationVar(&timeout, "timeout", 0, "per-report delivery timeout (default 100s)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	c, cleanup, err := g.client()
	if err != nil {
		return err
	}
	defer cleanup()

	before := c.Queue().Count()
	if err := c.Flush(ctx, timeout); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	fmt.Fprintf(g.stdout, "sent %d queued reports\n", before-c.Queue().Count())
	return nil
}

func (g *globals) queue(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("queue: expected list, show or clear")
	}

	switch args[0] {
	case "list":
		c, cleanup, err := g.client()
		if err != nil {
			return err
		}
		defer cleanup()

		entries, err := c.Queue().Enumerate()
		if err != nil {
			return err
		}
		for _, e := range entries {
			var r crashline.Report
			summary := "(unreadable)"
			if json.Unmarshal(e.Payload, &r) == nil {
				summary = fmt.Sprintf("%s %s: %s", r.OccurredOn.Format(time.RFC3339), r.Details.Error.ClassName, r.Details.Error.Message)
			}
			fmt.Fprintf(g.stdout, "%s\t%s\n", e.Name, summary)
		}
		return nil

	case "show":
		if len(args) != 2 {
			return errors.New("queue show: expected an entry name")
		}
		c, cleanup, err := g.client()
		if err != nil {
			return err
		}
		defer cleanup()

		payload, err := c.Queue().Read(args[1])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[1], err)
		}
		_, err = fmt.Fprintln(g.stdout, string(payload))
		return err

	case "clear":
		// Draining into a discarding transport removes every entry and
		// releases the storage area.
		c, cleanup, err := g.client(
			crashline.WithAPIKey("clear"),
			crashline.WithTransport(noop.New()),
			crashline.WithReachability(crashline.AlwaysReachable),
		)
		if err != nil {
			return err
		}
		defer cleanup()

		n := c.Queue().Count()
		if err := c.Flush(ctx, 0); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		fmt.Fprintf(g.stdout, "removed %d queued reports\n", n)
		return nil

	default:
		return fmt.Errorf("queue: unknown subcommand %q", args[0])
	}
}
