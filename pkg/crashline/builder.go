// builder.go assembles Reports from errors plus host and identity context.

package crashline

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"
)

// builder collects everything a Report needs. None of its lookups fail the
// build: missing metadata is logged and left blank.
type builder struct {
	host        HostInfo
	deviceIDs   DeviceIDSource
	appVersion  string
	groupingKey GroupingKeyFunc
	identity    func() (*UserInfo, string)
	logger      *slog.Logger
	now         func() time.Time
}

// build creates the report for one (already normalized) error.
func (b *builder) build(err error, tags []string, customData map[string]any) *Report {
	machineName := b.machineName()

	report := &Report{
		OccurredOn: b.now().UTC(),
		Details: ReportDetails{
			MachineName:    machineName,
			Version:        b.version(),
			Client:         DefaultClientInfo(),
			Error:          buildErrorInfo(err, 0),
			Environment:    b.environment(),
			Tags:           slices.Clone(tags),
			UserCustomData: maps.Clone(customData),
			User:           b.user(machineName),
		},
	}

	if b.groupingKey != nil {
		if key := b.safeGroupingKey(err, report); key != "" {
			report.Details.GroupingKey = key
		}
	}

	return report
}

func (b *builder) machineName() string {
	if b.host == nil {
		return ""
	}
	return b.lookup("device name", b.host.DeviceName)
}

// lookup runs one metadata query. Errors and panics both yield "".
func (b *builder) lookup(what string, fn func() (string, error)) (value string) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Debug(what+" lookup panicked", slog.String("panic", formatRecovered(r)))
			value = ""
		}
	}()
	v, err := fn()
	if err != nil {
		b.logger.Debug(what+" unavailable", slog.String("error", err.Error()))
		return ""
	}
	return v
}

func (b *builder) environment() (env EnvironmentInfo) {
	if b.host == nil {
		return env
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.Debug("environment lookup panicked", slog.String("panic", formatRecovered(r)))
			env = EnvironmentInfo{}
		}
	}()
	return b.host.Environment()
}

// version resolves the app version: explicit override, then build metadata,
// then VersionNotSupplied.
func (b *builder) version() string {
	if strings.TrimSpace(b.appVersion) != "" {
		return b.appVersion
	}
	if b.host != nil {
		if v := b.lookup("bundle version", b.host.BundleVersion); strings.TrimSpace(v) != "" {
			return v
		}
	}
	return VersionNotSupplied
}

func (b *builder) deviceID() string {
	if b.deviceIDs == nil {
		return ""
	}
	return b.lookup("device id", b.deviceIDs.DeviceID)
}

func (b *builder) user(machineName string) *UserInfo {
	var info *UserInfo
	var user string
	if b.identity != nil {
		info, user = b.identity()
	}
	return resolveIdentity(info, user, b.deviceID(), machineName)
}

// safeGroupingKey runs the user hook, treating a panic as "no key".
func (b *builder) safeGroupingKey(err error, report *Report) (key string) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("grouping key hook panicked", slog.String("panic", formatRecovered(r)))
			key = ""
		}
	}()
	return b.groupingKey(err, report)
}

// buildErrorInfo describes err and its first-cause chain.
func buildErrorInfo(err error, depth int) ErrorInfo {
	if err == nil {
		return ErrorInfo{ClassName: "<nil>"}
	}

	info := ErrorInfo{
		ClassName: fmt.Sprintf("%T", err),
		Message:   err.Error(),
	}

	if st, ok := err.(StackTracer); ok {
		info.RawStackTrace = st.StackTrace()
		info.StackTrace = ParseStackTrace(info.RawStackTrace)
	}

	if depth < MaxUnwrapDepth {
		if causes := wrappedCauses(err); len(causes) > 0 {
			inner := buildErrorInfo(causes[0], depth+1)
			info.InnerError = &inner
		}
	}

	return info
}
