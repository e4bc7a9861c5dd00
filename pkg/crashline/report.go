// report.go defines the canonical crash report structure sent to the collector.

package crashline

import "time"

const (
	// ClientName identifies this SDK in every report.
	ClientName = "crashline"

	// ClientVersion is the SDK version reported in ClientInfo.
	ClientVersion = "1.4.0"

	// ClientURL points at the SDK's home page.
	ClientURL = "https://github.com/strongdm/crashline"

	// VersionNotSupplied is reported when no application version can be resolved.
	VersionNotSupplied = "Not supplied"
)

// Report is a single crash or error report. It is built once per normalized
// error and serialized to JSON before it is queued or sent.
type Report struct {
	// OccurredOn is when the error was captured (UTC).
	OccurredOn time.Time `json:"occurredOn"`

	// Details holds everything else.
	Details ReportDetails `json:"details"`
}

// ReportDetails is the body of a Report.
type ReportDetails struct {
	// MachineName is the device name, blank when it could not be read.
	MachineName string `json:"machineName,omitempty"`

	// GroupingKey overrides server-side grouping when non-empty.
	GroupingKey string `json:"groupingKey,omitempty"`

	// Version is the application version or VersionNotSupplied.
	Version string `json:"version"`

	Client      ClientInfo      `json:"client"`
	Error       ErrorInfo       `json:"error"`
	Environment EnvironmentInfo `json:"environment"`

	// Tags is an ordered list of labels attached by the caller.
	Tags []string `json:"tags,omitempty"`

	// UserCustomData is arbitrary caller-supplied key-value data.
	UserCustomData map[string]any `json:"userCustomData,omitempty"`

	// User is the resolved identity, nil when nothing could be resolved.
	User *UserInfo `json:"user,omitempty"`
}

// ClientInfo identifies the reporting SDK.
type ClientInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	ClientURL string `json:"clientUrl"`
}

// DefaultClientInfo returns the identity of this SDK.
func DefaultClientInfo() ClientInfo {
	return ClientInfo{Name: ClientName, Version: ClientVersion, ClientURL: ClientURL}
}

// ErrorInfo describes one error and, recursively, its cause chain.
type ErrorInfo struct {
	// ClassName is the Go dynamic type of the error, e.g. "*fs.PathError".
	ClassName string `json:"className"`

	Message string `json:"message"`

	// StackTrace is the parsed stack, empty when the error carried none.
	StackTrace []StackFrame `json:"stackTrace,omitempty"`

	// RawStackTrace is the unparsed stack as captured.
	RawStackTrace string `json:"rawStackTrace,omitempty"`

	// InnerError is the next error in the Unwrap chain.
	InnerError *ErrorInfo `json:"innerError,omitempty"`
}

// StackFrame is one frame of a parsed Go stack trace.
type StackFrame struct {
	LineNumber int    `json:"lineNumber"`
	ClassName  string `json:"className"`
	MethodName string `json:"methodName"`
	FileName   string `json:"fileName"`
}

// EnvironmentInfo captures host state at the time of the error.
type EnvironmentInfo struct {
	OSVersion       string  `json:"osVersion,omitempty"`
	OS              string  `json:"os,omitempty"`
	Architecture    string  `json:"architecture,omitempty"`
	Platform        string  `json:"platform,omitempty"`
	ProcessorCount  int     `json:"processorCount,omitempty"`
	Locale          string  `json:"locale,omitempty"`
	UTCOffset       float64 `json:"utcOffset"`
	MemoryBytes     int64   `json:"memoryBytes,omitempty"`
	GoroutineCount  int     `json:"goroutineCount,omitempty"`
	UptimeMs        int64   `json:"uptimeMs,omitempty"`
	GoVersion       string  `json:"goVersion,omitempty"`
}

// UserInfo identifies the affected user.
type UserInfo struct {
	Identifier  string `json:"identifier"`
	IsAnonymous bool   `json:"isAnonymous"`
	Email       string `json:"email,omitempty"`
	FullName    string `json:"fullName,omitempty"`
	FirstName   string `json:"firstName,omitempty"`

	// UUID correlates reports from one install. Back-filled with the device id.
	UUID string `json:"uuid,omitempty"`
}

// clone returns a copy so callers cannot mutate a report's identity afterwards.
func (u *UserInfo) clone() *UserInfo {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
