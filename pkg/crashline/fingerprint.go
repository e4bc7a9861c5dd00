// fingerprint.go generates stable grouping keys for similar reports.

package crashline

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GroupingKeyFunc returns a custom grouping key for a built report.
// An empty result keeps the collector's default grouping.
type GroupingKeyFunc func(err error, report *Report) string

// FingerprintGroupingKey is a GroupingKeyFunc that groups by error class and
// the first 3 stack frames (method names only). It ignores messages, line
// numbers and anything else that varies between occurrences.
func FingerprintGroupingKey(_ error, report *Report) string {
	if report == nil {
		return ""
	}
	return Fingerprint(report.Details.Error)
}

// Fingerprint hashes the stable parts of an error: class name plus the
// normalized top frames, descending into the innermost error.
func Fingerprint(info ErrorInfo) string {
	root := &info
	for root.InnerError != nil {
		root = root.InnerError
	}

	parts := []string{info.ClassName}
	if root != &info {
		parts = append(parts, root.ClassName)
	}

	frames := info.StackTrace
	if len(frames) == 0 {
		frames = root.StackTrace
	}
	for i, f := range frames {
		if i >= 3 {
			break
		}
		parts = append(parts, f.ClassName+"."+f.MethodName)
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))

	// Return hex-encoded first 16 bytes (32 hex chars)
	return hex.EncodeToString(hash[:16])
}
