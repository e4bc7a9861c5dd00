// scrubber.go redacts secrets and PII from reports before they leave the process.

package crashline

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// ScrubberConfig controls scrubbing behavior.
type ScrubberConfig struct {
	// SensitiveKeys contains additional case-insensitive substrings marking
	// custom data keys whose values are always redacted.
	SensitiveKeys []string

	// MaxMessageSize is the maximum length for error messages (default: 4096).
	MaxMessageSize int

	// MaxStackTraceSize is the maximum length for raw stack traces (default: 32768).
	MaxStackTraceSize int

	// MaxValueSize is the maximum length of a single custom data string (default: 1024).
	MaxValueSize int

	// ScrubMessages enables pattern scrubbing of messages and string values (default: true).
	ScrubMessages bool
}

// DefaultScrubberConfig returns production-safe defaults.
func DefaultScrubberConfig() ScrubberConfig {
	return ScrubberConfig{
		MaxMessageSize:    4096,
		MaxStackTraceSize: 32768,
		MaxValueSize:      1024,
		ScrubMessages:     true,
	}
}

const redacted = "[REDACTED]"

// Compiled once at package init.
var messageScrubPatterns = []*regexp.Regexp{
	// API keys and tokens
	regexp.MustCompile(`(?i)(api[_-]?key|token)[=:\s]+['"]?[\w\-\.]+['"]?`),
	regexp.MustCompile(`(?i)(authorization|bearer)[=:\s]+['"]?[\w\-\.]+['"]?[\s]+['"]?[\w\-\.]+['"]?`),
	regexp.MustCompile(`(?i)sk-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`(?i)ghp_[a-zA-Z0-9]{36}`),
	regexp.MustCompile(`(?i)github_pat_[a-zA-Z0-9_]{22,}`),
	regexp.MustCompile(`(?i)xox[baprs]-[a-zA-Z0-9\-]{10,}`),
	regexp.MustCompile(`(?i)eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`), // JWT

	// Credentials
	regexp.MustCompile(`(?i)password[=:\s]+['"]?[^\s'",]+['"]?`),
	regexp.MustCompile(`(?i)secret[=:\s]+['"]?[^\s'",]+['"]?`),
	regexp.MustCompile(`(?i)passwd[=:\s]+['"]?[^\s'",]+['"]?`),

	// PII
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), // Email
	regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),        // Credit card
}

var sensitiveKeyPatterns = []string{
	"token",
	"key",
	"secret",
	"password",
	"credential",
	"auth",
	"passwd",
}

var (
	pathNormalizationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`/home/[^/]+/`),
		regexp.MustCompile(`/Users/[^/]+/`),
		regexp.MustCompile(`C:\\Users\\[^\\]+\\`),
		regexp.MustCompile(`/var/mobile/Containers/Data/Application/[^/]+/`),
	}
	memAddrPattern = regexp.MustCompile(`0x[0-9a-fA-F]+`)
)

// Scrubber redacts sensitive data from reports.
type Scrubber struct {
	cfg           ScrubberConfig
	sensitiveKeys []string
}

// NewScrubber creates a new scrubber with the given configuration.
func NewScrubber(cfg ScrubberConfig) *Scrubber {
	keys := append([]string{}, sensitiveKeyPatterns...)
	for _, k := range cfg.SensitiveKeys {
		keys = append(keys, strings.ToLower(k))
	}
	return &Scrubber{cfg: cfg, sensitiveKeys: keys}
}

// ScrubReport scrubs the error chain, custom data and user email of r in place.
func (s *Scrubber) ScrubReport(r *Report) {
	if r == nil {
		return
	}
	for info := &r.Details.Error; info != nil; info = info.InnerError {
		info.Message = s.ScrubMessage(info.Message)
		info.RawStackTrace = s.ScrubStackTrace(info.RawStackTrace)
		for i := range info.StackTrace {
			info.StackTrace[i].FileName = normalizePath(info.StackTrace[i].FileName)
		}
	}
	r.Details.UserCustomData = s.ScrubCustomData(r.Details.UserCustomData)
}

// ScrubMessage scrubs sensitive patterns from a message.
func (s *Scrubber) ScrubMessage(msg string) string {
	if s.cfg.MaxMessageSize > 0 && len(msg) > s.cfg.MaxMessageSize {
		msg = truncateWithMarker(msg, s.cfg.MaxMessageSize)
	}
	if !s.cfg.ScrubMessages {
		return msg
	}
	for _, pattern := range messageScrubPatterns {
		msg = pattern.ReplaceAllString(msg, redacted)
	}
	return msg
}

// ScrubStackTrace normalizes user paths, hides addresses and limits size.
func (s *Scrubber) ScrubStackTrace(trace string) string {
	if trace == "" {
		return trace
	}
	result := normalizePath(trace)
	result = memAddrPattern.ReplaceAllString(result, "0x...")
	if s.cfg.MaxStackTraceSize > 0 && len(result) > s.cfg.MaxStackTraceSize {
		result = truncateWithMarker(result, s.cfg.MaxStackTraceSize)
	}
	return result
}

// ScrubCustomData returns a scrubbed copy of data. Values under sensitive keys
// are replaced, nested maps and slices are walked.
func (s *Scrubber) ScrubCustomData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	result := make(map[string]any, len(data))
	for key, value := range data {
		if s.isSensitiveKey(key) {
			result[key] = redacted
			continue
		}
		result[key] = s.scrubValue(value)
	}
	return result
}

func (s *Scrubber) scrubValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		return s.ScrubCustomData(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = s.scrubValue(item)
		}
		return out
	case string:
		if s.cfg.MaxValueSize > 0 && len(v) > s.cfg.MaxValueSize {
			v = truncateWithMarker(v, s.cfg.MaxValueSize)
		}
		if s.cfg.ScrubMessages {
			for _, pattern := range messageScrubPatterns {
				v = pattern.ReplaceAllString(v, redacted)
			}
		}
		return v
	default:
		return v
	}
}

func (s *Scrubber) isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range s.sensitiveKeys {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}

func normalizePath(s string) string {
	for _, pattern := range pathNormalizationPatterns {
		s = pattern.ReplaceAllString(s, "/[PATH]/")
	}
	return s
}

// truncateWithMarker truncates a string and adds a truncation marker.
func truncateWithMarker(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	marker := "...[TRUNCATED]"
	if maxLen <= len(marker) {
		return marker[:maxLen]
	}
	cut := maxLen - len(marker)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + marker
}
