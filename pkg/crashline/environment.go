// environment.go captures device, OS and application metadata for reports.

package crashline

import (
	"bufio"
	"errors"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// HostInfo supplies machine, OS and application metadata.
// Lookups are best-effort; the builder logs failures and continues.
type HostInfo interface {
	// DeviceName returns the user-visible machine name.
	DeviceName() (string, error)

	// Environment returns a snapshot of the host environment.
	Environment() EnvironmentInfo

	// BundleVersion returns the version the application was built with.
	BundleVersion() (string, error)
}

// ErrVersionUnknown is returned by BundleVersion when the build carries no version.
var ErrVersionUnknown = errors.New("application version unknown")

// SystemHost reads metadata from the running process and operating system.
type SystemHost struct {
	// StartTime is used to compute process uptime. Zero means "when created".
	StartTime time.Time

	// OSReleasePath overrides /etc/os-release, mainly for tests.
	OSReleasePath string
}

// NewSystemHost creates a SystemHost whose uptime counts from now.
func NewSystemHost() *SystemHost {
	return &SystemHost{StartTime: time.Now()}
}

// DeviceName returns the host name.
func (h *SystemHost) DeviceName() (string, error) {
	return os.Hostname()
}

// Environment captures OS, locale and runtime metrics at the current moment.
func (h *SystemHost) Environment() EnvironmentInfo {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	var uptimeMs int64
	if !h.StartTime.IsZero() {
		uptimeMs = time.Since(h.StartTime).Milliseconds()
		if uptimeMs < 0 {
			uptimeMs = 0 // Clamp to 0 if start time is in the future
		}
	}

	_, offset := time.Now().Zone()

	return EnvironmentInfo{
		OS:             runtime.GOOS,
		OSVersion:      h.osVersion(),
		Architecture:   runtime.GOARCH,
		Platform:       runtime.GOOS + "/" + runtime.GOARCH,
		ProcessorCount: runtime.NumCPU(),
		Locale:         locale(),
		UTCOffset:      float64(offset) / 3600,
		MemoryBytes:    int64(memStats.Alloc),
		GoroutineCount: runtime.NumGoroutine(),
		UptimeMs:       uptimeMs,
		GoVersion:      runtime.Version(),
	}
}

// BundleVersion returns the main module version recorded in the binary's build info.
func (h *SystemHost) BundleVersion() (string, error) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ErrVersionUnknown
	}
	v := info.Main.Version
	if v == "" || v == "(devel)" {
		return "", ErrVersionUnknown
	}
	return v, nil
}

// osVersion reads PRETTY_NAME from os-release, empty when unavailable.
func (h *SystemHost) osVersion() string {
	path := h.OSReleasePath
	if path == "" {
		path = "/etc/os-release"
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if v, ok := strings.CutPrefix(scanner.Text(), "PRETTY_NAME="); ok {
			return strings.Trim(v, `"`)
		}
	}
	return ""
}

// locale follows the POSIX precedence LC_ALL > LC_MESSAGES > LANG.
func locale() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" {
			if i := strings.IndexAny(v, ".@"); i > 0 {
				v = v[:i]
			}
			return v
		}
	}
	return ""
}
