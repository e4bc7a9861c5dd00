package crashline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestSystemHost_Environment(t *testing.T) {
	release := filepath.Join(t.TempDir(), "os-release")
	if err := os.WriteFile(release, []byte("NAME=Test\nPRETTY_NAME=\"Test Linux 1.0\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "en_NZ.UTF-8")

	h := &SystemHost{StartTime: time.Now().Add(-time.Second), OSReleasePath: release}
	env := h.Environment()

	if env.OS != runtime.GOOS || env.Architecture != runtime.GOARCH {
		t.Errorf("os/arch = %s/%s", env.OS, env.Architecture)
	}
	if env.OSVersion != "Test Linux 1.0" {
		t.Errorf("OSVersion = %q", env.OSVersion)
	}
	if env.Locale != "en_NZ" {
		t.Errorf("Locale = %q, want en_NZ", env.Locale)
	}
	if env.ProcessorCount < 1 || env.GoroutineCount < 1 {
		t.Errorf("runtime metrics missing: %+v", env)
	}
	if env.UptimeMs < 1000 {
		t.Errorf("UptimeMs = %d, want >= 1000", env.UptimeMs)
	}
}

func TestSystemHost_FutureStartClamped(t *testing.T) {
	h := &SystemHost{StartTime: time.Now().Add(time.Hour), OSReleasePath: "/nonexistent"}
	env := h.Environment()
	if env.UptimeMs != 0 {
		t.Errorf("UptimeMs = %d, want 0", env.UptimeMs)
	}
	if env.OSVersion != "" {
		t.Errorf("OSVersion = %q, want empty when os-release is missing", env.OSVersion)
	}
}

func TestBuilder_MetadataPanicsRecovered(t *testing.T) {
	b := &builder{
		host:      panickyHost{testHost()},
		deviceIDs: panickyDeviceID{},
		logger:    discardLogger(),
	}
	if env := b.environment(); env != (EnvironmentInfo{}) {
		t.Errorf("environment = %+v, want zero value", env)
	}
	if name := b.machineName(); name != "" {
		t.Errorf("machineName = %q, want empty", name)
	}
	if v := b.version(); v != VersionNotSupplied {
		t.Errorf("version = %q, want %q", v, VersionNotSupplied)
	}
	if id := b.deviceID(); id != "" {
		t.Errorf("deviceID = %q, want empty", id)
	}
}

func TestClient_SendSurvivesPanickingMetadata(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestClient(t,
		WithTransport(tr),
		WithHostInfo(panickyHost{testHost()}),
		WithDeviceID(panickyDeviceID{}),
	)

	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("Send panicked: %v", r)
			}
		}()
		c.Send(context.Background(), errors.New("still sent"), nil, nil)
	}()

	payloads := tr.getPayloads()
	if len(payloads) != 1 {
		t.Fatalf("delivered %d reports, want 1", len(payloads))
	}
	r := decodeReport(t, payloads[0])
	if r.Details.MachineName != "" || r.Details.Version != VersionNotSupplied {
		t.Errorf("machine/version = %q/%q", r.Details.MachineName, r.Details.Version)
	}
}

// panickyHost fails every lookup the way a missing platform binding would.
type panickyHost struct{ *fakeHost }

func (panickyHost) Environment() EnvironmentInfo { panic("sysctl failed") }
func (panickyHost) DeviceName() (string, error) { panic("platform binding nil") }
func (panickyHost) BundleVersion() (string, error) { panic("no bundle") }

type panickyDeviceID struct{}

func (panickyDeviceID) DeviceID() (string, error) { panic("keychain unavailable") }
