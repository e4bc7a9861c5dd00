package crashline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeTransport records delivered payloads and can fail chosen calls.
type fakeTransport struct {
	mu       sync.Mutex
	payloads [][]byte
	calls    int
	failOn   map[int]error // 1-based call number
	err      error         // returned by every call when set
}

func (f *fakeTransport) Deliver(ctx context.Context, payload []byte, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	if err, ok := f.failOn[f.calls]; ok {
		return err
	}
	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	return nil
}

func (f *fakeTransport) getPayloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([][]byte, len(f.payloads))
	copy(result, f.payloads)
	return result
}

func (f *fakeTransport) getCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// countingStore wraps the memory store and counts mutating calls.
type countingStore struct {
	*MemoryStore
	writes  atomic.Int32
	deletes atomic.Int32
	prunes  atomic.Int32
	failAll error
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: NewMemoryStore()}
}

func (s *countingStore) Write(name string, data []byte) error {
	s.writes.Add(1)
	if s.failAll != nil {
		return s.failAll
	}
	return s.MemoryStore.Write(name, data)
}

func (s *countingStore) Delete(name string) error {
	s.deletes.Add(1)
	return s.MemoryStore.Delete(name)
}

func (s *countingStore) Prune() error {
	s.prunes.Add(1)
	return s.MemoryStore.Prune()
}

// fakeHost returns fixed metadata.
type fakeHost struct {
	name       string
	nameErr    error
	version    string
	versionErr error
	env        EnvironmentInfo
}

func (h *fakeHost) DeviceName() (string, error) {
	return h.name, h.nameErr
}

func (h *fakeHost) Environment() EnvironmentInfo {
	return h.env
}

func (h *fakeHost) BundleVersion() (string, error) {
	return h.version, h.versionErr
}

func testHost() *fakeHost {
	return &fakeHost{
		name:    "test-machine",
		version: "2.3.4",
		env: EnvironmentInfo{
			OS:             "linux",
			OSVersion:      "Test OS 1",
			Architecture:   "amd64",
			Platform:       "linux/amd64",
			ProcessorCount: 8,
		},
	}
}

var fixedTime = time.Date(2025, 1, 26, 15, 4, 5, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// newTestClient returns an online client with no background startup flush.
func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithAPIKey("test-key"),
		WithHostInfo(testHost()),
		WithTransport(&fakeTransport{}),
		WithPulseTransport(&fakeTransport{}),
		WithReachability(AlwaysReachable),
		WithStartupFlush(false),
		WithLogger(discardLogger()),
		withClock(func() time.Time { return fixedTime }),
	}
	c := NewClient(append(base, opts...)...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// wrapperError is a single-cause wrapper type tests register as a wrapper kind.
type wrapperError struct {
	msg   string
	inner error
}

func (e *wrapperError) Error() string { return e.msg + ": " + e.inner.Error() }
func (e *wrapperError) Unwrap() error { return e.inner }

// stackError carries a fixed stack.
type stackError struct {
	msg   string
	stack string
}

func (e *stackError) Error() string      { return e.msg }
func (e *stackError) StackTrace() string { return e.stack }
