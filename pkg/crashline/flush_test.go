package crashline

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

// queueThree stores three reports offline and returns the client.
func queueThree(t *testing.T, tr Transport, store BlobStore) *Client {
	t.Helper()
	var mu sync.Mutex
	online := false
	c := newTestClient(t,
		WithTransport(tr),
		WithStore(store),
		WithReachability(ReachabilityFunc(func(context.Context) bool {
			mu.Lock()
			defer mu.Unlock()
			return online
		})),
	)
	for _, msg := range []string{"first", "second", "third"} {
		c.Send(context.Background(), errors.New(msg), nil, nil)
	}
	if got := c.Queue().Count(); got != 3 {
		t.Fatalf("Count() = %d, want 3", got)
	}
	mu.Lock()
	online = true
	mu.Unlock()
	return c
}

func TestFlush_DrainsInOrder(t *testing.T) {
	tr := &fakeTransport{}
	store := newCountingStore()
	c := queueThree(t, tr, store)

	if err := c.Flush(context.Background(), 0); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	var messages []string
	for _, p := range tr.getPayloads() {
		messages = append(messages, decodeReport(t, p).Details.Error.Message)
	}
	if want := []string{"first", "second", "third"}; !slices.Equal(messages, want) {
		t.Errorf("delivery order = %v, want %v", messages, want)
	}
	if c.Queue().Count() != 0 {
		t.Errorf("Count() = %d, want 0", c.Queue().Count())
	}
	if store.prunes.Load() != 1 {
		t.Errorf("store pruned %d times, want 1", store.prunes.Load())
	}
}

func TestFlush_StopsAtFirstFailure(t *testing.T) {
	tr := &fakeTransport{failOn: map[int]error{2: errors.New("503 Service Unavailable")}}
	store := newCountingStore()
	c := queueThree(t, tr, store)

	err := c.Flush(context.Background(), 0)
	if err == nil {
		t.Fatal("Flush should report the failed delivery")
	}
	if tr.getCalls() != 2 {
		t.Errorf("transport called %d times, want 2", tr.getCalls())
	}

	names, _ := c.Queue().Names()
	if want := []string{"report2.txt", "report3.txt"}; !slices.Equal(names, want) {
		t.Errorf("remaining = %v, want %v", names, want)
	}
	if store.prunes.Load() != 0 {
		t.Error("storage must not be pruned after a partial flush")
	}

	// The next flush resumes from the failed entry.
	if err := c.Flush(context.Background(), 0); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if c.Queue().Count() != 0 {
		t.Errorf("Count() = %d, want 0", c.Queue().Count())
	}
}

func TestFlush_Unreachable(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestClient(t, WithTransport(tr), WithReachability(NeverReachable))
	c.Send(context.Background(), errors.New("x"), nil, nil)

	if err := c.Flush(context.Background(), 0); !errors.Is(err, ErrUnreachable) {
		t.Errorf("Flush err = %v, want ErrUnreachable", err)
	}
	if tr.getCalls() != 0 || c.Queue().Count() != 1 {
		t.Errorf("offline flush should leave the queue untouched")
	}
}

func TestFlush_EmptyQueue(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestClient(t, WithTransport(tr))

	if err := c.Flush(context.Background(), 0); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if tr.getCalls() != 0 {
		t.Error("nothing to deliver")
	}
}

func TestFlush_ConcurrentFlushesDeliverOnce(t *testing.T) {
	tr := &fakeTransport{}
	c := queueThree(t, tr, NewMemoryStore())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Flush(context.Background(), 0)
		}()
	}
	wg.Wait()

	if got := tr.getCalls(); got != 3 {
		t.Errorf("transport called %d times, want each entry delivered once", got)
	}
}

// stallingTransport blocks every delivery until release is closed.
type stallingTransport struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newStallingTransport() *stallingTransport {
	return &stallingTransport{started: make(chan struct{}), release: make(chan struct{})}
}

func (s *stallingTransport) Deliver(ctx context.Context, payload []byte, timeout time.Duration) error {
	s.once.Do(func() { close(s.started) })
	<-s.release
	return nil
}

func TestFlush_SendDoesNotWaitForRunningFlush(t *testing.T) {
	store := NewMemoryStore()
	if _, err := NewQueue(store).Save([]byte(`{"leftover":true}`)); err != nil {
		t.Fatal(err)
	}

	tr := newStallingTransport()
	c := newTestClient(t,
		WithTransport(tr),
		WithStore(store),
		WithSyncTimeout(50*time.Millisecond),
		WithStartupFlush(true),
	)

	select {
	case <-tr.started:
	case <-time.After(5 * time.Second):
		t.Fatal("startup flush never reached the transport")
	}

	start := time.Now()
	c.Send(context.Background(), errors.New("crash while draining"), nil, nil)
	elapsed := time.Since(start)

	if elapsed > time.Second {
		t.Errorf("Send took %v while a flush was running, want it to return promptly", elapsed)
	}
	if got := c.Queue().Count(); got != 2 {
		t.Errorf("Count() = %d, want the new report queued next to the stalled one", got)
	}

	close(tr.release)
	c.Wait()
}
