// queue.go implements the bounded on-disk spool of serialized reports.

package crashline

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
)

const (
	// MaxQueuedReports is the most entries the queue holds at once.
	MaxQueuedReports = 10

	queuePrefix = "report"
	queueSuffix = ".txt"
)

// Entry is one queued report payload.
type Entry struct {
	Name    string
	Payload []byte
}

// Queue is a small bounded spool over a BlobStore.
//
// Entries are named report<N>.txt. Save takes the lowest free slot N; if slot
// N+1 is occupied it is a leftover from a wrapped window and is deleted first.
// When slots 1..10 are all taken, slot 1 is evicted and the entry goes to
// slot 11. This keeps at most MaxQueuedReports entries with approximately
// oldest-first eviction. All mutations are serialized.
type Queue struct {
	mu    sync.Mutex
	store BlobStore
}

// NewQueue creates a queue persisting into store.
func NewQueue(store BlobStore) *Queue {
	return &Queue{store: store}
}

// EntryName returns the blob name for slot n.
func EntryName(n int) string {
	return queuePrefix + strconv.Itoa(n) + queueSuffix
}

// parseEntryName returns the slot number of a queue blob name.
func parseEntryName(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, queuePrefix)
	if !ok {
		return 0, false
	}
	digits, ok := strings.CutSuffix(rest, queueSuffix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Save persists payload and returns the name it was stored under.
func (q *Queue) Save(payload []byte) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	number := 1
	for {
		exists, err := q.store.Exists(EntryName(number))
		if err != nil {
			return "", fmt.Errorf("probe slot %d: %w", number, err)
		}
		if !exists {
			next := EntryName(number + 1)
			stale, err := q.store.Exists(next)
			if err != nil {
				return "", fmt.Errorf("probe slot %d: %w", number+1, err)
			}
			if stale {
				if err := q.store.Delete(next); err != nil {
					return "", fmt.Errorf("delete stale %s: %w", next, err)
				}
			}
			break
		}
		number++
	}

	if number == MaxQueuedReports+1 {
		if err := q.store.Delete(EntryName(1)); err != nil {
			return "", fmt.Errorf("evict oldest: %w", err)
		}
	}

	name := EntryName(number)
	if err := q.store.Write(name, payload); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return name, nil
}

// Names returns queued entry names in ascending slot order.
func (q *Queue) Names() ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.namesLocked()
}

func (q *Queue) namesLocked() ([]string, error) {
	all, err := q.store.List()
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}

	type slot struct {
		n    int
		name string
	}
	var slots []slot
	for _, name := range all {
		if n, ok := parseEntryName(name); ok {
			slots = append(slots, slot{n: n, name: name})
		}
	}
	slices.SortFunc(slots, func(a, b slot) int { return a.n - b.n })

	names := make([]string, len(slots))
	for i, s := range slots {
		names[i] = s.name
	}
	return names, nil
}

// Enumerate returns all queued entries in ascending slot order.
func (q *Queue) Enumerate() ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	names, err := q.namesLocked()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		payload, err := q.store.Read(name)
		if errors.Is(err, ErrBlobNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		entries = append(entries, Entry{Name: name, Payload: payload})
	}
	return entries, nil
}

// Read returns the payload of one entry.
func (q *Queue) Read(name string) ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.Read(name)
}

// Delete removes one entry.
func (q *Queue) Delete(name string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.Delete(name)
}

// Count returns the number of queued entries; 0 when the store cannot be listed.
func (q *Queue) Count() int {
	names, err := q.Names()
	if err != nil {
		return 0
	}
	return len(names)
}

// Prune releases the storage area when the queue is empty.
func (q *Queue) Prune() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	names, err := q.namesLocked()
	if err != nil {
		return err
	}
	if len(names) > 0 {
		return nil
	}
	return q.store.Prune()
}
