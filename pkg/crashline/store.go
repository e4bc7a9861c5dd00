// store.go defines the BlobStore interface the durable queue persists into.

package crashline

import (
	"errors"
	"maps"
	"slices"
	"sync"
)

// ErrBlobNotFound is returned by BlobStore.Read for a missing name.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore persists named text blobs in an application-private area.
// Implementations must be safe for concurrent use.
type BlobStore interface {
	// Write creates or replaces the blob called name, creating the
	// storage area on first use.
	Write(name string, data []byte) error

	// Read returns the blob's contents or ErrBlobNotFound.
	Read(name string) ([]byte, error)

	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(name string) error

	// Exists reports whether the blob is present.
	Exists(name string) (bool, error)

	// List returns the names of all blobs, in no particular order.
	List() ([]string, error)

	// Prune releases the storage area if it holds no blobs.
	Prune() error
}

// MemoryStore is an in-process BlobStore and the default when no store is
// configured. Queued reports do not survive a restart, so it suits tests,
// dry runs and short-lived tools.
type MemoryStore struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	pruned int
}

var _ BlobStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Write stores a copy of data.
func (s *MemoryStore) Write(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[name] = slices.Clone(data)
	return nil
}

// Read returns a copy of the blob.
func (s *MemoryStore) Read(name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[name]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return slices.Clone(data), nil
}

func (s *MemoryStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, name)
	return nil
}

func (s *MemoryStore) Exists(name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[name]
	return ok, nil
}

// List returns blob names sorted lexically.
func (s *MemoryStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.blobs)), nil
}

// Prune records that the storage area was released.
func (s *MemoryStore) Prune() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.blobs) == 0 {
		s.pruned++
	}
	return nil
}

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// Pruned returns how many times Prune found the store empty.
func (s *MemoryStore) Pruned() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pruned
}
