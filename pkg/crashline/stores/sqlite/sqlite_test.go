package sqlite

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/crashline/pkg/crashline"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_WriteReadOverwrite(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Write("report1.txt", []byte("one")))
	require.NoError(t, s.Write("report1.txt", []byte("uno")))

	got, err := s.Read("report1.txt")
	require.NoError(t, err)
	assert.Equal(t, "uno", string(got))

	_, err = s.Read("missing")
	assert.ErrorIs(t, err, crashline.ErrBlobNotFound)
}

func TestStore_ExistsListDelete(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Write("report1.txt", []byte("1")))
	require.NoError(t, s.Write("report2.txt", []byte("2")))

	ok, err := s.Exists("report2.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	names, err := s.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"report1.txt", "report2.txt"}, names)

	require.NoError(t, s.Delete("report2.txt"))
	ok, err = s.Exists("report2.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Delete("report1.txt"))
	require.NoError(t, s.Prune())
}

func TestStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Write("report1.txt", []byte("kept")))
	require.NoError(t, s.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Read("report1.txt")
	require.NoError(t, err)
	assert.Equal(t, "kept", string(got))
}

func TestStore_BacksQueue(t *testing.T) {
	q := crashline.NewQueue(newTestStore(t))
	for i := 0; i < crashline.MaxQueuedReports+1; i++ {
		_, err := q.Save([]byte("x"))
		require.NoError(t, err)
	}

	names, err := q.Names()
	require.NoError(t, err)
	require.Len(t, names, crashline.MaxQueuedReports)
	assert.Equal(t, "report2.txt", names[0])
	assert.Equal(t, "report11.txt", names[len(names)-1])
}

type failingTransport struct{ calls int }

func (f *failingTransport) Deliver(context.Context, []byte, time.Duration) error {
	f.calls++
	return errors.New("collector down")
}

func TestStore_ClientKeepsEntryOnFailure(t *testing.T) {
	store := newTestStore(t)
	tr := &failingTransport{}
	c := crashline.NewClient(
		crashline.WithAPIKey("key"),
		crashline.WithStore(store),
		crashline.WithTransport(tr),
		crashline.WithReachability(crashline.AlwaysReachable),
		crashline.WithStartupFlush(false),
		crashline.WithLogger(slog.New(slog.DiscardHandler)),
	)
	defer c.Close()

	c.Send(context.Background(), errors.New("kept"), nil, nil)

	assert.Equal(t, 1, tr.calls)
	assert.Equal(t, 1, c.Queue().Count())
}
