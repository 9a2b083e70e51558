package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) (*localArchiveStorage, string) {
	t.Helper()
	root := t.TempDir()
	s, err := NewLocalArchiveStorage(root, "")
	require.NoError(t, err)
	return s.(*localArchiveStorage), root
}

func TestStoreArtifact_WritesDeterministicName(t *testing.T) {
	s, root := newTestStorage(t)
	receivedAt := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	path, err := s.StoreArtifact(context.Background(), []byte("raw mime"), "Inbox/Reports", "Q1 Results", receivedAt)
	require.NoError(t, err)
	assert.Equal(t, "Inbox/Reports/20240315_103000_Q1 Results.eml", path)

	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(path)))
	require.NoError(t, err)
	assert.Equal(t, "raw mime", string(content))
}

func TestStoreArtifact_CollisionGetsSuffix(t *testing.T) {
	s, _ := newTestStorage(t)
	receivedAt := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	first, err := s.StoreArtifact(context.Background(), []byte("a"), "Inbox", "Same Subject", receivedAt)
	require.NoError(t, err)
	second, err := s.StoreArtifact(context.Background(), []byte("b"), "Inbox", "Same Subject", receivedAt)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	size, err := s.GetSize(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
}

func TestStoreArtifact_ConcurrentCollisionsKeepEveryArtifact(t *testing.T) {
	s, root := newTestStorage(t)
	receivedAt := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	// Parallel workers writing the same folder, timestamp, and subject must
	// each end up with their own file; none may overwrite another.
	const writers = 8
	paths := make([]string, writers)
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], errs[i] = s.StoreArtifact(context.Background(), []byte(fmt.Sprintf("body-%d", i)), "Inbox", "Same Subject", receivedAt)
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < writers; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[paths[i]], "artifact name %s handed out twice", paths[i])
		seen[paths[i]] = true

		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(paths[i])))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("body-%d", i), string(content))
	}
}

func TestStoreArtifact_SanitizesSubject(t *testing.T) {
	s, _ := newTestStorage(t)

	path, err := s.StoreArtifact(context.Background(), []byte("x"), "Inbox", "re: <bad>/name?", time.Now())
	require.NoError(t, err)
	assert.NotContains(t, filepath.Base(filepath.FromSlash(path)), "<")
	assert.NotContains(t, filepath.Base(filepath.FromSlash(path)), "?")
}

func TestMoveArtifact(t *testing.T) {
	s, root := newTestStorage(t)

	path, err := s.StoreArtifact(context.Background(), []byte("x"), "Inbox", "Moving", time.Now())
	require.NoError(t, err)

	newPath, err := s.MoveArtifact(context.Background(), path, "Archive/2024")
	require.NoError(t, err)
	assert.True(t, filepath.IsLocal(filepath.FromSlash(newPath)))

	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(path)))
	assert.True(t, os.IsNotExist(err), "source artifact must be gone after move")

	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(newPath)))
	assert.NoError(t, err)
}

func TestMoveToQuarantine_MirrorsLayout(t *testing.T) {
	s, root := newTestStorage(t)

	path, err := s.StoreArtifact(context.Background(), []byte("x"), "Inbox/Sub", "Doomed", time.Now())
	require.NoError(t, err)

	quarantinePath, err := s.MoveToQuarantine(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, quarantinePath, "_quarantine/Inbox/Sub/")

	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(quarantinePath)))
	assert.NoError(t, err)
}

func TestMoveToQuarantine_MissingArtifact(t *testing.T) {
	s, _ := newTestStorage(t)

	_, err := s.MoveToQuarantine(context.Background(), "Inbox/never-existed.eml")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSweepTemp_RemovesStaleTempFiles(t *testing.T) {
	s, root := newTestStorage(t)

	dir := filepath.Join(root, "Inbox")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	stale := filepath.Join(dir, tempPrefix+"abc123")
	require.NoError(t, os.WriteFile(stale, []byte("partial"), 0o644))
	keep := filepath.Join(dir, "keep.eml")
	require.NoError(t, os.WriteFile(keep, []byte("full"), 0o644))

	require.NoError(t, s.SweepTemp(context.Background()))

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(keep)
	assert.NoError(t, err)
}
