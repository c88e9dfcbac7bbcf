package output

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite_CreatesAndReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sub.txt")

	require.NoError(t, Write(context.Background(), path, "first"))
	require.NoError(t, Write(context.Background(), path, "second"))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "temp files must not be left behind")
	}
}

func TestWrite_ConcurrentWritersSerialised(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub.txt")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, Write(context.Background(), path, fmt.Sprintf("writer-%d", i)))
		}()
	}
	wg.Wait()

	got, err := Read(path)
	require.NoError(t, err)
	assert.Regexp(t, `^writer-\d$`, got)
}

func TestWrite_LockHeldElsewhere(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub.txt")
	other := flock.New(LockPath(path))
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = other.Unlock() }()

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	err = Write(ctx, path, "x")
	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, "OUTPUT_ERROR", we.AppError.Code)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRead_Missing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent.txt"))
	var we *WriteError
	require.True(t, errors.As(err, &we))
}
