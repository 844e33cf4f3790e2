package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/backends"
	"github.com/ebogdum/bucketfs/backends/memory"
)

func testRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
}

func newTestEngine(t *testing.T, opts Options) (*Engine, *memory.MemoryAdapter) {
	t.Helper()

	store := memory.NewMemoryAdapter(zap.NewNop())
	account := NewStoreAccount("test", "memory", "memory://test", store)
	t.Cleanup(func() { account.Close() })

	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = testRetryPolicy()
	}
	engine, err := NewEngine(account, opts, zap.NewNop())
	require.NoError(t, err)
	return engine, store
}

func writeFile(t *testing.T, e *Engine, path, content string) backends.VersionToken {
	t.Helper()
	token, err := e.UploadFromStream(context.Background(), strings.NewReader(content), path)
	require.NoError(t, err)
	return token
}

func TestNewEngineRejectsRelativeDefault(t *testing.T) {
	account := NewStoreAccount("test", "memory", "memory://", memory.NewMemoryAdapter(nil))

	_, err := NewEngine(account, Options{DefaultDirectory: "home"}, nil)
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestRelativePathsUseDefaultDirectory(t *testing.T) {
	e, store := newTestEngine(t, Options{DefaultDirectory: "/home/work"})
	ctx := context.Background()

	assert.Equal(t, "/home/work", e.DefaultDirectory())

	writeFile(t, e, "notes.txt", "x")

	_, err := store.HeadObject(ctx, "home/work/notes.txt")
	require.NoError(t, err)

	exists, err := e.FileExists(ctx, "/home/work/notes.txt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestInvalidPathNeverReachesBackend(t *testing.T) {
	e, store := newTestEngine(t, Options{})
	ctx := context.Background()

	for _, path := range []string{"/a\x00b", "/dir\\file", "/tab\there"} {
		_, err := e.UploadFromStream(ctx, strings.NewReader("x"), path)
		assert.ErrorIs(t, err, ErrInvalidPath, path)

		_, err = e.DirectoryExists(ctx, path)
		assert.ErrorIs(t, err, ErrInvalidPath, path)
	}
	assert.Equal(t, 0, store.Len())
}

func TestRootIsNotAFile(t *testing.T) {
	e, _ := newTestEngine(t, Options{})

	_, err := e.FileExists(context.Background(), "/")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestCaseSensitivity(t *testing.T) {
	sensitive, _ := newTestEngine(t, Options{})
	assert.True(t, sensitive.IsCaseSensitive())

	writeFile(t, sensitive, "/Docs/Readme", "x")
	exists, err := sensitive.FileExists(context.Background(), "/docs/readme")
	require.NoError(t, err)
	assert.False(t, exists)

	folded, _ := newTestEngine(t, Options{CaseInsensitive: true})
	assert.False(t, folded.IsCaseSensitive())

	writeFile(t, folded, "/Docs/Readme", "x")
	exists, err = folded.FileExists(context.Background(), "/docs/README")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPathUtilities(t *testing.T) {
	e, _ := newTestEngine(t, Options{})

	assert.Equal(t, "/a/b/c", e.Combine("/a", "b/", "", "c"))
	assert.Equal(t, "c.txt", e.GetFileName("/a/b/c.txt"))
	assert.Equal(t, "/a/b", e.GetDirectoryName("/a/b/c.txt"))
	assert.True(t, e.IsRooted("/a"))
	assert.False(t, e.IsRooted("a"))
	assert.Equal(t, "/", e.RootDirectory())

	first, second := e.RandomDirectoryName(), e.RandomDirectoryName()
	assert.NotEqual(t, first, second)
	assert.NotContains(t, first, "/")
}

func TestRenameNotSupported(t *testing.T) {
	e, _ := newTestEngine(t, Options{})

	err := e.Rename(context.Background(), "/a", "/b")
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestRetryTransientErrors(t *testing.T) {
	e, store := newTestEngine(t, Options{})
	ctx := context.Background()
	writeFile(t, e, "/f", "x")

	reset := backends.Transient("head", errors.New("connection reset"))
	store.FailNext(memory.OpHead, reset, reset)

	exists, err := e.FileExists(ctx, "/f")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRetryExhausted(t *testing.T) {
	e, store := newTestEngine(t, Options{})
	writeFile(t, e, "/f", "x")

	reset := backends.Transient("head", errors.New("connection reset"))
	store.FailNext(memory.OpHead, reset, reset, reset)

	_, err := e.GetFileSize(context.Background(), "/f")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestPermanentErrorsAreNotRetried(t *testing.T) {
	e, store := newTestEngine(t, Options{})
	writeFile(t, e, "/f", "x")

	denied := errors.New("access denied")
	store.FailNext(memory.OpHead, denied)

	_, err := e.GetFileSize(context.Background(), "/f")
	assert.ErrorIs(t, err, denied)

	// The single queued failure was consumed by one attempt.
	size, err := e.GetFileSize(context.Background(), "/f")
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
}

func TestRetryBackoff(t *testing.T) {
	p := RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, p.backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.backoff(2))
	assert.Equal(t, 400*time.Millisecond, p.backoff(3))
	assert.Equal(t, time.Second, p.backoff(10))
}
