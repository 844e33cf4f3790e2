package localfs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/backends"
	"github.com/ebogdum/bucketfs/locks"
)

func newTestAdapter(t *testing.T) *LocalFSAdapter {
	t.Helper()
	adapter, err := NewLocalFSAdapter(t.TempDir(), locks.NewLocalManager(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })
	return adapter
}

func put(t *testing.T, a *LocalFSAdapter, key, content string) backends.VersionToken {
	t.Helper()
	token, err := a.PutObject(context.Background(), key, strings.NewReader(content), int64(len(content)), "")
	require.NoError(t, err)
	return token
}

func TestPutGetRoundTrip(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	token := put(t, a, "docs/readme.txt", "hello")
	assert.NotEmpty(t, token)

	body, info, err := a.GetObject(ctx, "docs/readme.txt", "")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, int64(5), info.Size)
	assert.Equal(t, token, info.Version)
}

func TestHeadMissing(t *testing.T) {
	a := newTestAdapter(t)

	_, err := a.HeadObject(context.Background(), "nope")
	assert.ErrorIs(t, err, backends.ErrNotFound)
}

func TestDirectoryMarkerAndChildCoexist(t *testing.T) {
	a := newTestAdapter(t)

	put(t, a, "a/", "")
	put(t, a, "a", "file named a")
	put(t, a, "a/b", "child")

	page, err := a.ListObjects(context.Background(), backends.ListInput{Prefix: "", Delimiter: "/"})
	require.NoError(t, err)

	require.Len(t, page.Objects, 1)
	assert.Equal(t, "a", page.Objects[0].Key)
	assert.Equal(t, []string{"a/"}, page.CommonPrefixes)
}

func TestDotSegmentsAreOrdinaryKeys(t *testing.T) {
	a := newTestAdapter(t)

	put(t, a, "..", "dots")
	put(t, a, "x/../y", "nested")

	info, err := a.HeadObject(context.Background(), "..")
	require.NoError(t, err)
	assert.Equal(t, int64(4), info.Size)

	entries, err := os.ReadDir(filepath.Join(a.rootPath, objectsDir))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestConditionalWrite(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	v1 := put(t, a, "k", "one")

	v2, err := a.PutObject(ctx, "k", strings.NewReader("two"), 3, v1)
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)

	_, err = a.PutObject(ctx, "k", strings.NewReader("three"), 5, v1)
	var pe *backends.PreconditionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, v2, pe.Current)

	body, _, err := a.GetObject(ctx, "k", "")
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	body.Close()
	assert.Equal(t, "two", string(data))
}

func TestConditionalWriteMissingObject(t *testing.T) {
	a := newTestAdapter(t)

	_, err := a.PutObject(context.Background(), "absent", strings.NewReader("x"), 1, "some-token")
	assert.ErrorIs(t, err, backends.ErrPreconditionFailed)

	_, err = a.HeadObject(context.Background(), "absent")
	assert.ErrorIs(t, err, backends.ErrNotFound)
}

func TestConditionalRead(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	v1 := put(t, a, "k", "one")
	put(t, a, "k", "two")

	_, _, err := a.GetObject(ctx, "k", v1)
	assert.ErrorIs(t, err, backends.ErrPreconditionFailed)
}

func TestPutShortBodyLeavesNoObject(t *testing.T) {
	a := newTestAdapter(t)

	_, err := a.PutObject(context.Background(), "k", strings.NewReader("abc"), 10, "")
	require.Error(t, err)

	_, err = a.HeadObject(context.Background(), "k")
	assert.ErrorIs(t, err, backends.ErrNotFound)

	tmpEntries, err := os.ReadDir(filepath.Join(a.rootPath, tmpDir))
	require.NoError(t, err)
	assert.Empty(t, tmpEntries)
}

func TestPutCancelled(t *testing.T) {
	a := newTestAdapter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.PutObject(ctx, "k", bytes.NewReader(make([]byte, 64)), 64, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeleteObjects(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	put(t, a, "d/", "")
	put(t, a, "d/one", "1")
	put(t, a, "d/two", "2")

	failures, err := a.DeleteObjects(ctx, []string{"d/", "d/one", "d/two", "d/missing"})
	require.NoError(t, err)
	assert.Empty(t, failures)

	page, err := a.ListObjects(ctx, backends.ListInput{Prefix: "d/"})
	require.NoError(t, err)
	assert.Empty(t, page.Objects)
}

func TestKeyTooLong(t *testing.T) {
	a := newTestAdapter(t)

	_, err := a.PutObject(context.Background(), strings.Repeat("x", 300), strings.NewReader(""), 0, "")
	assert.ErrorIs(t, err, backends.ErrNotSupported)
}

func TestLostVersionRecordNeverKeepsOldToken(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	v1 := put(t, a, "k", "one")

	a.writeVersion = func(string, backends.VersionToken) error {
		return errors.New("disk full")
	}
	v2, err := a.PutObject(ctx, "k", strings.NewReader("two"), 3, v1)
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)

	info, err := a.HeadObject(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, v2, info.Version, "the returned token is the one later reads report")

	// A writer holding the old token must lose
	_, err = a.PutObject(ctx, "k", strings.NewReader("stale"), 5, v1)
	assert.ErrorIs(t, err, backends.ErrPreconditionFailed)

	body, _, err := a.GetObject(ctx, "k", v2)
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	body.Close()
	assert.Equal(t, "two", string(data))
}

func TestListObjectsPages(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	versions := map[string]backends.VersionToken{}
	for _, key := range []string{"d/c", "d/a", "d/b", "other"} {
		versions[key] = put(t, a, key, key)
	}

	page, err := a.ListObjects(ctx, backends.ListInput{Prefix: "d/", MaxKeys: 1})
	require.NoError(t, err)
	require.Len(t, page.Objects, 1)
	assert.Equal(t, "d/a", page.Objects[0].Key)
	assert.Equal(t, versions["d/a"], page.Objects[0].Version)
	assert.Equal(t, int64(3), page.Objects[0].Size)
	assert.Equal(t, "d/a", page.NextPageToken)

	page, err = a.ListObjects(ctx, backends.ListInput{Prefix: "d/", PageToken: page.NextPageToken})
	require.NoError(t, err)
	require.Len(t, page.Objects, 2)
	assert.Equal(t, "d/b", page.Objects[0].Key)
	assert.Equal(t, "d/c", page.Objects[1].Key)
	assert.Empty(t, page.NextPageToken)
}

func TestGetObjectRange(t *testing.T) {
	a := newTestAdapter(t)
	v := put(t, a, "k", "0123456789")

	body, info, err := a.GetObjectRange(context.Background(), "k", v, 4)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "456789", string(data))
	assert.Equal(t, int64(10), info.Size)
}
