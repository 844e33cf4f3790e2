package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryGetVersionToken(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	ctx := context.Background()

	_, ok, err := e.TryGetVersionToken(ctx, "/missing")
	require.NoError(t, err)
	assert.False(t, ok)

	written := writeFile(t, e, "/f", "content")

	token, ok, err := e.TryGetVersionToken(ctx, "/f")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, written, token)

	again, _, err := e.TryGetVersionToken(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, token, again, "token is stable without writes")
}

func TestConditionalWriteCorrectness(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	ctx := context.Background()

	t0 := writeFile(t, e, "/k", "v0")

	t1, err := e.WriteIfMatch(ctx, "/k", t0, strings.NewReader("v1"), 2)
	require.NoError(t, err)
	assert.NotEqual(t, t0, t1)

	_, err = e.WriteIfMatch(ctx, "/k", t0, strings.NewReader("stale"), 5)
	assert.ErrorIs(t, err, ErrPreconditionFailed)

	var pe *PreconditionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, t1, pe.Current)

	t2, err := e.WriteIfMatch(ctx, "/k", t1, strings.NewReader("v2"), 2)
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)

	assert.Equal(t, "v2", readAll(t, e, "/k"))
}

func TestConditionalWriteOnMissingObject(t *testing.T) {
	e, store := newTestEngine(t, Options{})

	_, err := e.WriteIfMatch(context.Background(), "/absent", "token", strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, ErrPreconditionFailed)
	assert.Equal(t, 0, store.Len())
}

func TestSameContentNewToken(t *testing.T) {
	e, _ := newTestEngine(t, Options{})

	first := writeFile(t, e, "/k", "same")
	second := writeFile(t, e, "/k", "same")
	assert.NotEqual(t, first, second)
}

func TestReadIfMatch(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	ctx := context.Background()

	t0 := writeFile(t, e, "/k", "old")

	h, err := e.ReadIfMatch(ctx, "/k", t0)
	require.NoError(t, err)
	data, err := io.ReadAll(h)
	require.NoError(t, err)
	require.NoError(t, h.Close())
	assert.Equal(t, "old", string(data))
	assert.Equal(t, t0, h.Version())

	t1 := writeFile(t, e, "/k", "new")

	_, err = e.ReadIfMatch(ctx, "/k", t0)
	var pe *PreconditionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, t0, pe.Expected)
	assert.Equal(t, t1, pe.Current)
}

func TestReadIfMatchRequiresToken(t *testing.T) {
	e, _ := newTestEngine(t, Options{})

	_, err := e.ReadIfMatch(context.Background(), "/k", "")
	assert.ErrorIs(t, err, ErrTokenRequired)
}

func TestReadIfMatchMissing(t *testing.T) {
	e, _ := newTestEngine(t, Options{})

	_, err := e.ReadIfMatch(context.Background(), "/missing", "token")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestWriteWithToken(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	ctx := context.Background()

	t0, err := e.WriteWithToken(ctx, "/w", "", func(w io.Writer) error {
		_, err := io.WriteString(w, "first")
		return err
	})
	require.NoError(t, err)
	assert.NotEmpty(t, t0)

	t1, err := e.WriteWithToken(ctx, "/w", t0, func(w io.Writer) error {
		_, err := io.WriteString(w, "second")
		return err
	})
	require.NoError(t, err)

	_, err = e.WriteWithToken(ctx, "/w", t0, func(w io.Writer) error {
		_, err := io.WriteString(w, "stale")
		return err
	})
	assert.ErrorIs(t, err, ErrPreconditionFailed)

	token, _, err := e.TryGetVersionToken(ctx, "/w")
	require.NoError(t, err)
	assert.Equal(t, t1, token)
	assert.Equal(t, "second", readAll(t, e, "/w"))
}

func TestWriteWithTokenProducerFailure(t *testing.T) {
	e, store := newTestEngine(t, Options{})
	boom := errors.New("producer failed")

	_, err := e.WriteWithToken(context.Background(), "/w", "", func(w io.Writer) error {
		io.WriteString(w, "partial")
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.Len(), "nothing is committed")
}

func readAll(t *testing.T, e *Engine, path string) string {
	t.Helper()
	var sb strings.Builder
	_, err := e.DownloadToStream(context.Background(), path, &sb)
	require.NoError(t, err)
	return sb.String()
}
