package core

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/backends"
	"github.com/ebogdum/bucketfs/core/log"
	"github.com/ebogdum/bucketfs/metrics"
)

// TryGetVersionToken returns the current version token of the file at path.
// A missing file is reported as ok == false, not as an error.
func (e *Engine) TryGetVersionToken(ctx context.Context, path string) (token backends.VersionToken, ok bool, err error) {
	key, err := e.objectKey(path)
	if err != nil {
		return "", false, err
	}

	info, err := e.head(ctx, key.String())
	if errors.Is(err, backends.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read version of %s: %w", log.SanitizePath(path), err)
	}
	return info.Version, true, nil
}

// ReadIfMatch opens the file at path only if its version equals token. On a
// mismatch it fails with a *PreconditionError carrying the current token.
func (e *Engine) ReadIfMatch(ctx context.Context, path string, token backends.VersionToken) (*ReadHandle, error) {
	if token == "" {
		return nil, ErrTokenRequired
	}
	key, err := e.objectKey(path)
	if err != nil {
		return nil, err
	}

	h, err := e.openReadHandle(ctx, path, key.String(), token)
	if err != nil {
		if errors.Is(err, backends.ErrPreconditionFailed) {
			metrics.PreconditionFailuresTotal.WithLabelValues("read").Inc()
		}
		return nil, err
	}
	return h, nil
}

// WriteIfMatch replaces the file at path with payload. An empty expected
// token writes unconditionally; otherwise the write succeeds only while the
// file's version still equals expected. The object is either fully replaced
// or left untouched. size is -1 when unknown.
func (e *Engine) WriteIfMatch(ctx context.Context, path string, expected backends.VersionToken, payload io.Reader, size int64) (backends.VersionToken, error) {
	key, err := e.objectKey(path)
	if err != nil {
		return "", err
	}

	token, err := e.upload(ctx, key.String(), payload, size, expected)
	if err != nil {
		if errors.Is(err, backends.ErrPreconditionFailed) {
			metrics.PreconditionFailuresTotal.WithLabelValues("write").Inc()
			e.logger.Debug("Conditional write rejected",
				log.Path("path", path),
				zap.String("expected", string(expected)))
		}
		return "", err
	}
	return token, nil
}

// WriteWithToken streams the output of write to path as a compare-and-swap
// against expected (unconditional when empty). The object is committed only
// when write returns nil.
func (e *Engine) WriteWithToken(ctx context.Context, path string, expected backends.VersionToken, write func(w io.Writer) error) (backends.VersionToken, error) {
	key, err := e.objectKey(path)
	if err != nil {
		return "", err
	}

	h := e.openWriteHandle(ctx, path, key.String(), expected)
	if err := write(h); err != nil {
		h.Abort()
		return "", fmt.Errorf("failed to produce content for %s: %w", log.SanitizePath(path), err)
	}
	if err := h.Close(); err != nil {
		if errors.Is(err, backends.ErrPreconditionFailed) {
			metrics.PreconditionFailuresTotal.WithLabelValues("write").Inc()
		}
		return "", err
	}
	return h.Version(), nil
}
