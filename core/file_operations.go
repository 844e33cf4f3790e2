package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ebogdum/bucketfs/backends"
	"github.com/ebogdum/bucketfs/core/log"
	"github.com/ebogdum/bucketfs/internal/pathutil"
	"github.com/ebogdum/bucketfs/metrics"
)

func (e *Engine) head(ctx context.Context, key string) (backends.ObjectInfo, error) {
	return withRetry(ctx, e.retry, e.logger, "head", key, func() (backends.ObjectInfo, error) {
		return e.store.HeadObject(ctx, key)
	})
}

// Stat returns the metadata of the file at path
func (e *Engine) Stat(ctx context.Context, path string) (Entry, error) {
	key, err := e.objectKey(path)
	if err != nil {
		return Entry{}, err
	}

	info, err := e.head(ctx, key.String())
	if err != nil {
		return Entry{}, fmt.Errorf("failed to stat %s: %w", log.SanitizePath(path), err)
	}

	return Entry{
		Path:         key.Path(),
		Name:         pathutil.LeafName(key.String()),
		Size:         info.Size,
		LastModified: info.LastModified,
		Version:      info.Version,
	}, nil
}

// FileExists reports whether a file exists at path. A directory with the same
// name does not count.
func (e *Engine) FileExists(ctx context.Context, path string) (bool, error) {
	key, err := e.objectKey(path)
	if err != nil {
		return false, err
	}

	_, err = e.head(ctx, key.String())
	if errors.Is(err, backends.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check file %s: %w", log.SanitizePath(path), err)
	}
	return true, nil
}

// DeleteFile removes the file at path. Deleting a missing file succeeds.
func (e *Engine) DeleteFile(ctx context.Context, path string) error {
	metrics.FileOperationsTotal.WithLabelValues("delete").Inc()

	key, err := e.objectKey(path)
	if err != nil {
		return err
	}

	_, err = withRetry(ctx, e.retry, e.logger, "delete", key.String(), func() (struct{}, error) {
		return struct{}{}, e.store.DeleteObject(ctx, key.String())
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", log.SanitizePath(path), err)
	}

	e.logger.Debug("File deleted", log.Path("path", path))
	return nil
}

// GetFileSize returns the size in bytes of the file at path
func (e *Engine) GetFileSize(ctx context.Context, path string) (int64, error) {
	entry, err := e.Stat(ctx, path)
	if err != nil {
		return 0, err
	}
	return entry.Size, nil
}

// GetLastModified returns the modification time of the file at path
func (e *Engine) GetLastModified(ctx context.Context, path string) (time.Time, error) {
	entry, err := e.Stat(ctx, path)
	if err != nil {
		return time.Time{}, err
	}
	return entry.LastModified, nil
}

// Rename always fails with ErrNotSupported. The backend has no atomic rename.
func (e *Engine) Rename(ctx context.Context, from, to string) error {
	return fmt.Errorf("%w: rename", ErrNotSupported)
}
