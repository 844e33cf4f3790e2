// Package localfs implements backends.ObjectStore on a local directory. Keys are
// stored flat, one file per object, so the directory layout never has to
// reconcile a file and a directory marker with the same name.
//
// Every listing reads the names of all stored objects, so its cost grows with
// the size of the store even for single-key existence checks. Only the
// objects on the returned page are stat'ed. Use the s3 backend for large
// namespaces.
package localfs

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/backends"
	"github.com/ebogdum/bucketfs/locks"
)

const (
	objectsDir  = "objects"
	versionsDir = "versions"
	tmpDir      = "tmp"

	// maxEncodedName keeps encoded keys within common filename limits.
	maxEncodedName = 255
)

// LocalFSAdapter implements the backends.ObjectStore interface for a local directory
type LocalFSAdapter struct {
	rootPath string
	locks    locks.Manager
	logger   *zap.Logger

	// writeVersion records a version sidecar; replaced in tests.
	writeVersion func(path string, version backends.VersionToken) error
}

// NewLocalFSAdapter creates a new local filesystem adapter rooted at rootPath.
// lockManager serializes conditional writes; share a Redis-backed manager when
// several hosts mount the same root.
func NewLocalFSAdapter(rootPath string, lockManager locks.Manager, logger *zap.Logger) (*LocalFSAdapter, error) {
	for _, dir := range []string{objectsDir, versionsDir, tmpDir} {
		if err := os.MkdirAll(filepath.Join(rootPath, dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s under root path %s: %w", dir, rootPath, err)
		}
	}

	if lockManager == nil {
		lockManager = locks.NewLocalManager()
	}

	a := &LocalFSAdapter{
		rootPath: rootPath,
		locks:    lockManager,
		logger:   logger,
	}
	a.writeVersion = func(path string, version backends.VersionToken) error {
		return writeFileAtomic(filepath.Join(rootPath, tmpDir), path, []byte(version))
	}
	return a, nil
}

// encodeKey maps a key onto a single filename. The leading underscore keeps
// keys such as "." and ".." from colliding with directory entries.
func encodeKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty object key")
	}
	name := "_" + url.PathEscape(key)
	if len(name) > maxEncodedName {
		return "", fmt.Errorf("%w: key of %d bytes is too long for the localfs backend", backends.ErrNotSupported, len(key))
	}
	return name, nil
}

func decodeKey(name string) (string, bool) {
	if !strings.HasPrefix(name, "_") {
		return "", false
	}
	key, err := url.PathUnescape(name[1:])
	if err != nil {
		return "", false
	}
	return key, true
}

func (a *LocalFSAdapter) objectPath(name string) string {
	return filepath.Join(a.rootPath, objectsDir, name)
}

func (a *LocalFSAdapter) versionPath(name string) string {
	return filepath.Join(a.rootPath, versionsDir, name)
}

// readVersion returns the stored version token, deriving one from size and
// modification time when the sidecar is missing.
func (a *LocalFSAdapter) readVersion(name string, info os.FileInfo) backends.VersionToken {
	if data, err := os.ReadFile(a.versionPath(name)); err == nil {
		return backends.VersionToken(strings.TrimSpace(string(data)))
	}
	return backends.VersionToken(fmt.Sprintf("\"%x-%x\"", info.Size(), info.ModTime().UnixNano()))
}

func (a *LocalFSAdapter) stat(key, name string) (backends.ObjectInfo, error) {
	info, err := os.Stat(a.objectPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return backends.ObjectInfo{}, backends.ErrNotFound
		}
		return backends.ObjectInfo{}, fmt.Errorf("failed to stat object %s: %w", key, err)
	}
	return backends.ObjectInfo{
		Key:          key,
		Size:         info.Size(),
		LastModified: info.ModTime().UTC(),
		Version:      a.readVersion(name, info),
	}, nil
}

// ListObjects lists keys with S3 prefix/delimiter semantics. Sidecars are
// read without the key lock, so a listing that races a write may pair the new
// size with a version derived from the file rather than the recorded one.
// Conditional operations always go through HeadObject or GetObject.
func (a *LocalFSAdapter) ListObjects(ctx context.Context, in backends.ListInput) (backends.ListPage, error) {
	entries, err := os.ReadDir(filepath.Join(a.rootPath, objectsDir))
	if err != nil {
		return backends.ListPage{}, fmt.Errorf("failed to read object directory: %w", err)
	}

	names := make(map[string]string, len(entries))
	keys := make([]backends.ObjectInfo, 0, len(entries))
	for _, entry := range entries {
		key, ok := decodeKey(entry.Name())
		if !ok || !strings.HasPrefix(key, in.Prefix) {
			continue
		}
		names[key] = entry.Name()
		keys = append(keys, backends.ObjectInfo{Key: key})
	}

	page := backends.Paginate(keys, in)

	objects := page.Objects[:0]
	for _, obj := range page.Objects {
		if err := ctx.Err(); err != nil {
			return backends.ListPage{}, err
		}
		info, err := a.stat(obj.Key, names[obj.Key])
		if err != nil {
			// Deleted between ReadDir and Stat
			continue
		}
		objects = append(objects, info)
	}
	page.Objects = objects

	return page, nil
}

// HeadObject returns object metadata
func (a *LocalFSAdapter) HeadObject(ctx context.Context, key string) (backends.ObjectInfo, error) {
	name, err := encodeKey(key)
	if err != nil {
		return backends.ObjectInfo{}, err
	}

	var info backends.ObjectInfo
	err = locks.WithLock(ctx, a.locks, key, func() error {
		var statErr error
		info, statErr = a.stat(key, name)
		return statErr
	})
	return info, err
}

// GetObject opens an object for reading. The open file stays valid after a
// concurrent replace because writers swap files with rename.
func (a *LocalFSAdapter) GetObject(ctx context.Context, key string, ifMatch backends.VersionToken) (io.ReadCloser, backends.ObjectInfo, error) {
	name, err := encodeKey(key)
	if err != nil {
		return nil, backends.ObjectInfo{}, err
	}

	var (
		file *os.File
		info backends.ObjectInfo
	)
	err = locks.WithLock(ctx, a.locks, key, func() error {
		var statErr error
		if info, statErr = a.stat(key, name); statErr != nil {
			return statErr
		}
		if ifMatch != "" && info.Version != ifMatch {
			return &backends.PreconditionError{Key: key, Expected: ifMatch, Current: info.Version}
		}

		var openErr error
		file, openErr = os.Open(a.objectPath(name))
		if openErr != nil {
			if os.IsNotExist(openErr) {
				return backends.ErrNotFound
			}
			return fmt.Errorf("failed to open object %s: %w", key, openErr)
		}
		return nil
	})
	if err != nil {
		return nil, backends.ObjectInfo{}, err
	}

	return file, info, nil
}

// GetObjectRange opens an object for reading from offset onwards
func (a *LocalFSAdapter) GetObjectRange(ctx context.Context, key string, ifMatch backends.VersionToken, offset int64) (io.ReadCloser, backends.ObjectInfo, error) {
	body, info, err := a.GetObject(ctx, key, ifMatch)
	if err != nil {
		return nil, info, err
	}
	if offset > 0 {
		if _, err := body.(io.Seeker).Seek(offset, io.SeekStart); err != nil {
			body.Close()
			return nil, backends.ObjectInfo{}, fmt.Errorf("failed to seek object %s: %w", key, err)
		}
	}
	return body, info, nil
}

// PutObject streams body into a temporary file and swaps it into place,
// checking ifMatch under the key lock.
func (a *LocalFSAdapter) PutObject(ctx context.Context, key string, body io.Reader, size int64, ifMatch backends.VersionToken) (backends.VersionToken, error) {
	name, err := encodeKey(key)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Join(a.rootPath, tmpDir), "put-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	hash := md5.New()
	written := int64(0)
	if body != nil {
		written, err = io.Copy(io.MultiWriter(tmp, hash), &contextReader{ctx: ctx, r: body})
		if err != nil {
			return "", fmt.Errorf("failed to write object content: %w", err)
		}
	}
	if size >= 0 && written != size {
		return "", fmt.Errorf("short object body for %s: expected %d bytes, got %d", key, size, written)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("failed to sync object content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temporary file: %w", err)
	}

	version := backends.VersionToken(fmt.Sprintf("\"%x-%x\"", hash.Sum(nil)[:8], time.Now().UnixNano()))

	err = locks.WithLock(ctx, a.locks, key, func() error {
		if ifMatch != "" {
			current, statErr := a.stat(key, name)
			if errors.Is(statErr, backends.ErrNotFound) {
				return &backends.PreconditionError{Key: key, Expected: ifMatch}
			}
			if statErr != nil {
				return statErr
			}
			if current.Version != ifMatch {
				return &backends.PreconditionError{Key: key, Expected: ifMatch, Current: current.Version}
			}
		}

		// Drop the old sidecar first: if recording the new one fails, the
		// object falls back to a derived version instead of keeping the
		// previous token.
		if err := os.Remove(a.versionPath(name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to clear version of %s: %w", key, err)
		}
		if err := os.Rename(tmp.Name(), a.objectPath(name)); err != nil {
			return fmt.Errorf("failed to commit object %s: %w", key, err)
		}
		committed = true

		if err := a.writeVersion(a.versionPath(name), version); err != nil {
			a.logger.Warn("Failed to record object version, using derived version",
				zap.String("key", key),
				zap.Error(err))
			info, statErr := a.stat(key, name)
			if statErr != nil {
				return fmt.Errorf("failed to read version of %s: %w", key, statErr)
			}
			version = info.Version
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	a.logger.Debug("Object stored on local filesystem",
		zap.String("key", key),
		zap.Int64("size", written),
		zap.String("version", string(version)))

	return version, nil
}

// DeleteObject removes a key; absence is not an error
func (a *LocalFSAdapter) DeleteObject(ctx context.Context, key string) error {
	name, err := encodeKey(key)
	if err != nil {
		return err
	}

	return locks.WithLock(ctx, a.locks, key, func() error {
		if err := os.Remove(a.objectPath(name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete object %s: %w", key, err)
		}
		if err := os.Remove(a.versionPath(name)); err != nil && !os.IsNotExist(err) {
			a.logger.Warn("Failed to remove version sidecar", zap.String("key", key), zap.Error(err))
		}
		return nil
	})
}

// DeleteObjects removes keys one by one and reports per-key failures
func (a *LocalFSAdapter) DeleteObjects(ctx context.Context, keys []string) (map[string]error, error) {
	if len(keys) > backends.MaxDeleteBatch {
		return nil, fmt.Errorf("batch of %d keys exceeds limit of %d", len(keys), backends.MaxDeleteBatch)
	}

	failures := make(map[string]error)
	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			for _, rest := range keys[i:] {
				failures[rest] = err
			}
			return failures, nil
		}
		if err := a.DeleteObject(ctx, key); err != nil {
			failures[key] = err
		}
	}
	return failures, nil
}

// Close releases the lock manager
func (a *LocalFSAdapter) Close() error {
	return a.locks.Close()
}

func writeFileAtomic(tmpRoot, path string, data []byte) error {
	f, err := os.CreateTemp(tmpRoot, "meta-*")
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), path)
}

// contextReader stops a copy once ctx is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
