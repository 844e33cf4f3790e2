package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/backends"
	"github.com/ebogdum/bucketfs/core/log"
	"github.com/ebogdum/bucketfs/internal/pathutil"
	"github.com/ebogdum/bucketfs/metrics"
)

// Directories exist by convention only. A directory at prefix "a/b/" exists
// when a zero-length marker object "a/b/" exists or when any key starts with
// "a/b/". Every check and listing below applies that one rule.

// Entry is one child returned by directory enumeration.
type Entry struct {
	Path         string                `json:"path"`
	Name         string                `json:"name"`
	IsDir        bool                  `json:"is_dir"`
	Size         int64                 `json:"size"`
	LastModified time.Time             `json:"last_modified,omitempty"`
	Version      backends.VersionToken `json:"etag,omitempty"`
	Depth        int                   `json:"depth"`
}

// DirectoryExists reports whether any object lives under the directory at
// path. The root always exists.
func (e *Engine) DirectoryExists(ctx context.Context, path string) (bool, error) {
	prefix, err := e.dirPrefix(path)
	if err != nil {
		return false, err
	}
	if prefix == pathutil.RootKey {
		return true, nil
	}

	page, err := withRetry(ctx, e.retry, e.logger, "list", prefix.String(), func() (backends.ListPage, error) {
		return e.store.ListObjects(ctx, backends.ListInput{Prefix: prefix.String(), MaxKeys: 1})
	})
	if err != nil {
		return false, fmt.Errorf("failed to check directory %s: %w", log.SanitizePath(path), err)
	}

	return len(page.Objects) > 0 || len(page.CommonPrefixes) > 0, nil
}

// CreateDirectory writes the marker object for path. It succeeds when the
// directory already exists, explicitly or through descendants.
func (e *Engine) CreateDirectory(ctx context.Context, path string) error {
	metrics.FileOperationsTotal.WithLabelValues("create_directory").Inc()

	prefix, err := e.dirPrefix(path)
	if err != nil {
		return err
	}
	if prefix == pathutil.RootKey {
		return nil
	}

	_, err = withRetry(ctx, e.retry, e.logger, "put", prefix.String(), func() (backends.VersionToken, error) {
		return e.store.PutObject(ctx, prefix.String(), bytes.NewReader(nil), 0, "")
	})
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", log.SanitizePath(path), err)
	}

	e.logger.Debug("Directory created", log.Path("path", path))
	return nil
}

// DeleteDirectory removes the directory at path. Without recursive it fails
// with ErrDirectoryNotEmpty when anything besides the marker exists. With
// recursive the keys under the directory are deleted in batches as they are
// listed, so memory stays bounded by one batch. Keys that could not be
// deleted, or were listed but never attempted because ctx ended or listing
// failed, are itemized in the result and reported through
// *PartialFailureError. Keys not yet listed at that point are not itemized;
// the marker is always deleted last, so the directory stays visible until
// everything under it is gone.
//
// The returned result is never nil.
func (e *Engine) DeleteDirectory(ctx context.Context, path string, recursive bool) (*TransferResult, error) {
	metrics.FileOperationsTotal.WithLabelValues("delete_directory").Inc()

	result := newTransferResult()

	prefix, err := e.dirPrefix(path)
	if err != nil {
		result.settle()
		return result, err
	}
	if prefix == pathutil.RootKey {
		result.Status = TransferFailed
		return result, fmt.Errorf("%w: deleting the root directory", ErrNotSupported)
	}

	if !recursive {
		return e.deleteEmptyDirectory(ctx, path, prefix, result)
	}

	cause := e.deleteTree(ctx, prefix.String(), result)
	result.settle()
	if cause != nil && result.Status == TransferComplete {
		// Listing failed before anything was left over to itemize
		result.Status = TransferPartial
		if len(result.Succeeded) == 0 {
			result.Status = TransferFailed
		}
	}
	metrics.BatchDeleteKeysTotal.WithLabelValues("succeeded").Add(float64(len(result.Succeeded)))
	metrics.BatchDeleteKeysTotal.WithLabelValues("failed").Add(float64(len(result.Failed)))
	metrics.BatchDeleteKeysTotal.WithLabelValues("pending").Add(float64(len(result.Pending)))

	if result.Status != TransferComplete {
		e.logger.Warn("Recursive delete incomplete",
			log.Path("path", path),
			zap.Stringer("status", result.Status),
			zap.Int("succeeded", len(result.Succeeded)),
			zap.Int("failed", len(result.Failed)),
			zap.Int("pending", len(result.Pending)))
		return result, &PartialFailureError{Op: "delete directory", Path: path, Result: result, Err: cause}
	}

	e.logger.Debug("Directory deleted",
		log.Path("path", path),
		zap.Int("keys", len(result.Succeeded)))
	return result, nil
}

func (e *Engine) deleteEmptyDirectory(ctx context.Context, path string, prefix pathutil.Key, result *TransferResult) (*TransferResult, error) {
	// Two keys are enough to tell a lone marker from a populated directory.
	page, err := withRetry(ctx, e.retry, e.logger, "list", prefix.String(), func() (backends.ListPage, error) {
		return e.store.ListObjects(ctx, backends.ListInput{Prefix: prefix.String(), MaxKeys: 2})
	})
	if err != nil {
		result.Status = TransferFailed
		return result, fmt.Errorf("failed to list directory %s: %w", log.SanitizePath(path), err)
	}

	hasMarker := false
	for _, obj := range page.Objects {
		if obj.Key != prefix.String() {
			result.Status = TransferFailed
			return result, fmt.Errorf("%w: %s", ErrDirectoryNotEmpty, log.SanitizePath(path))
		}
		hasMarker = true
	}
	if len(page.CommonPrefixes) > 0 {
		result.Status = TransferFailed
		return result, fmt.Errorf("%w: %s", ErrDirectoryNotEmpty, log.SanitizePath(path))
	}

	if hasMarker {
		_, err := withRetry(ctx, e.retry, e.logger, "delete", prefix.String(), func() (struct{}, error) {
			return struct{}{}, e.store.DeleteObject(ctx, prefix.String())
		})
		if err != nil {
			result.Failed[keyPath(prefix.String())] = err
			result.settle()
			return result, fmt.Errorf("failed to delete directory marker %s: %w", log.SanitizePath(path), err)
		}
		result.Succeeded = append(result.Succeeded, keyPath(prefix.String()))
	}

	result.settle()
	return result, nil
}

// deleteTree deletes every key under prefix, flushing a batch whenever
// backends.MaxDeleteBatch keys have been listed. The marker at prefix goes
// into the final batch. It returns the first error seen.
func (e *Engine) deleteTree(ctx context.Context, prefix string, result *TransferResult) error {
	var (
		cause     error
		batch     = make([]string, 0, backends.MaxDeleteBatch)
		hasMarker bool
		token     string
	)

	setCause := func(err error) {
		if cause == nil {
			cause = err
		}
	}

	abandon := func() {
		for _, k := range batch {
			result.Pending = append(result.Pending, keyPath(k))
		}
		if hasMarker {
			result.Pending = append(result.Pending, keyPath(prefix))
		}
	}

	flush := func() bool {
		if err := ctx.Err(); err != nil {
			setCause(err)
			return false
		}
		if len(batch) > 0 {
			e.deleteBatch(ctx, batch, result, setCause)
			batch = batch[:0]
		}
		return true
	}

	for {
		if err := ctx.Err(); err != nil {
			setCause(err)
			abandon()
			return cause
		}

		page, err := withRetry(ctx, e.retry, e.logger, "list", prefix, func() (backends.ListPage, error) {
			return e.store.ListObjects(ctx, backends.ListInput{Prefix: prefix, PageToken: token})
		})
		if err != nil {
			setCause(fmt.Errorf("failed to list directory %s: %w", log.SanitizePath(keyPath(prefix)), err))
			abandon()
			return cause
		}

		for _, obj := range page.Objects {
			if obj.Key == prefix {
				hasMarker = true
				continue
			}
			batch = append(batch, obj.Key)
			if len(batch) == backends.MaxDeleteBatch && !flush() {
				abandon()
				return cause
			}
		}

		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}

	if hasMarker {
		if len(batch) == backends.MaxDeleteBatch && !flush() {
			abandon()
			return cause
		}
		batch = append(batch, prefix)
		hasMarker = false
	}
	if !flush() {
		// The marker, if any, is already in batch
		abandon()
	}
	return cause
}

// deleteBatch issues one DeleteObjects call and records per-key outcomes.
// Batch calls are not retried; failed keys are reported instead.
func (e *Engine) deleteBatch(ctx context.Context, batch []string, result *TransferResult, setCause func(error)) {
	failures, err := e.store.DeleteObjects(ctx, batch)
	if err != nil {
		setCause(err)
		for _, k := range batch {
			result.Failed[keyPath(k)] = err
		}
		return
	}

	for _, k := range batch {
		keyErr, failed := failures[k]
		if failed && !errors.Is(keyErr, backends.ErrNotFound) {
			setCause(keyErr)
			result.Failed[keyPath(k)] = keyErr
			continue
		}
		result.Succeeded = append(result.Succeeded, keyPath(k))
	}
}

// EnumerateChildren lists the entries under the directory at path, breadth
// first, down to depth levels (depth < 1 is treated as 1). Pages are fetched
// as the sequence is consumed, and every range over the sequence starts a
// fresh listing. An absent directory yields nothing. A listing error is
// yielded once and ends the sequence.
func (e *Engine) EnumerateChildren(ctx context.Context, path string, depth int) iter.Seq2[Entry, error] {
	if depth < 1 {
		depth = 1
	}

	return func(yield func(Entry, error) bool) {
		root, err := e.dirPrefix(path)
		if err != nil {
			yield(Entry{}, err)
			return
		}

		type level struct {
			prefix string
			depth  int
		}
		queue := []level{{prefix: root.String(), depth: 1}}

		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]

			token := ""
			for {
				page, err := withRetry(ctx, e.retry, e.logger, "list", current.prefix, func() (backends.ListPage, error) {
					return e.store.ListObjects(ctx, backends.ListInput{
						Prefix:    current.prefix,
						Delimiter: pathutil.Separator,
						PageToken: token,
					})
				})
				if err != nil {
					yield(Entry{}, fmt.Errorf("failed to list directory %s: %w", log.SanitizePath(keyPath(current.prefix)), err))
					return
				}

				for _, entry := range pageEntries(page, current.prefix, current.depth) {
					if !yield(entry, nil) {
						return
					}
					if entry.IsDir && current.depth < depth {
						queue = append(queue, level{
							prefix: strings.TrimPrefix(entry.Path, pathutil.Separator) + pathutil.Separator,
							depth:  current.depth + 1,
						})
					}
				}

				if page.NextPageToken == "" {
					break
				}
				token = page.NextPageToken
			}
		}
	}
}

// pageEntries turns one delimited listing page into entries in lexical order.
// The marker of the listed directory is never reported as a file.
func pageEntries(page backends.ListPage, prefix string, depth int) []Entry {
	entries := make([]Entry, 0, len(page.Objects)+len(page.CommonPrefixes))

	for _, obj := range page.Objects {
		if obj.Key == prefix || strings.HasSuffix(obj.Key, pathutil.Separator) {
			continue
		}
		key := pathutil.Key(obj.Key)
		entries = append(entries, Entry{
			Path:         key.Path(),
			Name:         pathutil.LeafName(obj.Key),
			Size:         obj.Size,
			LastModified: obj.LastModified,
			Version:      obj.Version,
			Depth:        depth,
		})
	}

	for _, p := range page.CommonPrefixes {
		key := pathutil.Key(p)
		entries = append(entries, Entry{
			Path:  key.Path(),
			Name:  pathutil.LeafName(p),
			IsDir: true,
			Depth: depth,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries
}

// EnumerateDirectories returns the paths of the immediate subdirectories of path
func (e *Engine) EnumerateDirectories(ctx context.Context, path string) ([]string, error) {
	return e.collect(ctx, path, true)
}

// EnumerateFiles returns the paths of the files directly inside path
func (e *Engine) EnumerateFiles(ctx context.Context, path string) ([]string, error) {
	return e.collect(ctx, path, false)
}

func (e *Engine) collect(ctx context.Context, path string, dirs bool) ([]string, error) {
	paths := []string{}
	for entry, err := range e.EnumerateChildren(ctx, path, 1) {
		if err != nil {
			return nil, err
		}
		if entry.IsDir == dirs {
			paths = append(paths, entry.Path)
		}
	}
	return paths, nil
}
