// Package memory implements an in-process object store. It backs ephemeral
// deployments and serves as the test double for the file store, with hooks to
// inject per-key and per-operation failures at the backend boundary.
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/backends"
)

// Operation names accepted by the fault injection hooks.
const (
	OpList   = "list"
	OpHead   = "head"
	OpGet    = "get"
	OpPut    = "put"
	OpDelete = "delete"
)

type object struct {
	data     []byte
	version  backends.VersionToken
	modified time.Time
}

type keyFault struct {
	op  string
	key string
}

// MemoryAdapter implements backends.ObjectStore over a map.
type MemoryAdapter struct {
	mu         sync.RWMutex
	objects    map[string]*object
	generation uint64

	faultMu   sync.Mutex
	keyFaults map[keyFault]error
	opFaults  map[string][]error

	logger *zap.Logger
}

// NewMemoryAdapter creates an empty in-memory object store.
func NewMemoryAdapter(logger *zap.Logger) *MemoryAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryAdapter{
		objects:   make(map[string]*object),
		keyFaults: make(map[keyFault]error),
		opFaults:  make(map[string][]error),
		logger:    logger,
	}
}

// FailKey makes every op on key fail with err until ClearFaults is called.
// For OpDelete the failure is also reported per key by DeleteObjects.
func (a *MemoryAdapter) FailKey(op, key string, err error) {
	a.faultMu.Lock()
	defer a.faultMu.Unlock()
	a.keyFaults[keyFault{op: op, key: key}] = err
}

// FailNext queues errs to be returned, in order, by the next calls of op.
func (a *MemoryAdapter) FailNext(op string, errs ...error) {
	a.faultMu.Lock()
	defer a.faultMu.Unlock()
	a.opFaults[op] = append(a.opFaults[op], errs...)
}

// ClearFaults removes every injected failure.
func (a *MemoryAdapter) ClearFaults() {
	a.faultMu.Lock()
	defer a.faultMu.Unlock()
	a.keyFaults = make(map[keyFault]error)
	a.opFaults = make(map[string][]error)
}

// Len returns the number of stored objects, markers included.
func (a *MemoryAdapter) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.objects)
}

func (a *MemoryAdapter) fault(op, key string) error {
	a.faultMu.Lock()
	defer a.faultMu.Unlock()

	if queued := a.opFaults[op]; len(queued) > 0 {
		a.opFaults[op] = queued[1:]
		return queued[0]
	}
	return a.keyFaults[keyFault{op: op, key: key}]
}

func (a *MemoryAdapter) keyFault(op, key string) error {
	a.faultMu.Lock()
	defer a.faultMu.Unlock()
	return a.keyFaults[keyFault{op: op, key: key}]
}

func (a *MemoryAdapter) info(key string, obj *object) backends.ObjectInfo {
	return backends.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		LastModified: obj.modified,
		Version:      obj.version,
	}
}

// ListObjects lists keys with S3 prefix/delimiter semantics
func (a *MemoryAdapter) ListObjects(ctx context.Context, in backends.ListInput) (backends.ListPage, error) {
	if err := ctx.Err(); err != nil {
		return backends.ListPage{}, err
	}
	if err := a.fault(OpList, in.Prefix); err != nil {
		return backends.ListPage{}, err
	}

	a.mu.RLock()
	infos := make([]backends.ObjectInfo, 0, len(a.objects))
	for key, obj := range a.objects {
		infos = append(infos, a.info(key, obj))
	}
	a.mu.RUnlock()

	return backends.Paginate(infos, in), nil
}

// HeadObject returns object metadata
func (a *MemoryAdapter) HeadObject(ctx context.Context, key string) (backends.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return backends.ObjectInfo{}, err
	}
	if err := a.fault(OpHead, key); err != nil {
		return backends.ObjectInfo{}, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	obj, ok := a.objects[key]
	if !ok {
		return backends.ObjectInfo{}, backends.ErrNotFound
	}
	return a.info(key, obj), nil
}

// GetObject opens an object for reading
func (a *MemoryAdapter) GetObject(ctx context.Context, key string, ifMatch backends.VersionToken) (io.ReadCloser, backends.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, backends.ObjectInfo{}, err
	}
	if err := a.fault(OpGet, key); err != nil {
		return nil, backends.ObjectInfo{}, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	obj, ok := a.objects[key]
	if !ok {
		return nil, backends.ObjectInfo{}, backends.ErrNotFound
	}
	if ifMatch != "" && obj.version != ifMatch {
		return nil, backends.ObjectInfo{}, &backends.PreconditionError{Key: key, Expected: ifMatch, Current: obj.version}
	}

	// Stored slices are never mutated, so readers can share them.
	return readCloser{bytes.NewReader(obj.data)}, a.info(key, obj), nil
}

// GetObjectRange opens an object for reading from offset onwards
func (a *MemoryAdapter) GetObjectRange(ctx context.Context, key string, ifMatch backends.VersionToken, offset int64) (io.ReadCloser, backends.ObjectInfo, error) {
	body, info, err := a.GetObject(ctx, key, ifMatch)
	if err != nil {
		return nil, info, err
	}
	if offset > info.Size {
		offset = info.Size
	}
	if _, err := body.(io.Seeker).Seek(offset, io.SeekStart); err != nil {
		return nil, backends.ObjectInfo{}, err
	}
	return body, info, nil
}

// PutObject stores the content of body, optionally as a compare-and-swap
func (a *MemoryAdapter) PutObject(ctx context.Context, key string, body io.Reader, size int64, ifMatch backends.VersionToken) (backends.VersionToken, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := a.fault(OpPut, key); err != nil {
		return "", err
	}

	var data []byte
	if body != nil {
		var err error
		if data, err = io.ReadAll(body); err != nil {
			return "", fmt.Errorf("failed to read object body: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if ifMatch != "" {
		current, ok := a.objects[key]
		if !ok {
			return "", &backends.PreconditionError{Key: key, Expected: ifMatch}
		}
		if current.version != ifMatch {
			return "", &backends.PreconditionError{Key: key, Expected: ifMatch, Current: current.version}
		}
	}

	a.generation++
	sum := md5.Sum(data)
	version := backends.VersionToken(fmt.Sprintf("\"%x-%d\"", sum[:8], a.generation))
	a.objects[key] = &object{data: data, version: version, modified: time.Now().UTC()}

	a.logger.Debug("Object stored in memory",
		zap.String("key", key),
		zap.Int("size", len(data)),
		zap.String("version", string(version)))

	return version, nil
}

// DeleteObject removes a key
func (a *MemoryAdapter) DeleteObject(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.fault(OpDelete, key); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.objects, key)
	return nil
}

// DeleteObjects removes a batch of keys, reporting injected per-key failures
func (a *MemoryAdapter) DeleteObjects(ctx context.Context, keys []string) (map[string]error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(keys) > backends.MaxDeleteBatch {
		return nil, fmt.Errorf("batch of %d keys exceeds limit of %d", len(keys), backends.MaxDeleteBatch)
	}
	if err := a.fault(OpDelete, ""); err != nil {
		return nil, err
	}

	failures := make(map[string]error)
	for _, key := range keys {
		if err := a.keyFault(OpDelete, key); err != nil {
			failures[key] = err
			continue
		}
		a.mu.Lock()
		delete(a.objects, key)
		a.mu.Unlock()
	}
	return failures, nil
}

// Close does nothing for the in-memory backend
func (a *MemoryAdapter) Close() error {
	return nil
}

// readCloser is a seekable body with a no-op Close.
type readCloser struct {
	*bytes.Reader
}

func (readCloser) Close() error { return nil }
