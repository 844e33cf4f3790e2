// Package core implements the hierarchical file store on top of a flat
// backends.ObjectStore: directory emulation with marker objects, conditional
// access by version token, and streaming transfers.
package core

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/backends"
	"github.com/ebogdum/bucketfs/internal/pathutil"
)

// DefaultBufferSize is the copy buffer used by downloads when none is configured.
const DefaultBufferSize = 64 * 1024

// StoreAccount identifies one backend namespace and owns its client. It is
// built once, shared read-only by every engine using it, and closed by its
// creator.
type StoreAccount struct {
	name        string
	backendType string
	namespace   string
	store       backends.ObjectStore
}

// NewStoreAccount wraps store with metrics under backendType. namespace is a
// human-readable locator such as "s3://bucket/prefix/".
func NewStoreAccount(name, backendType, namespace string, store backends.ObjectStore) *StoreAccount {
	return &StoreAccount{
		name:        name,
		backendType: backendType,
		namespace:   namespace,
		store:       backends.Instrument(store, backendType),
	}
}

// Name returns the account identity
func (a *StoreAccount) Name() string { return a.name }

// BackendType returns "s3", "localfs" or "memory"
func (a *StoreAccount) BackendType() string { return a.backendType }

// Namespace returns the backend locator
func (a *StoreAccount) Namespace() string { return a.namespace }

// Close releases the backend client
func (a *StoreAccount) Close() error {
	return a.store.Close()
}

// Options tunes an Engine.
type Options struct {
	// DefaultDirectory resolves paths that are not rooted. Defaults to "/".
	DefaultDirectory string
	// CaseInsensitive folds every key to lower case.
	CaseInsensitive bool
	Retry           RetryPolicy
	// PartSize is the largest seekable upload that is retried as a whole.
	PartSize int64
	// BufferSize is the download copy buffer.
	BufferSize int
}

// Engine is the file store facade. It holds only immutable state and is safe
// for concurrent use.
type Engine struct {
	account    *StoreAccount
	store      backends.ObjectStore
	paths      pathutil.Normalizer
	defaultDir string
	retry      RetryPolicy
	partSize   int64
	bufferSize int
	logger     *zap.Logger
}

// NewEngine creates a new engine over account
func NewEngine(account *StoreAccount, opts Options, logger *zap.Logger) (*Engine, error) {
	if account == nil {
		return nil, fmt.Errorf("store account is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	paths := pathutil.NewNormalizer(opts.CaseInsensitive)

	defaultDir := opts.DefaultDirectory
	if defaultDir == "" {
		defaultDir = pathutil.Separator
	}
	if !pathutil.IsRooted(defaultDir) {
		return nil, fmt.Errorf("%w: default directory %q must be rooted", ErrInvalidPath, defaultDir)
	}
	defaultKey, err := paths.Normalize(defaultDir)
	if err != nil {
		return nil, fmt.Errorf("invalid default directory: %w", err)
	}

	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}

	return &Engine{
		account:    account,
		store:      account.store,
		paths:      paths,
		defaultDir: defaultKey.Path(),
		retry:      opts.Retry,
		partSize:   opts.PartSize,
		bufferSize: opts.BufferSize,
		logger:     logger,
	}, nil
}

// Account returns the store account the engine operates on
func (e *Engine) Account() *StoreAccount {
	return e.account
}

// BufferSize returns the copy buffer size used for streaming transfers
func (e *Engine) BufferSize() int {
	return e.bufferSize
}

// resolve anchors relative paths at the default directory
func (e *Engine) resolve(path string) string {
	if pathutil.IsRooted(path) {
		return path
	}
	return pathutil.Join(e.defaultDir, path)
}

// objectKey returns the key of the file at path. The root is not a file.
func (e *Engine) objectKey(path string) (pathutil.Key, error) {
	key, err := e.paths.Normalize(e.resolve(path))
	if err != nil {
		return "", err
	}
	if key == pathutil.RootKey {
		return "", fmt.Errorf("%w: %q does not name a file", ErrInvalidPath, path)
	}
	return key, nil
}

// dirPrefix returns the key prefix of the directory at path
func (e *Engine) dirPrefix(path string) (pathutil.Key, error) {
	return e.paths.DirectoryPrefix(e.resolve(path))
}

// keyPath renders a key as a rooted path, keeping a marker's trailing separator
func keyPath(key string) string {
	return pathutil.Separator + strings.TrimPrefix(key, pathutil.Separator)
}
