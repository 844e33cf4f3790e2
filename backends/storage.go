// Package backends defines the object storage boundary used by the file store
// and provides adapters for S3, a local directory and process memory.
package backends

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Common backend errors
var (
	ErrNotFound           = errors.New("object not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrUnavailable        = errors.New("backend unavailable")
	ErrNotSupported       = errors.New("operation not supported by backend")
)

// MaxDeleteBatch is the largest number of keys accepted by a single DeleteObjects call.
const MaxDeleteBatch = 1000

// VersionToken is the opaque per-object version (ETag) produced on every write.
// Backends emit quoted HTTP entity tags so tokens can travel in ETag and
// If-Match headers unchanged.
type VersionToken string

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	Version      VersionToken
}

// ListInput selects a page of keys. An empty Delimiter lists every key under
// Prefix; MaxKeys <= 0 lets the backend choose the page size.
type ListInput struct {
	Prefix    string
	Delimiter string
	PageToken string
	MaxKeys   int
}

// ListPage is one page of a listing. NextPageToken is empty on the last page.
type ListPage struct {
	Objects        []ObjectInfo
	CommonPrefixes []string
	NextPageToken  string
}

// ObjectStore is the capability set every backend must provide. Keys are
// flat strings; the store attaches no meaning to the separator except when
// a Delimiter is passed to ListObjects.
type ObjectStore interface {
	// ListObjects returns one page of keys under a prefix
	ListObjects(ctx context.Context, in ListInput) (ListPage, error)

	// HeadObject returns metadata for a key or ErrNotFound
	HeadObject(ctx context.Context, key string) (ObjectInfo, error)

	// GetObject opens a read stream. A non-empty ifMatch makes the read
	// conditional and yields a *PreconditionError on mismatch.
	GetObject(ctx context.Context, key string, ifMatch VersionToken) (io.ReadCloser, ObjectInfo, error)

	// PutObject replaces the object with the content of body. size is -1 when
	// unknown. A non-empty ifMatch makes the write a compare-and-swap.
	PutObject(ctx context.Context, key string, body io.Reader, size int64, ifMatch VersionToken) (VersionToken, error)

	// DeleteObject removes a key; absence is not an error
	DeleteObject(ctx context.Context, key string) error

	// DeleteObjects removes up to MaxDeleteBatch keys and reports per-key failures.
	// A non-nil error means the whole call failed.
	DeleteObjects(ctx context.Context, keys []string) (map[string]error, error)

	// Close releases the client connection
	Close() error
}

// RangeReader is implemented by stores that can start a read part way into
// an object.
type RangeReader interface {
	GetObjectRange(ctx context.Context, key string, ifMatch VersionToken, offset int64) (io.ReadCloser, ObjectInfo, error)
}

// OpenAt opens key for reading from offset. Stores without RangeReader are
// read from the start and the first offset bytes are discarded.
func OpenAt(ctx context.Context, store ObjectStore, key string, ifMatch VersionToken, offset int64) (io.ReadCloser, ObjectInfo, error) {
	if offset <= 0 {
		return store.GetObject(ctx, key, ifMatch)
	}
	if rr, ok := store.(RangeReader); ok {
		return rr.GetObjectRange(ctx, key, ifMatch, offset)
	}

	body, info, err := store.GetObject(ctx, key, ifMatch)
	if err != nil {
		return nil, info, err
	}
	if _, err := io.CopyN(io.Discard, body, offset); err != nil {
		body.Close()
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("object %s is shorter than %d bytes: %w", key, offset, io.ErrUnexpectedEOF)
		}
		return nil, ObjectInfo{}, err
	}
	return body, info, nil
}

// PreconditionError reports a version token mismatch. Current is empty when
// the object does not exist or the backend did not disclose its version.
type PreconditionError struct {
	Key      string
	Expected VersionToken
	Current  VersionToken
}

func (e *PreconditionError) Error() string {
	if e.Current == "" {
		return fmt.Sprintf("precondition failed for %s: expected version %s", e.Key, e.Expected)
	}
	return fmt.Sprintf("precondition failed for %s: expected version %s, current %s", e.Key, e.Expected, e.Current)
}

// Is makes errors.Is(err, ErrPreconditionFailed) match.
func (e *PreconditionError) Is(target error) bool {
	return target == ErrPreconditionFailed
}

// TransientError marks a failure that may succeed when retried.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient backend failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUnavailable) match.
func (e *TransientError) Is(target error) bool {
	return target == ErrUnavailable
}

// Transient wraps err as a retryable failure of op.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
