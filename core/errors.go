package core

import (
	"errors"
	"fmt"

	"github.com/ebogdum/bucketfs/backends"
	"github.com/ebogdum/bucketfs/internal/pathutil"
)

// Error kinds returned by the engine. Backend kinds are shared so that
// errors.Is works across both layers.
var (
	ErrInvalidPath        = pathutil.ErrInvalidPath
	ErrObjectNotFound     = backends.ErrNotFound
	ErrPreconditionFailed = backends.ErrPreconditionFailed
	ErrBackendUnavailable = backends.ErrUnavailable
	ErrNotSupported       = backends.ErrNotSupported

	ErrDirectoryNotEmpty = errors.New("directory not empty")
	ErrPartialFailure    = errors.New("partial failure")
	ErrTokenRequired     = errors.New("version token required")
	ErrHandleAborted     = errors.New("handle aborted")
)

// PreconditionError reports a version token mismatch and carries the
// object's current token when it is known.
type PreconditionError = backends.PreconditionError

// PartialFailureError is returned by batch operations that did not complete
// for every key. Result itemizes the outcome per key.
type PartialFailureError struct {
	Op     string
	Path   string
	Result *TransferResult
	Err    error // first underlying cause
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s %s: %s (%d succeeded, %d failed, %d pending): %v",
		e.Op, e.Path, e.Result.Status, len(e.Result.Succeeded), len(e.Result.Failed), len(e.Result.Pending), e.Err)
}

// Is makes errors.Is(err, ErrPartialFailure) match.
func (e *PartialFailureError) Is(target error) bool {
	return target == ErrPartialFailure
}

func (e *PartialFailureError) Unwrap() error { return e.Err }
