package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/backends"
	"github.com/ebogdum/bucketfs/core/log"
	"github.com/ebogdum/bucketfs/metrics"
)

// errHandleClosed is returned by reads after the handle was released.
var errHandleClosed = errors.New("read handle closed")

// errUploadFinished is handed to writers when the upload ended without
// consuming the whole stream.
var errUploadFinished = errors.New("upload already finished")

// ReadHandle is an open read stream on one object. The stream is released
// exactly once: on Close, or when the context passed to OpenReadHandle ends.
// A transient failure part way through is resumed from the current offset,
// pinned to the version that was opened.
type ReadHandle struct {
	path string
	info backends.ObjectInfo
	body io.ReadCloser

	// Resume state, only touched by the reading goroutine.
	ctx      context.Context
	engine   *Engine
	key      string
	offset   int64
	failures int
	pending  error

	mu       sync.Mutex
	closed   bool
	once     sync.Once
	closeErr error
	stop     func() bool
}

// OpenReadHandle opens the object at path for streaming reads
func (e *Engine) OpenReadHandle(ctx context.Context, path string) (*ReadHandle, error) {
	key, err := e.objectKey(path)
	if err != nil {
		return nil, err
	}
	return e.openReadHandle(ctx, path, key.String(), "")
}

func (e *Engine) openReadHandle(ctx context.Context, path, key string, ifMatch backends.VersionToken) (*ReadHandle, error) {
	type opened struct {
		body io.ReadCloser
		info backends.ObjectInfo
	}

	o, err := withRetry(ctx, e.retry, e.logger, "get", key, func() (opened, error) {
		body, info, err := e.store.GetObject(ctx, key, ifMatch)
		return opened{body: body, info: info}, err
	})
	if err != nil {
		return nil, err
	}

	h := &ReadHandle{path: path, info: o.info, body: o.body, ctx: ctx, engine: e, key: key}
	h.stop = context.AfterFunc(ctx, func() { h.release() })
	return h, nil
}

// Read reads from the object stream
func (h *ReadHandle) Read(p []byte) (int, error) {
	for {
		if h.pending != nil {
			err := h.pending
			h.pending = nil
			if resumeErr := h.resume(err); resumeErr != nil {
				return 0, resumeErr
			}
		}

		n, err := h.body.Read(p)
		if n > 0 {
			h.offset += int64(n)
			h.failures = 0
			metrics.TransferBytesTotal.WithLabelValues("download").Add(float64(n))
		}
		if err == nil || err == io.EOF || h.engine == nil || !backends.IsTransient(err) {
			return n, err
		}

		h.pending = err
		if n > 0 {
			return n, nil
		}
	}
}

// resume reopens the object at the current offset after a transient read
// failure. Consecutive failures are bounded by the engine's retry policy.
func (h *ReadHandle) resume(cause error) error {
	p := h.engine.retry
	attempts := max(p.MaxAttempts, 1)

	for {
		h.failures++
		if h.failures >= attempts {
			metrics.ErrorsTotal.WithLabelValues("engine", "backend_unavailable").Inc()
			return fmt.Errorf("read %s failed after %d attempts at offset %d: %w", h.key, h.failures, h.offset, cause)
		}

		delay := p.backoff(h.failures)
		metrics.RetryAttemptsTotal.WithLabelValues("get_resume").Inc()
		h.engine.logger.Debug("Resuming interrupted read",
			zap.String("key", h.key),
			zap.Int64("offset", h.offset),
			zap.Int("attempt", h.failures),
			zap.Duration("backoff", delay),
			zap.Error(cause))

		timer := time.NewTimer(delay)
		select {
		case <-h.ctx.Done():
			timer.Stop()
			return h.ctx.Err()
		case <-timer.C:
		}

		body, _, err := backends.OpenAt(h.ctx, h.engine.store, h.key, h.info.Version, h.offset)
		if err != nil {
			if backends.IsTransient(err) && h.ctx.Err() == nil {
				cause = err
				continue
			}
			return err
		}

		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			body.Close()
			if err := h.ctx.Err(); err != nil {
				return err
			}
			return errHandleClosed
		}
		old := h.body
		h.body = body
		h.mu.Unlock()

		old.Close()
		return nil
	}
}

// Close releases the stream. Later calls return the first result.
func (h *ReadHandle) Close() error {
	h.stop()
	return h.release()
}

func (h *ReadHandle) release() error {
	h.once.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.closed = true
		h.closeErr = h.body.Close()
	})
	return h.closeErr
}

// Path returns the path the handle was opened for
func (h *ReadHandle) Path() string { return h.path }

// Size returns the object size reported at open time
func (h *ReadHandle) Size() int64 { return h.info.Size }

// LastModified returns the modification time reported at open time
func (h *ReadHandle) LastModified() time.Time { return h.info.LastModified }

// Version returns the version token of the object being read
func (h *ReadHandle) Version() backends.VersionToken { return h.info.Version }

// WriteHandle streams writes into a background upload. Close commits the
// object; Abort, or the end of the context passed at open, discards it.
// Either way the stream is released exactly once.
type WriteHandle struct {
	path string
	pw   *io.PipeWriter
	done chan struct{}

	// Set by the upload goroutine before done is closed.
	version   backends.VersionToken
	uploadErr error

	cancel context.CancelFunc
	stop   func() bool
	once   sync.Once
	result error
}

// OpenWriteHandle starts an upload of unknown length to path
func (e *Engine) OpenWriteHandle(ctx context.Context, path string) (*WriteHandle, error) {
	key, err := e.objectKey(path)
	if err != nil {
		return nil, err
	}
	return e.openWriteHandle(ctx, path, key.String(), ""), nil
}

func (e *Engine) openWriteHandle(ctx context.Context, path, key string, ifMatch backends.VersionToken) *WriteHandle {
	uploadCtx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()

	h := &WriteHandle{
		path:   path,
		pw:     pw,
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer close(h.done)
		h.version, h.uploadErr = e.store.PutObject(uploadCtx, key, pr, -1, ifMatch)
		if h.uploadErr != nil {
			pr.CloseWithError(h.uploadErr)
			e.logger.Debug("Streaming upload failed", log.Path("path", path), zap.Error(h.uploadErr))
			return
		}
		pr.CloseWithError(errUploadFinished)
	}()

	h.stop = context.AfterFunc(ctx, func() { h.finish(false, context.Cause(ctx)) })
	return h
}

// Write appends p to the object being uploaded
func (h *WriteHandle) Write(p []byte) (int, error) {
	n, err := h.pw.Write(p)
	if n > 0 {
		metrics.TransferBytesTotal.WithLabelValues("upload").Add(float64(n))
	}
	return n, err
}

// Close commits the upload and waits for the backend to acknowledge it
func (h *WriteHandle) Close() error {
	h.stop()
	return h.finish(true, nil)
}

// Abort discards the upload. Aborting after a successful Close is a no-op.
func (h *WriteHandle) Abort() error {
	h.stop()
	err := h.finish(false, ErrHandleAborted)
	if errors.Is(err, ErrHandleAborted) {
		return nil
	}
	return err
}

// Version returns the token of the committed object, or "" until Close has
// succeeded.
func (h *WriteHandle) Version() backends.VersionToken {
	select {
	case <-h.done:
		if h.uploadErr == nil {
			return h.version
		}
	default:
	}
	return ""
}

func (h *WriteHandle) finish(commit bool, cause error) error {
	h.once.Do(func() {
		if commit {
			h.pw.Close()
		} else {
			h.pw.CloseWithError(cause)
			h.cancel()
		}
		<-h.done
		h.cancel()

		if commit {
			h.result = h.uploadErr
		} else {
			h.result = cause
		}
	})
	return h.result
}
