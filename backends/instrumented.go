package backends

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/ebogdum/bucketfs/metrics"
)

// instrumentedStore records Prometheus metrics around every backend call.
type instrumentedStore struct {
	next        ObjectStore
	backendType string
}

// Instrument wraps store so that each call is counted and timed under backendType.
func Instrument(store ObjectStore, backendType string) ObjectStore {
	return &instrumentedStore{next: store, backendType: backendType}
}

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case errors.Is(err, ErrPreconditionFailed):
		status = "precondition_failed"
	default:
		status = "error"
	}
	metrics.BackendOpsTotal.WithLabelValues(s.backendType, op, status).Inc()
	metrics.BackendOpDuration.WithLabelValues(s.backendType, op).Observe(time.Since(start).Seconds())
}

func (s *instrumentedStore) ListObjects(ctx context.Context, in ListInput) (page ListPage, err error) {
	start := time.Now()
	defer func() { s.observe("list", start, err) }()
	return s.next.ListObjects(ctx, in)
}

func (s *instrumentedStore) HeadObject(ctx context.Context, key string) (info ObjectInfo, err error) {
	start := time.Now()
	defer func() { s.observe("head", start, err) }()
	return s.next.HeadObject(ctx, key)
}

func (s *instrumentedStore) GetObject(ctx context.Context, key string, ifMatch VersionToken) (body io.ReadCloser, info ObjectInfo, err error) {
	start := time.Now()
	defer func() { s.observe("get", start, err) }()
	return s.next.GetObject(ctx, key, ifMatch)
}

func (s *instrumentedStore) GetObjectRange(ctx context.Context, key string, ifMatch VersionToken, offset int64) (body io.ReadCloser, info ObjectInfo, err error) {
	start := time.Now()
	defer func() { s.observe("get_range", start, err) }()
	return OpenAt(ctx, s.next, key, ifMatch, offset)
}

func (s *instrumentedStore) PutObject(ctx context.Context, key string, body io.Reader, size int64, ifMatch VersionToken) (token VersionToken, err error) {
	start := time.Now()
	defer func() { s.observe("put", start, err) }()
	return s.next.PutObject(ctx, key, body, size, ifMatch)
}

func (s *instrumentedStore) DeleteObject(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() { s.observe("delete", start, err) }()
	return s.next.DeleteObject(ctx, key)
}

func (s *instrumentedStore) DeleteObjects(ctx context.Context, keys []string) (failures map[string]error, err error) {
	start := time.Now()
	defer func() { s.observe("delete_batch", start, err) }()
	return s.next.DeleteObjects(ctx, keys)
}

func (s *instrumentedStore) Close() error {
	return s.next.Close()
}
