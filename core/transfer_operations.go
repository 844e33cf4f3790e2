package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/backends"
	"github.com/ebogdum/bucketfs/core/log"
	"github.com/ebogdum/bucketfs/metrics"
)

// DownloadToStream copies the file at path into sink and returns the number
// of bytes written. The copy runs at the pace of the slower side with a
// bounded buffer.
func (e *Engine) DownloadToStream(ctx context.Context, path string, sink io.Writer) (int64, error) {
	metrics.FileOperationsTotal.WithLabelValues("download").Inc()

	h, err := e.OpenReadHandle(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", log.SanitizePath(path), err)
	}
	defer h.Close()

	buf := make([]byte, e.bufferSize)
	// Hide ReaderFrom/WriterTo so the bounded buffer is always used.
	n, err := io.CopyBuffer(struct{ io.Writer }{sink}, struct{ io.Reader }{h}, buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return n, fmt.Errorf("failed to download %s: %w", log.SanitizePath(path), err)
	}

	e.logger.Debug("File downloaded",
		log.Path("path", path),
		zap.Int64("size", log.SanitizeSize(n)))
	return n, nil
}

// DownloadToLocal copies the file at path to localPath. The local file is
// replaced only after the whole object has been received.
func (e *Engine) DownloadToLocal(ctx context.Context, path, localPath string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(localPath), ".bucketfs-download-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create local file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := e.DownloadToStream(ctx, path, tmp)
	if err != nil {
		tmp.Close()
		return n, err
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("failed to close local file: %w", err)
	}
	if err := os.Rename(tmp.Name(), localPath); err != nil {
		return n, fmt.Errorf("failed to move download into place: %w", err)
	}
	return n, nil
}

// UploadFromStream writes everything read from source to path and returns
// the new version token. Sources of unknown length are streamed without
// being buffered whole.
func (e *Engine) UploadFromStream(ctx context.Context, source io.Reader, path string) (backends.VersionToken, error) {
	metrics.FileOperationsTotal.WithLabelValues("upload").Inc()

	key, err := e.objectKey(path)
	if err != nil {
		return "", err
	}

	size := int64(-1)
	if l, ok := source.(interface{ Len() int }); ok {
		size = int64(l.Len())
	}

	token, err := e.upload(ctx, key.String(), source, size, "")
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", log.SanitizePath(path), err)
	}
	return token, nil
}

// UploadFromLocal uploads the local file at localPath to path
func (e *Engine) UploadFromLocal(ctx context.Context, localPath, path string) (backends.VersionToken, error) {
	metrics.FileOperationsTotal.WithLabelValues("upload").Inc()

	key, err := e.objectKey(path)
	if err != nil {
		return "", err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open local file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat local file: %w", err)
	}
	if stat.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrNotSupported, localPath)
	}

	token, err := e.upload(ctx, key.String(), f, stat.Size(), "")
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", log.SanitizePath(path), err)
	}
	return token, nil
}

// upload writes body to key. A seekable body of known size up to the part
// size is retried as a whole after rewinding; anything else is attempted
// once, since a consumed stream cannot be replayed.
func (e *Engine) upload(ctx context.Context, key string, body io.Reader, size int64, ifMatch backends.VersionToken) (backends.VersionToken, error) {
	seeker, seekable := body.(io.ReadSeeker)
	if !seekable || size < 0 || (e.partSize > 0 && size > e.partSize) {
		counted := &countingReader{r: body}
		token, err := e.store.PutObject(ctx, key, counted, size, ifMatch)
		metrics.TransferBytesTotal.WithLabelValues("upload").Add(float64(counted.n))
		return token, err
	}

	start, err := seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", fmt.Errorf("failed to read source position: %w", err)
	}

	return withRetry(ctx, e.retry, e.logger, "put", key, func() (backends.VersionToken, error) {
		if _, err := seeker.Seek(start, io.SeekStart); err != nil {
			return "", fmt.Errorf("failed to rewind source: %w", err)
		}
		token, err := e.store.PutObject(ctx, key, seeker, size, ifMatch)
		if err == nil {
			metrics.TransferBytesTotal.WithLabelValues("upload").Add(float64(size))
		}
		return token, err
	})
}

// countingReader counts bytes as they are read.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
