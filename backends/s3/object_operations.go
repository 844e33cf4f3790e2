package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/backends"
)

// HeadObject returns object metadata
func (a *S3Adapter) HeadObject(ctx context.Context, key string) (backends.ObjectInfo, error) {
	result, err := a.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(a.fullKey(key)),
	})
	if err != nil {
		return backends.ObjectInfo{}, classify("head", err)
	}

	return backends.ObjectInfo{
		Key:          key,
		Size:         aws.Int64Value(result.ContentLength),
		LastModified: aws.TimeValue(result.LastModified).UTC(),
		Version:      backends.VersionToken(aws.StringValue(result.ETag)),
	}, nil
}

// GetObject opens an object for reading, optionally only when its ETag matches
func (a *S3Adapter) GetObject(ctx context.Context, key string, ifMatch backends.VersionToken) (io.ReadCloser, backends.ObjectInfo, error) {
	return a.getObject(ctx, key, ifMatch, 0)
}

// GetObjectRange opens an object for reading from offset onwards. Size in
// the returned info is the size of the whole object.
func (a *S3Adapter) GetObjectRange(ctx context.Context, key string, ifMatch backends.VersionToken, offset int64) (io.ReadCloser, backends.ObjectInfo, error) {
	return a.getObject(ctx, key, ifMatch, offset)
}

func (a *S3Adapter) getObject(ctx context.Context, key string, ifMatch backends.VersionToken, offset int64) (io.ReadCloser, backends.ObjectInfo, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(a.fullKey(key)),
	}
	if ifMatch != "" {
		input.IfMatch = aws.String(string(ifMatch))
	}
	if offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}

	result, err := a.client.GetObjectWithContext(ctx, input)
	if err != nil {
		err = classify("get", err)
		if errors.Is(err, backends.ErrPreconditionFailed) {
			return nil, backends.ObjectInfo{}, a.preconditionError(ctx, key, ifMatch)
		}
		return nil, backends.ObjectInfo{}, err
	}

	a.logger.Debug("Object opened from S3",
		zap.String("bucket", a.bucketName),
		zap.String("key", key),
		zap.Int64("offset", offset))

	return &objectBody{ctx: ctx, body: result.Body}, backends.ObjectInfo{
		Key:          key,
		Size:         offset + aws.Int64Value(result.ContentLength),
		LastModified: aws.TimeValue(result.LastModified).UTC(),
		Version:      backends.VersionToken(aws.StringValue(result.ETag)),
	}, nil
}

// objectBody marks connection failures while streaming a response body as
// transient, so readers can reopen the object where they stopped.
type objectBody struct {
	ctx  context.Context
	body io.ReadCloser
}

func (b *objectBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if err != nil && err != io.EOF && b.ctx.Err() == nil {
		err = backends.Transient("get_body", err)
	}
	return n, err
}

func (b *objectBody) Close() error {
	return b.body.Close()
}

// preconditionError reports a mismatch with the current ETag when S3 still
// has the object.
func (a *S3Adapter) preconditionError(ctx context.Context, key string, expected backends.VersionToken) error {
	pe := &backends.PreconditionError{Key: key, Expected: expected}
	if info, err := a.HeadObject(ctx, key); err == nil {
		pe.Current = info.Version
	}
	return pe
}

// PutObject writes an object. Small seekable bodies go out in a single
// PutObject; everything else is streamed as a multipart upload holding at
// most Concurrency parts in memory.
func (a *S3Adapter) PutObject(ctx context.Context, key string, body io.Reader, size int64, ifMatch backends.VersionToken) (backends.VersionToken, error) {
	var opts []request.Option
	if ifMatch != "" {
		opts = append(opts, ifMatchOption(string(ifMatch)))
	}

	var (
		etag *string
		err  error
	)
	if seeker, ok := body.(io.ReadSeeker); ok && size >= 0 && size <= a.partSize {
		etag, err = a.putSingle(ctx, key, seeker, size, opts)
	} else {
		etag, err = a.putMultipart(ctx, key, body, opts)
	}
	if err != nil {
		err = classify("put", err)
		switch {
		case errors.Is(err, backends.ErrPreconditionFailed):
			return "", a.preconditionError(ctx, key, ifMatch)
		case ifMatch != "" && errors.Is(err, backends.ErrNotFound):
			// S3 answers a conditional write to a missing key with 404
			return "", &backends.PreconditionError{Key: key, Expected: ifMatch}
		}
		return "", err
	}

	a.logger.Debug("Object stored in S3",
		zap.String("bucket", a.bucketName),
		zap.String("key", key),
		zap.Int64("size", size))

	return backends.VersionToken(aws.StringValue(etag)), nil
}

func (a *S3Adapter) putSingle(ctx context.Context, key string, body io.ReadSeeker, size int64, opts []request.Option) (*string, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(a.bucketName),
		Key:           aws.String(a.fullKey(key)),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(getContentType(key)),
	}
	if a.serverSideEncryption != "" {
		input.ServerSideEncryption = aws.String(a.serverSideEncryption)
		if a.serverSideEncryption == s3.ServerSideEncryptionAwsKms && a.kmsKeyID != "" {
			input.SSEKMSKeyId = aws.String(a.kmsKeyID)
		}
	}
	if a.acl != "" {
		input.ACL = aws.String(a.acl)
	}

	result, err := a.client.PutObjectWithContext(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return result.ETag, nil
}

func (a *S3Adapter) putMultipart(ctx context.Context, key string, body io.Reader, opts []request.Option) (*string, error) {
	if body == nil {
		body = strings.NewReader("")
	}
	input := &s3manager.UploadInput{
		Bucket:      aws.String(a.bucketName),
		Key:         aws.String(a.fullKey(key)),
		Body:        body,
		ContentType: aws.String(getContentType(key)),
	}
	if a.serverSideEncryption != "" {
		input.ServerSideEncryption = aws.String(a.serverSideEncryption)
		if a.serverSideEncryption == s3.ServerSideEncryptionAwsKms && a.kmsKeyID != "" {
			input.SSEKMSKeyId = aws.String(a.kmsKeyID)
		}
	}
	if a.acl != "" {
		input.ACL = aws.String(a.acl)
	}

	result, err := a.uploader.UploadWithContext(ctx, input, func(u *s3manager.Uploader) {
		u.RequestOptions = append(u.RequestOptions, opts...)
	})
	if err != nil {
		// The uploader aborts the multipart upload before returning, so no
		// partial object becomes visible.
		var multiErr s3manager.MultiUploadFailure
		if errors.As(err, &multiErr) {
			a.logger.Debug("Multipart upload aborted",
				zap.String("key", key),
				zap.String("upload_id", multiErr.UploadID()))
		}
		return nil, err
	}
	return result.ETag, nil
}

// DeleteObject removes a key; S3 reports success for absent keys
func (a *S3Adapter) DeleteObject(ctx context.Context, key string) error {
	_, err := a.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucketName),
		Key:    aws.String(a.fullKey(key)),
	})
	if err != nil {
		err = classify("delete", err)
		if errors.Is(err, backends.ErrNotFound) {
			return nil
		}
		return err
	}

	a.logger.Debug("Object deleted from S3",
		zap.String("bucket", a.bucketName),
		zap.String("key", key))

	return nil
}

// DeleteObjects removes up to backends.MaxDeleteBatch keys in one request
func (a *S3Adapter) DeleteObjects(ctx context.Context, keys []string) (map[string]error, error) {
	if len(keys) > backends.MaxDeleteBatch {
		return nil, fmt.Errorf("batch of %d keys exceeds limit of %d", len(keys), backends.MaxDeleteBatch)
	}
	if len(keys) == 0 {
		return map[string]error{}, nil
	}

	identifiers := make([]*s3.ObjectIdentifier, 0, len(keys))
	for _, key := range keys {
		identifiers = append(identifiers, &s3.ObjectIdentifier{Key: aws.String(a.fullKey(key))})
	}

	result, err := a.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(a.bucketName),
		Delete: &s3.Delete{
			Objects: identifiers,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		return nil, classify("delete_batch", err)
	}

	failures := make(map[string]error, len(result.Errors))
	for _, e := range result.Errors {
		code := aws.StringValue(e.Code)
		if code == s3.ErrCodeNoSuchKey {
			continue
		}
		failures[a.storeKey(aws.StringValue(e.Key))] = fmt.Errorf("%s: %s", code, aws.StringValue(e.Message))
	}
	return failures, nil
}
