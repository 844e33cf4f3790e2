// Package s3 implements backends.ObjectStore on Amazon S3 and S3-compatible
// services such as MinIO.
package s3

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"go.uber.org/zap"

	"github.com/ebogdum/bucketfs/config"
)

// multipartRetries bounds SDK-level retries of the requests that make up a
// multipart upload. Whole uploads are never replayed because the source
// stream cannot be rewound.
const multipartRetries = 3

// S3Adapter implements the backends.ObjectStore interface for AWS S3
type S3Adapter struct {
	client               *s3.S3
	uploader             *s3manager.Uploader
	bucketName           string
	keyPrefix            string
	partSize             int64
	serverSideEncryption string
	acl                  string
	kmsKeyID             string
	logger               *zap.Logger
}

// NewS3Adapter creates a new S3 storage adapter and verifies bucket access
func NewS3Adapter(ctx context.Context, cfg config.StoreConfig, transfer config.TransferConfig, logger *zap.Logger) (*S3Adapter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}

	awsConfig := &aws.Config{
		Region:     aws.String(cfg.Region),
		DisableSSL: aws.Bool(cfg.DisableSSL),
		// Retries of single-object calls are driven by the engine's policy.
		MaxRetries: aws.Int(0),
	}

	if cfg.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	// Set custom endpoint if provided (for MinIO compatibility)
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	svc := s3.New(sess)

	_, err = svc.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access S3 bucket %s: %w", cfg.Bucket, classify("head_bucket", err))
	}

	uploader := s3manager.NewUploaderWithClient(svc, func(u *s3manager.Uploader) {
		u.PartSize = transfer.PartSize
		u.Concurrency = transfer.Concurrency
		u.RequestOptions = append(u.RequestOptions, retryMultipart(multipartRetries))
	})

	return &S3Adapter{
		client:               svc,
		uploader:             uploader,
		bucketName:           cfg.Bucket,
		keyPrefix:            cfg.KeyPrefix,
		partSize:             transfer.PartSize,
		serverSideEncryption: cfg.ServerSideEncryption,
		acl:                  cfg.ACL,
		kmsKeyID:             cfg.KMSKeyID,
		logger:               logger,
	}, nil
}

// Close closes any resources used by the S3 adapter
func (a *S3Adapter) Close() error {
	// The SDK keeps no resources that need closing
	return nil
}

// fullKey maps a store key onto the bucket namespace
func (a *S3Adapter) fullKey(key string) string {
	return a.keyPrefix + key
}

// storeKey strips the namespace from a bucket key
func (a *S3Adapter) storeKey(key string) string {
	return strings.TrimPrefix(key, a.keyPrefix)
}

// ifMatchOption sets If-Match on the request that commits an object. Part uploads
// of a multipart upload are left unconditional.
func ifMatchOption(token string) request.Option {
	return func(r *request.Request) {
		switch r.Operation.Name {
		case "PutObject", "CompleteMultipartUpload":
			r.HTTPRequest.Header.Set("If-Match", token)
		}
	}
}

// retryMultipart lets the SDK retry the requests of a multipart upload in
// place, so one failed request does not fail the whole upload.
func retryMultipart(n int) request.Option {
	return func(r *request.Request) {
		switch r.Operation.Name {
		case "CreateMultipartUpload", "UploadPart", "CompleteMultipartUpload", "AbortMultipartUpload":
			r.Retryer = client.DefaultRetryer{NumMaxRetries: n}
		}
	}
}
