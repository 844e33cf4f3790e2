package s3

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/ebogdum/bucketfs/backends"
)

// ListObjects returns one page of ListObjectsV2. Page tokens are S3
// continuation tokens and are passed through untouched.
func (a *S3Adapter) ListObjects(ctx context.Context, in backends.ListInput) (backends.ListPage, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucketName),
		Prefix: aws.String(a.fullKey(in.Prefix)),
	}
	if in.Delimiter != "" {
		input.Delimiter = aws.String(in.Delimiter)
	}
	if in.PageToken != "" {
		input.ContinuationToken = aws.String(in.PageToken)
	}
	if in.MaxKeys > 0 {
		input.MaxKeys = aws.Int64(int64(in.MaxKeys))
	}

	result, err := a.client.ListObjectsV2WithContext(ctx, input)
	if err != nil {
		return backends.ListPage{}, classify("list", err)
	}

	page := backends.ListPage{
		Objects:        make([]backends.ObjectInfo, 0, len(result.Contents)),
		CommonPrefixes: make([]string, 0, len(result.CommonPrefixes)),
	}

	for _, object := range result.Contents {
		if object.Key == nil {
			continue
		}
		page.Objects = append(page.Objects, backends.ObjectInfo{
			Key:          a.storeKey(*object.Key),
			Size:         aws.Int64Value(object.Size),
			LastModified: aws.TimeValue(object.LastModified).UTC(),
			Version:      backends.VersionToken(aws.StringValue(object.ETag)),
		})
	}

	for _, commonPrefix := range result.CommonPrefixes {
		if commonPrefix.Prefix == nil {
			continue
		}
		page.CommonPrefixes = append(page.CommonPrefixes, a.storeKey(*commonPrefix.Prefix))
	}

	if aws.BoolValue(result.IsTruncated) {
		page.NextPageToken = aws.StringValue(result.NextContinuationToken)
	}

	return page, nil
}
