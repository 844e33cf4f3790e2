package s3

import (
	"context"
	"errors"
	"net/http"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/ebogdum/bucketfs/backends"
)

// classify maps an SDK error onto the backend error kinds. Errors wrapped by
// the uploader are classified by their cause.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) {
		switch reqErr.StatusCode() {
		case http.StatusNotFound:
			return backends.ErrNotFound
		case http.StatusPreconditionFailed:
			return backends.ErrPreconditionFailed
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return backends.Transient(op, err)
		}
	}

	var awsErr awserr.Error
	if errors.As(err, &awsErr) {
		switch awsErr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return backends.ErrNotFound
		case "PreconditionFailed", "ConditionalRequestConflict":
			// A conflict means a concurrent conditional write won the race
			return backends.ErrPreconditionFailed
		case request.CanceledErrorCode:
			if cause := awsErr.OrigErr(); cause != nil && errors.Is(cause, context.DeadlineExceeded) {
				return context.DeadlineExceeded
			}
			return context.Canceled
		case "RequestError", "RequestTimeout", "RequestTimeTooSkewed", "SlowDown",
			"InternalError", "ServiceUnavailable", "Throttling", "ThrottlingException":
			return backends.Transient(op, err)
		}

		if cause := awsErr.OrigErr(); cause != nil {
			if classified := classify(op, cause); isKnownKind(classified) {
				return classified
			}
		}
	}

	return err
}

func isKnownKind(err error) bool {
	for _, kind := range []error{backends.ErrNotFound, backends.ErrPreconditionFailed, backends.ErrUnavailable, context.Canceled, context.DeadlineExceeded} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
