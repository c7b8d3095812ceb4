package s3client

import (
	"context"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"

	"driverecover/internal/errors"
	"driverecover/internal/remote"
)

var codes = map[string]string{
	"NoSuchKey":          remote.CodeItemNotFound,
	"NotFound":           remote.CodeItemNotFound,
	"AccessDenied":       remote.CodeAccessDenied,
	"MethodNotAllowed":   remote.CodeNotAllowed,
	"InternalError":      remote.CodeGeneralException,
	"ServiceUnavailable": remote.CodeServiceNotAvailable,
	"SlowDown":           remote.CodeActivityLimitReached,
	"RequestTimeout":     remote.CodeTimeout,
}

// classify maps SDK failures to *remote.Error. Service errors keep their S3
// code unless it has a known equivalent.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := remote.AsError(err); ok {
		return err
	}
	if ctx.Err() == context.Canceled {
		return ctx.Err()
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return remote.FromTransport(ctx, err)
	}

	rerr := &remote.Error{Code: apiErr.ErrorCode(), Message: apiErr.ErrorMessage()}
	code, known := codes[apiErr.ErrorCode()]
	if known {
		rerr.Code = code
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		rerr.StatusCode = respErr.HTTPStatusCode()
		if !known && rerr.StatusCode >= 500 {
			rerr.Code = remote.CodeForStatus(rerr.StatusCode)
		}
	}
	if rerr.Code == "" {
		rerr.Code = remote.CodeForStatus(rerr.StatusCode)
	}
	return rerr
}
