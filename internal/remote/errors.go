package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"driverecover/internal/errors"
)

// Error codes the engine branches on. Backends map their native failures onto
// these; unknown codes are passed through verbatim.
const (
	CodeItemNotFound         = "itemNotFound"
	CodeNotAllowed           = "notAllowed"
	CodeAccessDenied         = "accessDenied"
	CodeGeneralException     = "generalException"
	CodeServiceNotAvailable  = "serviceNotAvailable"
	CodeActivityLimitReached = "activityLimitReached"
	CodeTimeout              = "timeout"
	CodeNetworkError         = "networkError"
	CodeNotSupported         = "notSupported"
)

// Error is a classified failure reported by a remote service.
type Error struct {
	Code       string          `json:"code"`
	Message    string          `json:"message"`
	StatusCode int             `json:"status_code,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError returns an *Error with the given code.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// AsError extracts the *Error from err.
func AsError(err error) (*Error, bool) {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr, true
	}
	return nil, false
}

// IsNotFound reports a clean "item does not exist".
func IsNotFound(err error) bool {
	rerr, ok := AsError(err)
	return ok && rerr.Code == CodeItemNotFound
}

// IsNotAllowed reports the not-allowed/permission class. For restore calls it
// usually means the item is not in the recycle bin anymore.
func IsNotAllowed(err error) bool {
	rerr, ok := AsError(err)
	if !ok {
		return false
	}
	return rerr.Code == CodeNotAllowed || rerr.Code == CodeAccessDenied
}

// IsTransient reports failures worth retrying, timeouts included.
func IsTransient(err error) bool {
	rerr, ok := AsError(err)
	if !ok {
		return false
	}
	switch rerr.Code {
	case CodeGeneralException, CodeServiceNotAvailable, CodeActivityLimitReached,
		CodeTimeout, CodeNetworkError:
		return true
	}
	return false
}

// CodeForStatus picks a code for an HTTP response that carried no error body.
func CodeForStatus(status int) string {
	switch {
	case status == http.StatusNotFound:
		return CodeItemNotFound
	case status == http.StatusForbidden:
		return CodeAccessDenied
	case status == http.StatusMethodNotAllowed:
		return CodeNotAllowed
	case status == http.StatusTooManyRequests:
		return CodeActivityLimitReached
	case status == http.StatusServiceUnavailable:
		return CodeServiceNotAvailable
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return CodeTimeout
	case status >= 500:
		return CodeGeneralException
	}
	return fmt.Sprintf("http%d", status)
}

// FromTransport converts a failed round trip into an *Error. It returns
// ctxErr unchanged when the caller's own context was cancelled, because that
// is not a service failure.
func FromTransport(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() == context.Canceled {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeTimeout, Message: "the request timed out"}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Code: CodeTimeout, Message: netErr.Error()}
	}
	return &Error{Code: CodeNetworkError, Message: err.Error()}
}
