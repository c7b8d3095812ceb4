package errors

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// New creates a new error based on message. Wrapped so that this package does
// not appear in the stack trace.
var New = errors.New

// Errorf creates an error based on a format string and values.
var Errorf = errors.Errorf

// Wrap wraps an error retrieved from a remote service or library call.
var Wrap = errors.Wrap

// Wrapf returns an error annotating err with the format specifier. If err is
// nil, Wrapf returns nil.
var Wrapf = errors.Wrapf

// WithStack annotates err with a stack trace at the point WithStack was called.
var WithStack = errors.WithStack

func As(err error, tgt interface{}) bool { return stderrors.As(err, tgt) }

func Is(x, y error) bool { return stderrors.Is(x, y) }

func Join(errs ...error) error { return stderrors.Join(errs...) }

func Unwrap(err error) error { return stderrors.Unwrap(err) }
