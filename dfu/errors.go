// Package dfu implements the host side of the USB Device Firmware Upgrade
// protocol: the seven class requests, the device state machine, and the
// plain-DFU upload/download orchestrators. DfuSe address-mode support lives
// in the sibling dfuse package, layered on top of the request layer exposed
// here.
package dfu

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the error taxonomy the CLI maps onto process exit codes.
type Kind int

const (
	KindNone Kind = iota
	KindUsage
	KindNoInput
	KindData
	KindIO
	KindProtocol
	KindCompatibility
	KindSoftware
)

// ExitCode returns the process exit code associated with a Kind.
func (k Kind) ExitCode() int {
	switch k {
	case KindUsage:
		return 2
	case KindNoInput:
		return 66
	case KindData:
		return 65
	case KindIO:
		return 74
	case KindProtocol:
		return 76
	case KindCompatibility:
		return 3
	case KindSoftware:
		return 70
	default:
		return 1
	}
}

func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage error"
	case KindNoInput:
		return "no input"
	case KindData:
		return "data error"
	case KindIO:
		return "i/o error"
	case KindProtocol:
		return "protocol error"
	case KindCompatibility:
		return "compatibility error"
	case KindSoftware:
		return "software error"
	default:
		return "error"
	}
}

// Error carries a taxonomy Kind alongside the usual wrapped cause chain.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Cause() error { return e.err }
func (e *Error) Unwrap() error { return e.err }

func newErr(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

func wrapErr(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...), err: errors.WithStack(err)}
}

func UsageError(format string, args ...interface{}) error { return newErr(KindUsage, format, args...) }
func NoInputError(err error, format string, args ...interface{}) error {
	return wrapErr(KindNoInput, err, format, args...)
}
func DataError(format string, args ...interface{}) error { return newErr(KindData, format, args...) }
func DataErrorWrap(err error, format string, args ...interface{}) error {
	return wrapErr(KindData, err, format, args...)
}
func IOError(err error, format string, args ...interface{}) error {
	return wrapErr(KindIO, err, format, args...)
}
func ProtocolError(format string, args ...interface{}) error {
	return newErr(KindProtocol, format, args...)
}
func CompatibilityError(format string, args ...interface{}) error {
	return newErr(KindCompatibility, format, args...)
}
func SoftwareError(format string, args ...interface{}) error {
	return newErr(KindSoftware, format, args...)
}

// KindOf extracts the taxonomy Kind from err, defaulting to KindSoftware for
// errors that did not originate in this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindSoftware
}
