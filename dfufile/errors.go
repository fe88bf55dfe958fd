package dfufile

import "github.com/o-murphy/go-dfu/dfu"

// DataError and IOError reuse the shared error taxonomy (§7) rather than
// defining a second one scoped to this package.
func DataError(format string, args ...interface{}) error { return dfu.DataError(format, args...) }

func IOError(err error, format string, args ...interface{}) error {
	return dfu.IOError(err, format, args...)
}

func NoInputError(err error, format string, args ...interface{}) error {
	return dfu.NoInputError(err, format, args...)
}

func UsageError(format string, args ...interface{}) error { return dfu.UsageError(format, args...) }
