// Package transport is the host USB control-transfer layer that the DFU
// protocol engine is built on. It knows nothing about DFU: it opens device
// nodes under /dev/bus/usb, claims interfaces, and shuttles control transfers
// through usbfs ioctls. Everything DFU-specific lives in the dfu and dfuse
// packages.
package transport

import "errors"

var (
	ErrDeviceNotFound   = errors.New("transport: device not found")
	ErrPermissionDenied = errors.New("transport: permission denied")
	ErrDeviceBusy       = errors.New("transport: device busy")
	ErrInvalidParameter = errors.New("transport: invalid parameter")
	ErrTimeout          = errors.New("transport: operation timed out")
	ErrPipe             = errors.New("transport: pipe error (stall)")
	ErrNotSupported     = errors.New("transport: operation not supported")
)
