package dfu

import (
	"context"
	"time"

	"github.com/o-murphy/go-dfu/internal/transport"
)

// Command is one of the seven DFU class requests (USB DFU 1.1 table 3.1).
type Command uint8

const (
	CmdDetach    Command = 0
	CmdDnload    Command = 1
	CmdUpload    Command = 2
	CmdGetStatus Command = 3
	CmdClrStatus Command = 4
	CmdGetState  Command = 5
	CmdAbort     Command = 6
)

const bmRequestTypeOut = transport.RequestTypeClass | transport.RequestRecipientInterface | transport.EndpointOut
const bmRequestTypeIn = transport.RequestTypeClass | transport.RequestRecipientInterface | transport.EndpointIn

// Detach issues DFU_DETACH with the given timeout in milliseconds.
func Detach(ctx context.Context, dif *DfuIf, timeoutMs uint16) error {
	_, err := dif.Handle.ControlTransfer(ctx, bmRequestTypeOut, uint8(CmdDetach), timeoutMs, uint16(dif.Interface), nil, dif.opTimeout())
	if err != nil {
		return IOError(err, "DFU_DETACH")
	}
	return nil
}

// Download issues DFU_DNLOAD with the given block number and payload
// (which may be empty, signalling the terminal zero-length block).
func Download(ctx context.Context, dif *DfuIf, blockNum uint16, data []byte) (int, error) {
	n, err := dif.Handle.ControlTransfer(ctx, bmRequestTypeOut, uint8(CmdDnload), blockNum, uint16(dif.Interface), data, dif.opTimeout())
	if err != nil {
		return 0, IOError(err, "DFU_DNLOAD block %d", blockNum)
	}
	return n, nil
}

// Upload issues DFU_UPLOAD with the given block number, returning the bytes
// the device sent back (len(buf) is both the request size and the buffer).
func Upload(ctx context.Context, dif *DfuIf, blockNum uint16, buf []byte) (int, error) {
	n, err := dif.Handle.ControlTransfer(ctx, bmRequestTypeIn, uint8(CmdUpload), blockNum, uint16(dif.Interface), buf, dif.opTimeout())
	if err != nil {
		return 0, IOError(err, "DFU_UPLOAD block %d", blockNum)
	}
	return n, nil
}

// GetStatus issues DFU_GETSTATUS and decodes the 6-byte status record.
func GetStatus(ctx context.Context, dif *DfuIf) (DeviceStatus, error) {
	buf := make([]byte, 6)
	n, err := dif.Handle.ControlTransfer(ctx, bmRequestTypeIn, uint8(CmdGetStatus), 0, uint16(dif.Interface), buf, dif.opTimeout())
	if err != nil {
		return DeviceStatus{}, IOError(err, "DFU_GETSTATUS")
	}
	if n < 6 {
		return DeviceStatus{}, ProtocolError("short DFU_GETSTATUS response: %d bytes", n)
	}
	return DeviceStatus{
		Status:      Status(buf[0]),
		PollTimeout: uint32(buf[1]) | uint32(buf[2])<<8 | uint32(buf[3])<<16,
		State:       State(buf[4]),
		StringIndex: buf[5],
	}, nil
}

// ClearStatus issues DFU_CLRSTATUS, the only way out of dfuERROR.
func ClearStatus(ctx context.Context, dif *DfuIf) error {
	_, err := dif.Handle.ControlTransfer(ctx, bmRequestTypeOut, uint8(CmdClrStatus), 0, uint16(dif.Interface), nil, dif.opTimeout())
	if err != nil {
		return IOError(err, "DFU_CLRSTATUS")
	}
	return nil
}

// GetState issues DFU_GETSTATE, a cheaper alternative to GetStatus when the
// poll timeout and status code are not needed.
func GetState(ctx context.Context, dif *DfuIf) (State, error) {
	buf := make([]byte, 1)
	_, err := dif.Handle.ControlTransfer(ctx, bmRequestTypeIn, uint8(CmdGetState), 0, uint16(dif.Interface), buf, dif.opTimeout())
	if err != nil {
		return 0, IOError(err, "DFU_GETSTATE")
	}
	return State(buf[0]), nil
}

// Abort issues DFU_ABORT, the sole in-band cancellation primitive (§5).
func Abort(ctx context.Context, dif *DfuIf) error {
	_, err := dif.Handle.ControlTransfer(ctx, bmRequestTypeOut, uint8(CmdAbort), 0, uint16(dif.Interface), nil, dif.opTimeout())
	if err != nil {
		return IOError(err, "DFU_ABORT")
	}
	return nil
}

func (d *DfuIf) opTimeout() time.Duration {
	return 5 * time.Second
}

// PollDelay sleeps for the device-reported poll timeout, or the quirked
// fallback when the device is known to report bogus values.
func PollDelay(ctx context.Context, dif *DfuIf, st DeviceStatus) error {
	ms := st.PollTimeout
	if dif.Quirks&QuirkPollTimeout != 0 {
		ms = DefaultPollTimeout
	}
	t := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
