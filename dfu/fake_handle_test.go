package dfu

import (
	"context"
	"time"
)

// fakeHandle is a scripted DeviceHandle standing in for a real USB device:
// GET_STATUS responses are consumed from a queue in call order, while
// DNLOAD/CLRSTATUS/ABORT calls are only counted. It lets the interaction
// sequences named in §8 (state-machine recovery, exact DNLOAD call counts)
// be asserted directly instead of only by hand-tracing the orchestrator.
type fakeHandle struct {
	statuses []DeviceStatus

	dnloads int
	clears  int
	aborts  int
}

var _ DeviceHandle = (*fakeHandle)(nil)

func (f *fakeHandle) ControlTransfer(ctx context.Context, requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error) {
	switch Command(request) {
	case CmdGetStatus:
		if len(f.statuses) == 0 {
			panic("fakeHandle: GET_STATUS called more times than scripted")
		}
		st := f.statuses[0]
		f.statuses = f.statuses[1:]
		data[0] = byte(st.Status)
		data[1] = byte(st.PollTimeout)
		data[2] = byte(st.PollTimeout >> 8)
		data[3] = byte(st.PollTimeout >> 16)
		data[4] = byte(st.State)
		data[5] = st.StringIndex
		return 6, nil
	case CmdClrStatus:
		f.clears++
		return 0, nil
	case CmdAbort:
		f.aborts++
		return 0, nil
	case CmdDnload:
		f.dnloads++
		return len(data), nil
	case CmdUpload:
		return len(data), nil
	}
	return 0, nil
}

func (f *fakeHandle) ClaimInterface(iface uint8) error     { return nil }
func (f *fakeHandle) ReleaseInterface(iface uint8) error   { return nil }
func (f *fakeHandle) SetAltSetting(iface, alt uint8) error { return nil }
func (f *fakeHandle) ResetDevice() error                   { return nil }
func (f *fakeHandle) GetStringDescriptor(ctx context.Context, index uint8) (string, error) {
	return "", nil
}
func (f *fakeHandle) Close() error { return nil }
