package dfuse

import (
	"context"
	"time"

	"github.com/o-murphy/go-dfu/dfu"
)

// fakeHandle is a scripted dfu.DeviceHandle standing in for a real USB
// device: GET_STATUS responses are consumed from a queue in call order,
// and every ERASE_PAGE special command is recorded by its page address so
// tests can assert eraseRange's scheduling decisions directly.
// dnloadCall records one DFU_DNLOAD invocation by its block number and
// payload length, so tests can check the exact chunk/terminator sequence a
// DfuSe write issues.
type dnloadCall struct {
	Block uint16
	Len   int
}

type fakeHandle struct {
	statuses []dfu.DeviceStatus

	eraseCommands []uint32
	dnloadCalls   []dnloadCall
	aborts        int
}

var _ dfu.DeviceHandle = (*fakeHandle)(nil)

func (f *fakeHandle) ControlTransfer(ctx context.Context, requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error) {
	switch dfu.Command(request) {
	case dfu.CmdGetStatus:
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
	case dfu.CmdAbort:
		f.aborts++
		return 0, nil
	case dfu.CmdDnload:
		f.dnloadCalls = append(f.dnloadCalls, dnloadCall{Block: value, Len: len(data)})
		if len(data) == 5 && Command(data[0]) == CmdErasePage {
			addr := uint32(data[1]) | uint32(data[2])<<8 | uint32(data[3])<<16 | uint32(data[4])<<24
			f.eraseCommands = append(f.eraseCommands, addr)
		}
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

// specialCommandStatuses returns the scripted GET_STATUS sequence one
// successful SpecialCommand call consumes: dfuDNBUSY after the DNLOAD,
// status OK on the follow-up poll, then dfuIDLE after ABORT.
func specialCommandStatuses(n int) []dfu.DeviceStatus {
	var out []dfu.DeviceStatus
	for i := 0; i < n; i++ {
		out = append(out,
			dfu.DeviceStatus{State: dfu.StateDfuDnBusy, Status: dfu.StatusOK},
			dfu.DeviceStatus{State: dfu.StateDfuDnBusy, Status: dfu.StatusOK},
			dfu.DeviceStatus{State: dfu.StateDfuIdle, Status: dfu.StatusOK},
		)
	}
	return out
}
