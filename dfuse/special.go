package dfuse

import (
	"context"
	"time"

	"github.com/o-murphy/go-dfu/dfu"
)

// Command is one of the four DfuSe special commands, sent as a DFU_DNLOAD
// of block 0 carrying a command byte followed by a little-endian address.
// The low byte of a Command is its wire byte; CmdMassErase carries an extra
// high bit only to keep it apart from CmdErasePage, with which it shares
// the wire byte 0x41.
type Command uint16

const (
	CmdSetAddress     Command = 0x21
	CmdErasePage      Command = 0x41
	CmdMassErase      Command = 0x141 // same wire byte as CmdErasePage, distinguished by length=1
	CmdReadUnprotect  Command = 0x92
)

// SpecialCommand issues one of the DfuSe special commands and drives the
// status handshake that follows it (§4.7): DNLOAD the command buffer, poll
// for dfuDNBUSY, and — for everything except READ_UNPROTECT, which stalls
// the bus as a side effect of mass-erasing itself — confirm completion with
// a second GETSTATUS and return to dfuIDLE via ABORT.
func SpecialCommand(ctx context.Context, dif *dfu.DfuIf, address uint32, cmd Command) error {
	var buf []byte
	switch cmd {
	case CmdErasePage:
		buf = []byte{byte(CmdErasePage), 0, 0, 0, 0}
	case CmdSetAddress:
		buf = []byte{byte(CmdSetAddress), 0, 0, 0, 0}
	case CmdMassErase:
		buf = []byte{byte(CmdMassErase & 0xff)}
	case CmdReadUnprotect:
		buf = []byte{byte(CmdReadUnprotect)}
	default:
		return dfu.ProtocolError("unsupported DfuSe special command 0x%02x", cmd)
	}

	if len(buf) == 5 {
		buf[1] = byte(address)
		buf[2] = byte(address >> 8)
		buf[3] = byte(address >> 16)
		buf[4] = byte(address >> 24)
	}

	if _, err := dfu.Download(ctx, dif, 0, buf); err != nil {
		return err
	}

	st, err := dfu.GetStatus(ctx, dif)
	if err != nil {
		return err
	}
	if st.State != dfu.StateDfuDnBusy {
		return dfu.ProtocolError("unexpected state %s after special command download", st.State)
	}

	if err := sleepPoll(ctx, st); err != nil {
		return err
	}

	if cmd == CmdReadUnprotect {
		// READ_UNPROTECT mass-erases and resets the device; the bus stalls
		// or disconnects instead of answering the usual follow-up status
		// requests, and that is the expected, successful outcome.
		return nil
	}

	st, err = dfu.GetStatus(ctx, dif)
	if err != nil {
		return err
	}
	if st.Status != dfu.StatusOK {
		return dfu.ProtocolError("DfuSe special command failed with status %s", st.Status)
	}

	if err := sleepPoll(ctx, st); err != nil {
		return err
	}

	if err := dfu.Abort(ctx, dif); err != nil {
		return err
	}

	st, err = dfu.GetStatus(ctx, dif)
	if err != nil {
		return err
	}
	if st.State != dfu.StateDfuIdle {
		return dfu.ProtocolError("failed to return to dfuIDLE after special command")
	}

	return sleepPoll(ctx, st)
}

func sleepPoll(ctx context.Context, st dfu.DeviceStatus) error {
	t := time.NewTimer(time.Duration(st.PollTimeout) * time.Millisecond)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
