package dfuse

import (
	"context"
	"testing"

	"github.com/o-murphy/go-dfu/dfu"
	"github.com/stretchr/testify/require"
)

// TestEraseRangeSchedulesDistinctPagesOnce drives Scenario 4 (§8): an
// element at 0x08000000 sized 0x3000 fits inside one 16 KiB (0x4000) page,
// then a second element at 0x08003000 sized 0x2000 crosses into the next
// page. eraseRange must issue exactly one ERASE_PAGE per distinct page
// touched across both calls, never repeating the page the two elements
// share.
func TestEraseRangeSchedulesDistinctPagesOnce(t *testing.T) {
	segments := []MemSegment{
		{Start: 0x08000000, End: 0x0800ffff, PageSize: 0x4000, MemType: Erasable | Readable | Writeable},
	}
	fh := &fakeHandle{statuses: specialCommandStatuses(2)}
	dif := &dfu.DfuIf{Handle: fh}

	lastErased := noErase
	err := eraseRange(context.Background(), dif, segments, 0x08000000, 0x3000, &lastErased)
	require.NoError(t, err)

	err = eraseRange(context.Background(), dif, segments, 0x08003000, 0x2000, &lastErased)
	require.NoError(t, err)

	require.Equal(t, []uint32{0x08000000, 0x08004000}, fh.eraseCommands)
	require.Empty(t, fh.statuses)
}

// TestEraseRangeRejectsUncoveredAddress checks the missing-segment error
// path: an address with no covering MemSegment is a data error, not a
// transport call.
func TestEraseRangeRejectsUncoveredAddress(t *testing.T) {
	fh := &fakeHandle{}
	dif := &dfu.DfuIf{Handle: fh}

	lastErased := noErase
	err := eraseRange(context.Background(), dif, nil, 0x08000000, 0x1000, &lastErased)
	require.Error(t, err)
	require.Equal(t, dfu.KindData, dfu.KindOf(err))
	require.Empty(t, fh.eraseCommands)
}

// TestWriteElementSendsTerminalZeroLengthBlock checks that one element's
// write sequence is SET_ADDRESS, one data chunk, then a separate
// zero-length terminating DNLOAD (§4.7) — distinct from, and issued
// regardless of, the once-per-download Leave-DFU sequence.
func TestWriteElementSendsTerminalZeroLengthBlock(t *testing.T) {
	segments := []MemSegment{
		{Start: 0x08000000, End: 0x0800ffff, PageSize: 0x4000, MemType: Erasable | Readable | Writeable},
	}
	fh := &fakeHandle{statuses: append(specialCommandStatuses(2),
		dfu.DeviceStatus{State: dfu.StateDfuDnloadIdle, Status: dfu.StatusOK}, // after the data chunk
		dfu.DeviceStatus{State: dfu.StateDfuDnloadIdle, Status: dfu.StatusOK}, // after the terminator
	)}
	dif := &dfu.DfuIf{Handle: fh}

	lastErased := noErase
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	err := writeElement(context.Background(), dif, segments, 0x08000000, data, 1024, &lastErased, dfu.NoopReporter)
	require.NoError(t, err)

	require.Equal(t, []dnloadCall{
		{Block: 0, Len: 5},    // ERASE_PAGE special command
		{Block: 0, Len: 5},    // SET_ADDRESS special command
		{Block: 2, Len: 10},   // the one data chunk
		{Block: 3, Len: 0},    // terminating zero-length block
	}, fh.dnloadCalls)
	require.Empty(t, fh.statuses)
}

// TestEraseRangeRejectsNonErasableSegment checks that a segment present in
// the memory layout but lacking the erasable bit is rejected rather than
// silently skipped.
func TestEraseRangeRejectsNonErasableSegment(t *testing.T) {
	segments := []MemSegment{
		{Start: 0x08000000, End: 0x0800ffff, PageSize: 0x4000, MemType: Readable | Writeable},
	}
	fh := &fakeHandle{}
	dif := &dfu.DfuIf{Handle: fh}

	lastErased := noErase
	err := eraseRange(context.Background(), dif, segments, 0x08000000, 0x1000, &lastErased)
	require.Error(t, err)
	require.Equal(t, dfu.KindData, dfu.KindOf(err))
}
