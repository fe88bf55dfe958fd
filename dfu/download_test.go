package dfu

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestDownloadImageExactBlockCount drives Scenario 5 (§8): 4100 bytes at
// wTransferSize=2048 must produce exactly 4 DFU_DNLOAD calls — two full
// 2048-byte blocks, one short 4-byte block, and the terminating
// zero-length block that follows it.
func TestDownloadImageExactBlockCount(t *testing.T) {
	fh := &fakeHandle{
		statuses: []DeviceStatus{
			{State: StateDfuIdle, Status: StatusOK},       // EnterIdle
			{State: StateDfuDnloadIdle, Status: StatusOK}, // after block 0
			{State: StateDfuDnloadIdle, Status: StatusOK}, // after block 1
			{State: StateDfuDnloadIdle, Status: StatusOK}, // after short block 2
			{State: StateDfuDnloadIdle, Status: StatusOK}, // after terminal block
			{State: StateDfuIdle, Status: StatusOK},       // waitManifestation
		},
	}
	dif := &DfuIf{Handle: fh}

	data := bytes.Repeat([]byte{0xaa}, 4100)
	err := DownloadImage(context.Background(), dif, bytes.NewReader(data), 2048, int64(len(data)), NoopReporter)
	require.NoError(t, err)
	require.Equal(t, 4, fh.dnloads)
	require.Empty(t, fh.statuses)
}
