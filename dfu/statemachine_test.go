package dfu

import (
	"context"
	"testing"

	"github.com/o-murphy/go-dfu/internal/transport"
	"github.com/stretchr/testify/require"
)

func TestStateStrings(t *testing.T) {
	cases := map[State]string{
		StateAppIdle:   "appIDLE",
		StateDfuIdle:   "dfuIDLE",
		StateDfuError:  "dfuERROR",
		State(99):      "unknown(99)",
	}
	for state, want := range cases {
		require.Equal(t, want, state.String())
	}
}

func TestStatusStrings(t *testing.T) {
	require.Equal(t, "OK", StatusOK.String())
	require.Equal(t, "errVENDOR", StatusErrVendor.String())
	require.Equal(t, "unknown(200)", Status(200).String())
}

func TestLookupQuirksOpenmoko(t *testing.T) {
	q := LookupQuirks(vendorOpenmoko, 0x1234, 0x0100)
	require.NotZero(t, q&QuirkPollTimeout)
}

func TestLookupQuirksMaple3(t *testing.T) {
	q := LookupQuirks(vendorLeaflabs, productMaple3, 0x0200)
	require.NotZero(t, q&QuirkForceDFU11)

	q2 := LookupQuirks(vendorLeaflabs, productMaple3, 0x0300)
	require.Zero(t, q2&QuirkForceDFU11)
}

func TestPollDelayHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dif := &DfuIf{}
	err := PollDelay(ctx, dif, DeviceStatus{PollTimeout: 10_000})
	require.Error(t, err)
}

func TestParseFunctionalDescriptorRejectsShort(t *testing.T) {
	_, err := ParseFunctionalDescriptor([]byte{0x09, 0x21, 0x0f})
	require.Error(t, err)
	require.Equal(t, KindData, KindOf(err))
}

func TestParseFunctionalDescriptorHappyPath(t *testing.T) {
	b := []byte{0x09, DescriptorTypeDFU, 0x0f, 0x00, 0x00, 0x00, 0x08, 0x1a, 0x01}
	fd, err := ParseFunctionalDescriptor(b)
	require.NoError(t, err)
	require.Equal(t, uint16(0x0800), fd.TransferSize)
	require.Equal(t, uint16(0x011a), fd.DFUVersion)
	require.Equal(t, uint8(0x0f), fd.Attributes)
}

func TestSelectRequiresExactlyOneMatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Match.Vendor = 0x1fc9
	cfg.Match.Product = 0x000c

	dev1 := &transport.Device{Bus: 1, Address: 2}
	dev2 := &transport.Device{Bus: 1, Address: 3}
	candidates := []*DfuIf{
		{VendorID: 0x1fc9, ProductID: 0x000c, Device: dev1},
		{VendorID: 0x1fc9, ProductID: 0x000c, Device: dev2},
	}

	_, err := Select(candidates, &cfg)
	require.Error(t, err)
	require.Equal(t, KindCompatibility, KindOf(err))
	require.Equal(t, 3, KindOf(err).ExitCode())
}

// TestEnterIdleRecoversFromError drives Scenario 2 (§8): a device reporting
// dfuERROR is cleared with CLR_STATUS and polled again, converging to
// dfuIDLE without ever issuing ABORT.
func TestEnterIdleRecoversFromError(t *testing.T) {
	fh := &fakeHandle{
		statuses: []DeviceStatus{
			{State: StateDfuError, Status: StatusErrVendor},
			{State: StateDfuIdle, Status: StatusOK},
		},
	}
	dif := &DfuIf{Handle: fh}

	err := EnterIdle(context.Background(), dif)
	require.NoError(t, err)
	require.Equal(t, 1, fh.clears)
	require.Equal(t, 0, fh.aborts)
	require.Empty(t, fh.statuses)
}

// TestEnterIdleAbortsStaleDnloadIdle covers the other §4.4 recovery branch:
// a device left in dfuDNLOAD-IDLE from a previous, abandoned session is
// aborted back to dfuIDLE rather than cleared.
func TestEnterIdleAbortsStaleDnloadIdle(t *testing.T) {
	fh := &fakeHandle{
		statuses: []DeviceStatus{
			{State: StateDfuDnloadIdle, Status: StatusOK},
			{State: StateDfuIdle, Status: StatusOK},
		},
	}
	dif := &DfuIf{Handle: fh}

	err := EnterIdle(context.Background(), dif)
	require.NoError(t, err)
	require.Equal(t, 1, fh.aborts)
	require.Equal(t, 0, fh.clears)
}

func TestSelectPicksUniqueMatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Match.Product = 0x0001

	dev := &transport.Device{Bus: 1, Address: 2}
	candidates := []*DfuIf{
		{VendorID: 0x1234, ProductID: 0x0001, Device: dev},
		{VendorID: 0x1234, ProductID: 0x0002, Device: dev},
	}

	dif, err := Select(candidates, &cfg)
	require.NoError(t, err)
	require.Equal(t, uint16(0x0001), dif.ProductID)
}

