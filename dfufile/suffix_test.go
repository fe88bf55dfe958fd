package dfufile

import (
	"testing"

	"github.com/o-murphy/go-dfu/dfu"
	"github.com/stretchr/testify/require"
)

func TestSuffixRoundTrip(t *testing.T) {
	payload := []byte("firmware-image-bytes")
	dumped := Dump(payload, DumpOptions{
		WriteSuffix: true,
		IDVendor:    0x0483,
		IDProduct:   0xdf11,
		BcdDevice:   0x0200,
		BcdDFU:      0x011a,
	})

	f, err := Load(dumped, SuffixNeeds, PrefixNone)
	require.NoError(t, err)
	require.True(t, f.HasSuffix)
	require.Equal(t, payload, f.Payload)
	require.Equal(t, uint16(0x0483), f.Suffix.IDVendor)
	require.Equal(t, uint16(0xdf11), f.Suffix.IDProduct)
	require.Equal(t, uint16(0x011a), f.Suffix.BcdDFU)
}

func TestSuffixCRCMismatchRejected(t *testing.T) {
	payload := []byte("firmware-image-bytes")
	dumped := Dump(payload, DumpOptions{
		WriteSuffix: true,
		IDVendor:    0x0483,
		IDProduct:   0xdf11,
	})
	dumped[0] ^= 0xff // corrupt a payload byte without touching the suffix

	_, err := Load(dumped, SuffixNeeds, PrefixNone)
	require.Error(t, err)
	require.Equal(t, dfu.KindData, dfu.KindOf(err))
}

func TestSuffixMissingSignatureRejected(t *testing.T) {
	_, err := Load(make([]byte, 16), SuffixNeeds, PrefixNone)
	require.Error(t, err)
}

func TestSuffixMaybeToleratesAbsence(t *testing.T) {
	payload := []byte("no suffix here, sixteen bytes minimum")
	f, err := Load(payload, SuffixMaybe, PrefixNone)
	require.NoError(t, err)
	require.False(t, f.HasSuffix)
	require.Equal(t, payload, f.Payload)
}
