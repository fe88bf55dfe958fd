package dfufile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStellarisPrefixRoundTrip(t *testing.T) {
	payload := []byte("0123456789abcdef")
	dumped := Dump(payload, DumpOptions{
		Prefix:      PrefixStellaris,
		LoadAddress: 0x2000,
	})

	f, err := Load(dumped, SuffixNone, PrefixNeeds)
	require.NoError(t, err)
	require.True(t, f.HasPrefix)
	require.Equal(t, PrefixStellaris, f.PrefixType)
	require.Equal(t, uint32(0x2000), f.LoadAddress)
	require.Equal(t, payload, f.Payload)
}

func TestLPCPrefixDetected(t *testing.T) {
	payload := make([]byte, 1024)
	dumped := Dump(payload, DumpOptions{Prefix: PrefixLPCUnencrypted})

	f, err := Load(dumped, SuffixNone, PrefixNeeds)
	require.NoError(t, err)
	require.True(t, f.HasPrefix)
	require.Equal(t, PrefixLPCUnencrypted, f.PrefixType)
	require.Equal(t, payload, f.Payload)
}

func TestNoPrefixToleratedWhenOptional(t *testing.T) {
	payload := []byte("plain firmware with no recognizable prefix bytes")
	f, err := Load(payload, SuffixNone, PrefixMaybe)
	require.NoError(t, err)
	require.False(t, f.HasPrefix)
	require.Equal(t, payload, f.Payload)
}

func TestMissingRequiredPrefixRejected(t *testing.T) {
	_, err := Load([]byte("not a recognized prefix at all"), SuffixNone, PrefixNeeds)
	require.Error(t, err)
}
