package dfuse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContainerRoundTrip(t *testing.T) {
	targets := []Target{
		{
			AltSetting: 0,
			Named:      true,
			Name:       "Internal Flash",
			Elements: []Element{
				{Address: 0x08000000, Data: []byte("hello flash")},
				{Address: 0x08010000, Data: []byte("second element")},
			},
		},
	}

	encoded := EncodeContainer(targets)
	prefix, decoded, err := ParseContainer(encoded)
	require.NoError(t, err)
	require.Equal(t, uint8(1), prefix.Targets)
	require.Len(t, decoded, 1)

	got := decoded[0]
	require.Equal(t, "Internal Flash", got.Name)
	require.True(t, got.Named)
	require.Len(t, got.Elements, 2)
	require.Equal(t, uint32(0x08000000), got.Elements[0].Address)
	require.Equal(t, []byte("hello flash"), got.Elements[0].Data)
	require.Equal(t, []byte("second element"), got.Elements[1].Data)
}

func TestContainerRejectsBadSignature(t *testing.T) {
	_, _, err := ParseContainer([]byte("not a dfuse container at all"))
	require.Error(t, err)
}
