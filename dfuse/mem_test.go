package dfuse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMemoryLayoutThreeSegments(t *testing.T) {
	name, segments, err := ParseMemoryLayout("@Internal Flash/0x08000000/04*016Kg,01*064Kg,01*128Kg")
	require.NoError(t, err)
	require.Equal(t, "Internal Flash", name)
	require.Len(t, segments, 3)

	require.Equal(t, MemSegment{Start: 0x08000000, End: 0x0800ffff, PageSize: 16384, MemType: 'g' & 7}, segments[0])
	require.Equal(t, MemSegment{Start: 0x08010000, End: 0x0801ffff, PageSize: 65536, MemType: 'g' & 7}, segments[1])
	require.Equal(t, MemSegment{Start: 0x08020000, End: 0x0803ffff, PageSize: 131072, MemType: 'g' & 7}, segments[2])
}

func TestParseMemoryLayoutRejectsMissingName(t *testing.T) {
	_, _, err := ParseMemoryLayout("0x08000000/04*016Kg")
	require.Error(t, err)
}

func TestFindSegment(t *testing.T) {
	segments := []MemSegment{
		{Start: 0x08000000, End: 0x0800ffff, PageSize: 16384, MemType: 7},
		{Start: 0x08010000, End: 0x0801ffff, PageSize: 65536, MemType: 7},
	}

	seg, ok := FindSegment(segments, 0x08010500)
	require.True(t, ok)
	require.Equal(t, uint32(65536), seg.PageSize)

	_, ok = FindSegment(segments, 0x09000000)
	require.False(t, ok)
}
