package recorder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindMP3FrameSync(t *testing.T) {
	require.Equal(t, -1, findMP3FrameSync(nil))
	require.Equal(t, -1, findMP3FrameSync([]byte{0x00, 0x01, 0x02}))
	require.Equal(t, -1, findMP3FrameSync([]byte{0xFF})) // lone marker at the end
	require.Equal(t, -1, findMP3FrameSync([]byte{0xFF, 0x01}))

	require.Equal(t, 0, findMP3FrameSync([]byte{0xFF, 0xFB, 0x90}))
	require.Equal(t, 0, findMP3FrameSync([]byte{0xFF, 0xE2}))
	require.Equal(t, 3, findMP3FrameSync([]byte{0x00, 0x00, 0x00, 0xFF, 0xFB}))
}

func TestSplitAtFrameSync(t *testing.T) {
	head, tail := splitAtFrameSync([]byte{0x01, 0x02, 0xFF, 0xFB, 0x03})
	require.Equal(t, []byte{0x01, 0x02}, head)
	require.Equal(t, []byte{0xFF, 0xFB, 0x03}, tail)

	// No sync: the whole chunk moves to the new segment.
	head, tail = splitAtFrameSync([]byte{0x01, 0x02, 0x03})
	require.Nil(t, head)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, tail)

	// Sync at the start: the old segment gets nothing.
	head, tail = splitAtFrameSync([]byte{0xFF, 0xE0, 0x01})
	require.Empty(t, head)
	require.Equal(t, []byte{0xFF, 0xE0, 0x01}, tail)
}
