package hal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRGB565(t *testing.T) {
	require.Equal(t, uint16(0xFFFF), RGB565(0xFF, 0xFF, 0xFF))
	require.Equal(t, uint16(0xF800), RGB565(0xFF, 0, 0))
	require.Equal(t, uint16(0x07E0), RGB565(0, 0xFF, 0))

	r, g, b := RGB888(0x001F)
	require.Equal(t, [3]uint8{0, 0, 0xFF}, [3]uint8{r, g, b})
}

func TestFramebufferCopyRGBA(t *testing.T) {
	fb := newHostFramebuffer(2, 1)
	fb.ClearRGB(0xFF, 0, 0)
	fb.buf[2], fb.buf[3] = 0xE0, 0x07

	dst := make([]byte, 8)
	fb.copyRGBA(dst)
	require.Equal(t, []byte{0xFF, 0, 0, 0xFF, 0, 0xFF, 0, 0xFF}, dst)
	require.Equal(t, 4, fb.StrideBytes())
}
