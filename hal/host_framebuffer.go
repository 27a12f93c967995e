package hal

import "sync"

// hostFramebuffer is the RGB565 screen shared by the simulated terminal and
// the window runner. Writers hold no lock; the window copies whole frames.
type hostFramebuffer struct {
	mu     sync.Mutex
	width  int
	height int
	buf    []byte
}

func newHostFramebuffer(width, height int) *hostFramebuffer {
	return &hostFramebuffer{
		width:  width,
		height: height,
		buf:    make([]byte, width*height*2),
	}
}

func (f *hostFramebuffer) Width() int          { return f.width }
func (f *hostFramebuffer) Height() int         { return f.height }
func (f *hostFramebuffer) Format() PixelFormat { return PixelFormatRGB565 }
func (f *hostFramebuffer) StrideBytes() int    { return f.width * 2 }
func (f *hostFramebuffer) Buffer() []byte      { return f.buf }
func (f *hostFramebuffer) Present() error      { return nil }

func (f *hostFramebuffer) ClearRGB(r, g, b uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := RGB565(r, g, b)
	for i := 0; i+1 < len(f.buf); i += 2 {
		f.buf[i] = byte(p)
		f.buf[i+1] = byte(p >> 8)
	}
}

// copyRGBA expands the frame into dst, four bytes per pixel.
func (f *hostFramebuffer) copyRGBA(dst []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, j := 0, 0; i+1 < len(f.buf) && j+3 < len(dst); i, j = i+2, j+4 {
		dst[j], dst[j+1], dst[j+2] = RGB888(uint16(f.buf[i]) | uint16(f.buf[i+1])<<8)
		dst[j+3] = 0xFF
	}
}

// RGB565 packs an 8-bit colour into the framebuffer's pixel format.
func RGB565(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

// RGB888 expands an RGB565 pixel.
func RGB888(p uint16) (r, g, b uint8) {
	r = uint8(uint32(p>>11&0x1F) * 255 / 31)
	g = uint8(uint32(p>>5&0x3F) * 255 / 63)
	b = uint8(uint32(p&0x1F) * 255 / 31)
	return r, g, b
}
