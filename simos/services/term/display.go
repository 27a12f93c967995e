package term

import (
	"image/color"

	"simkern/hal"

	"tinygo.org/x/drivers"
)

// fbDisplay draws on an RGB565 framebuffer for tinyterm.
type fbDisplay struct {
	fb hal.Framebuffer
}

var _ drivers.Displayer = (*fbDisplay)(nil)

func (d *fbDisplay) usable() bool {
	return d.fb != nil && d.fb.Format() == hal.PixelFormatRGB565 && d.fb.Buffer() != nil
}

func (d *fbDisplay) Size() (x, y int16) {
	if d.fb == nil {
		return 0, 0
	}
	return int16(d.fb.Width()), int16(d.fb.Height())
}

func (d *fbDisplay) SetPixel(x, y int16, c color.RGBA) {
	if !d.usable() {
		return
	}
	if int(x) < 0 || int(x) >= d.fb.Width() || int(y) < 0 || int(y) >= d.fb.Height() {
		return
	}
	d.put(int(y)*d.fb.StrideBytes()+int(x)*2, rgb565(c))
}

func (d *fbDisplay) put(off int, pixel uint16) {
	buf := d.fb.Buffer()
	if off < 0 || off+1 >= len(buf) {
		return
	}
	buf[off] = byte(pixel)
	buf[off+1] = byte(pixel >> 8)
}

func (d *fbDisplay) Display() error {
	if d.fb == nil {
		return nil
	}
	return d.fb.Present()
}

// ScrollUp moves the picture up by lines rows and clears the rows exposed
// at the bottom.
func (d *fbDisplay) ScrollUp(lines int16, bg color.RGBA) error {
	if !d.usable() || lines <= 0 {
		return nil
	}
	w, h := d.fb.Width(), d.fb.Height()
	n := int(lines)
	if n >= h {
		return d.FillRectangle(0, 0, int16(w), int16(h), bg)
	}

	buf := d.fb.Buffer()
	stride := d.fb.StrideBytes()
	end := h * stride
	if end > len(buf) {
		end = len(buf)
	}
	if n*stride < end {
		copy(buf, buf[n*stride:end])
	}
	return d.FillRectangle(0, int16(h-n), int16(w), int16(n), bg)
}

func (d *fbDisplay) FillRectangle(x, y, width, height int16, c color.RGBA) error {
	if !d.usable() {
		return nil
	}
	w, h := d.fb.Width(), d.fb.Height()
	x0, x1 := clamp(int(x), w), clamp(int(x)+int(width), w)
	y0, y1 := clamp(int(y), h), clamp(int(y)+int(height), h)

	pixel := rgb565(c)
	stride := d.fb.StrideBytes()
	for py := y0; py < y1; py++ {
		for px := x0; px < x1; px++ {
			d.put(py*stride+px*2, pixel)
		}
	}
	return nil
}

func (d *fbDisplay) SetScroll(int16) {}

func (d *fbDisplay) SetRotation(drivers.Rotation) error { return nil }

func rgb565(c color.RGBA) uint16 { return hal.RGB565(c.R, c.G, c.B) }

func clamp(v, hi int) int {
	switch {
	case v < 0:
		return 0
	case v > hi:
		return hi
	default:
		return v
	}
}
