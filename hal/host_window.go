//go:build cgo

package hal

import (
	"image"

	"simkern/internal/buildinfo"

	"github.com/hajimehoshi/ebiten/v2"
)

// RunWindow starts a desktop window that shows the framebuffer and forwards
// typed characters to terminal unit 0. It blocks until the machine halts or
// the window closes, and returns the halt code.
func RunWindow(cfg Config, newApp func(HAL) (App, error)) (int, error) {
	h, err := newHostHAL(cfg)
	if err != nil {
		return 1, err
	}
	app, err := newApp(h)
	if err != nil {
		return 1, err
	}

	halted := make(chan struct{})
	go func() {
		defer close(halted)
		h.cpu.Run(app.Boot)
	}()

	g := &hostGame{h: h, app: app}
	ebiten.SetWindowTitle("simkern " + buildinfo.Short())
	ebiten.SetWindowSize(h.fb.width*2, h.fb.height*2)
	ebiten.SetTPS(60)
	if err := ebiten.RunGame(g); err != nil {
		h.cpu.Shutdown(1)
		<-halted
		return 1, err
	}
	h.cpu.Shutdown(0)
	<-halted
	return h.cpu.ExitCode(), nil
}

type hostGame struct {
	h     *hostHAL
	app   App
	img   *image.RGBA
	fbImg *ebiten.Image
}

func (g *hostGame) Update() error {
	select {
	case <-g.h.cpu.Done():
		return ebiten.Termination
	default:
	}

	g.h.kbd.poll()
	for drained := false; !drained; {
		select {
		case ev := <-g.h.kbd.Events():
			if ev.Press && ev.Rune > 0 && ev.Rune < 0x80 {
				g.h.cpu.TermInput(0, byte(ev.Rune))
			}
		default:
			drained = true
		}
	}
	return g.app.Step()
}

func (g *hostGame) Draw(screen *ebiten.Image) {
	fb := g.h.fb
	if g.img == nil || g.img.Bounds().Dx() != fb.width || g.img.Bounds().Dy() != fb.height {
		g.img = image.NewRGBA(image.Rect(0, 0, fb.width, fb.height))
		if g.fbImg != nil {
			g.fbImg.Deallocate()
		}
		g.fbImg = ebiten.NewImage(fb.width, fb.height)
	}
	fb.copyRGBA(g.img.Pix)

	g.fbImg.WritePixels(g.img.Pix)
	screen.DrawImage(g.fbImg, nil)
}

func (g *hostGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.h.fb.width, g.h.fb.height
}
