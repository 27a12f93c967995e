package term

import (
	"testing"

	"simkern/hal"
	"simkern/internal/simtest"
	"simkern/kernel"
	"simkern/simos/client/sys"
	"simkern/simos/ipc"
	"simkern/simos/services/sems"
	"simkern/simos/services/userproc"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

type memFB struct {
	w, h int
	buf  []byte
}

func newMemFB(w, h int) *memFB { return &memFB{w: w, h: h, buf: make([]byte, w*h*2)} }

func (f *memFB) Width() int              { return f.w }
func (f *memFB) Height() int             { return f.h }
func (f *memFB) Format() hal.PixelFormat { return hal.PixelFormatRGB565 }
func (f *memFB) StrideBytes() int        { return f.w * 2 }
func (f *memFB) Buffer() []byte          { return f.buf }
func (f *memFB) Present() error          { return nil }
func (f *memFB) ClearRGB(_, _, _ uint8)  { clear(f.buf) }

func (f *memFB) lit() bool {
	for _, b := range f.buf {
		if b != 0 {
			return true
		}
	}
	return false
}

func boot(t *testing.T, screen *Screen, body func(m *userproc.Manager, s *sys.Sys) int) (int, *simtest.Console) {
	t.Helper()
	return simtest.Boot(t, &hal.Config{TermOut: screen.Put}, func(k *kernel.Kernel) kernel.Entry {
		return func(string) int {
			mb := ipc.New(k)
			m := userproc.New(mb, sems.New(mb))
			New(m)
			return body(m, sys.New(k.Machine()))
		}
	})
}

func TestTerminal(t *testing.T) {
	n := neko.Modern(t)

	n.It("draws unit 0 and mirrors whole lines", func(t *testing.T) {
		var tr simtest.Trace
		screen := NewScreen()
		mirror := &simtest.Console{}
		screen.Mirror(mirror)
		fb := newMemFB(96, 40)
		screen.Attach(fb)

		code, out := boot(t, screen, func(m *userproc.Manager, s *sys.Sys) int {
			m.Spawn("writer", func(string) int {
				n, err := s.TermWrite(0, []byte("hello\nsim"))
				tr.Add("n=%d err=%v", n, err)
				n, err = s.TermWrite(0, []byte("kern\n"))
				tr.Add("n=%d err=%v", n, err)
				return 0
			}, "", kernel.MinStack, 3)
			m.Wait()
			return 0
		})

		require.Equal(t, 0, code, out.String())
		require.Equal(t, []string{"n=9 err=<nil>", "n=5 err=<nil>"}, tr.Events())
		require.Equal(t, []string{"hello", "simkern"}, mirror.Lines())

		require.False(t, fb.lit())
		screen.Flush()
		require.True(t, fb.lit())
	})

	n.It("keeps other units off the screen", func(t *testing.T) {
		var tr simtest.Trace
		screen := NewScreen()
		mirror := &simtest.Console{}
		screen.Mirror(mirror)

		code, out := boot(t, screen, func(m *userproc.Manager, s *sys.Sys) int {
			m.Spawn("writer", func(string) int {
				n, err := s.TermWrite(3, []byte("side\n"))
				tr.Add("n=%d err=%v", n, err)
				_, err = s.TermWrite(hal.TermUnits, []byte("x"))
				tr.Add("bad unit=%v", errors.Is(err, sys.ErrInvalid))
				return 0
			}, "", kernel.MinStack, 3)
			m.Wait()
			return 0
		})

		require.Equal(t, 0, code, out.String())
		require.Equal(t, []string{"n=5 err=<nil>", "bad unit=true"}, tr.Events())
		require.Empty(t, mirror.Lines())
	})

	n.Meow()
}
