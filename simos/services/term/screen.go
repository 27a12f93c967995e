package term

import (
	"sync"

	"simkern/hal"

	"tinygo.org/x/tinyfont/proggy"
	"tinygo.org/x/tinyterm"
)

// ScreenUnit is the terminal unit shown on the framebuffer.
const ScreenUnit = 0

const (
	fontHeight = 10
	fontOffset = 6
)

// Screen collects the bytes transmitted on ScreenUnit and renders them on
// a framebuffer. Put runs on the simulated CPU; Attach and Flush run on
// the host side.
type Screen struct {
	mu      sync.Mutex
	pending []byte
	line    []byte
	mirror  hal.Logger

	fb hal.Framebuffer
	t  *tinyterm.Terminal
}

func NewScreen() *Screen { return &Screen{} }

// Mirror copies every completed line to l.
func (s *Screen) Mirror(l hal.Logger) {
	s.mu.Lock()
	s.mirror = l
	s.mu.Unlock()
}

// Put is a hal.Config.TermOut hook.
func (s *Screen) Put(unit int, b byte) {
	if unit != ScreenUnit {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.t != nil {
		s.pending = append(s.pending, b)
	}
	if b != '\n' {
		s.line = append(s.line, b)
		return
	}
	if s.mirror != nil {
		s.mirror.WriteLineBytes(s.line)
	}
	s.line = s.line[:0]
}

// Attach starts rendering on fb. A nil fb keeps the screen text-only.
func (s *Screen) Attach(fb hal.Framebuffer) {
	if fb == nil {
		return
	}
	t := tinyterm.NewTerminal(&fbDisplay{fb: fb})
	t.Configure(&tinyterm.Config{
		Font:              &proggy.TinySZ8pt7b,
		FontHeight:        fontHeight,
		FontOffset:        fontOffset,
		UseSoftwareScroll: true,
	})
	fb.ClearRGB(0, 0, 0)
	_ = fb.Present()

	s.mu.Lock()
	s.fb, s.t = fb, t
	s.mu.Unlock()
}

// Flush renders the bytes received since the last call.
func (s *Screen) Flush() {
	s.mu.Lock()
	t, p := s.t, s.pending
	s.pending = nil
	s.mu.Unlock()

	if t == nil || len(p) == 0 {
		return
	}
	_, _ = t.Write(p)
	t.Display()
}
