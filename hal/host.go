package hal

import (
	"fmt"
	"os"
	"sync"
)

const (
	hostFBWidth  = 320
	hostFBHeight = 320
)

type hostHAL struct {
	logger Logger
	fb     *hostFramebuffer
	kbd    *hostKeyboard
	cpu    *CPU
}

// New returns a host HAL implementation around a fresh machine.
func New(cfg Config) (HAL, error) {
	return newHostHAL(cfg)
}

func newHostHAL(cfg Config) (*hostHAL, error) {
	if cfg.Console == nil {
		cfg.Console = &hostLogger{w: os.Stdout}
	}
	cpu, err := NewCPU(cfg)
	if err != nil {
		return nil, err
	}
	return &hostHAL{
		logger: cfg.Console,
		fb:     newHostFramebuffer(hostFBWidth, hostFBHeight),
		kbd:    newHostKeyboard(),
		cpu:    cpu,
	}, nil
}

func (h *hostHAL) Logger() Logger   { return h.logger }
func (h *hostHAL) Display() Display { return hostDisplay{fb: h.fb} }
func (h *hostHAL) Input() Input     { return hostInput{kbd: h.kbd} }
func (h *hostHAL) Machine() *CPU    { return h.cpu }

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostInput struct {
	kbd *hostKeyboard
}

func (in hostInput) Keyboard() Keyboard { return in.kbd }

type hostLogger struct {
	mu sync.Mutex
	w  *os.File
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}
