package hal

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Context is a saved execution context. Each context runs on its own
// goroutine; only the context holding the CPU makes progress.
type Context struct {
	run     chan struct{}
	entry   func()
	stack   []byte
	psr     PSR
	started bool
}

type irq struct {
	dev  Device
	unit int
}

// maxQueuedTicks bounds clock interrupts waiting for delivery.
const maxQueuedTicks = 4

// CPU is the single simulated processor.
type CPU struct {
	cfg     Config
	console Logger

	// Owned by whichever context holds the CPU.
	cur    *Context
	psr    PSR
	inIntr bool
	vec    [numDevices]InterruptHandler

	mu          sync.Mutex
	pending     []irq
	queuedTicks int
	kick        chan struct{}

	clock *clockDevice
	disks [DiskUnits]*diskDevice
	terms [TermUnits]*termDevice

	done      chan struct{}
	haltOnce  sync.Once
	code      int
	panicOnce sync.Once
	devices   sync.WaitGroup
}

var _ Machine = (*CPU)(nil)

// NewCPU builds a machine with its devices attached.
func NewCPU(cfg Config) (*CPU, error) {
	cfg.setDefaults()
	c := &CPU{
		cfg:     cfg,
		console: cfg.Console,
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	if c.console == nil {
		c.console = &hostLogger{w: os.Stdout}
	}
	c.clock = newClockDevice(c, cfg.TickInterval)
	for unit := range c.disks {
		d, err := newDiskDevice(c, unit, cfg.DiskTracks[unit], cfg.DiskDir, cfg.DiskLatency)
		if err != nil {
			return nil, errors.Wrapf(err, "disk%d", unit)
		}
		c.disks[unit] = d
	}
	for unit := range c.terms {
		c.terms[unit] = &termDevice{c: c, unit: unit, out: cfg.TermOut}
	}
	return c, nil
}

// Run boots the machine with boot as the first context (kernel mode,
// interrupts disabled) and blocks until Halt. It returns the halt code.
func (c *CPU) Run(boot func()) int {
	c.devices.Add(1)
	go func() {
		defer c.devices.Done()
		c.clock.run(c.done)
	}()

	ctx := &Context{}
	c.ContextInit(ctx, nil, boot)
	ctx.started = true
	c.cur = ctx
	c.psr = PSRKernel
	go c.launch(ctx)

	<-c.done
	c.devices.Wait()
	for _, d := range c.disks {
		_ = d.close()
	}
	return c.code
}

// Done is closed once the machine halts.
func (c *CPU) Done() <-chan struct{} { return c.done }

// ExitCode returns the halt code. Valid after Done is closed.
func (c *CPU) ExitCode() int { return c.code }

func (c *CPU) launch(ctx *Context) {
	defer func() {
		if r := recover(); r != nil {
			c.triggerPanic(PanicInfo{Value: r})
			c.Halt(2)
		}
	}()
	ctx.entry()
	c.Console("context entry returned without quitting")
	c.Halt(1)
}

func (c *CPU) ContextInit(ctx *Context, stack []byte, entry func()) {
	ctx.run = make(chan struct{}, 1)
	ctx.entry = entry
	ctx.stack = stack
	ctx.psr = PSRKernel
	ctx.started = false
}

// ContextSwitch hands the CPU to new and parks the caller until old is
// switched back in. A nil old ends the calling context.
func (c *CPU) ContextSwitch(old, new *Context) {
	if new == nil || new.run == nil {
		c.Console("context switch to an uninitialized context")
		c.Halt(1)
	}
	if old != nil {
		old.psr = c.psr
	}
	c.cur = new
	c.psr = new.psr
	if !new.started {
		new.started = true
		go c.launch(new)
	} else {
		new.run <- struct{}{}
	}
	if old == nil {
		runtime.Goexit()
	}
	select {
	case <-old.run:
	case <-c.done:
		runtime.Goexit()
	}
}

func (c *CPU) ReadPSR() PSR { return c.psr }

func (c *CPU) WritePSR(p PSR) {
	if !c.psr.Kernel() {
		c.Console("psr write in user mode")
		c.Halt(1)
	}
	c.psr = p
	if p.IntEnabled() {
		c.deliver()
	}
}

func (c *CPU) RegisterInterrupt(dev Device, h InterruptHandler) {
	if dev >= numDevices {
		return
	}
	c.vec[dev] = h
}

func (c *CPU) InInterrupt() bool { return c.inIntr }

// Poll delivers pending interrupts if the current PSR allows them.
func (c *CPU) Poll() {
	if c.psr.IntEnabled() {
		c.deliver()
	}
}

// WaitInt blocks the current context until an interrupt is pending, then
// delivers everything queued.
func (c *CPU) WaitInt() {
	for {
		c.mu.Lock()
		n := len(c.pending)
		c.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-c.kick:
		case <-c.done:
			runtime.Goexit()
		}
	}
	c.deliver()
}

// Syscall traps into the SyscallDev handler on the calling context.
func (c *CPU) Syscall(args any) {
	h := c.vec[SyscallDev]
	if h == nil {
		c.Console("syscall: no handler installed")
		c.Halt(1)
	}
	saved := c.psr
	c.psr = PSRKernel | saved&PSRInt
	h(SyscallDev, args)
	c.psr = saved
	if saved.IntEnabled() {
		c.deliver()
	}
}

func (c *CPU) raise(dev Device, unit int) {
	c.mu.Lock()
	if dev == ClockDev {
		if c.queuedTicks >= maxQueuedTicks {
			c.mu.Unlock()
			return
		}
		c.queuedTicks++
	}
	c.pending = append(c.pending, irq{dev: dev, unit: unit})
	c.mu.Unlock()

	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *CPU) deliver() {
	if c.inIntr {
		return
	}
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.mu.Unlock()
			return
		}
		ev := c.pending[0]
		c.pending = c.pending[1:]
		if ev.dev == ClockDev {
			c.queuedTicks--
		}
		c.mu.Unlock()

		h := c.vec[ev.dev]
		if h == nil {
			continue
		}
		saved := c.psr
		c.psr = PSRKernel
		c.inIntr = true
		h(ev.dev, ev.unit)
		c.inIntr = false
		c.psr = saved
	}
}

func (c *CPU) DeviceOutput(dev Device, unit int, req *DeviceRequest) DevStatus {
	if req == nil {
		return DevInvalid
	}
	switch dev {
	case DiskDev:
		if unit < 0 || unit >= DiskUnits {
			return DevInvalid
		}
		return c.disks[unit].output(req)
	case TermDev:
		if unit < 0 || unit >= TermUnits {
			return DevInvalid
		}
		return c.terms[unit].output(req)
	default:
		return DevInvalid
	}
}

func (c *CPU) DeviceInput(dev Device, unit int) (int, DevStatus) {
	switch dev {
	case ClockDev:
		if unit != 0 {
			return 0, DevInvalid
		}
		return int(c.clock.now()), DevOK
	case DiskDev:
		if unit < 0 || unit >= DiskUnits {
			return 0, DevInvalid
		}
		return c.disks[unit].input(), DevOK
	case TermDev:
		if unit < 0 || unit >= TermUnits {
			return 0, DevInvalid
		}
		return c.terms[unit].input(), DevOK
	default:
		return 0, DevInvalid
	}
}

// TermInput delivers a received character on a terminal unit.
func (c *CPU) TermInput(unit int, b byte) {
	if unit < 0 || unit >= TermUnits {
		return
	}
	c.terms[unit].receive(b)
}

func (c *CPU) SysClock() int64 { return c.clock.now() }

func (c *CPU) Console(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	c.console.WriteLineString(strings.TrimRight(s, "\n"))
}

// Halt stops the machine. It does not return.
func (c *CPU) Halt(code int) {
	c.haltOnce.Do(func() {
		c.code = code
		close(c.done)
	})
	runtime.Goexit()
}

// Shutdown halts the machine from outside any context.
func (c *CPU) Shutdown(code int) {
	c.haltOnce.Do(func() {
		c.code = code
		close(c.done)
	})
}
