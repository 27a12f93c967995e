package kernel

import (
	"simkern/hal"
	"simkern/internal/log"
	"simkern/internal/ring"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

const (
	MaxProc  = 50
	MaxName  = 50
	MinStack = 4096

	SentinelPID = 1

	HighestPriority  = 1
	LowestPriority   = 5
	SentinelPriority = LowestPriority + 1

	// TimeSliceMicros is how long a process may run before yielding to a
	// ready process of the same priority.
	TimeSliceMicros = 80000
)

var (
	ErrStackTooSmall = errors.New("stack size below minimum")
	ErrNameTooLong   = errors.New("process name too long")
	ErrBadPriority   = errors.New("priority out of range")
	ErrTableFull     = errors.New("process table full")
	ErrNoEntry       = errors.New("no entry function")
)

// ErrCode maps a Fork error to the integer code returned through syscalls.
func ErrCode(err error) int {
	switch errors.Cause(err) {
	case nil:
		return 0
	case ErrStackTooSmall:
		return -2
	default:
		return -1
	}
}

// Kernel owns the process table, the ready queues and the dispatcher.
//
// All table and queue state is touched only by the process holding the CPU,
// inside an interrupts-disabled bracket.
type Kernel struct {
	m   hal.Machine
	log hclog.Logger

	procs   [MaxProc]Proc
	ready   [SentinelPriority]ring.Queue[*Proc]
	current *Proc
	nextPID int
	resched bool

	quitHooks   []func(pid int)
	ioWaiters   func() int
	statusNames map[Status]string
}

type Option func(*Kernel)

// WithLogger replaces the default named logger.
func WithLogger(l hclog.Logger) Option {
	return func(k *Kernel) { k.log = l }
}

// New creates a kernel bound to a machine.
func New(m hal.Machine, opts ...Option) *Kernel {
	k := &Kernel{
		m:           m,
		log:         log.L.Named("kernel"),
		nextPID:     SentinelPID,
		ioWaiters:   func() int { return 0 },
		statusNames: make(map[Status]string),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Machine returns the machine the kernel runs on.
func (k *Kernel) Machine() hal.Machine { return k.m }

// OnQuit registers a callback run, with interrupts disabled, whenever a
// process quits. Callbacks release resources bound to the pid and must not
// block.
func (k *Kernel) OnQuit(fn func(pid int)) {
	k.quitHooks = append(k.quitHooks, fn)
}

// SetIOWaiters installs the counter of processes waiting on a device. The
// sentinel treats any such process as a pending external event.
func (k *Kernel) SetIOWaiters(fn func() int) {
	k.ioWaiters = fn
}

// NameStatus registers a display name for a block status.
func (k *Kernel) NameStatus(s Status, name string) {
	k.statusNames[s] = name
}

func (k *Kernel) statusName(s Status) string {
	if name, ok := k.statusNames[s]; ok {
		return name
	}
	return s.String()
}

// Startup initializes the process table, creates the sentinel and start1,
// and hands the CPU to the dispatcher. It does not return.
func (k *Kernel) Startup(start1 Entry) {
	k.checkKernelMode("startup")
	k.DisableInterrupts()

	for i := range k.procs {
		k.procs[i] = Proc{}
	}
	for i := range k.ready {
		k.ready[i] = ring.Queue[*Proc]{}
	}
	k.current = nil
	k.nextPID = SentinelPID

	if _, err := k.fork("sentinel", k.sentinel, "", MinStack, SentinelPriority); err != nil {
		k.fatalf("startup(): fork of sentinel returned error: %v", err)
	}
	if _, err := k.fork("start1", start1, "", 2*MinStack, HighestPriority); err != nil {
		k.fatalf("startup(): fork of start1 returned error: %v", err)
	}

	k.log.Debug("startup complete")
	k.dispatch()
	k.fatalf("startup(): should not see this message")
}

// Fork creates a child of the current process and returns its pid.
func (k *Kernel) Fork(name string, entry Entry, arg string, stackSize, priority int) (int, error) {
	k.checkKernelMode("fork1")
	if priority < HighestPriority || priority > LowestPriority {
		return -1, errors.Wrapf(ErrBadPriority, "fork1 %q priority %d", name, priority)
	}

	prev := k.DisableInterrupts()
	pid, err := k.fork(name, entry, arg, stackSize, priority)
	if err != nil {
		k.RestoreInterrupts(prev)
		return ErrCode(err), err
	}
	k.preempt()
	k.RestoreInterrupts(prev)
	return pid, nil
}

func (k *Kernel) fork(name string, entry Entry, arg string, stackSize, priority int) (int, error) {
	switch {
	case entry == nil:
		return -1, errors.Wrapf(ErrNoEntry, "fork1 %q", name)
	case len(name) > MaxName:
		return -1, errors.Wrapf(ErrNameTooLong, "fork1 %q", name)
	case stackSize < MinStack:
		return -2, errors.Wrapf(ErrStackTooSmall, "fork1 %q stack %d", name, stackSize)
	}

	var p *Proc
	for tries := 0; tries < MaxProc; tries++ {
		slot := &k.procs[k.nextPID%MaxProc]
		if slot.reusable() {
			p = slot
			break
		}
		k.nextPID++
	}
	if p == nil {
		return -1, errors.Wrapf(ErrTableFull, "fork1 %q", name)
	}

	*p = Proc{
		pid:      k.nextPID,
		name:     name,
		priority: priority,
		stack:    make([]byte, stackSize),
		entry:    entry,
		arg:      arg,
		parent:   k.current,
	}
	k.nextPID++
	k.m.ContextInit(&p.ctx, p.stack, k.launch)

	if k.current != nil {
		k.current.children = append(k.current.children, p)
	}
	k.makeReady(p)
	k.log.Trace("fork", "pid", p.pid, "name", name, "priority", priority, "parent", p.parentPID())
	return p.pid, nil
}

// launch is the first code run on every process context.
func (k *Kernel) launch() {
	p := k.current
	k.m.WritePSR(k.m.ReadPSR() | hal.PSRInt)
	rc := p.entry(p.arg)
	k.Quit(rc)
}

// GetPID returns the pid of the running process.
func (k *Kernel) GetPID() int {
	if k.current == nil {
		return -1
	}
	return k.current.pid
}

// Info returns a snapshot of the process with the given pid.
func (k *Kernel) Info(pid int) (ProcInfo, bool) {
	p := k.lookup(pid)
	if p == nil {
		return ProcInfo{}, false
	}
	return p.info(), true
}

func (k *Kernel) lookup(pid int) *Proc {
	if pid < 0 {
		return nil
	}
	p := &k.procs[pid%MaxProc]
	if p.pid != pid || p.status == StatusEmpty {
		return nil
	}
	return p
}

// DisableInterrupts clears the interrupt-enable bit and returns the previous
// PSR for RestoreInterrupts.
func (k *Kernel) DisableInterrupts() hal.PSR {
	k.checkKernelMode("disableInterrupts")
	prev := k.m.ReadPSR()
	k.m.WritePSR(prev &^ hal.PSRInt)
	return prev
}

// RestoreInterrupts reinstates a PSR saved by DisableInterrupts. If it
// enables interrupts, pending ones are delivered and the caller yields to
// any higher priority process they made ready.
func (k *Kernel) RestoreInterrupts(prev hal.PSR) {
	k.m.WritePSR(prev)
	if !prev.IntEnabled() || k.m.InInterrupt() || k.current == nil {
		return
	}
	if k.current.status == StatusRunning && k.readyAtOrAbove(k.current.priority-1) {
		k.m.WritePSR(prev &^ hal.PSRInt)
		k.preempt()
		k.m.WritePSR(prev)
	}
}

// RequireKernelMode halts the machine if the caller is in user mode.
func (k *Kernel) RequireKernelMode(op string) { k.checkKernelMode(op) }

// Fatalf writes a console diagnostic and halts with code 1.
func (k *Kernel) Fatalf(format string, args ...any) { k.fatalf(format, args...) }

func (k *Kernel) checkKernelMode(op string) {
	if !k.m.ReadPSR().Kernel() {
		k.fatalf("%s(): called while in user mode, by process %d. Halting...", op, k.GetPID())
	}
}

func (k *Kernel) fatalf(format string, args ...any) {
	k.m.Console(format, args...)
	k.m.Halt(1)
}
