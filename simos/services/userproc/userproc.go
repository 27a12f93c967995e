// Package userproc runs user-mode processes: spawn, wait, terminate and
// the syscall table user code reaches through simos/client/sys.
package userproc

import (
	"simkern/hal"
	"simkern/internal/log"
	"simkern/kernel"
	"simkern/simos/ipc"
	"simkern/simos/proto"
	"simkern/simos/services/sems"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// Func is the body of a user process. It runs in user mode and its return
// value becomes the exit status.
type Func func(arg string) int

// ZappedStatus is the exit status of a process terminated because it was
// zapped, or because a resource it waited on was destroyed.
const ZappedStatus = 1

var ErrBadFunc = errors.New("spawn without a user function")

type entry struct {
	pid      int
	inUse    bool
	ready    bool
	name     string
	fn       Func
	arg      string
	parent   int
	children []int
}

// Manager owns the user process table.
type Manager struct {
	k    *kernel.Kernel
	m    hal.Machine
	mb   *ipc.Mailboxes
	sems *sems.Table
	log  hclog.Logger

	procs   [kernel.MaxProc]entry
	startup [kernel.MaxProc]int
}

// New creates the user process table and installs the process,
// semaphore and mailbox syscalls. Opcodes left unassigned terminate the
// caller.
func New(mb *ipc.Mailboxes, st *sems.Table) *Manager {
	k := mb.Kernel()
	k.RequireKernelMode("start2")
	m := &Manager{
		k:    k,
		m:    k.Machine(),
		mb:   mb,
		sems: st,
		log:  log.L.Named("userproc"),
	}
	for i := range m.startup {
		id := mb.Create(0, 0)
		if id < 0 {
			k.Fatalf("start2(): cannot create startup mailbox %d. Halting...", i)
		}
		m.startup[i] = id
	}
	k.OnQuit(m.forget)
	m.installSyscalls()
	return m
}

// Kernel returns the kernel the manager runs on.
func (m *Manager) Kernel() *kernel.Kernel { return m.k }

// Sems returns the semaphore table.
func (m *Manager) Sems() *sems.Table { return m.sems }

// Mailboxes returns the mailbox layer.
func (m *Manager) Mailboxes() *ipc.Mailboxes { return m.mb }

// Spawn creates a user process running fn(arg) in user mode and returns
// its pid. The caller must be in kernel mode.
func (m *Manager) Spawn(name string, fn Func, arg string, stackSize, priority int) (int, error) {
	m.k.RequireKernelMode("spawn")
	if fn == nil {
		return proto.RcInvalid, errors.Wrapf(ErrBadFunc, "spawn %q", name)
	}

	pid, err := m.k.Fork(name, m.launch, arg, stackSize, priority)
	if err != nil {
		return pid, errors.Wrap(err, "spawn")
	}

	// The child may already be parked on its startup mailbox if it
	// outranks the caller.
	parent := m.k.GetPID()
	e := &m.procs[pid%kernel.MaxProc]
	*e = entry{
		pid:    pid,
		inUse:  true,
		ready:  true,
		name:   name,
		fn:     fn,
		arg:    arg,
		parent: -1,
	}
	if pe := m.lookup(parent); pe != nil {
		pe.children = append(pe.children, pid)
		e.parent = parent
	}
	m.mb.CondSend(m.startup[pid%kernel.MaxProc], nil)
	m.log.Trace("spawn", "pid", pid, "name", name, "priority", priority, "parent", parent)
	return pid, nil
}

func (m *Manager) launch(string) int {
	pid := m.k.GetPID()
	e := &m.procs[pid%kernel.MaxProc]
	if !e.inUse || e.pid != pid || !e.ready {
		m.mb.Receive(m.startup[pid%kernel.MaxProc], nil)
	}
	if m.k.IsZapped() {
		m.Terminate(ZappedStatus)
	}

	fn, arg := e.fn, e.arg
	m.m.WritePSR(m.m.ReadPSR() &^ hal.PSRKernel)
	rc := fn(arg)
	m.m.Syscall(&proto.SysArgs{Number: proto.SysTerminate, Arg1: rc})

	m.m.Console("spawn_launch(): should not see this message following Terminate!")
	m.m.Halt(1)
	return 0
}

// Wait collects a quit child and returns its pid and exit status. pid is
// -2 if the caller has no children and -1 if it was zapped while waiting.
func (m *Manager) Wait() (pid, status int) {
	m.k.RequireKernelMode("wait")
	pid, status = m.k.Join()
	if pid >= 0 {
		if e := m.lookup(m.k.GetPID()); e != nil {
			e.removeChild(pid)
		}
	}
	return pid, status
}

// Terminate zaps every child of the caller still running, then quits with
// code. It does not return.
func (m *Manager) Terminate(code int) {
	m.k.RequireKernelMode("terminate")
	self := m.k.GetPID()
	if e := m.lookup(self); e != nil {
		for len(e.children) > 0 {
			child := e.children[0]
			if info, ok := m.k.Info(child); ok && info.Status != kernel.StatusQuit && info.Status != kernel.StatusRecordedQuit {
				m.log.Trace("terminate zap", "pid", self, "child", child)
				m.k.Zap(child)
			}
			e.removeChild(child)
		}
	}
	m.k.Quit(code)
}

// forget drops the table entry of a quitting process.
func (m *Manager) forget(pid int) {
	e := m.lookup(pid)
	if e == nil {
		return
	}
	if pe := m.lookup(e.parent); pe != nil {
		pe.removeChild(pid)
	}
	*e = entry{}
}

func (m *Manager) lookup(pid int) *entry {
	if pid < 0 {
		return nil
	}
	e := &m.procs[pid%kernel.MaxProc]
	if !e.inUse || e.pid != pid {
		return nil
	}
	return e
}

// Children returns the live user children of pid.
func (m *Manager) Children(pid int) []int {
	e := m.lookup(pid)
	if e == nil {
		return nil
	}
	return append([]int(nil), e.children...)
}

func (e *entry) removeChild(pid int) {
	for i, c := range e.children {
		if c == pid {
			e.children = append(e.children[:i], e.children[i+1:]...)
			return
		}
	}
}
