package ipc

import (
	"simkern/hal"
	"simkern/simos/proto"

	"github.com/davecgh/go-spew/spew"
)

// SyscallHandler services one syscall opcode. It reads and fills the
// argument block in place.
type SyscallHandler func(args *proto.SysArgs)

// SetSyscall installs h for op.
func (mb *Mailboxes) SetSyscall(op proto.Opcode, h SyscallHandler) {
	mb.k.RequireKernelMode("setSyscall")
	if !op.Valid() {
		mb.k.Fatalf("setSyscall(): opcode %d out of range. Halting...", op)
	}
	mb.vec[op] = h
}

// SetUnassigned replaces the handler run for opcodes nothing has claimed.
func (mb *Mailboxes) SetUnassigned(h SyscallHandler) {
	mb.k.RequireKernelMode("setSyscall")
	mb.unassigned = h
}

func (mb *Mailboxes) syscallHandler(_ hal.Device, arg any) {
	args, ok := arg.(*proto.SysArgs)
	if !ok || args == nil {
		mb.k.Fatalf("syscallHandler(): bad argument block:\n%s", spew.Sdump(arg))
	}
	if !args.Number.Valid() {
		mb.k.Fatalf("syscallHandler(): sys number %d is wrong. Halting...", int(args.Number))
	}
	if mb.log.IsTrace() {
		mb.log.Trace("syscall", "pid", mb.k.GetPID(), "op", args.Number, "args", spew.Sdump(args))
	}

	h := mb.vec[args.Number]
	if h == nil {
		h = mb.unassigned
	}
	h(args)
}

func (mb *Mailboxes) nullsys(args *proto.SysArgs) {
	mb.m.Console("nullsys(): Invalid syscall %d. Halting...", int(args.Number))
	mb.m.Console("%s", spew.Sdump(args))
	mb.m.Halt(1)
}
