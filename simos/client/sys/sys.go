// Package sys is the user-mode side of the syscall interface. Every call
// traps through hal.Machine.Syscall with a proto.SysArgs block.
package sys

import (
	"simkern/hal"
	"simkern/simos/proto"

	"github.com/pkg/errors"
)

var (
	ErrInvalid    = errors.New("invalid argument")
	ErrWouldBlock = errors.New("would block")
	ErrNoChildren = errors.New("no children")
)

func rcErr(op proto.Opcode, rc int) error {
	switch rc {
	case proto.RcOK:
		return nil
	case proto.RcWouldBlock:
		return errors.Wrap(ErrWouldBlock, op.String())
	default:
		return errors.Wrapf(ErrInvalid, "%s rc %d", op, rc)
	}
}

// Sys issues syscalls on a machine.
type Sys struct {
	m hal.Machine
}

func New(m hal.Machine) *Sys { return &Sys{m: m} }

func (s *Sys) call(op proto.Opcode, args ...any) *proto.SysArgs {
	a := &proto.SysArgs{Number: op}
	for i, v := range args {
		a.Set(i+1, v)
	}
	s.m.Syscall(a)
	return a
}

func (s *Sys) intOut(a *proto.SysArgs, n int) int {
	v, _ := a.Int(n)
	return v
}

// Spawn starts a child user process running fn(arg).
func (s *Sys) Spawn(name string, fn func(string) int, arg string, stackSize, priority int) (int, error) {
	a := s.call(proto.SysSpawn, fn, arg, stackSize, priority, name)
	if err := rcErr(proto.SysSpawn, a.Rc()); err != nil {
		return -1, err
	}
	return s.intOut(a, 1), nil
}

// Wait blocks until a child quits and returns its pid and exit status.
func (s *Sys) Wait() (pid, status int, err error) {
	a := s.call(proto.SysWait)
	if a.Rc() == proto.RcWouldBlock {
		return -1, 0, ErrNoChildren
	}
	return s.intOut(a, 1), s.intOut(a, 2), nil
}

// Terminate ends the calling process and all of its children.
func (s *Sys) Terminate(status int) {
	s.call(proto.SysTerminate, status)
}

func (s *Sys) GetPID() int       { return s.intOut(s.call(proto.SysGetPID), 1) }
func (s *Sys) GetTimeOfDay() int { return s.intOut(s.call(proto.SysGetTimeOfDay), 1) }
func (s *Sys) CPUTime() int      { return s.intOut(s.call(proto.SysCPUTime), 1) }

func (s *Sys) SemCreate(initial int) (int, error) {
	a := s.call(proto.SysSemCreate, initial)
	if err := rcErr(proto.SysSemCreate, a.Rc()); err != nil {
		return -1, err
	}
	return s.intOut(a, 1), nil
}

func (s *Sys) SemP(id int) error {
	return rcErr(proto.SysSemP, s.call(proto.SysSemP, id).Rc())
}

func (s *Sys) SemV(id int) error {
	return rcErr(proto.SysSemV, s.call(proto.SysSemV, id).Rc())
}

// SemFree destroys a semaphore and reports whether processes were blocked
// on it.
func (s *Sys) SemFree(id int) (bool, error) {
	rc := s.call(proto.SysSemFree, id).Rc()
	if rc < 0 {
		return false, rcErr(proto.SysSemFree, rc)
	}
	return rc == 1, nil
}

func (s *Sys) MboxCreate(slots, maxSize int) (int, error) {
	a := s.call(proto.SysMboxCreate, slots, maxSize)
	if err := rcErr(proto.SysMboxCreate, a.Rc()); err != nil {
		return -1, err
	}
	return s.intOut(a, 1), nil
}

func (s *Sys) MboxRelease(id int) error {
	return rcErr(proto.SysMboxRelease, s.call(proto.SysMboxRelease, id).Rc())
}

func (s *Sys) MboxSend(id int, msg []byte) error {
	return rcErr(proto.SysMboxSend, s.call(proto.SysMboxSend, id, msg).Rc())
}

func (s *Sys) MboxCondSend(id int, msg []byte) error {
	return rcErr(proto.SysMboxCondSend, s.call(proto.SysMboxCondSend, id, msg).Rc())
}

// MboxReceive copies the next message into buf and returns its size.
func (s *Sys) MboxReceive(id int, buf []byte) (int, error) {
	return s.receive(proto.SysMboxReceive, id, buf)
}

func (s *Sys) MboxCondReceive(id int, buf []byte) (int, error) {
	return s.receive(proto.SysMboxCondReceive, id, buf)
}

func (s *Sys) receive(op proto.Opcode, id int, buf []byte) (int, error) {
	a := s.call(op, id, buf)
	if err := rcErr(op, a.Rc()); err != nil {
		return 0, err
	}
	return s.intOut(a, 2), nil
}
