package userproc

import (
	"simkern/simos/proto"

	"github.com/davecgh/go-spew/spew"
)

func (m *Manager) installSyscalls() {
	m.install(proto.SysSpawn, m.sysSpawn)
	m.install(proto.SysWait, m.sysWait)
	m.install(proto.SysTerminate, m.sysTerminate)

	m.install(proto.SysSemCreate, m.sysSemCreate)
	m.install(proto.SysSemP, m.sysSemP)
	m.install(proto.SysSemV, m.sysSemV)
	m.install(proto.SysSemFree, m.sysSemFree)

	m.install(proto.SysMboxCreate, m.sysMboxCreate)
	m.install(proto.SysMboxRelease, m.sysMboxRelease)
	m.install(proto.SysMboxSend, m.sysMboxSend(false))
	m.install(proto.SysMboxCondSend, m.sysMboxSend(true))
	m.install(proto.SysMboxReceive, m.sysMboxReceive(false))
	m.install(proto.SysMboxCondReceive, m.sysMboxReceive(true))

	m.install(proto.SysGetTimeOfDay, func(a *proto.SysArgs) { a.Arg1 = int(m.m.SysClock()) })
	m.install(proto.SysCPUTime, func(a *proto.SysArgs) { a.Arg1 = int(m.k.ReadTime()) })
	m.install(proto.SysGetPID, func(a *proto.SysArgs) { a.Arg1 = m.k.GetPID() })

	m.mb.SetUnassigned(m.nullsys3)
}

// Install adds a syscall whose handler is followed by the per-process
// checkpoint. Drivers use it to add their own opcodes.
func (m *Manager) Install(op proto.Opcode, h func(a *proto.SysArgs)) {
	m.install(op, h)
}

func (m *Manager) install(op proto.Opcode, h func(a *proto.SysArgs)) {
	m.mb.SetSyscall(op, func(a *proto.SysArgs) {
		h(a)
		m.checkpoint()
	})
}

// checkpoint runs on every syscall return: a zapped user process
// terminates, and a process whose time slice ran out yields.
func (m *Manager) checkpoint() {
	if m.k.IsZapped() && m.lookup(m.k.GetPID()) != nil {
		m.Terminate(ZappedStatus)
	}
	m.k.Checkpoint()
}

func (m *Manager) nullsys3(a *proto.SysArgs) {
	m.m.Console("nullsys3(): Invalid syscall %d", int(a.Number))
	m.m.Console("nullsys3(): process %d terminating", m.k.GetPID())
	m.log.Debug("invalid syscall", "args", spew.Sdump(a))
	m.Terminate(ZappedStatus)
}

func (m *Manager) sysSpawn(a *proto.SysArgs) {
	fn, _ := a.Arg1.(Func)
	if f, ok := a.Arg1.(func(string) int); ok {
		fn = f
	}
	arg, _ := a.Text(2)
	stack, ok1 := a.Int(3)
	prio, ok2 := a.Int(4)
	name, _ := a.Text(5)
	if fn == nil || !ok1 || !ok2 {
		a.Arg1 = proto.RcInvalid
		a.SetRc(proto.RcInvalid)
		return
	}

	pid, err := m.Spawn(name, fn, arg, stack, prio)
	a.Arg1 = pid
	if err != nil {
		m.log.Debug("spawn failed", "name", name, "error", err)
		a.SetRc(proto.RcInvalid)
		return
	}
	a.SetRc(proto.RcOK)
}

func (m *Manager) sysWait(a *proto.SysArgs) {
	pid, status := m.Wait()
	a.Arg1 = pid
	a.Arg2 = status
	switch {
	case pid == proto.RcWouldBlock:
		a.SetRc(proto.RcWouldBlock)
	case pid < 0:
		m.Terminate(ZappedStatus)
	default:
		a.SetRc(proto.RcOK)
	}
}

func (m *Manager) sysTerminate(a *proto.SysArgs) {
	code, _ := a.Int(1)
	m.Terminate(code)
}

func (m *Manager) sysSemCreate(a *proto.SysArgs) {
	initial, ok := a.Int(1)
	id := proto.RcInvalid
	if ok {
		id = m.sems.Create(initial)
	}
	a.Arg1 = id
	if id < 0 {
		a.SetRc(proto.RcInvalid)
		return
	}
	a.SetRc(proto.RcOK)
}

func (m *Manager) sysSemP(a *proto.SysArgs) {
	id, ok := a.Int(1)
	if !ok {
		a.SetRc(proto.RcInvalid)
		return
	}
	rc := m.sems.P(id)
	if rc == proto.RcReleased {
		m.Terminate(ZappedStatus)
	}
	a.SetRc(rc)
}

func (m *Manager) sysSemV(a *proto.SysArgs) {
	id, ok := a.Int(1)
	if !ok {
		a.SetRc(proto.RcInvalid)
		return
	}
	a.SetRc(m.sems.V(id))
}

func (m *Manager) sysSemFree(a *proto.SysArgs) {
	id, ok := a.Int(1)
	if !ok {
		a.SetRc(proto.RcInvalid)
		return
	}
	a.SetRc(m.sems.Free(id))
}

func (m *Manager) sysMboxCreate(a *proto.SysArgs) {
	slots, ok1 := a.Int(1)
	size, ok2 := a.Int(2)
	id := proto.RcInvalid
	if ok1 && ok2 {
		id = m.mb.Create(slots, size)
	}
	a.Arg1 = id
	if id < 0 {
		a.SetRc(proto.RcInvalid)
		return
	}
	a.SetRc(proto.RcOK)
}

func (m *Manager) sysMboxRelease(a *proto.SysArgs) {
	id, ok := a.Int(1)
	if !ok {
		a.SetRc(proto.RcInvalid)
		return
	}
	rc := m.mb.Release(id)
	if rc == proto.RcReleased {
		m.Terminate(ZappedStatus)
	}
	a.SetRc(rc)
}

func (m *Manager) sysMboxSend(cond bool) func(a *proto.SysArgs) {
	return func(a *proto.SysArgs) {
		id, ok1 := a.Int(1)
		msg, ok2 := a.Bytes(2)
		if !ok1 || !ok2 {
			a.SetRc(proto.RcInvalid)
			return
		}
		var rc int
		if cond {
			rc = m.mb.CondSend(id, msg)
		} else {
			rc = m.mb.Send(id, msg)
		}
		if rc == proto.RcReleased {
			m.Terminate(ZappedStatus)
		}
		a.SetRc(rc)
	}
}

func (m *Manager) sysMboxReceive(cond bool) func(a *proto.SysArgs) {
	return func(a *proto.SysArgs) {
		id, ok1 := a.Int(1)
		buf, ok2 := a.Bytes(2)
		if !ok1 || !ok2 {
			a.Arg2 = 0
			a.SetRc(proto.RcInvalid)
			return
		}
		var n int
		if cond {
			n = m.mb.CondReceive(id, buf)
		} else {
			n = m.mb.Receive(id, buf)
		}
		if n == proto.RcReleased {
			m.Terminate(ZappedStatus)
		}
		if n < 0 {
			a.Arg2 = 0
			a.SetRc(n)
			return
		}
		a.Arg2 = n
		a.SetRc(proto.RcOK)
	}
}
