// Package term drives the terminal units: the term_write syscall on the
// kernel side and the framebuffer screen on the host side.
package term

import (
	"simkern/hal"
	"simkern/internal/log"
	"simkern/kernel"
	"simkern/simos/ipc"
	"simkern/simos/proto"
	"simkern/simos/services/sems"
	"simkern/simos/services/userproc"

	hclog "github.com/hashicorp/go-hclog"
)

// Terminals serializes output on each terminal unit.
type Terminals struct {
	mgr  *userproc.Manager
	k    *kernel.Kernel
	m    hal.Machine
	mb   *ipc.Mailboxes
	sems *sems.Table
	log  hclog.Logger

	lock [hal.TermUnits]int
}

// New creates one lock per unit and installs SysTermWrite.
func New(mgr *userproc.Manager) *Terminals {
	k := mgr.Kernel()
	k.RequireKernelMode("term init")
	t := &Terminals{
		mgr:  mgr,
		k:    k,
		m:    k.Machine(),
		mb:   mgr.Mailboxes(),
		sems: mgr.Sems(),
		log:  log.L.Named("term"),
	}
	for i := range t.lock {
		t.lock[i] = t.sems.Create(1)
		if t.lock[i] < 0 {
			k.Fatalf("term init: cannot create lock for unit %d. Halting...", i)
		}
	}
	mgr.Install(proto.SysTermWrite, t.sysWrite)
	return t
}

// Write transmits p on unit one character at a time, waiting for each
// transmit interrupt. It returns the number of bytes sent, with rc -1 for a
// bad unit.
func (t *Terminals) Write(unit int, p []byte) (n, rc int) {
	t.k.RequireKernelMode("termWrite")
	if unit < 0 || unit >= len(t.lock) {
		return 0, proto.RcInvalid
	}
	if rc := t.sems.P(t.lock[unit]); rc != proto.RcOK {
		return 0, rc
	}
	for _, b := range p {
		req := &hal.DeviceRequest{Op: hal.OpTermXmit, Reg1: int(b)}
		if st := t.m.DeviceOutput(hal.TermDev, unit, req); st != hal.DevOK {
			t.log.Debug("transmit failed", "unit", unit, "status", st)
			break
		}
		if _, rc := t.mb.WaitDevice(hal.TermDev, unit); rc != proto.RcOK {
			break
		}
		n++
	}
	t.sems.V(t.lock[unit])
	return n, proto.RcOK
}

func (t *Terminals) sysWrite(a *proto.SysArgs) {
	buf, _ := a.Bytes(1)
	unit, ok := a.Int(3)
	if !ok {
		a.SetRc(proto.RcInvalid)
		return
	}
	n, rc := t.Write(unit, buf)
	if rc == proto.RcReleased {
		t.mgr.Terminate(userproc.ZappedStatus)
	}
	a.Arg2 = n
	a.SetRc(rc)
}
