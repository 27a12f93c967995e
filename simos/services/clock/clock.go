// Package clock runs the clock driver process and the sleep syscall.
package clock

import (
	"simkern/hal"
	"simkern/internal/log"
	"simkern/kernel"
	"simkern/simos/ipc"
	"simkern/simos/proto"
	"simkern/simos/services/sems"
	"simkern/simos/services/userproc"

	"github.com/google/btree"
	hclog "github.com/hashicorp/go-hclog"
)

// DriverPriority is the priority of the clock driver process.
const DriverPriority = 2

const microsPerSecond = 1000000

type sleeper struct {
	wake int64
	seq  uint64
	pid  int
}

func wakesBefore(a, b sleeper) bool {
	if a.wake != b.wake {
		return a.wake < b.wake
	}
	return a.seq < b.seq
}

// Driver keeps the sleep queue ordered by wake time and wakes sleepers
// from the clock driver process.
type Driver struct {
	mgr  *userproc.Manager
	k    *kernel.Kernel
	m    hal.Machine
	mb   *ipc.Mailboxes
	sems *sems.Table
	log  hclog.Logger

	queue   *btree.BTreeG[sleeper]
	seq     uint64
	private [kernel.MaxProc]int
	pid     int
}

// New creates the sleep queue and one private semaphore per process slot,
// and installs SysSleep.
func New(mgr *userproc.Manager) *Driver {
	k := mgr.Kernel()
	k.RequireKernelMode("clock init")
	d := &Driver{
		mgr:   mgr,
		k:     k,
		m:     k.Machine(),
		mb:    mgr.Mailboxes(),
		sems:  mgr.Sems(),
		log:   log.L.Named("clock"),
		queue: btree.NewG(8, wakesBefore),
		pid:   -1,
	}
	for i := range d.private {
		id := d.sems.Create(0)
		if id < 0 {
			k.Fatalf("clock init: cannot create driver semaphore %d. Halting...", i)
		}
		d.private[i] = id
	}
	mgr.Install(proto.SysSleep, d.sysSleep)
	return d
}

// Start forks the driver process. The driver signals ready with a V once
// it runs.
func (d *Driver) Start(ready int) (int, error) {
	pid, err := d.k.Fork("Clock driver", func(string) int { return d.run(ready) }, "", kernel.MinStack, DriverPriority)
	if err != nil {
		return pid, err
	}
	d.pid = pid
	return pid, nil
}

// Stop zaps the driver process and waits until it quits. The caller still
// has to join it.
func (d *Driver) Stop() {
	if d.pid >= 0 {
		d.k.Zap(d.pid)
	}
}

// PID returns the pid of the driver process, or -1 before Start.
func (d *Driver) PID() int { return d.pid }

func (d *Driver) run(ready int) int {
	d.sems.V(ready)
	for !d.k.IsZapped() {
		if _, rc := d.mb.WaitDevice(hal.ClockDev, 0); rc != proto.RcOK {
			return 0
		}
		d.wakeDue(d.m.SysClock())
	}
	return 0
}

// wakeDue wakes, in queue order, every sleeper whose wake time is at or
// before now.
func (d *Driver) wakeDue(now int64) {
	var due []sleeper
	prev := d.k.DisableInterrupts()
	for {
		s, ok := d.queue.Min()
		if !ok || s.wake > now {
			break
		}
		d.queue.DeleteMin()
		due = append(due, s)
	}
	d.k.RestoreInterrupts(prev)

	for _, s := range due {
		d.log.Trace("wake", "pid", s.pid, "late", now-s.wake)
		d.sems.V(d.private[s.pid%kernel.MaxProc])
	}
}

// Sleep blocks the caller for at least seconds of simulated time. It
// returns -1 for negative seconds and -3 if the wait was abandoned.
func (d *Driver) Sleep(seconds int) int {
	d.k.RequireKernelMode("sleep")
	if seconds < 0 {
		return proto.RcInvalid
	}

	pid := d.k.GetPID()
	prev := d.k.DisableInterrupts()
	d.seq++
	s := sleeper{
		wake: d.m.SysClock() + int64(seconds)*microsPerSecond,
		seq:  d.seq,
		pid:  pid,
	}
	d.queue.ReplaceOrInsert(s)
	d.k.RestoreInterrupts(prev)
	d.log.Trace("sleep", "pid", pid, "wake", s.wake)

	if rc := d.sems.P(d.private[pid%kernel.MaxProc]); rc != proto.RcOK {
		prev = d.k.DisableInterrupts()
		d.queue.Delete(s)
		d.k.RestoreInterrupts(prev)
		return proto.RcReleased
	}
	return proto.RcOK
}

// Sleepers returns the number of queued sleepers.
func (d *Driver) Sleepers() int { return d.queue.Len() }

func (d *Driver) sysSleep(a *proto.SysArgs) {
	seconds, ok := a.Int(1)
	if !ok {
		a.SetRc(proto.RcInvalid)
		return
	}
	rc := d.Sleep(seconds)
	if rc == proto.RcReleased {
		d.mgr.Terminate(userproc.ZappedStatus)
	}
	a.SetRc(rc)
}
