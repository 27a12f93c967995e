// Package disk runs one driver process per disk unit. Requests queue on
// an elevator and the driver moves them one sector at a time.
package disk

import (
	"fmt"
	"strconv"

	"simkern/hal"
	"simkern/internal/log"
	"simkern/kernel"
	"simkern/simos/ipc"
	"simkern/simos/proto"
	"simkern/simos/services/sems"
	"simkern/simos/services/userproc"

	hclog "github.com/hashicorp/go-hclog"
)

// DriverPriority is the priority of the disk driver processes.
const DriverPriority = 2

type unit struct {
	n      int
	tracks int
	sem    int
	pid    int
	queue  *elevator
	served int
}

// Disks owns the disk driver processes and their request queues.
type Disks struct {
	mgr  *userproc.Manager
	k    *kernel.Kernel
	m    hal.Machine
	mb   *ipc.Mailboxes
	sems *sems.Table
	log  hclog.Logger

	units   [hal.DiskUnits]unit
	private [kernel.MaxProc]int
}

// New creates the request queues, the per-unit and per-slot semaphores,
// and installs the disk syscalls.
func New(mgr *userproc.Manager) *Disks {
	k := mgr.Kernel()
	k.RequireKernelMode("disk init")
	d := &Disks{
		mgr:  mgr,
		k:    k,
		m:    k.Machine(),
		mb:   mgr.Mailboxes(),
		sems: mgr.Sems(),
		log:  log.L.Named("disk"),
	}
	for i := range d.units {
		d.units[i] = unit{n: i, sem: d.mustSem(), pid: -1, queue: newElevator()}
	}
	for i := range d.private {
		d.private[i] = d.mustSem()
	}
	mgr.Install(proto.SysDiskRead, d.sysTransfer(hal.OpDiskRead))
	mgr.Install(proto.SysDiskWrite, d.sysTransfer(hal.OpDiskWrite))
	mgr.Install(proto.SysDiskSize, d.sysSize)
	return d
}

func (d *Disks) mustSem() int {
	id := d.sems.Create(0)
	if id < 0 {
		d.k.Fatalf("disk init: cannot create semaphore. Halting...")
	}
	return id
}

// Start forks one driver per unit. Each driver performs a V on ready once
// it knows the geometry of its unit.
func (d *Disks) Start(ready int) error {
	for i := range d.units {
		name := fmt.Sprintf("DiskDriver%d", i)
		pid, err := d.k.Fork(name, func(arg string) int { return d.run(arg, ready) }, strconv.Itoa(i), kernel.MinStack, DriverPriority)
		if err != nil {
			return err
		}
		d.units[i].pid = pid
	}
	return nil
}

// Stop frees each unit's semaphore, which ends its driver. The caller
// still has to join the drivers.
func (d *Disks) Stop() {
	for i := range d.units {
		d.sems.Free(d.units[i].sem)
	}
}

// PIDs returns the driver pids.
func (d *Disks) PIDs() []int {
	pids := make([]int, 0, len(d.units))
	for i := range d.units {
		pids = append(pids, d.units[i].pid)
	}
	return pids
}

func (d *Disks) run(arg string, ready int) int {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 || n >= len(d.units) {
		d.k.Fatalf("DiskDriver: bad unit %q. Halting...", arg)
	}
	u := &d.units[n]

	req := &hal.DeviceRequest{Op: hal.OpDiskTracks}
	if st := d.io(u, req); st != int(hal.DevOK) {
		d.k.Fatalf("DiskDriver %d: DISK_TRACKS returned %s", n, hal.DevStatus(st))
	}
	u.tracks = req.Reg1
	d.log.Debug("driver ready", "unit", n, "tracks", u.tracks)
	d.sems.V(ready)

	for !d.k.IsZapped() {
		if rc := d.sems.P(u.sem); rc != proto.RcOK {
			return 0
		}
		prev := d.k.DisableInterrupts()
		r, ok := u.queue.next()
		d.k.RestoreInterrupts(prev)
		if !ok {
			continue
		}
		r.status = d.serve(u, r)
		u.served++
		d.sems.V(d.private[r.pid%kernel.MaxProc])
	}
	return 0
}

// serve seeks to the request's first track and moves its sectors one at a
// time, stepping to the next track after the last sector of a track.
func (d *Disks) serve(u *unit, r *request) int {
	d.log.Trace("serve", "unit", u.n, "pid", r.pid, "op", r.op, "track", r.track, "first", r.first, "sectors", r.sectors)

	track, sector := r.track, r.first
	if st := d.io(u, &hal.DeviceRequest{Op: hal.OpDiskSeek, Reg1: track}); st != int(hal.DevOK) {
		return st
	}
	for i := 0; i < r.sectors; i++ {
		if sector == hal.DiskTrackSize {
			track++
			sector = 0
			if st := d.io(u, &hal.DeviceRequest{Op: hal.OpDiskSeek, Reg1: track}); st != int(hal.DevOK) {
				return st
			}
		}
		buf := r.buf[i*hal.DiskSectorSize : (i+1)*hal.DiskSectorSize]
		if st := d.io(u, &hal.DeviceRequest{Op: r.op, Reg1: sector, Buf: buf}); st != int(hal.DevOK) {
			return st
		}
		sector++
	}
	return int(hal.DevOK)
}

// io starts one device operation and waits for its completion interrupt.
func (d *Disks) io(u *unit, req *hal.DeviceRequest) int {
	if st := d.m.DeviceOutput(hal.DiskDev, u.n, req); st != hal.DevOK {
		d.k.Fatalf("DiskDriver %d: device output returned %s. Halting...", u.n, st)
	}
	status, rc := d.mb.WaitDevice(hal.DiskDev, u.n)
	if rc != proto.RcOK {
		return int(hal.DevError)
	}
	return status
}

func (d *Disks) valid(n, track, first, sectors int, buf []byte) bool {
	if n < 0 || n >= len(d.units) {
		return false
	}
	tracks := d.units[n].tracks
	switch {
	case track < 0 || track >= tracks:
		return false
	case first < 0 || first >= hal.DiskTrackSize:
		return false
	case sectors < 1 || len(buf) < sectors*hal.DiskSectorSize:
		return false
	}
	return track*hal.DiskTrackSize+first+sectors <= tracks*hal.DiskTrackSize
}

// Read reads sectors sectors starting at track, first of unit n into buf.
// It returns the device status and 0, or -1 if the request is invalid and
// nothing was transferred.
func (d *Disks) Read(n, track, first, sectors int, buf []byte) (status, rc int) {
	return d.transfer(hal.OpDiskRead, n, track, first, sectors, buf)
}

// Write writes sectors sectors from buf starting at track, first of unit n.
func (d *Disks) Write(n, track, first, sectors int, buf []byte) (status, rc int) {
	return d.transfer(hal.OpDiskWrite, n, track, first, sectors, buf)
}

func (d *Disks) transfer(op hal.Op, n, track, first, sectors int, buf []byte) (int, int) {
	d.k.RequireKernelMode("diskReadWrite")
	if !d.valid(n, track, first, sectors, buf) {
		return 0, proto.RcInvalid
	}

	u := &d.units[n]
	pid := d.k.GetPID()
	r := &request{pid: pid, op: op, track: track, first: first, sectors: sectors, buf: buf}
	prev := d.k.DisableInterrupts()
	u.queue.add(r)
	d.k.RestoreInterrupts(prev)

	d.sems.V(u.sem)
	if rc := d.sems.P(d.private[pid%kernel.MaxProc]); rc != proto.RcOK {
		prev = d.k.DisableInterrupts()
		u.queue.remove(r)
		d.k.RestoreInterrupts(prev)
		return 0, proto.RcReleased
	}
	return r.status, proto.RcOK
}

// Size returns the geometry of unit n, or rc -1 for a bad unit.
func (d *Disks) Size(n int) (sectorSize, trackSize, tracks, rc int) {
	if n < 0 || n >= len(d.units) {
		return 0, 0, 0, proto.RcInvalid
	}
	return hal.DiskSectorSize, hal.DiskTrackSize, d.units[n].tracks, proto.RcOK
}

// Pending returns the number of queued requests on unit n.
func (d *Disks) Pending(n int) int {
	if n < 0 || n >= len(d.units) {
		return 0
	}
	return d.units[n].queue.len()
}

func (d *Disks) sysTransfer(op hal.Op) func(a *proto.SysArgs) {
	return func(a *proto.SysArgs) {
		buf, _ := a.Bytes(1)
		sectors, ok2 := a.Int(2)
		track, ok3 := a.Int(3)
		first, ok4 := a.Int(4)
		n, ok5 := a.Int(5)
		if !ok2 || !ok3 || !ok4 || !ok5 {
			a.SetRc(proto.RcInvalid)
			return
		}
		status, rc := d.transfer(op, n, track, first, sectors, buf)
		if rc == proto.RcReleased {
			d.mgr.Terminate(userproc.ZappedStatus)
		}
		a.Arg1 = status
		a.SetRc(rc)
	}
}

func (d *Disks) sysSize(a *proto.SysArgs) {
	n, ok := a.Int(1)
	if !ok {
		a.SetRc(proto.RcInvalid)
		return
	}
	sector, track, tracks, rc := d.Size(n)
	if rc != proto.RcOK {
		a.SetRc(rc)
		return
	}
	a.Arg1, a.Arg2, a.Arg3 = sector, track, tracks
	a.SetRc(proto.RcOK)
}
