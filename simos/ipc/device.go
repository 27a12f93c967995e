package ipc

import (
	"simkern/hal"
	"simkern/simos/proto"
)

// clockSendEvery is the number of ticks between clock status messages.
const clockSendEvery = 5

// WaitDevice blocks until the next interrupt of the given device unit and
// returns the device status. rc is -1 for a bad device or unit, or if the
// caller was zapped while waiting.
func (mb *Mailboxes) WaitDevice(dev hal.Device, unit int) (status int, rc int) {
	mb.k.RequireKernelMode("waitDevice")

	id, ok := mb.deviceBox(dev, unit)
	if !ok {
		return 0, proto.RcInvalid
	}

	var buf [4]byte
	prev := mb.k.DisableInterrupts()
	mb.ioWait++
	mb.k.RestoreInterrupts(prev)

	n := mb.Receive(id, buf[:])

	prev = mb.k.DisableInterrupts()
	mb.ioWait--
	mb.k.RestoreInterrupts(prev)

	if n < 0 {
		return 0, proto.RcInvalid
	}
	status, ok = proto.DecodeStatusPayload(buf[:n])
	if !ok {
		return 0, proto.RcInvalid
	}
	return status, proto.RcOK
}

// DeviceWaiters returns the number of processes inside WaitDevice.
func (mb *Mailboxes) DeviceWaiters() int { return mb.ioWait }

func (mb *Mailboxes) deviceBox(dev hal.Device, unit int) (int, bool) {
	switch dev {
	case hal.ClockDev:
		if unit != 0 {
			return 0, false
		}
		return mb.clockBox, true
	case hal.DiskDev:
		if unit < 0 || unit >= len(mb.diskBox) {
			return 0, false
		}
		return mb.diskBox[unit], true
	case hal.TermDev:
		if unit < 0 || unit >= len(mb.termBox) {
			return 0, false
		}
		return mb.termBox[unit], true
	default:
		return 0, false
	}
}

func (mb *Mailboxes) clockHandler(dev hal.Device, _ any) {
	mb.k.TimeSlice()
	mb.ticks++
	if mb.ticks%clockSendEvery != 0 {
		return
	}
	status, _ := mb.m.DeviceInput(hal.ClockDev, 0)
	mb.send(mb.clockBox, proto.StatusPayload(status), true)
}

func (mb *Mailboxes) diskHandler(dev hal.Device, arg any) {
	mb.postStatus(dev, arg)
}

func (mb *Mailboxes) termHandler(dev hal.Device, arg any) {
	mb.postStatus(dev, arg)
}

func (mb *Mailboxes) postStatus(dev hal.Device, arg any) {
	unit, ok := arg.(int)
	if !ok {
		mb.k.Fatalf("%s interrupt: bad unit %v. Halting...", dev, arg)
	}
	id, ok := mb.deviceBox(dev, unit)
	if !ok {
		mb.k.Fatalf("%s interrupt: unit %d out of range. Halting...", dev, unit)
	}
	status, _ := mb.m.DeviceInput(dev, unit)
	if rc := mb.send(id, proto.StatusPayload(status), true); rc != proto.RcOK {
		mb.log.Trace("device status dropped", "dev", dev, "unit", unit, "status", status)
	}
}
