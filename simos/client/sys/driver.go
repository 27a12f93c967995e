package sys

import (
	"simkern/hal"
	"simkern/simos/proto"
)

// Sleep suspends the caller for at least seconds.
func (s *Sys) Sleep(seconds int) error {
	return rcErr(proto.SysSleep, s.call(proto.SysSleep, seconds).Rc())
}

// DiskRead reads len(buf)/512 sectors starting at track, first of unit.
// It returns the device status of the transfer.
func (s *Sys) DiskRead(unit, track, first int, buf []byte) (int, error) {
	return s.disk(proto.SysDiskRead, unit, track, first, buf)
}

// DiskWrite writes len(buf)/512 sectors starting at track, first of unit.
func (s *Sys) DiskWrite(unit, track, first int, buf []byte) (int, error) {
	return s.disk(proto.SysDiskWrite, unit, track, first, buf)
}

func (s *Sys) disk(op proto.Opcode, unit, track, first int, buf []byte) (int, error) {
	sectors := len(buf) / hal.DiskSectorSize
	a := s.call(op, buf, sectors, track, first, unit)
	if err := rcErr(op, a.Rc()); err != nil {
		return -1, err
	}
	return s.intOut(a, 1), nil
}

// DiskSize returns the geometry of unit.
func (s *Sys) DiskSize(unit int) (sectorSize, trackSize, tracks int, err error) {
	a := s.call(proto.SysDiskSize, unit)
	if err := rcErr(proto.SysDiskSize, a.Rc()); err != nil {
		return 0, 0, 0, err
	}
	return s.intOut(a, 1), s.intOut(a, 2), s.intOut(a, 3), nil
}

// TermWrite writes p on terminal unit and returns the number of bytes sent.
func (s *Sys) TermWrite(unit int, p []byte) (int, error) {
	a := s.call(proto.SysTermWrite, p, len(p), unit)
	if err := rcErr(proto.SysTermWrite, a.Rc()); err != nil {
		return 0, err
	}
	return s.intOut(a, 2), nil
}
