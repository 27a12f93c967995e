package hal

import "sync"

type termDevice struct {
	c    *CPU
	unit int
	out  func(unit int, b byte)

	mu     sync.Mutex
	status int
}

func (t *termDevice) output(req *DeviceRequest) DevStatus {
	if req.Op != OpTermXmit {
		return DevInvalid
	}
	if t.out != nil {
		t.out(t.unit, byte(req.Reg1))
	}
	t.mu.Lock()
	t.status = t.status&^0xFF00 | TermXmitReady
	t.mu.Unlock()
	t.c.raise(TermDev, t.unit)
	return DevOK
}

func (t *termDevice) receive(b byte) {
	t.mu.Lock()
	t.status = int(b)<<8 | TermRecvReady
	t.mu.Unlock()
	t.c.raise(TermDev, t.unit)
}

func (t *termDevice) input() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}
