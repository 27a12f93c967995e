package ipc

import "simkern/simos/proto"

// Send delivers msg to mailbox id, blocking while the mailbox has no room.
// It returns 0, -1 for a bad mailbox or oversized message, or -3 if the
// mailbox was released or the caller zapped while it waited.
func (mb *Mailboxes) Send(id int, msg []byte) int {
	mb.k.RequireKernelMode("MboxSend")
	return mb.send(id, msg, false)
}

// CondSend is Send that returns -2 instead of blocking. Interrupt handlers
// use it to post device status.
func (mb *Mailboxes) CondSend(id int, msg []byte) int {
	mb.k.RequireKernelMode("MboxCondSend")
	return mb.send(id, msg, true)
}

func (mb *Mailboxes) send(id int, msg []byte, cond bool) int {
	prev := mb.k.DisableInterrupts()
	box := mb.lookup(id)
	if box == nil || len(msg) > box.maxSize {
		mb.k.RestoreInterrupts(prev)
		return proto.RcInvalid
	}

	// A waiting receiver takes the message directly. One whose buffer is
	// too small fails and the next is tried.
	for box.receivers.Len() > 0 {
		r, _ := box.receivers.Pop()
		r.done = true
		if len(msg) > len(r.buf) {
			r.rc = proto.RcInvalid
			mb.k.Wake(r.pid)
			continue
		}
		r.size = copy(r.buf, msg)
		r.rc = proto.RcOK
		mb.k.Wake(r.pid)
		mb.log.Trace("send handoff", "box", id, "to", r.pid, "size", r.size)
		mb.k.RestoreInterrupts(prev)
		return proto.RcOK
	}

	if box.msgs.Len() < box.slots {
		idx, ok := mb.allocSlot(box, msg)
		if !ok {
			mb.k.RestoreInterrupts(prev)
			if cond {
				return proto.RcWouldBlock
			}
			mb.k.Fatalf("MboxSend(): no message slots left. Halting...")
		}
		box.msgs.Push(idx)
		mb.log.Trace("send buffered", "box", id, "size", len(msg), "buffered", box.msgs.Len())
		mb.k.RestoreInterrupts(prev)
		return proto.RcOK
	}

	if cond {
		mb.k.RestoreInterrupts(prev)
		return proto.RcWouldBlock
	}

	w := &waiter{pid: mb.k.GetPID(), buf: msg}
	box.senders.Push(w)
	mb.log.Trace("send blocked", "box", id, "pid", w.pid)
	zapped := mb.k.BlockMe(StatusSendBlock) < 0
	rc := mb.afterWake(box, w, zapped)
	mb.k.RestoreInterrupts(prev)
	return rc
}

// Receive copies the next message of mailbox id into buf, blocking while
// none is available. It returns the message size, -1 for a bad mailbox or a
// buffer smaller than the message, or -3 if the mailbox was released or the
// caller zapped while it waited.
func (mb *Mailboxes) Receive(id int, buf []byte) int {
	mb.k.RequireKernelMode("MboxReceive")
	return mb.receive(id, buf, false)
}

// CondReceive is Receive that returns -2 instead of blocking.
func (mb *Mailboxes) CondReceive(id int, buf []byte) int {
	mb.k.RequireKernelMode("MboxCondReceive")
	return mb.receive(id, buf, true)
}

func (mb *Mailboxes) receive(id int, buf []byte, cond bool) int {
	prev := mb.k.DisableInterrupts()
	box := mb.lookup(id)
	if box == nil {
		mb.k.RestoreInterrupts(prev)
		return proto.RcInvalid
	}

	if idx, ok := box.msgs.Peek(); ok {
		s := &mb.pool[idx]
		if s.size > len(buf) {
			mb.k.RestoreInterrupts(prev)
			return proto.RcInvalid
		}
		box.msgs.Pop()
		n := copy(buf, s.data[:s.size])
		mb.freeSlot(idx)

		// The freed slot goes to the oldest blocked sender, behind every
		// message already buffered.
		if sw, ok := box.senders.Pop(); ok {
			next, ok := mb.allocSlot(box, sw.buf)
			if !ok {
				mb.k.Fatalf("MboxReceive(): no message slots left. Halting...")
			}
			box.msgs.Push(next)
			sw.done = true
			sw.rc = proto.RcOK
			mb.k.Wake(sw.pid)
		}
		mb.log.Trace("receive", "box", id, "size", n)
		mb.k.RestoreInterrupts(prev)
		return n
	}

	// Zero-slot mailboxes hand over straight from a blocked sender.
	if sw, ok := box.senders.Peek(); ok {
		if len(sw.buf) > len(buf) {
			mb.k.RestoreInterrupts(prev)
			return proto.RcInvalid
		}
		box.senders.Pop()
		n := copy(buf, sw.buf)
		sw.done = true
		sw.rc = proto.RcOK
		mb.k.Wake(sw.pid)
		mb.log.Trace("receive handoff", "box", id, "from", sw.pid, "size", n)
		mb.k.RestoreInterrupts(prev)
		return n
	}

	if cond {
		mb.k.RestoreInterrupts(prev)
		return proto.RcWouldBlock
	}

	w := &waiter{pid: mb.k.GetPID(), buf: buf}
	box.receivers.Push(w)
	mb.log.Trace("receive blocked", "box", id, "pid", w.pid)
	zapped := mb.k.BlockMe(StatusRecvBlock) < 0
	rc := mb.afterWake(box, w, zapped)
	if rc == proto.RcOK {
		rc = w.size
	}
	mb.k.RestoreInterrupts(prev)
	return rc
}

// afterWake settles a waiter after BlockMe returns. Interrupts are disabled.
func (mb *Mailboxes) afterWake(box *mailbox, w *waiter, zapped bool) int {
	if w.released {
		mb.ack(box)
		return proto.RcReleased
	}
	if !w.done {
		box.senders.Remove(func(o *waiter) bool { return o == w })
		box.receivers.Remove(func(o *waiter) bool { return o == w })
		return proto.RcReleased
	}
	if zapped {
		return proto.RcReleased
	}
	return w.rc
}
