package ipc

import "simkern/simos/proto"

// Release destroys mailbox id. Every process blocked on it is woken and
// sees -3; the caller waits until all of them have left the mailbox before
// the id is reclaimed. It returns 0, -1 for a bad mailbox, or -3 if the
// caller was zapped while waiting.
func (mb *Mailboxes) Release(id int) int {
	mb.k.RequireKernelMode("MboxRelease")
	prev := mb.k.DisableInterrupts()
	box := mb.lookup(id)
	if box == nil {
		mb.k.RestoreInterrupts(prev)
		return proto.RcInvalid
	}

	box.state = boxReleasing
	for _, idx := range box.msgs.Drain() {
		mb.freeSlot(idx)
	}
	waiters := append(box.senders.Drain(), box.receivers.Drain()...)
	box.acks = len(waiters)
	box.releaser = mb.k.GetPID()
	for _, w := range waiters {
		w.released = true
		mb.k.Wake(w.pid)
	}
	mb.log.Trace("release", "box", id, "waiters", len(waiters))

	rc := proto.RcOK
	if box.acks > 0 {
		box.releaseBlocked = true
		if mb.k.BlockMe(StatusReleaseBlock) < 0 {
			rc = proto.RcReleased
		}
		box.releaseBlocked = false
	}
	*box = mailbox{}
	mb.k.RestoreInterrupts(prev)
	return rc
}

// ack records that a process woken by Release has left the mailbox.
func (mb *Mailboxes) ack(box *mailbox) {
	box.acks--
	if box.acks == 0 && box.releaseBlocked {
		mb.k.Wake(box.releaser)
	}
}
