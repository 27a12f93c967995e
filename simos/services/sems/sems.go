// Package sems implements counting semaphores on top of mailboxes.
//
// Each semaphore guards its state with a one-slot mailbox used as a mutex.
// A process that must wait parks on the private mailbox of its process
// slot until V or Free posts a token there.
package sems

import (
	"simkern/internal/log"
	"simkern/internal/ring"
	"simkern/kernel"
	"simkern/simos/ipc"
	"simkern/simos/proto"

	hclog "github.com/hashicorp/go-hclog"
)

const MaxSems = 200

const (
	tokenGrant byte = iota + 1
	tokenFreed
)

type semaphore struct {
	id      int
	inUse   bool
	value   int
	mutex   int
	waiting ring.Queue[int]
}

// Table holds every semaphore.
type Table struct {
	mb  *ipc.Mailboxes
	k   *kernel.Kernel
	log hclog.Logger

	sems    [MaxSems]semaphore
	private [kernel.MaxProc]int
	nextID  int
}

// New creates the semaphore table and the per-slot private mailboxes. It
// must run in kernel mode.
func New(mb *ipc.Mailboxes) *Table {
	k := mb.Kernel()
	k.RequireKernelMode("sems init")
	t := &Table{
		mb:  mb,
		k:   k,
		log: log.L.Named("sems"),
	}
	for i := range t.private {
		id := mb.Create(1, 1)
		if id < 0 {
			k.Fatalf("sems init: cannot create private mailbox %d. Halting...", i)
		}
		t.private[i] = id
	}
	return t
}

// Create allocates a semaphore with the given initial value and returns
// its id, or -1 if initial is negative or the table is full.
func (t *Table) Create(initial int) int {
	t.k.RequireKernelMode("semCreate")
	if initial < 0 {
		return proto.RcInvalid
	}

	prev := t.k.DisableInterrupts()
	var s *semaphore
	for tries := 0; tries < MaxSems; tries++ {
		if cand := &t.sems[t.nextID%MaxSems]; !cand.inUse {
			s = cand
			break
		}
		t.nextID++
	}
	if s == nil {
		t.k.RestoreInterrupts(prev)
		return proto.RcInvalid
	}
	*s = semaphore{id: t.nextID, inUse: true, value: initial, mutex: -1}
	t.nextID++
	t.k.RestoreInterrupts(prev)

	s.mutex = t.mb.Create(1, 0)
	if s.mutex < 0 {
		*s = semaphore{}
		return proto.RcInvalid
	}
	t.log.Trace("create", "id", s.id, "value", initial)
	return s.id
}

func (t *Table) lookup(id int) *semaphore {
	if id < 0 {
		return nil
	}
	s := &t.sems[id%MaxSems]
	if !s.inUse || s.id != id || s.mutex < 0 {
		return nil
	}
	return s
}

func (t *Table) lock(s *semaphore) bool {
	return t.mb.Send(s.mutex, nil) == proto.RcOK
}

func (t *Table) unlock(s *semaphore) {
	t.mb.CondReceive(s.mutex, nil)
}

// P decrements semaphore id, blocking while its value is zero. It returns
// 0, -1 for a bad id, or -3 if the semaphore was freed or the caller zapped
// while it waited. A zapped caller never keeps a unit.
func (t *Table) P(id int) int {
	t.k.RequireKernelMode("semP")
	s := t.lookup(id)
	if s == nil {
		return proto.RcInvalid
	}
	if !t.lock(s) {
		return proto.RcReleased
	}
	if s.value > 0 {
		s.value--
		t.unlock(s)
		return proto.RcOK
	}

	pid := t.k.GetPID()
	s.waiting.Push(pid)
	t.unlock(s)

	var tok [1]byte
	rc := t.mb.Receive(t.private[pid%kernel.MaxProc], tok[:])
	switch {
	case tok[0] == tokenFreed:
		return proto.RcReleased
	case rc < 0:
		// Zapped while waiting. A unit granted on the way out goes to the
		// next waiter.
		if tok[0] == tokenGrant {
			t.V(id)
		}
		return proto.RcReleased
	}
	return proto.RcOK
}

// V increments semaphore id, handing the unit straight to the oldest
// waiter if there is one. It returns 0 or -1 for a bad id.
func (t *Table) V(id int) int {
	t.k.RequireKernelMode("semV")
	s := t.lookup(id)
	if s == nil {
		return proto.RcInvalid
	}
	if !t.lock(s) {
		return proto.RcReleased
	}
	// The woken waiter runs only after the mutex is dropped.
	prev := t.k.DisableInterrupts()
	if pid, ok := s.waiting.Pop(); ok {
		t.post(pid, tokenGrant)
	} else {
		s.value++
	}
	t.unlock(s)
	t.k.RestoreInterrupts(prev)
	return proto.RcOK
}

// Free destroys semaphore id. Every waiter is woken and its P returns -3.
// Free returns 1 if there were waiters, 0 if not, -1 for a bad id.
func (t *Table) Free(id int) int {
	t.k.RequireKernelMode("semFree")
	s := t.lookup(id)
	if s == nil {
		return proto.RcInvalid
	}
	if !t.lock(s) {
		return proto.RcInvalid
	}
	mutex := s.mutex
	s.inUse = false

	rc := 0
	for _, pid := range s.waiting.Drain() {
		t.post(pid, tokenFreed)
		rc = 1
	}
	*s = semaphore{}
	t.mb.Release(mutex)
	t.log.Trace("free", "id", id, "waiters", rc)
	return rc
}

// Value returns the current value of semaphore id.
func (t *Table) Value(id int) (int, bool) {
	s := t.lookup(id)
	if s == nil {
		return 0, false
	}
	return s.value, true
}

// Waiting returns the number of processes blocked in P on semaphore id.
func (t *Table) Waiting(id int) int {
	s := t.lookup(id)
	if s == nil {
		return 0
	}
	return s.waiting.Len()
}

func (t *Table) post(pid int, tok byte) {
	if rc := t.mb.CondSend(t.private[pid%kernel.MaxProc], []byte{tok}); rc != proto.RcOK {
		t.k.Fatalf("semaphore: private mailbox of process %d is full. Halting...", pid)
	}
}
