package ipc

import (
	"simkern/hal"
	"simkern/internal/log"
	"simkern/internal/ring"
	"simkern/kernel"
	"simkern/simos/proto"

	hclog "github.com/hashicorp/go-hclog"
)

const (
	MaxMbox    = 2000
	MaxSlots   = 2500
	MaxMessage = 150
)

// Block statuses used while a process waits inside a mailbox operation.
const (
	StatusSendBlock    = kernel.StatusBlockedBase + 1
	StatusRecvBlock    = kernel.StatusBlockedBase + 2
	StatusReleaseBlock = kernel.StatusBlockedBase + 3
)

type boxState uint8

const (
	boxFree boxState = iota
	boxOpen
	boxReleasing
)

// waiter is a process parked on one of a mailbox's wait queues. The process
// that wakes it fills in the outcome before calling kernel.Wake.
type waiter struct {
	pid      int
	buf      []byte
	size     int
	rc       int
	done     bool
	released bool
}

type mailbox struct {
	id      int
	state   boxState
	slots   int
	maxSize int

	msgs      ring.Queue[int]
	senders   ring.Queue[*waiter]
	receivers ring.Queue[*waiter]

	acks           int
	releaser       int
	releaseBlocked bool
}

type msgSlot struct {
	box  int
	size int
	data [MaxMessage]byte
}

// BoxInfo is a snapshot of a mailbox.
type BoxInfo struct {
	ID        int
	Slots     int
	MaxSize   int
	Buffered  int
	Senders   int
	Receivers int
}

// Mailboxes is the message passing layer: the mailbox table, the shared
// slot pool, the device mailboxes and the syscall vector.
type Mailboxes struct {
	k   *kernel.Kernel
	m   hal.Machine
	log hclog.Logger

	boxes     [MaxMbox]mailbox
	pool      [MaxSlots]msgSlot
	freeSlots ring.Queue[int]
	nextID    int

	clockBox int
	diskBox  [hal.DiskUnits]int
	termBox  [hal.TermUnits]int
	ticks    int
	ioWait   int

	vec        [proto.MaxSyscalls]SyscallHandler
	unassigned SyscallHandler
}

type Option func(*Mailboxes)

// WithLogger replaces the default named logger.
func WithLogger(l hclog.Logger) Option {
	return func(mb *Mailboxes) { mb.log = l }
}

// New initializes the mailbox layer on top of k: it creates the device
// mailboxes, installs the interrupt handlers and the syscall vector, and
// reports device waiters to the sentinel. It must run in kernel mode.
func New(k *kernel.Kernel, opts ...Option) *Mailboxes {
	k.RequireKernelMode("mailbox init")
	mb := &Mailboxes{
		k:   k,
		m:   k.Machine(),
		log: log.L.Named("ipc"),
	}
	for _, opt := range opts {
		opt(mb)
	}
	for i := 0; i < MaxSlots; i++ {
		mb.freeSlots.Push(i)
	}
	mb.unassigned = mb.nullsys

	prev := k.DisableInterrupts()
	mb.clockBox = mb.mustCreate(0, 4)
	for i := range mb.diskBox {
		mb.diskBox[i] = mb.mustCreate(1, 4)
	}
	for i := range mb.termBox {
		mb.termBox[i] = mb.mustCreate(1, 4)
	}

	mb.m.RegisterInterrupt(hal.ClockDev, mb.clockHandler)
	mb.m.RegisterInterrupt(hal.DiskDev, mb.diskHandler)
	mb.m.RegisterInterrupt(hal.TermDev, mb.termHandler)
	mb.m.RegisterInterrupt(hal.SyscallDev, mb.syscallHandler)

	k.SetIOWaiters(func() int { return mb.ioWait })
	k.NameStatus(StatusSendBlock, "SEND_BLOCK")
	k.NameStatus(StatusRecvBlock, "RECV_BLOCK")
	k.NameStatus(StatusReleaseBlock, "RELEASE_BLOCK")
	k.RestoreInterrupts(prev)

	mb.log.Debug("mailboxes ready", "clock", mb.clockBox, "disk", mb.diskBox, "term", mb.termBox)
	return mb
}

// Kernel returns the kernel the mailboxes are bound to.
func (mb *Mailboxes) Kernel() *kernel.Kernel { return mb.k }

func (mb *Mailboxes) mustCreate(slots, size int) int {
	id := mb.create(slots, size)
	if id < 0 {
		mb.k.Fatalf("mailbox init: cannot create device mailbox. Halting...")
	}
	return id
}

// Create allocates a mailbox with the given number of buffer slots and
// maximum message size. It returns the mailbox id or -1.
func (mb *Mailboxes) Create(slots, maxSize int) int {
	mb.k.RequireKernelMode("MboxCreate")
	prev := mb.k.DisableInterrupts()
	id := mb.create(slots, maxSize)
	mb.k.RestoreInterrupts(prev)
	return id
}

func (mb *Mailboxes) create(slots, maxSize int) int {
	if slots < 0 || slots > MaxSlots || maxSize < 0 || maxSize > MaxMessage {
		return proto.RcInvalid
	}
	for tries := 0; tries < MaxMbox; tries++ {
		box := &mb.boxes[mb.nextID%MaxMbox]
		if box.state != boxFree {
			mb.nextID++
			continue
		}
		*box = mailbox{
			id:      mb.nextID,
			state:   boxOpen,
			slots:   slots,
			maxSize: maxSize,
		}
		mb.nextID++
		mb.log.Trace("create", "id", box.id, "slots", slots, "size", maxSize)
		return box.id
	}
	return proto.RcInvalid
}

func (mb *Mailboxes) lookup(id int) *mailbox {
	if id < 0 {
		return nil
	}
	box := &mb.boxes[id%MaxMbox]
	if box.state != boxOpen || box.id != id {
		return nil
	}
	return box
}

// Info returns a snapshot of an open mailbox.
func (mb *Mailboxes) Info(id int) (BoxInfo, bool) {
	box := mb.lookup(id)
	if box == nil {
		return BoxInfo{}, false
	}
	return BoxInfo{
		ID:        box.id,
		Slots:     box.slots,
		MaxSize:   box.maxSize,
		Buffered:  box.msgs.Len(),
		Senders:   box.senders.Len(),
		Receivers: box.receivers.Len(),
	}, true
}

func (mb *Mailboxes) allocSlot(box *mailbox, msg []byte) (int, bool) {
	idx, ok := mb.freeSlots.Pop()
	if !ok {
		return -1, false
	}
	s := &mb.pool[idx]
	s.box = box.id
	s.size = copy(s.data[:], msg)
	return idx, true
}

func (mb *Mailboxes) freeSlot(idx int) {
	mb.pool[idx].box = -1
	mb.pool[idx].size = 0
	mb.freeSlots.Push(idx)
}

// FreeSlots returns the number of unused message slots.
func (mb *Mailboxes) FreeSlots() int { return mb.freeSlots.Len() }
