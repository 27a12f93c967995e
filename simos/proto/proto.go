package proto

import "fmt"

// Opcode selects an entry of the syscall vector.
type Opcode int

const (
	SysSpawn           Opcode = 3
	SysWait            Opcode = 4
	SysTerminate       Opcode = 5
	SysMboxCreate      Opcode = 6
	SysMboxRelease     Opcode = 7
	SysMboxSend        Opcode = 8
	SysMboxReceive     Opcode = 9
	SysMboxCondSend    Opcode = 10
	SysMboxCondReceive Opcode = 11
	SysSleep           Opcode = 12
	SysDiskRead        Opcode = 13
	SysDiskWrite       Opcode = 14
	SysDiskSize        Opcode = 15
	SysSemCreate       Opcode = 16
	SysSemP            Opcode = 17
	SysSemV            Opcode = 18
	SysSemFree         Opcode = 19
	SysGetTimeOfDay    Opcode = 20
	SysCPUTime         Opcode = 21
	SysGetPID          Opcode = 22
	SysTermWrite       Opcode = 23

	// MaxSyscalls is the size of the syscall vector.
	MaxSyscalls = 50
)

func (o Opcode) String() string {
	switch o {
	case SysSpawn:
		return "spawn"
	case SysWait:
		return "wait"
	case SysTerminate:
		return "terminate"
	case SysMboxCreate:
		return "mbox_create"
	case SysMboxRelease:
		return "mbox_release"
	case SysMboxSend:
		return "mbox_send"
	case SysMboxReceive:
		return "mbox_receive"
	case SysMboxCondSend:
		return "mbox_cond_send"
	case SysMboxCondReceive:
		return "mbox_cond_receive"
	case SysSleep:
		return "sleep"
	case SysDiskRead:
		return "disk_read"
	case SysDiskWrite:
		return "disk_write"
	case SysDiskSize:
		return "disk_size"
	case SysSemCreate:
		return "sem_create"
	case SysSemP:
		return "sem_p"
	case SysSemV:
		return "sem_v"
	case SysSemFree:
		return "sem_free"
	case SysGetTimeOfDay:
		return "get_time_of_day"
	case SysCPUTime:
		return "cpu_time"
	case SysGetPID:
		return "get_pid"
	case SysTermWrite:
		return "term_write"
	default:
		return fmt.Sprintf("sys(%d)", int(o))
	}
}

// Valid reports whether o indexes the syscall vector.
func (o Opcode) Valid() bool { return o >= 0 && o < MaxSyscalls }

// Return codes shared by every layer.
const (
	RcOK         = 0
	RcInvalid    = -1
	RcWouldBlock = -2
	RcReleased   = -3
)

// SysArgs is the argument block passed through hal.Machine.Syscall.
//
// Each handler documents which slots it reads and which it fills:
//
//	spawn:        arg1 func, arg2 arg, arg3 stack, arg4 priority, arg5 name -> arg1 pid, arg4 rc
//	wait:         -> arg1 pid, arg2 status, arg4 rc
//	terminate:    arg1 status
//	mbox_create:  arg1 slots, arg2 max size -> arg1 id, arg4 rc
//	mbox_release: arg1 id -> arg4 rc
//	mbox_send:    arg1 id, arg2 []byte -> arg4 rc
//	mbox_receive: arg1 id, arg2 []byte -> arg2 size, arg4 rc
//	sleep:        arg1 seconds -> arg4 rc
//	disk_read:    arg1 []byte, arg2 sectors, arg3 track, arg4 first, arg5 unit -> arg1 status, arg4 rc
//	disk_size:    arg1 unit -> arg1 sector size, arg2 sectors per track, arg3 tracks, arg4 rc
//	sem_create:   arg1 initial -> arg1 id, arg4 rc
//	sem_p/v/free: arg1 id -> arg4 rc
//	term_write:   arg1 []byte, arg3 unit -> arg2 bytes written, arg4 rc
//	get_time_of_day, cpu_time, get_pid: -> arg1 value
type SysArgs struct {
	Number Opcode
	Arg1   any
	Arg2   any
	Arg3   any
	Arg4   any
	Arg5   any
}

// Int returns slot n (1-based) as an int. Missing or non-integer values
// report ok=false.
func (a *SysArgs) Int(n int) (v int, ok bool) {
	switch x := a.slot(n).(type) {
	case int:
		return x, true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	default:
		return 0, false
	}
}

// Bytes returns slot n as a byte slice.
func (a *SysArgs) Bytes(n int) ([]byte, bool) {
	b, ok := a.slot(n).([]byte)
	return b, ok
}

// Text returns slot n as a string.
func (a *SysArgs) Text(n int) (string, bool) {
	s, ok := a.slot(n).(string)
	return s, ok
}

// Set stores v into slot n.
func (a *SysArgs) Set(n int, v any) {
	switch n {
	case 1:
		a.Arg1 = v
	case 2:
		a.Arg2 = v
	case 3:
		a.Arg3 = v
	case 4:
		a.Arg4 = v
	case 5:
		a.Arg5 = v
	}
}

// SetRc stores a return code in arg4.
func (a *SysArgs) SetRc(rc int) { a.Arg4 = rc }

// Rc returns the return code stored in arg4.
func (a *SysArgs) Rc() int {
	rc, ok := a.Int(4)
	if !ok {
		return RcInvalid
	}
	return rc
}

func (a *SysArgs) slot(n int) any {
	switch n {
	case 1:
		return a.Arg1
	case 2:
		return a.Arg2
	case 3:
		return a.Arg3
	case 4:
		return a.Arg4
	case 5:
		return a.Arg5
	default:
		return nil
	}
}
