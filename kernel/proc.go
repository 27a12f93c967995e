package kernel

import (
	"fmt"

	"simkern/hal"
	"simkern/internal/ring"
)

// Status is the lifecycle state of a process table slot.
type Status uint8

const (
	StatusEmpty Status = iota
	StatusReady
	StatusRunning
	StatusQuit
	StatusJoinBlocked
	// StatusZapped marks a process blocked in Zap until its target quits.
	StatusZapped
	StatusRecordedQuit

	// StatusBlockedBase separates kernel statuses from the block reasons
	// owned by higher layers. BlockMe accepts only statuses above it.
	StatusBlockedBase Status = 10
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "EMPTY"
	case StatusReady:
		return "READY"
	case StatusRunning:
		return "RUNNING"
	case StatusQuit:
		return "QUIT"
	case StatusJoinBlocked:
		return "JOIN_BLOCKED"
	case StatusZapped:
		return "ZAPPED"
	case StatusRecordedQuit:
		return "RECORDED_QUIT"
	default:
		return fmt.Sprintf("BLOCKED(%d)", uint8(s))
	}
}

// Entry is the body of a process. Its return value becomes the exit code.
type Entry func(arg string) int

// Proc is a process table entry.
type Proc struct {
	pid      int
	name     string
	priority int
	status   Status

	ctx   hal.Context
	stack []byte
	entry Entry
	arg   string

	parent   *Proc
	children []*Proc
	quitKids ring.Queue[*Proc]
	zappers  []*Proc
	zapped   bool

	exitCode  int
	cpuTime   int64
	startTime int64
}

func (p *Proc) live() bool {
	switch p.status {
	case StatusEmpty, StatusQuit, StatusRecordedQuit:
		return false
	}
	return true
}

func (p *Proc) reusable() bool {
	return p.status == StatusEmpty || p.status == StatusRecordedQuit
}

func (p *Proc) parentPID() int {
	if p.parent == nil {
		return -1
	}
	return p.parent.pid
}

func (p *Proc) removeChild(c *Proc) {
	for i, k := range p.children {
		if k == c {
			p.children = append(p.children[:i], p.children[i+1:]...)
			return
		}
	}
}

// ProcInfo is a snapshot of a process table entry.
type ProcInfo struct {
	PID       int
	ParentPID int
	Name      string
	Priority  int
	Status    Status
	Kids      int
	CPUTime   int64
	ExitCode  int
	Zapped    bool
}

func (p *Proc) info() ProcInfo {
	return ProcInfo{
		PID:       p.pid,
		ParentPID: p.parentPID(),
		Name:      p.name,
		Priority:  p.priority,
		Status:    p.status,
		Kids:      len(p.children),
		CPUTime:   p.cpuTime,
		ExitCode:  p.exitCode,
		Zapped:    p.zapped,
	}
}
