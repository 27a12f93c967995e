package hal

import "time"

// PSR is the processor status register of the simulated CPU.
type PSR uint8

const (
	// PSRKernel is set while the CPU executes in kernel mode.
	PSRKernel PSR = 1 << iota
	// PSRInt is set while interrupts are enabled.
	PSRInt
)

func (p PSR) Kernel() bool     { return p&PSRKernel != 0 }
func (p PSR) IntEnabled() bool { return p&PSRInt != 0 }

// Device identifies an interrupt source.
type Device uint8

const (
	ClockDev Device = iota
	DiskDev
	TermDev
	SyscallDev

	numDevices
)

func (d Device) String() string {
	switch d {
	case ClockDev:
		return "clock"
	case DiskDev:
		return "disk"
	case TermDev:
		return "term"
	case SyscallDev:
		return "syscall"
	default:
		return "unknown"
	}
}

// Device geometry and timing.
const (
	ClockUnits = 1
	DiskUnits  = 2
	TermUnits  = 4

	// TickMicros is the simulated time between two clock interrupts.
	TickMicros = 20000

	DiskSectorSize = 512
	DiskTrackSize  = 16
)

// DevStatus is the result of a device operation.
type DevStatus int

const (
	DevOK DevStatus = iota
	DevBusy
	DevError
	DevInvalid
)

func (s DevStatus) String() string {
	switch s {
	case DevOK:
		return "ok"
	case DevBusy:
		return "busy"
	case DevError:
		return "error"
	case DevInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Op selects the operation of a DeviceRequest.
type Op uint8

const (
	OpDiskTracks Op = iota + 1
	OpDiskSeek
	OpDiskRead
	OpDiskWrite
	OpTermXmit
)

// DeviceRequest is the register block handed to DeviceOutput.
//
// For OpDiskTracks the device stores the track count in Reg1 before raising
// the completion interrupt. OpDiskSeek takes the track in Reg1, OpDiskRead and
// OpDiskWrite take the sector in Reg1 and a sector-sized Buf. OpTermXmit
// takes the character in Reg1.
type DeviceRequest struct {
	Op   Op
	Reg1 int
	Buf  []byte
}

// Terminal status register bits. The received character sits in bits 8..15.
const (
	TermRecvReady = 1 << 0
	TermXmitReady = 1 << 1
)

// TermStatusChar extracts the received character from a terminal status word.
func TermStatusChar(status int) byte { return byte(status >> 8) }

// InterruptHandler is installed per device with RegisterInterrupt.
//
// For device interrupts arg is the unit number (int); for SyscallDev it is the
// argument block passed to Syscall.
type InterruptHandler func(dev Device, arg any)

// Machine is the simulated hardware the kernel runs on.
type Machine interface {
	ContextInit(ctx *Context, stack []byte, entry func())
	ContextSwitch(old, new *Context)

	ReadPSR() PSR
	WritePSR(p PSR)

	RegisterInterrupt(dev Device, h InterruptHandler)
	InInterrupt() bool
	WaitInt()
	Poll()
	Syscall(args any)

	DeviceOutput(dev Device, unit int, req *DeviceRequest) DevStatus
	DeviceInput(dev Device, unit int) (int, DevStatus)

	SysClock() int64
	Console(format string, args ...any)
	Halt(code int)
}

// Config controls the simulated machine. Zero values select defaults.
type Config struct {
	// TickInterval is the real time between clock interrupts.
	TickInterval time.Duration

	// DiskTracks holds the track count of each disk unit.
	DiskTracks [DiskUnits]int

	// DiskDir holds disk0/disk1 backing files. Empty keeps the disks in memory.
	DiskDir string

	// DiskLatency delays every disk completion interrupt.
	DiskLatency time.Duration

	// Console receives console output. Nil writes to stdout.
	Console Logger

	// TermOut receives characters transmitted on terminal units.
	TermOut func(unit int, b byte)
}

const (
	defaultTickInterval = 20 * time.Millisecond
	defaultDisk0Tracks  = 16
	defaultDisk1Tracks  = 32
)

func (c *Config) setDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.DiskTracks[0] <= 0 {
		c.DiskTracks[0] = defaultDisk0Tracks
	}
	if c.DiskTracks[1] <= 0 {
		c.DiskTracks[1] = defaultDisk1Tracks
	}
}
