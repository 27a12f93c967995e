package hal

import (
	"runtime/debug"
	"sync/atomic"
)

// PanicInfo contains details about a panic recovered on a machine context.
type PanicInfo struct {
	Value any
	Stack []byte
}

var panicHandler atomic.Value // func(PanicInfo)

// SetPanicHandler installs a process-wide panic handler.
//
// The handler runs at most once per machine, before the machine halts. It must
// not panic.
func SetPanicHandler(fn func(PanicInfo)) {
	panicHandler.Store(fn)
}

func (c *CPU) triggerPanic(info PanicInfo) {
	c.panicOnce.Do(func() {
		info.Stack = debug.Stack()
		if v := panicHandler.Load(); v != nil {
			if fn, ok := v.(func(PanicInfo)); ok && fn != nil {
				fn(info)
			}
		}
	})
}
