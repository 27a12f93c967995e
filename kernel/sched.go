package kernel

func (k *Kernel) makeReady(p *Proc) {
	p.status = StatusReady
	k.ready[p.priority-1].Push(p)
}

// readyAtOrAbove reports whether a process with priority <= prio is ready.
func (k *Kernel) readyAtOrAbove(prio int) bool {
	for i := 0; i < prio && i < len(k.ready); i++ {
		if k.ready[i].Len() > 0 {
			return true
		}
	}
	return false
}

func (k *Kernel) nextReady() *Proc {
	for i := range k.ready {
		if p, ok := k.ready[i].Pop(); ok {
			return p
		}
	}
	return nil
}

// dispatch picks the process to run next. Interrupts must be disabled.
//
// A running process keeps the CPU unless a process of equal or higher
// priority is ready; otherwise it goes to the tail of its ready queue.
func (k *Kernel) dispatch() {
	cur := k.current
	if cur != nil && cur.status == StatusRunning {
		if !k.readyAtOrAbove(cur.priority) {
			k.resched = false
			return
		}
		k.makeReady(cur)
	}

	next := k.nextReady()
	if next == nil {
		k.fatalf("dispatch(): no runnable process. Halting...")
	}
	k.switchTo(cur, next, false)
}

// exit hands the CPU away from a process that has quit.
func (k *Kernel) exit() {
	next := k.nextReady()
	if next == nil {
		k.fatalf("quit(): no runnable process. Halting...")
	}
	k.switchTo(k.current, next, true)
}

func (k *Kernel) switchTo(old, next *Proc, exiting bool) {
	now := k.m.SysClock()
	if old != nil {
		old.cpuTime += now - old.startTime
	}
	next.status = StatusRunning
	next.startTime = now
	k.current = next
	k.resched = false
	if old == next {
		return
	}

	if old != nil {
		k.log.Trace("switch", "from", old.pid, "to", next.pid, "status", old.status)
	}
	if exiting || old == nil {
		k.m.ContextSwitch(nil, &next.ctx)
		return
	}
	k.m.ContextSwitch(&old.ctx, &next.ctx)
}

// preempt dispatches if a strictly higher priority process is ready.
// Interrupts must be disabled.
func (k *Kernel) preempt() {
	cur := k.current
	if cur == nil || cur.status != StatusRunning || k.m.InInterrupt() {
		return
	}
	if k.readyAtOrAbove(cur.priority - 1) {
		k.dispatch()
	}
}

// Yield gives the CPU to a ready process of equal or higher priority, if
// any.
func (k *Kernel) Yield() {
	k.checkKernelMode("yield")
	prev := k.DisableInterrupts()
	k.dispatch()
	k.RestoreInterrupts(prev)
}

// Checkpoint delivers pending interrupts, then reschedules if the time slice
// ran out or a higher priority process became ready.
func (k *Kernel) Checkpoint() {
	k.checkKernelMode("checkpoint")
	k.m.Poll()
	if k.m.InInterrupt() {
		return
	}
	prev := k.DisableInterrupts()
	if k.resched {
		k.dispatch()
	} else {
		k.preempt()
	}
	k.RestoreInterrupts(prev)
}

// TimeSlice marks the running process for rescheduling once it has held
// the CPU for TimeSliceMicros. Called from the clock interrupt.
func (k *Kernel) TimeSlice() {
	cur := k.current
	if cur == nil || cur.status != StatusRunning {
		return
	}
	if k.m.SysClock()-cur.startTime >= TimeSliceMicros {
		k.resched = true
	}
}

// ReadTime returns the CPU time, in microseconds, used by the running
// process.
func (k *Kernel) ReadTime() int64 {
	cur := k.current
	if cur == nil {
		return 0
	}
	return cur.cpuTime + k.m.SysClock() - cur.startTime
}

// ReadCurStartTime returns when the running process was last dispatched.
func (k *Kernel) ReadCurStartTime() int64 {
	if k.current == nil {
		return 0
	}
	return k.current.startTime
}

func (k *Kernel) sentinel(string) int {
	for {
		k.checkDeadlock()
		k.m.WaitInt()
		prev := k.DisableInterrupts()
		k.dispatch()
		k.RestoreInterrupts(prev)
	}
}

func (k *Kernel) checkDeadlock() {
	live := 0
	for i := range k.procs {
		p := &k.procs[i]
		if p.pid == SentinelPID || !p.live() {
			continue
		}
		live++
	}
	if live == 0 {
		k.m.Console("All processes completed.")
		k.m.Halt(0)
	}
	if k.ioWaiters() == 0 && !k.readyAtOrAbove(LowestPriority) {
		k.m.Console("sentinel(): deadlock, %d processes blocked with no device pending. Halting...", live)
		k.DumpProcesses()
		k.m.Halt(1)
	}
}
