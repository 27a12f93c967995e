package kernel

// Quit terminates the running process with the given exit code. Every child
// must already have quit. It does not return.
func (k *Kernel) Quit(code int) {
	k.checkKernelMode("quit")
	k.DisableInterrupts()

	cur := k.current
	for _, c := range cur.children {
		if c.status != StatusQuit {
			k.fatalf("quit(): process %d quitting with active child %d. Halting...", cur.pid, c.pid)
		}
	}
	// Uncollected children will never be joined now.
	for _, c := range cur.children {
		c.status = StatusEmpty
		c.parent = nil
	}
	cur.children = nil
	cur.quitKids.Drain()

	cur.exitCode = code
	cur.status = StatusQuit
	if parent := cur.parent; parent != nil {
		parent.quitKids.Push(cur)
		if parent.status == StatusJoinBlocked {
			k.makeReady(parent)
		}
	}
	for _, z := range cur.zappers {
		if z.status == StatusZapped {
			k.makeReady(z)
		}
	}
	cur.zappers = nil

	for _, fn := range k.quitHooks {
		fn(cur.pid)
	}
	if cur.parent == nil {
		cur.status = StatusRecordedQuit
	}

	k.log.Trace("quit", "pid", cur.pid, "code", code)
	k.exit()
}

// Join waits for a child to quit and returns its pid and exit code. It
// returns -2 if the caller has no children and -1 if the caller was zapped
// while waiting.
func (k *Kernel) Join() (pid, code int) {
	k.checkKernelMode("join")
	prev := k.DisableInterrupts()

	cur := k.current
	if len(cur.children) == 0 {
		k.RestoreInterrupts(prev)
		return -2, 0
	}

	blocked := false
	if cur.quitKids.Len() == 0 {
		cur.status = StatusJoinBlocked
		blocked = true
		k.dispatch()
	}

	child, ok := cur.quitKids.Pop()
	if !ok {
		k.fatalf("join(): process %d woken without a quit child. Halting...", cur.pid)
	}
	cur.removeChild(child)
	child.status = StatusRecordedQuit
	child.parent = nil
	pid, code = child.pid, child.exitCode
	zapped := cur.zapped
	k.RestoreInterrupts(prev)

	if blocked && zapped {
		return -1, code
	}
	return pid, code
}

// Zap asks the process pid to terminate and blocks until it quits. It
// returns -1 if the caller itself was zapped meanwhile.
func (k *Kernel) Zap(pid int) int {
	k.checkKernelMode("zap")
	prev := k.DisableInterrupts()

	cur := k.current
	if pid == cur.pid {
		k.fatalf("zap(): process %d tried to zap itself. Halting...", pid)
	}
	target := k.lookup(pid)
	if target == nil || target.status == StatusRecordedQuit {
		k.fatalf("zap(): process %d does not exist. Halting...", pid)
	}

	target.zapped = true
	k.log.Trace("zap", "pid", pid, "by", cur.pid)
	if target.status != StatusQuit {
		target.zappers = append(target.zappers, cur)
		cur.status = StatusZapped
		k.dispatch()
	}

	zapped := cur.zapped
	k.RestoreInterrupts(prev)
	if zapped {
		return -1
	}
	return 0
}

// IsZapped reports whether the running process has been zapped.
func (k *Kernel) IsZapped() bool {
	k.checkKernelMode("is_zapped")
	return k.current != nil && k.current.zapped
}

// BlockMe blocks the running process with a layer-defined status until
// UnblockProc. It returns -1 if the process has been zapped.
func (k *Kernel) BlockMe(status Status) int {
	k.checkKernelMode("block_me")
	if status <= StatusBlockedBase {
		k.fatalf("block_me(): invalid block status %d. Halting...", status)
	}
	prev := k.DisableInterrupts()
	cur := k.current
	cur.status = status
	k.dispatch()
	zapped := cur.zapped
	k.RestoreInterrupts(prev)
	if zapped {
		return -1
	}
	return 0
}

// UnblockProc makes a process blocked by BlockMe ready again. It returns -2
// if pid does not name such a process. Outside interrupt handlers the caller
// is preempted if the woken process has higher priority.
func (k *Kernel) UnblockProc(pid int) int {
	k.checkKernelMode("unblock_proc")
	prev := k.DisableInterrupts()
	rc := k.wake(pid)
	if rc == 0 {
		k.preempt()
	}
	k.RestoreInterrupts(prev)
	return rc
}

// Wake is UnblockProc without the preemption check. Callers that wake
// several processes inside one critical section use it and reschedule when
// they restore interrupts.
func (k *Kernel) Wake(pid int) int {
	k.checkKernelMode("wake")
	prev := k.DisableInterrupts()
	rc := k.wake(pid)
	k.RestoreInterrupts(prev)
	return rc
}

func (k *Kernel) wake(pid int) int {
	p := k.lookup(pid)
	if p == nil || p == k.current || p.status <= StatusBlockedBase {
		return -2
	}
	k.log.Trace("unblock", "pid", pid, "status", k.statusName(p.status))
	k.makeReady(p)
	return 0
}
