package kernel

// DumpProcesses prints the process table on the console.
func (k *Kernel) DumpProcesses() {
	k.m.Console("%-5s %-7s %-9s %-14s %-7s %-9s %s", "PID", "Parent", "Priority", "Status", "# Kids", "CPUtime", "Name")
	for i := range k.procs {
		p := &k.procs[i]
		if p.status == StatusEmpty {
			continue
		}
		status := k.statusName(p.status)
		if p == k.current {
			status = StatusRunning.String()
		}
		k.m.Console("%-5d %-7d %-9d %-14s %-7d %-9d %s",
			p.pid, p.parentPID(), p.priority, status, len(p.children), p.cpuTime, p.name)
	}
}

// Processes returns a snapshot of every non-empty table entry in slot order.
func (k *Kernel) Processes() []ProcInfo {
	var out []ProcInfo
	for i := range k.procs {
		p := &k.procs[i]
		if p.status == StatusEmpty {
			continue
		}
		out = append(out, p.info())
	}
	return out
}
