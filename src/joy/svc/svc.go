package svc

import (
	"bytes"

	"contentment/src/hardware/arm"
	"contentment/src/joy"
	"contentment/src/lib/sysnum"
	"contentment/src/lib/trust"
)

var log = trust.Named("svc")

// Dispatcher is the swi vector: it decodes the syscall number from r7 and
// serves the call on behalf of the current task.
type Dispatcher struct {
	k       *joy.Kernel
	console joy.Console
	calls   [sysnum.Exit + 1]uint64
}

// Install points the core's swi vector at a new dispatcher.  Output of print
// goes to console.
func Install(k *joy.Kernel, console joy.Console) *Dispatcher {
	d := &Dispatcher{k: k, console: console}
	k.Core.SetTrapHandler(d.Trap)
	return d
}

// Calls reports how many times syscall n has been made.
func (d *Dispatcher) Calls(n uint32) uint64 {
	if n >= uint32(len(d.calls)) {
		return 0
	}
	return d.calls[n]
}

// Trap serves one swi.  The current task is looked up once.  A trap from
// user mode runs on the task's kernel stack: the user SP is parked in the
// task on the way in and put back on the way out.
func (d *Dispatcher) Trap(c *arm.Core, f *arm.TrapFrame) {
	cur := d.k.Scheduler().GetCurrentTask()
	fromUser := c.SPSR()&arm.ModeMask == arm.ModeUser
	var user *joy.UserModeTask
	if fromUser {
		var ok bool
		user, ok = joy.AsUserModeTask(cur)
		if !ok {
			log.Fatalf(1, "swi from user mode while %s is current", cur.Name())
		}
		c.SetSP(uint64(user.SaveUserSPAndGetKernelSP(uint32(c.SP()))))
	}

	d.dispatch(c, cur, f)

	if user != nil {
		c.SetSP(uint64(user.SavedUserSP()))
	}
}

func (d *Dispatcher) dispatch(c *arm.Core, cur *joy.Task, f *arm.TrapFrame) {
	n := f.Number()
	if n < uint32(len(d.calls)) {
		d.calls[n]++
	}
	log.Debugf("%s: %s(%#x, %#x)", cur.Name(), sysnum.Name(n), f.R[0], f.R[1])
	switch n {
	case sysnum.GetTime:
		f.R[0] = uint32(d.k.Scheduler().Ticks())
	case sysnum.GetTaskName:
		f.R[0] = d.getTaskName(c, cur, f.R[0], f.R[1])
	case sysnum.Print:
		f.R[0] = d.print(c, cur, f.R[0])
	case sysnum.Sleep:
		d.k.Scheduler().Sleep(f.R[0])
		f.R[0] = 0
	case sysnum.Exit:
		cur.Terminate()
	default:
		log.Warnf("%s: unknown syscall %d", cur.Name(), n)
		f.R[0] = sysnum.Failed
	}
}

// copyOut and copyIn move data across the boundary.  A task in user mode
// only gets to name memory it could touch itself.
func copyOut(c *arm.Core, va uint32, p []byte) error {
	if c.SPSR()&arm.ModeMask == arm.ModeUser {
		return c.StoreUnprivileged(va, p)
	}
	return c.Store(va, p)
}

func copyIn(c *arm.Core, va uint32, p []byte) error {
	if c.SPSR()&arm.ModeMask == arm.ModeUser {
		return c.LoadUnprivileged(va, p)
	}
	return c.Load(va, p)
}

// getTaskName writes the name, NUL terminated, truncated to size-1 bytes.
func (d *Dispatcher) getTaskName(c *arm.Core, cur *joy.Task, buf, size uint32) uint32 {
	if size == 0 {
		return 0
	}
	name := []byte(cur.Name())
	if uint32(len(name)) > size-1 {
		name = name[:size-1]
	}
	if err := copyOut(c, buf, append(name, 0)); err != nil {
		log.Warnf("%s: get_task_name: %v", cur.Name(), err)
		return sysnum.Failed
	}
	return uint32(len(name))
}

// print reads a NUL terminated string one section-bounded chunk at a time
// and writes it to the console as a line.
func (d *Dispatcher) print(c *arm.Core, cur *joy.Task, va uint32) uint32 {
	var line []byte
	chunk := make([]byte, 64)
	for len(line) < sysnum.MaxPrint {
		n := len(chunk)
		if left := arm.SectionSize - int(va&arm.SectionOffsetMask); left < n {
			n = left
		}
		if err := copyIn(c, va, chunk[:n]); err != nil {
			log.Warnf("%s: print: %v", cur.Name(), err)
			return sysnum.Failed
		}
		if i := bytes.IndexByte(chunk[:n], 0); i >= 0 {
			line = append(line, chunk[:i]...)
			d.emit(line)
			return uint32(len(line))
		}
		line = append(line, chunk[:n]...)
		va += uint32(n)
	}
	log.Warnf("%s: print: string longer than %d bytes, truncated", cur.Name(), sysnum.MaxPrint)
	d.emit(line[:sysnum.MaxPrint])
	return sysnum.MaxPrint
}

func (d *Dispatcher) emit(line []byte) {
	if d.console == nil {
		return
	}
	d.console.WriteLine(string(line))
}
