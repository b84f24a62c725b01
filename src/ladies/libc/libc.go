// Package libc is the runtime of unprivileged programs: the system call
// stubs, the startup routine and a small formatter.  Everything here runs
// on the calling task's own stack and reaches the kernel only through swi.
package libc

import (
	"bytes"

	"contentment/src/hardware/arm"
	"contentment/src/lib/sysnum"
)

type C struct {
	cpu *arm.Core
}

func New(cpu *arm.Core) *C {
	return &C{cpu: cpu}
}

// Start runs main and then exits the task.  If exit ever comes back the
// program has nowhere to go.
func Start(cpu *arm.Core, main func(c *C)) {
	c := New(cpu)
	main(c)
	c.Exit()
	c.Print("ERROR: exit returned\n")
	cpu.Undefined("exit returned to the program")
}

func (c *C) syscall(n uint32, args ...uint32) uint32 {
	f := &arm.TrapFrame{}
	copy(f.R[:], args)
	f.R[sysnum.NumberRegister] = n
	c.cpu.SupervisorCall(f)
	return f.R[0]
}

// push copies p onto the stack, word aligned, and returns its address.
func (c *C) push(p []byte) uint32 {
	n := (uint32(len(p)) + 3) &^ 3
	sp := uint32(c.cpu.SP()) - n
	if err := c.cpu.Store(sp, p); err != nil {
		c.cpu.DataAbort(err)
	}
	c.cpu.SetSP(uint64(sp))
	return sp
}

func (c *C) pop(size int) {
	n := (uint64(size) + 3) &^ 3
	c.cpu.SetSP(c.cpu.SP() + n)
}

// CPSR is mrs r0, cpsr.
func (c *C) CPSR() uint32 {
	return c.cpu.CPSR()
}

func (c *C) GetTime() uint32 {
	return c.syscall(sysnum.GetTime)
}

// GetTaskName asks for the task's name with a buffer of size bytes on the
// stack, so at most size-1 characters come back.
func (c *C) GetTaskName(size uint32) string {
	buf := make([]byte, size)
	va := c.push(buf)
	defer c.pop(len(buf))
	if c.syscall(sysnum.GetTaskName, va, size) == sysnum.Failed {
		return ""
	}
	if err := c.cpu.Load(va, buf); err != nil {
		c.cpu.DataAbort(err)
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf)
}

func (c *C) Print(s string) {
	msg := append([]byte(s), 0)
	va := c.push(msg)
	defer c.pop(len(msg))
	c.syscall(sysnum.Print, va)
}

func (c *C) Sleep(seconds uint32) {
	c.syscall(sysnum.Sleep, seconds)
}

func (c *C) Exit() {
	c.syscall(sysnum.Exit)
}
