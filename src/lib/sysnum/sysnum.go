// Package sysnum is the system call ABI shared by the kernel's trap
// dispatcher and unprivileged programs.  A call loads its number into r7 and
// its arguments into r0 and r1, then executes swi 0.  The result, if any,
// comes back in r0.
package sysnum

const NumberRegister = 7
const TrapImmediate = 0

const (
	GetTime     = 0 // r0 <- ticks since boot
	GetTaskName = 1 // r0 = buffer, r1 = buffer size
	Print       = 2 // r0 = NUL terminated string
	Sleep       = 3 // r0 = seconds
	Exit        = 4 // does not return
)

// Failed is what r0 holds when the kernel refused a call.
const Failed = 0xFFFF_FFFF

// MaxPrint bounds the string print will look at.
const MaxPrint = 1024

func Name(n uint32) string {
	switch n {
	case GetTime:
		return "gettime"
	case GetTaskName:
		return "get_task_name"
	case Print:
		return "print"
	case Sleep:
		return "sleep"
	case Exit:
		return "exit"
	}
	return "unknown"
}
