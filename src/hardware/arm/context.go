package arm

import (
	"fmt"
	"strings"
)

// Model selects the register file a task context is built for.
type Model int

const (
	Model32 Model = 32
	Model64 Model = 64
)

func (m Model) String() string {
	switch m {
	case Model32:
		return "aarch32"
	case Model64:
		return "aarch64"
	}
	return fmt.Sprintf("model(%d)", int(m))
}

func ParseModel(s string) (Model, error) {
	switch strings.ToLower(s) {
	case "aarch32", "arm", "32":
		return Model32, nil
	case "aarch64", "arm64", "64":
		return Model64, nil
	}
	return 0, fmt.Errorf("unknown processor model %q", s)
}

// StackAlignment is the alignment a task stack size must have on this model.
func (m Model) StackAlignment() uint32 {
	if m == Model64 {
		return 16
	}
	return 4
}

// FuncPtr is the address of code in the kernel image.
type FuncPtr uint64

// RegisterContext is the saved register file of a task.  The scheduler
// hands it to Core.Restore when the task is switched in and to Core.Save
// when it is switched out.
type RegisterContext interface {
	Model() Model
	EntryArgument() uint64
	StackPointer() uint64
	ProgramCounter() uint64
}

// NewContext returns a zeroed context for the model.
func NewContext(m Model) RegisterContext {
	if m == Model64 {
		return &Context64{}
	}
	return &Context32{}
}

// Context32 is the AArch32 register file: the core registers plus the
// processor state that belongs to one task.
type Context32 struct {
	R         [13]uint32 // r0 is the entry argument
	SP        uint32
	LR        uint32
	PC        uint32
	CPSR      uint32
	SPSR      uint32 // banked SVC mode copy, live while a trap is being served
	FPEXC     uint32
	FPSCR     uint32
	ContextID uint32
	TTBR0     uint32
}

func (c *Context32) Model() Model           { return Model32 }
func (c *Context32) EntryArgument() uint64  { return uint64(c.R[0]) }
func (c *Context32) StackPointer() uint64   { return uint64(c.SP) }
func (c *Context32) ProgramCounter() uint64 { return uint64(c.PC) }

func (c *Context32) String() string {
	return fmt.Sprintf("r0=%#08x sp=%#08x pc=%#08x cpsr=%#08x ttbr0=%#08x contextid=%#08x",
		c.R[0], c.SP, c.PC, c.CPSR, c.TTBR0, c.ContextID)
}

// Context64 is the AArch64 register file.  The entry point lives in the
// link register x30 and is reached with a plain ret.  PSTATE keeps the
// mode and interrupt mask bits in the same layout as CPSR.
type Context64 struct {
	X      [31]uint64
	SP     uint64
	PSTATE uint32
	FPCR   uint64
	FPSR   uint64
}

func (c *Context64) Model() Model           { return Model64 }
func (c *Context64) EntryArgument() uint64  { return c.X[0] }
func (c *Context64) StackPointer() uint64   { return c.SP }
func (c *Context64) ProgramCounter() uint64 { return c.X[30] }

func (c *Context64) String() string {
	return fmt.Sprintf("x0=%#016x sp=%#016x x30=%#016x pstate=%#x fpcr=%#x", c.X[0], c.SP, c.X[30], c.PSTATE, c.FPCR)
}
