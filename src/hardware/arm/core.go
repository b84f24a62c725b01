package arm

import (
	"contentment/src/lib/trust"
)

var log = trust.Named("arm")

// Bus is the physical side of the core: whatever answers loads and stores
// once the MMU has produced a physical address.
type Bus interface {
	Load32(pa uint64) (uint32, error)
	Read(pa uint64, p []byte) error
	Write(pa uint64, p []byte) error
}

// Executor runs unprivileged code.  Launch hands it the entry address when a
// context is entered in user mode; the executor fetches through the MMU like
// the core would.
type Executor interface {
	Execute(c *Core, entry uint32) error
}

// TrapFrame holds the registers a swi passes to the kernel: the syscall
// number in r7, arguments from r0, the result back in r0.
type TrapFrame struct {
	R [13]uint32
}

func (f *TrapFrame) Number() uint32 {
	return f.R[7]
}

type TrapHandler func(c *Core, f *TrapFrame)

type routine struct {
	name string
	fn   func(arg uint64)
}

// Core is one simulated processor.  It holds only the registers that the
// task core cares about; everything else about the CPU is the Go runtime's
// business.
type Core struct {
	model     Model
	bus       Bus
	cpsr      uint32
	spsr      uint32
	sp        uint64
	ttbr0     uint32
	contextID uint32
	fpexc     uint32
	fpscr     uint32
	fpcr      uint64
	routines  map[FuncPtr]routine
	exec      Executor
	svc       TrapHandler
}

// NewCore resets a core of the given model.  It comes out of reset in System
// mode with interrupts enabled and the MMU off.
func NewCore(m Model, bus Bus) *Core {
	return &Core{
		model:    m,
		bus:      bus,
		cpsr:     ModeSystem,
		fpcr:     FPCRReset,
		routines: make(map[FuncPtr]routine),
	}
}

func (c *Core) Model() Model {
	return c.model
}

func (c *Core) CPSR() uint32 {
	return c.cpsr
}

func (c *Core) SPSR() uint32 {
	return c.spsr
}

func (c *Core) Mode() uint32 {
	return c.cpsr & ModeMask
}

func (c *Core) SetMode(mode uint32) {
	c.cpsr = (c.cpsr &^ ModeMask) | (mode & ModeMask)
}

func (c *Core) DisableIRQs() {
	c.cpsr |= CPSRIRQDisable
}

func (c *Core) EnableIRQs() {
	c.cpsr &^= CPSRIRQDisable
}

func (c *Core) IRQsEnabled() bool {
	return c.cpsr&CPSRIRQDisable == 0
}

func (c *Core) SP() uint64 {
	return c.sp
}

func (c *Core) SetSP(sp uint64) {
	c.sp = sp
}

func (c *Core) ReadTTBR0() uint32 {
	return c.ttbr0
}

func (c *Core) ReadContextID() uint32 {
	return c.contextID
}

// SetTranslationTable installs ttbr0 and the matching context id together so
// no translation ever happens with one updated and not the other.
func (c *Core) SetTranslationTable(ttbr0, contextID uint32) {
	c.ttbr0 = ttbr0
	c.contextID = contextID
}

func (c *Core) ReadFPCR() uint64 {
	return c.fpcr
}

func (c *Core) WriteFPCR(v uint64) {
	c.fpcr = v
}

// Restore loads a task's register file into the core.
func (c *Core) Restore(ctx RegisterContext) {
	switch r := ctx.(type) {
	case *Context32:
		c.cpsr = r.CPSR
		c.spsr = r.SPSR
		c.sp = uint64(r.SP)
		c.fpexc = r.FPEXC
		c.fpscr = r.FPSCR
		c.SetTranslationTable(r.TTBR0, r.ContextID)
	case *Context64:
		c.cpsr = r.PSTATE
		c.sp = r.SP
		c.fpcr = r.FPCR
	default:
		log.Fatalf(1, "restore of unknown register context %T", ctx)
	}
}

// Save captures the live state of the core into a task's register file.
func (c *Core) Save(ctx RegisterContext) {
	switch r := ctx.(type) {
	case *Context32:
		r.CPSR = c.cpsr
		r.SPSR = c.spsr
		r.SP = uint32(c.sp)
		r.FPEXC = c.fpexc
		r.FPSCR = c.fpscr
		r.TTBR0 = c.ttbr0
		r.ContextID = c.contextID
	case *Context64:
		r.PSTATE = c.cpsr
		r.SP = c.sp
		r.FPCR = c.fpcr
	default:
		log.Fatalf(1, "save into unknown register context %T", ctx)
	}
}

// RegisterRoutine places fn in the kernel image at addr.
func (c *Core) RegisterRoutine(addr FuncPtr, name string, fn func(arg uint64)) {
	if _, ok := c.routines[addr]; ok {
		log.Fatalf(1, "two routines at %#x", uint64(addr))
	}
	c.routines[addr] = routine{name: name, fn: fn}
}

func (c *Core) RoutineName(addr FuncPtr) (string, bool) {
	r, ok := c.routines[addr]
	return r.name, ok
}

func (c *Core) SetExecutor(e Executor) {
	c.exec = e
}

// SetTrapHandler installs the swi vector.
func (c *Core) SetTrapHandler(h TrapHandler) {
	c.svc = h
}

// Launch branches to the program counter of ctx with its entry argument,
// which is what the first switch into a task amounts to.  Restore must have
// been called with the same context.  Kernel code is found in the routine
// table; user mode code is handed to the executor.
func (c *Core) Launch(ctx RegisterContext) {
	pc := ctx.ProgramCounter()
	if c.model == Model32 && c.Mode() == ModeUser {
		if c.exec == nil {
			log.Fatalf(1, "prefetch abort: no executor for user code at %#08x", pc)
		}
		if err := c.exec.Execute(c, uint32(pc)); err != nil {
			log.Fatalf(1, "prefetch abort: %v", err)
		}
		c.Undefined("user code returned past its entry point")
		return
	}
	r, ok := c.routines[FuncPtr(pc)]
	if !ok {
		log.Fatalf(1, "prefetch abort: no code at %#x", pc)
	}
	r.fn(ctx.EntryArgument())
}

// SupervisorCall is swi 0: the core banks the status register, enters
// Supervisor mode with IRQs masked, runs the vector and returns to the
// caller's mode.
func (c *Core) SupervisorCall(f *TrapFrame) {
	if c.svc == nil {
		c.Undefined("swi with no vector installed")
		return
	}
	c.spsr = c.cpsr
	c.cpsr = (c.cpsr &^ ModeMask) | ModeSupervisor | CPSRIRQDisable
	c.svc(c, f)
	c.cpsr = c.spsr
}

// Undefined is an undefined instruction exception.  Nothing recovers from it.
func (c *Core) Undefined(reason string) {
	log.Fatalf(1, "undefined instruction (mode %#x): %s", c.Mode(), reason)
}

// DataAbort is a load or store the MMU refused.  Nothing recovers from it.
func (c *Core) DataAbort(err error) {
	log.Fatalf(1, "data abort (mode %#x): %v", c.Mode(), err)
}

// Translate walks the active L1 table for va.  With no table installed, or
// on the 64 bit model, addresses are physical.
func (c *Core) Translate(va uint32, acc Access, user bool) (uint64, error) {
	if c.model == Model64 || c.ttbr0 == 0 {
		return uint64(va), nil
	}
	entry := uint64(c.ttbr0&TTBRBaseMask) + uint64(SectionIndex(va))*L1EntrySize
	desc, err := c.bus.Load32(entry)
	if err != nil {
		return 0, &Fault{Kind: FaultExternal, VA: va, Access: acc, User: user}
	}
	if desc&DescriptorTypeMask != DescriptorTypeSection {
		return 0, &Fault{Kind: FaultTranslation, VA: va, Access: acc, User: user}
	}
	if !permitted(desc, acc, user) {
		return 0, &Fault{Kind: FaultPermission, VA: va, Access: acc, User: user}
	}
	return uint64(desc&SectionBaseMask) | uint64(va&SectionOffsetMask), nil
}

func (c *Core) access(va uint32, p []byte, acc Access, user bool) error {
	done := 0
	for done < len(p) {
		cur := va + uint32(done)
		pa, err := c.Translate(cur, acc, user)
		if err != nil {
			return err
		}
		n := SectionSize - int(cur&SectionOffsetMask)
		if n > len(p)-done {
			n = len(p) - done
		}
		chunk := p[done : done+n]
		if acc == AccessWrite {
			err = c.bus.Write(pa, chunk)
		} else {
			err = c.bus.Read(pa, chunk)
		}
		if err != nil {
			return &Fault{Kind: FaultExternal, VA: cur, Access: acc, User: user}
		}
		done += n
	}
	return nil
}

func (c *Core) privileged() bool {
	return c.Mode() != ModeUser
}

// Load reads memory at va with the privilege of the current mode.
func (c *Core) Load(va uint32, p []byte) error {
	return c.access(va, p, AccessRead, !c.privileged())
}

// Store writes memory at va with the privilege of the current mode.
func (c *Core) Store(va uint32, p []byte) error {
	return c.access(va, p, AccessWrite, !c.privileged())
}

// Fetch reads instruction memory at va with the privilege of the current mode.
func (c *Core) Fetch(va uint32, p []byte) error {
	return c.access(va, p, AccessExecute, !c.privileged())
}

// LoadUnprivileged is ldrt: a read checked as if user mode made it, whatever
// mode the core is in.  The kernel uses it on pointers it got from a trap.
func (c *Core) LoadUnprivileged(va uint32, p []byte) error {
	return c.access(va, p, AccessRead, true)
}

// StoreUnprivileged is strt.
func (c *Core) StoreUnprivileged(va uint32, p []byte) error {
	return c.access(va, p, AccessWrite, true)
}
