package joy

import (
	"fmt"

	"contentment/src/boot/bootloader"
	"contentment/src/hardware/arm"
)

// Handle is the address of a task's control block in the kernel heap.  It is
// what the trampoline receives as its argument and what the 32 bit model
// puts in CONTEXTIDR.
type Handle uint64

const UserDataSlots = 4

// Runner is the work a task does once the trampoline starts it.
type Runner interface {
	Run(t *Task)
}

type RunnerFunc func(t *Task)

func (f RunnerFunc) Run(t *Task) {
	f(t)
}

// resourceOwner is a workload that holds kernel resources beyond the task's
// own stack; Destroy releases them first.
type resourceOwner interface {
	releaseResources() error
}

// Task is a unit of execution: a stack, a saved register file, a state and
// a completion event.  Tasks are built with NewTask and live until Destroy.
type Task struct {
	k            *Kernel
	handle       Handle
	state        TaskState
	suspended    bool
	stack        uint64
	stackSize    uint32
	regs         arm.RegisterContext
	event        SynchronizationEvent
	name         string
	userData     [UserDataSlots]interface{}
	waitListNext *Task
	workload     Runner
}

// NewTask builds a task and registers it with the scheduler.  A task created
// suspended stays New until Start.  With stackSize 0 the task gets no stack
// and no register setup; it stands for code that is already running on a
// stack of its own.
func NewTask(k *Kernel, stackSize uint32, createSuspended bool, workload Runner) *Task {
	if stackSize != 0 {
		log.Assertf(stackSize >= bootloader.MinTaskStackSize,
			"task stack of %d bytes is below the minimum of %d", stackSize, bootloader.MinTaskStackSize)
		align := k.Model().StackAlignment()
		log.Assertf(stackSize%align == 0,
			"task stack of %d bytes is not a multiple of %d", stackSize, align)
	}
	tcb, err := k.Heap.Alloc()
	log.Assertf(err == nil, "no room for a task control block: %v", err)

	t := &Task{
		k:        k,
		handle:   Handle(tcb),
		state:    TaskStateReady,
		regs:     arm.NewContext(k.Model()),
		event:    newSynchronizationEvent(k),
		workload: workload,
	}
	if createSuspended {
		t.state = TaskStateNew
	}
	if stackSize != 0 {
		t.stackSize = stackSize
		t.stack, err = k.Heap.AllocContiguous(k.Heap.FramesFor(uint64(stackSize)))
		log.Assertf(err == nil, "no room for a %d byte task stack: %v", stackSize, err)
		t.initializeRegs()
	}
	t.name = fmt.Sprintf("@%#x", uint64(t.handle))
	k.tasks[t.handle] = t
	k.Scheduler().AddTask(t)
	return t
}

func (t *Task) initializeRegs() {
	top := t.StackTop()
	switch r := t.regs.(type) {
	case *arm.Context32:
		*r = arm.Context32{}
		r.R[0] = uint32(t.handle)
		r.SP = uint32(top)
		r.FPEXC = arm.FPEXCEnable
		r.FPSCR = arm.FPSCRDefaultNaN
		r.PC = uint32(TaskEntryPtr)
		r.CPSR = arm.CPSRKernelTask
		r.ContextID = uint32(t.handle)
		r.TTBR0 = t.k.Core.ReadTTBR0()
	case *arm.Context64:
		*r = arm.Context64{}
		r.X[0] = uint64(t.handle)
		r.SP = top
		r.PSTATE = arm.CPSRKernelTask
		r.X[30] = uint64(TaskEntryPtr)
		r.FPCR = t.k.Core.ReadFPCR()
	}
}

func (t *Task) Kernel() *Kernel {
	return t.k
}

func (t *Task) Handle() Handle {
	return t.handle
}

func (t *Task) State() TaskState {
	return t.state
}

func (t *Task) IsSuspended() bool {
	return t.suspended
}

func (t *Task) Registers() arm.RegisterContext {
	return t.regs
}

func (t *Task) Workload() Runner {
	return t.workload
}

// Stack returns the base and size of the task's stack; size is 0 for a task
// without one.
func (t *Task) Stack() (uint64, uint32) {
	return t.stack, t.stackSize
}

func (t *Task) StackTop() uint64 {
	return t.stack + uint64(t.stackSize)
}

func (t *Task) Name() string {
	return t.name
}

func (t *Task) SetName(name string) {
	t.name = name
}

func (t *Task) UserData(slot int) interface{} {
	log.Assertf(slot >= 0 && slot < UserDataSlots, "user data slot %d out of range", slot)
	return t.userData[slot]
}

func (t *Task) SetUserData(slot int, v interface{}) {
	log.Assertf(slot >= 0 && slot < UserDataSlots, "user data slot %d out of range", slot)
	t.userData[slot] = v
}

// WaitListNext and SetWaitListNext thread the task onto a scheduler wait
// list.  Only the scheduler touches them.
func (t *Task) WaitListNext() *Task {
	return t.waitListNext
}

func (t *Task) SetWaitListNext(next *Task) {
	t.waitListNext = next
}

func (t *Task) String() string {
	s := fmt.Sprintf("%s(%s", t.name, t.state)
	if t.suspended {
		s += ",suspended"
	}
	return s + ")"
}

// Start makes a task created suspended runnable, or resumes a suspended one.
func (t *Task) Start() {
	if t.state == TaskStateNew {
		t.state = TaskStateReady
		return
	}
	log.Assertf(t.suspended, "task %s started while %s and not suspended", t.name, t.state)
	t.suspended = false
}

// Suspend keeps the scheduler from picking the task until Start.
func (t *Task) Suspend() {
	log.Assertf(t.state != TaskStateNew, "task %s suspended before it was started", t.name)
	log.Assertf(!t.suspended, "task %s suspended twice", t.name)
	t.suspended = true
}

// Terminate ends the calling task.  It must be the current task and it does
// not return.
func (t *Task) Terminate() {
	s := t.k.Scheduler()
	log.Assertf(s.GetCurrentTask() == t, "task %s terminated from another task", t.name)
	t.state = TaskStateTerminated
	t.event.Set()
	s.Yield()
	log.Fatalf(1, "terminated task %s was resumed", t.name)
}

// WaitForTermination returns once t has terminated.  A task the scheduler
// has already retired counts as terminated.
func (t *Task) WaitForTermination() {
	s := t.k.Scheduler()
	if !s.IsValidTask(t) {
		return
	}
	log.Assertf(s.GetCurrentTask() != t, "task %s waiting for its own termination", t.name)
	t.event.Wait()
}

// Destroy frees everything the task owns.  Only a terminated task can be
// destroyed.
func (t *Task) Destroy() {
	log.Assertf(t.state == TaskStateTerminated, "task %s destroyed while %s", t.name, t.state)
	if owner, ok := t.workload.(resourceOwner); ok {
		err := owner.releaseResources()
		log.Assertf(err == nil, "releasing resources of %s: %v", t.name, err)
	}
	t.state = TaskStateUnknown
	if t.stack != 0 {
		err := t.k.Heap.FreeContiguous(t.stack, t.k.Heap.FramesFor(uint64(t.stackSize)))
		log.Assertf(err == nil, "freeing stack of %s: %v", t.name, err)
		t.stack = 0
	}
	delete(t.k.tasks, t.handle)
	err := t.k.Heap.Free(uint64(t.handle))
	log.Assertf(err == nil, "freeing control block of %s: %v", t.name, err)
}
