package joy

import (
	"io"
	"os"
	"strconv"
	"testing"

	"contentment/src/boot/bootloader"
	"contentment/src/hardware/arm"
	"contentment/src/lib/trust"
)

func TestMain(m *testing.M) {
	trust.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// testParams is an 8MB board with room for five user sections.
func testParams(model arm.Model) *bootloader.Params {
	p := bootloader.Default()
	p.Model = model.String()
	p.RAMSize = 0x80_0000
	p.KernelHeapStart = 0x10_0000
	p.KernelHeapSize = 0x10_0000
	p.TableAreaStart = 0x20_0000
	p.TableAreaSize = 0x10_0000
	p.UserPagesStart = 0x30_0000
	p.UserPagesSize = 0x50_0000
	p.TaskStackSize = 0x2000
	return p
}

func newTestKernel(t *testing.T, model arm.Model) (*Kernel, *fakeScheduler) {
	t.Helper()
	k, err := NewKernel(testParams(model), nil)
	if err != nil {
		t.Fatalf("unable to boot: %v", err)
	}
	return k, newFakeScheduler(k)
}

func expectFatal(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		if _, ok := trust.AsHalt(recover()); !ok {
			t.Errorf("expected a fatal contract violation")
		}
	}()
	fn()
}

func checkState(t *testing.T, task *Task, expected TaskState) {
	t.Helper()
	if task.State() != expected {
		t.Errorf("task %s: expected state %s but got %s", task.Name(), expected, task.State())
	}
}

type counter struct {
	runs     int
	eventSet bool
}

func (c *counter) Run(t *Task) {
	c.runs++
	c.eventSet = t.event.IsSet()
}

func TestStackSizeRules(t *testing.T) {
	k, _ := newTestKernel(t, arm.Model32)
	expectFatal(t, func() { NewTask(k, 1023, false, &counter{}) })
	expectFatal(t, func() { NewTask(k, 1026, false, &counter{}) })
	for _, size := range []uint32{1024, 1028, 4096, 0x8000} {
		task := NewTask(k, size, false, &counter{})
		if _, got := task.Stack(); got != size {
			t.Errorf("stack size: expected %d but got %d", size, got)
		}
	}

	k64, _ := newTestKernel(t, arm.Model64)
	expectFatal(t, func() { NewTask(k64, 1028, false, &counter{}) })
	NewTask(k64, 1040, false, &counter{})
}

func TestInitialRegisters32(t *testing.T) {
	k, _ := newTestKernel(t, arm.Model32)
	task := NewTask(k, 4096, false, &counter{})
	base, _ := task.Stack()
	r := task.Registers().(*arm.Context32)
	if uint64(r.SP) != base+4096 {
		t.Errorf("sp: expected %#x but got %#x", base+4096, r.SP)
	}
	if arm.FuncPtr(r.PC) != TaskEntryPtr {
		t.Errorf("pc: expected the trampoline %#x but got %#x", TaskEntryPtr, r.PC)
	}
	if r.ContextID != uint32(task.Handle()) || r.R[0] != uint32(task.Handle()) {
		t.Errorf("context id and r0 must be the handle %#x: %s", task.Handle(), r)
	}
	if r.CPSR != 0x1F {
		t.Errorf("cpsr: expected system mode with interrupts on, got %#x", r.CPSR)
	}
	if r.FPEXC != 1<<30 || r.FPSCR != 1<<25 {
		t.Errorf("fp control: fpexc %#x fpscr %#x", r.FPEXC, r.FPSCR)
	}
	if r.TTBR0 != k.Core.ReadTTBR0() || r.TTBR0 != k.KernelTable.TTBR0() {
		t.Errorf("ttbr0: expected the kernel table %#x but got %#x", k.KernelTable.TTBR0(), r.TTBR0)
	}
	for i := 1; i < len(r.R); i++ {
		if r.R[i] != 0 {
			t.Errorf("r%d not zero: %#x", i, r.R[i])
		}
	}
}

func TestInitialRegisters64(t *testing.T) {
	k, _ := newTestKernel(t, arm.Model64)
	k.Core.WriteFPCR(arm.FPCRFlushToZero)
	task := NewTask(k, 4096, false, &counter{})
	base, _ := task.Stack()
	r := task.Registers().(*arm.Context64)
	if r.SP != base+4096 || r.X[0] != uint64(task.Handle()) || arm.FuncPtr(r.X[30]) != TaskEntryPtr {
		t.Errorf("unexpected aarch64 entry state: %s", r)
	}
	if r.PSTATE != arm.CPSRKernelTask {
		t.Errorf("pstate: expected system mode with interrupts on, got %#x", r.PSTATE)
	}
	if r.FPCR != arm.FPCRFlushToZero {
		t.Errorf("fpcr must be read from the core, got %#x", r.FPCR)
	}
}

func TestBorrowedStackTask(t *testing.T) {
	k, f := newTestKernel(t, arm.Model32)
	base, size := f.main.Stack()
	if base != 0 || size != 0 {
		t.Errorf("a task without a stack must own none: %#x/%d", base, size)
	}
	r := f.main.Registers().(*arm.Context32)
	if r.PC != 0 || r.SP != 0 {
		t.Errorf("registers of a borrowed stack task are not initialised: %s", r)
	}
	checkState(t, f.main, TaskStateReady)
	if k.Heap.InUse() != 1 {
		t.Errorf("only the control block should be allocated, got %d granules", k.Heap.InUse())
	}
}

func TestCreatedSuspendedStartsOnce(t *testing.T) {
	k, _ := newTestKernel(t, arm.Model32)
	task := NewTask(k, 4096, true, &counter{})
	checkState(t, task, TaskStateNew)
	expectFatal(t, task.Suspend)
	task.Start()
	checkState(t, task, TaskStateReady)
	if task.IsSuspended() {
		t.Errorf("start of a new task must not suspend it")
	}
	expectFatal(t, task.Start)
}

func TestSuspendAndResume(t *testing.T) {
	k, _ := newTestKernel(t, arm.Model32)
	task := NewTask(k, 4096, false, &counter{})
	task.Suspend()
	if !task.IsSuspended() {
		t.Errorf("suspend did not stick")
	}
	task.Start()
	if task.IsSuspended() {
		t.Errorf("start did not resume")
	}
	task.Suspend()
	expectFatal(t, task.Suspend)
	checkState(t, task, TaskStateReady)
}

func TestDestroyRequiresTermination(t *testing.T) {
	k, _ := newTestKernel(t, arm.Model32)
	task := NewTask(k, 4096, false, &counter{})
	expectFatal(t, task.Destroy)
	checkState(t, task, TaskStateReady)
}

func TestTrampolineRunsWorkloadOnce(t *testing.T) {
	k, f := newTestKernel(t, arm.Model32)
	baseline := k.Heap.InUse()
	c := &counter{}
	task := NewTask(k, 4096, false, c)
	if halt := f.dispatch(task); halt != nil {
		t.Fatalf("dispatch halted: %v", halt)
	}
	f.check(t)
	if c.runs != 1 {
		t.Errorf("workload ran %d times", c.runs)
	}
	if c.eventSet {
		t.Errorf("completion event was set while the workload ran")
	}
	if !task.event.IsSet() {
		t.Errorf("completion event not set after the workload returned")
	}
	checkState(t, task, TaskStateTerminated)
	if k.Core.IRQsEnabled() {
		t.Errorf("the trampoline terminates with interrupts disabled")
	}
	if f.IsValidTask(task) {
		t.Errorf("terminated task was not retired")
	}
	task.WaitForTermination()

	task.Destroy()
	checkState(t, task, TaskStateUnknown)
	if k.Heap.InUse() != baseline {
		t.Errorf("heap: expected %d granules after destroy but got %d", baseline, k.Heap.InUse())
	}
	if _, ok := k.Task(task.Handle()); ok {
		t.Errorf("destroyed task still known to the kernel")
	}
}

func TestNilWorkloadIsFatal(t *testing.T) {
	k, f := newTestKernel(t, arm.Model32)
	task := NewTask(k, 4096, false, nil)
	halt := f.dispatch(task)
	if _, ok := trust.AsHalt(halt); !ok {
		t.Errorf("running a task with no workload should halt, got %v", halt)
	}
	checkState(t, task, TaskStateReady)
}

func TestTerminateFromWorkload(t *testing.T) {
	k, f := newTestKernel(t, arm.Model32)
	after := false
	task := NewTask(k, 4096, false, RunnerFunc(func(t *Task) {
		t.Terminate()
		after = true
	}))
	if halt := f.dispatch(task); halt != nil {
		t.Fatalf("dispatch halted: %v", halt)
	}
	f.check(t)
	if after {
		t.Errorf("code after Terminate ran")
	}
	checkState(t, task, TaskStateTerminated)
	if !k.Core.IRQsEnabled() {
		t.Errorf("Terminate itself leaves interrupts alone")
	}
}

func TestTerminateOtherTaskIsFatal(t *testing.T) {
	k, _ := newTestKernel(t, arm.Model32)
	task := NewTask(k, 4096, false, &counter{})
	expectFatal(t, task.Terminate)
	checkState(t, task, TaskStateReady)
}

func TestWaitForTerminationWhenAlreadySet(t *testing.T) {
	k, f := newTestKernel(t, arm.Model32)
	task := NewTask(k, 4096, false, &counter{})
	f.dispatch(task)
	// still registered, but the event is already set: no blocking
	delete(f.retired, task)
	waiter := NewTask(k, 4096, false, nil)
	f.runAs(waiter, task.WaitForTermination)
	f.check(t)
}

func TestNameAndUserData(t *testing.T) {
	k, _ := newTestKernel(t, arm.Model32)
	task := NewTask(k, 4096, false, &counter{})
	if task.Name() != "@0x"+strconv.FormatUint(uint64(task.Handle()), 16) {
		t.Errorf("unexpected default name %q", task.Name())
	}
	task.SetName("worker")
	if task.Name() != "worker" {
		t.Errorf("name not set")
	}
	for i := 0; i < UserDataSlots; i++ {
		if task.UserData(i) != nil {
			t.Errorf("slot %d not empty at start", i)
		}
	}
	task.SetUserData(2, "fatfs")
	if task.UserData(2) != "fatfs" {
		t.Errorf("slot 2 lost its value")
	}
	expectFatal(t, func() { task.SetUserData(UserDataSlots, 1) })
	expectFatal(t, func() { task.UserData(-1) })
}
