package joy

import (
	"sort"

	"go.uber.org/multierr"

	"contentment/src/boot/bootloader"
	"contentment/src/hardware/arm"
	"contentment/src/lib/loader"
	"contentment/src/lib/trust"
	"contentment/src/lib/upbeat"
)

var log = trust.Named("joy")

// Kernel ties the board together: the core, its RAM, the three physical
// allocators, the kernel's translation table and the scheduler that runs
// tasks.
type Kernel struct {
	Params      *bootloader.Params
	Core        *arm.Core
	Memory      *upbeat.PhysicalMemory
	Heap        *upbeat.FrameAllocator // task control blocks and stacks
	Tables      *upbeat.FrameAllocator // L1 translation tables
	Pages       *upbeat.FrameAllocator // 1MB sections for user tasks
	KernelTable *PageTable             // nil on the 64 bit model
	Console     Console
	sched       Scheduler
	tasks       map[Handle]*Task
}

// NewKernel boots the board described by p.  On the 32 bit model it builds
// the kernel translation table, an identity map of RAM for privileged code
// only, and installs it.  The trampoline is placed at TaskEntryPtr.
func NewKernel(p *bootloader.Params, console Console) (*Kernel, error) {
	if err := p.Validate(); err != nil {
		log.Errorf("board parameters: %v", err)
		return nil, ErrorKernelBadParameters
	}
	mem := upbeat.NewPhysicalMemory(p.RAMBase, p.RAMSize)
	heap, err := upbeat.NewFrameAllocator("kernel heap", mem, p.KernelHeapStart, p.KernelHeapSize, bootloader.HeapGranule)
	if err != nil {
		return nil, ErrorMemoryBadRegion
	}
	tables, err := upbeat.NewFrameAllocator("translation tables", mem, p.TableAreaStart, p.TableAreaSize, arm.L1TableSize)
	if err != nil {
		return nil, ErrorMemoryBadRegion
	}
	pages, err := upbeat.NewFrameAllocator("user pages", mem, p.UserPagesStart, p.UserPagesSize, arm.SectionSize)
	if err != nil {
		return nil, ErrorMemoryBadRegion
	}
	k := &Kernel{
		Params:  p,
		Core:    arm.NewCore(p.ProcessorModel(), mem),
		Memory:  mem,
		Heap:    heap,
		Tables:  tables,
		Pages:   pages,
		Console: console,
		tasks:   make(map[Handle]*Task),
	}
	if k.Model() == arm.Model32 {
		kt, err := newKernelPageTable(k)
		if err != nil {
			return nil, err
		}
		k.KernelTable = kt
		k.Core.SetTranslationTable(kt.TTBR0(), 0)
	}
	k.Core.RegisterRoutine(TaskEntryPtr, "TaskEntry", k.taskEntry)
	k.Core.SetExecutor(loader.NewExecutor())
	log.Debugf("booted %s board: %#x bytes of ram at %#x", k.Model(), p.RAMSize, p.RAMBase)
	return k, nil
}

func (k *Kernel) Model() arm.Model {
	return k.Core.Model()
}

// AttachScheduler must be called once, before the first task is built.
func (k *Kernel) AttachScheduler(s Scheduler) {
	log.Assertf(k.sched == nil, "a scheduler is already attached")
	k.sched = s
}

func (k *Kernel) Scheduler() Scheduler {
	if k.sched == nil {
		log.Fatalf(1, "%v", ErrorKernelNoScheduler)
	}
	return k.sched
}

// Task returns the live (not yet destroyed) task with handle h.
func (k *Kernel) Task(h Handle) (*Task, bool) {
	t, ok := k.tasks[h]
	return t, ok
}

// Tasks lists every task that has not been destroyed, in handle order.
func (k *Kernel) Tasks() []*Task {
	result := make([]*Task, 0, len(k.tasks))
	for _, t := range k.tasks {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].handle < result[j].handle
	})
	return result
}

// Report logs the accounting of the three allocators.
func (k *Kernel) Report() {
	k.Heap.Report()
	k.Tables.Report()
	k.Pages.Report()
}

// Shutdown releases the kernel translation table.  Every task must have
// been destroyed.
func (k *Kernel) Shutdown() error {
	var err error
	for _, t := range k.tasks {
		if t.stack != 0 {
			err = multierr.Append(err, errTaskStillAlive(t))
		}
	}
	if err != nil {
		return err
	}
	if k.KernelTable != nil {
		k.Core.SetTranslationTable(0, 0)
		err = multierr.Append(err, k.KernelTable.Release())
		k.KernelTable = nil
	}
	return err
}

type taskAliveError struct {
	name  string
	state TaskState
}

func (e *taskAliveError) Error() string {
	return "task " + e.name + " is still " + e.state.String()
}

func errTaskStillAlive(t *Task) error {
	return &taskAliveError{name: t.name, state: t.state}
}
