package joy

import (
	"contentment/src/boot/bootloader"
	"contentment/src/hardware/arm"
)

// TaskEntryPtr is where the trampoline sits in the kernel image.  Every task
// with a stack starts there.
const TaskEntryPtr = arm.FuncPtr(bootloader.KernelLoadAddress + 0x40)

// taskEntry is the trampoline: it runs the workload of the task whose handle
// it is given, then terminates it.  It never returns.
func (k *Kernel) taskEntry(arg uint64) {
	t, ok := k.tasks[Handle(arg)]
	log.Assertf(ok, "task entry with unknown handle %#x", arg)

	t.run()

	k.Core.DisableIRQs()
	t.state = TaskStateTerminated
	t.event.Set()
	k.Scheduler().Yield()
	log.Fatalf(1, "terminated task %s was resumed", t.name)
}

func (t *Task) run() {
	if t.workload == nil {
		log.Fatalf(1, "task %s has no workload to run", t.name)
	}
	t.workload.Run(t)
}
