package joy

// Scheduler is what the task core needs from whoever decides which task runs.
// Everything here is called from the currently running task (or the main
// task); there is a single logical processor and no preemption in the core.
type Scheduler interface {
	// AddTask registers a newly built task.  Every Task calls it exactly once,
	// from NewTask, after its registers are ready.
	AddTask(t *Task)
	// IsValidTask is true until the scheduler has retired t.
	IsValidTask(t *Task) bool
	// Yield gives up the processor.  For a terminated task it never returns.
	Yield()
	GetCurrentTask() *Task
	// BlockTask links the current task into waitList and yields until a
	// WakeTasks on the same list makes it runnable again.
	BlockTask(waitList **Task)
	// WakeTasks makes every task on waitList runnable and empties the list.
	// It does not yield.
	WakeTasks(waitList **Task)
	// Sleep blocks the current task for at least seconds*HZ ticks.
	Sleep(seconds uint32)
	Ticks() uint64
	HZ() uint64
}
