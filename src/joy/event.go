package joy

// SynchronizationEvent is a flag tasks can wait on.  Waiters sit on an
// intrusive list threaded through the tasks themselves.
type SynchronizationEvent struct {
	k        *Kernel
	set      bool
	waitList *Task
}

func newSynchronizationEvent(k *Kernel) SynchronizationEvent {
	return SynchronizationEvent{k: k}
}

func (e *SynchronizationEvent) IsSet() bool {
	return e.set
}

// Set raises the event and makes every waiter runnable.  Setting a set event
// does nothing.
func (e *SynchronizationEvent) Set() {
	if e.set {
		return
	}
	e.set = true
	e.k.Scheduler().WakeTasks(&e.waitList)
}

// Wait returns once the event is set, blocking the current task until then.
func (e *SynchronizationEvent) Wait() {
	for !e.set {
		e.k.Scheduler().BlockTask(&e.waitList)
	}
}
