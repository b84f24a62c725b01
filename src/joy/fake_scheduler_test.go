package joy

import (
	"fmt"
	"runtime"
	"sync"
	"testing"
)

// fakeScheduler runs at most one task at a time, each on a goroutine of its
// own, and treats any attempt to continue a terminated task as a failure.
type fakeScheduler struct {
	lock       sync.Mutex
	k          *Kernel
	main       *Task
	current    *Task
	registered map[*Task]bool
	retired    map[*Task]bool
	woken      []*Task
	ticks      uint64
	violations []string
}

func newFakeScheduler(k *Kernel) *fakeScheduler {
	f := &fakeScheduler{
		k:          k,
		registered: make(map[*Task]bool),
		retired:    make(map[*Task]bool),
	}
	k.AttachScheduler(f)
	f.main = NewTask(k, 0, false, nil)
	f.current = f.main
	return f
}

func (f *fakeScheduler) AddTask(t *Task) {
	f.registered[t] = true
}

func (f *fakeScheduler) IsValidTask(t *Task) bool {
	return f.registered[t] && !f.retired[t]
}

func (f *fakeScheduler) violate(format string, params ...interface{}) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.violations = append(f.violations, fmt.Sprintf(format, params...))
}

// Yield from a terminated task retires it and ends its goroutine; any other
// yield just carries on, since nothing else is runnable.
func (f *fakeScheduler) Yield() {
	cur := f.current
	if f.retired[cur] {
		f.violate("retired task %s yielded", cur.Name())
	}
	if cur.State() == TaskStateTerminated {
		f.retired[cur] = true
		runtime.Goexit()
	}
}

func (f *fakeScheduler) GetCurrentTask() *Task {
	return f.current
}

func (f *fakeScheduler) BlockTask(waitList **Task) {
	f.violate("task %s blocked with nobody to wake it", f.current.Name())
	runtime.Goexit()
}

func (f *fakeScheduler) WakeTasks(waitList **Task) {
	for t := *waitList; t != nil; {
		next := t.WaitListNext()
		t.SetWaitListNext(nil)
		f.woken = append(f.woken, t)
		t = next
	}
	*waitList = nil
}

func (f *fakeScheduler) Sleep(seconds uint32) {
	f.ticks += uint64(seconds) * f.HZ()
}

func (f *fakeScheduler) Ticks() uint64 {
	return f.ticks
}

func (f *fakeScheduler) HZ() uint64 {
	return 100
}

// runAs makes t current and calls fn on a goroutine of its own, waiting for
// it to return or exit.  A halt inside fn is returned.
func (f *fakeScheduler) runAs(t *Task, fn func()) (halt interface{}) {
	done := make(chan struct{})
	f.current = t
	go func() {
		defer close(done)
		defer func() {
			halt = recover()
		}()
		fn()
		if t.State() == TaskStateTerminated {
			f.violate("terminated task %s kept running", t.Name())
		}
	}()
	<-done
	f.current = f.main
	return halt
}

// dispatch switches into t the way a real scheduler does the first time.
func (f *fakeScheduler) dispatch(t *Task) interface{} {
	return f.runAs(t, func() {
		f.k.Core.Restore(t.Registers())
		f.k.Core.Launch(t.Registers())
		f.violate("trampoline of %s returned", t.Name())
	})
}

func (f *fakeScheduler) check(t *testing.T) {
	t.Helper()
	for _, v := range f.violations {
		t.Errorf("scheduler contract: %s", v)
	}
}
