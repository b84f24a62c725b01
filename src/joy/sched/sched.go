package sched

import (
	"context"
	"fmt"
	"runtime"

	"github.com/golang-collections/collections/queue"
	"github.com/pkg/errors"

	"contentment/src/hardware/arm"
	"contentment/src/joy"
	"contentment/src/lib/trust"
)

var log = trust.Named("sched")

// ErrStalled is the cause of Run's error when tasks remain but none of them
// can ever run again without outside help.
var ErrStalled = errors.New("no runnable task left")

type Options struct {
	// TerminationHandler is called when a terminated task is retired.
	TerminationHandler func(t *joy.Task)
	// SwitchHandler is called each time a task is switched in.
	SwitchHandler func(t *joy.Task)
}

// slot is the scheduler's bookkeeping for one task.  Each task with a stack
// runs on its own goroutine, parked on resume whenever it is not current.
type slot struct {
	task     *joy.Task
	resume   chan struct{}
	started  bool
	blocked  bool
	sleeping bool
	wakeAt   uint64
	retired  bool
}

// Scheduler is a cooperative round-robin scheduler for one core.  The
// goroutine that calls Run is the main task; exactly one of it and the task
// goroutines executes at any moment.
type Scheduler struct {
	k        *joy.Kernel
	core     *arm.Core
	opts     Options
	clock    Clock
	slots    map[*joy.Task]*slot
	rotation *queue.Queue
	main     *slot
	current  *slot
	back     chan interface{}
	halted   error
}

// New attaches a scheduler to k and creates the main task.
func New(k *joy.Kernel, opts Options) *Scheduler {
	s := &Scheduler{
		k:        k,
		core:     k.Core,
		opts:     opts,
		clock:    newClock(k.Params),
		slots:    make(map[*joy.Task]*slot),
		rotation: queue.New(),
		back:     make(chan interface{}),
	}
	k.AttachScheduler(s)
	main := joy.NewTask(k, 0, false, nil)
	main.SetName("main")
	return s
}

func (s *Scheduler) AddTask(t *joy.Task) {
	sl := &slot{task: t, resume: make(chan struct{})}
	s.slots[t] = sl
	if s.main == nil {
		s.main = sl
		s.current = sl
		return
	}
	s.rotation.Enqueue(sl)
	log.Debugf("added %s", t)
}

func (s *Scheduler) IsValidTask(t *joy.Task) bool {
	sl, ok := s.slots[t]
	return ok && !sl.retired
}

func (s *Scheduler) GetCurrentTask() *joy.Task {
	return s.current.task
}

func (s *Scheduler) Main() *joy.Task {
	return s.main.task
}

func (s *Scheduler) HZ() uint64 {
	return s.k.Params.HZ
}

func (s *Scheduler) Ticks() uint64 {
	return s.clock.Now()
}

func (s *Scheduler) currentTaskSlot(op string) *slot {
	cur := s.current
	if cur == s.main {
		log.Fatalf(1, "%s called by the main task outside of a task", op)
	}
	return cur
}

func (s *Scheduler) Yield() {
	s.switchOut(s.currentTaskSlot("Yield"))
}

func (s *Scheduler) BlockTask(waitList **joy.Task) {
	cur := s.currentTaskSlot("BlockTask")
	cur.task.SetWaitListNext(*waitList)
	*waitList = cur.task
	cur.blocked = true
	s.switchOut(cur)
}

func (s *Scheduler) WakeTasks(waitList **joy.Task) {
	for t := *waitList; t != nil; {
		next := t.WaitListNext()
		t.SetWaitListNext(nil)
		if sl, ok := s.slots[t]; ok {
			sl.blocked = false
		}
		t = next
	}
	*waitList = nil
}

func (s *Scheduler) Sleep(seconds uint32) {
	cur := s.currentTaskSlot("Sleep")
	cur.sleeping = true
	cur.wakeAt = s.clock.Now() + uint64(seconds)*s.HZ()
	s.switchOut(cur)
}

// switchOut hands the processor back to the dispatcher and parks the task
// until it is picked again.  A retired task is never picked again: its
// goroutine ends here.
func (s *Scheduler) switchOut(cur *slot) {
	s.back <- nil
	if _, ok := <-cur.resume; !ok {
		runtime.Goexit()
	}
}

func (s *Scheduler) runnable(sl *slot) bool {
	return sl.task.State() == joy.TaskStateReady &&
		!sl.task.IsSuspended() && !sl.blocked && !sl.sleeping
}

// pick rotates the queue until it finds a runnable task, dropping retired
// ones on the way.
func (s *Scheduler) pick() *slot {
	n := s.rotation.Len()
	for i := 0; i < n; i++ {
		sl := s.rotation.Dequeue().(*slot)
		if sl.retired {
			continue
		}
		s.rotation.Enqueue(sl)
		if s.runnable(sl) {
			return sl
		}
	}
	return nil
}

func (s *Scheduler) wakeSleepers() {
	now := s.clock.Now()
	for _, sl := range s.slots {
		if sl.sleeping && now >= sl.wakeAt {
			sl.sleeping = false
		}
	}
}

func (s *Scheduler) nextWake() (uint64, bool) {
	found := false
	var wake uint64
	for _, sl := range s.slots {
		if sl.sleeping && !sl.retired && (!found || sl.wakeAt < wake) {
			wake = sl.wakeAt
			found = true
		}
	}
	return wake, found
}

func (s *Scheduler) live() int {
	n := 0
	for _, sl := range s.slots {
		if sl != s.main && !sl.retired {
			n++
		}
	}
	return n
}

// Run dispatches tasks until none is left.  It returns nil once every task
// has terminated, an error whose cause is ErrStalled if the remaining tasks
// can never run, the *trust.Halt of a task that stopped the machine, or the
// context's error.  Run may be called again after it returns.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Assertf(s.current == s.main, "Run called from task %s", s.current.task.Name())
	for {
		if s.halted != nil {
			return s.halted
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s.wakeSleepers()
		next := s.pick()
		if next == nil {
			if wake, ok := s.nextWake(); ok {
				s.clock.AdvanceTo(ctx, wake)
				continue
			}
			if n := s.live(); n > 0 {
				return errors.Wrapf(ErrStalled, "%d tasks blocked, suspended or never started", n)
			}
			return nil
		}
		s.dispatch(next)
	}
}

func (s *Scheduler) dispatch(next *slot) {
	s.core.Save(s.main.task.Registers())
	s.current = next
	s.core.Restore(next.task.Registers())
	if s.opts.SwitchHandler != nil {
		s.opts.SwitchHandler(next.task)
	}
	if !next.started {
		next.started = true
		s.launch(next)
	}
	next.resume <- struct{}{}
	r := <-s.back

	s.core.Save(next.task.Registers())
	s.current = s.main
	s.core.Restore(s.main.task.Registers())
	s.clock.Tick()

	if r != nil {
		s.halted = haltFrom(next.task, r)
		log.Errorf("task %s stopped the machine: %v", next.task.Name(), s.halted)
		return
	}
	if next.task.State() == joy.TaskStateTerminated {
		s.retire(next)
	}
}

// launch starts the goroutine behind a task.  Its first resume enters the
// task at the program counter of its context.
func (s *Scheduler) launch(sl *slot) {
	go func() {
		if _, ok := <-sl.resume; !ok {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				s.back <- r
			}
		}()
		s.core.Launch(sl.task.Registers())
		panic(&trust.Halt{Code: 1, Message: fmt.Sprintf("task %s returned from its entry point", sl.task.Name())})
	}()
}

func haltFrom(t *joy.Task, r interface{}) error {
	if h, ok := trust.AsHalt(r); ok {
		return h
	}
	return &trust.Halt{Code: 1, Message: fmt.Sprintf("panic in task %s: %v", t.Name(), r)}
}

func (s *Scheduler) retire(sl *slot) {
	sl.retired = true
	delete(s.slots, sl.task)
	close(sl.resume)
	log.Debugf("retired %s", sl.task)
	if s.opts.TerminationHandler != nil {
		s.opts.TerminationHandler(sl.task)
	}
}

// Close releases the goroutines of tasks that will never run again.  The
// scheduler must not be run afterwards.
func (s *Scheduler) Close() {
	for t, sl := range s.slots {
		if sl == s.main || sl.retired {
			continue
		}
		sl.retired = true
		close(sl.resume)
		delete(s.slots, t)
	}
}
