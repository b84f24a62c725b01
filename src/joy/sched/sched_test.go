package sched

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"contentment/src/boot/bootloader"
	"contentment/src/hardware/arm"
	"contentment/src/joy"
	"contentment/src/lib/trust"
)

func TestMain(m *testing.M) {
	trust.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func newTestScheduler(t *testing.T, opts Options) (*joy.Kernel, *Scheduler) {
	t.Helper()
	p := bootloader.Default()
	p.RAMSize = 0x80_0000
	p.TableAreaStart = 0x30_0000
	p.UserPagesStart = 0x40_0000
	p.UserPagesSize = 0x40_0000
	k, err := joy.NewKernel(p, nil)
	if err != nil {
		t.Fatalf("unable to boot: %v", err)
	}
	s := New(k, opts)
	t.Cleanup(s.Close)
	return k, s
}

func run(t *testing.T, s *Scheduler) {
	t.Helper()
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func spawn(k *joy.Kernel, fn func(t *joy.Task)) *joy.Task {
	return joy.NewTask(k, 0x1000, false, joy.RunnerFunc(fn))
}

func TestYieldAlternates(t *testing.T) {
	k, s := newTestScheduler(t, Options{})
	var order []string
	worker := func(name string) func(*joy.Task) {
		return func(*joy.Task) {
			for i := 0; i < 3; i++ {
				order = append(order, name)
				s.Yield()
			}
		}
	}
	spawn(k, worker("a"))
	spawn(k, worker("b"))
	run(t, s)
	if strings.Join(order, "") != "ababab" {
		t.Errorf("expected round robin, got %v", order)
	}
}

func TestCurrentTaskIsTheRunner(t *testing.T) {
	k, s := newTestScheduler(t, Options{})
	var seen *joy.Task
	task := spawn(k, func(t *joy.Task) { seen = s.GetCurrentTask() })
	if s.GetCurrentTask() != s.Main() {
		t.Errorf("outside Run the main task is current")
	}
	run(t, s)
	if seen != task {
		t.Errorf("GetCurrentTask inside the workload returned %v", seen)
	}
}

func TestWaiterObservesTermination(t *testing.T) {
	k, s := newTestScheduler(t, Options{})
	var observed joy.TaskState
	var setBefore bool
	worker := spawn(k, func(t *joy.Task) {
		s.Yield()
		s.Yield()
	})
	spawn(k, func(t *joy.Task) {
		worker.WaitForTermination()
		observed = worker.State()
	})
	spawn(k, func(t *joy.Task) {
		// the worker is still running at this point
		setBefore = worker.State() == joy.TaskStateTerminated
	})
	run(t, s)
	if observed != joy.TaskStateTerminated {
		t.Errorf("waiter woke with the worker %s", observed)
	}
	if setBefore {
		t.Errorf("worker terminated before its workload returned")
	}
	if s.IsValidTask(worker) {
		t.Errorf("terminated worker not retired")
	}
	// retired: returns at once, even from a task
	spawn(k, func(t *joy.Task) { worker.WaitForTermination() })
	run(t, s)
}

func TestTerminatedTaskNeverReentered(t *testing.T) {
	k, s := newTestScheduler(t, Options{})
	entries, after := 0, false
	retired := []*joy.Task{}
	s.opts.TerminationHandler = func(t *joy.Task) { retired = append(retired, t) }
	task := spawn(k, func(t *joy.Task) {
		entries++
		t.Terminate()
		after = true
	})
	spawn(k, func(*joy.Task) {
		for i := 0; i < 5; i++ {
			s.Yield()
		}
	})
	run(t, s)
	if entries != 1 || after {
		t.Errorf("terminated task re-entered: entries %d, after %v", entries, after)
	}
	if len(retired) != 2 || retired[0] != task {
		t.Errorf("termination handler saw %v", retired)
	}
	task.Destroy()
}

func TestSleepWaitsForTicks(t *testing.T) {
	k, s := newTestScheduler(t, Options{})
	var before, after uint64
	spawn(k, func(*joy.Task) {
		before = s.Ticks()
		s.Sleep(2)
		after = s.Ticks()
	})
	busy := 0
	spawn(k, func(*joy.Task) {
		for i := 0; i < 50; i++ {
			busy++
			s.Yield()
		}
	})
	run(t, s)
	if after-before < 2*s.HZ() {
		t.Errorf("sleep(2) returned after %d ticks at %d HZ", after-before, s.HZ())
	}
	if busy != 50 {
		t.Errorf("the other task did not run while the first slept")
	}
}

func TestSuspendedTasksStall(t *testing.T) {
	k, s := newTestScheduler(t, Options{})
	ran := false
	task := joy.NewTask(k, 0x1000, true, joy.RunnerFunc(func(*joy.Task) { ran = true }))
	err := s.Run(context.Background())
	if errors.Cause(err) != ErrStalled {
		t.Fatalf("expected a stall, got %v", err)
	}
	if ran {
		t.Errorf("a new task ran before Start")
	}
	task.Start()
	run(t, s)
	if !ran {
		t.Errorf("task did not run after Start")
	}
}

func TestSuspendFromAnotherTask(t *testing.T) {
	k, s := newTestScheduler(t, Options{})
	count := 0
	var victim *joy.Task
	victim = spawn(k, func(*joy.Task) {
		for i := 0; i < 10; i++ {
			count++
			s.Yield()
		}
	})
	spawn(k, func(*joy.Task) {
		victim.Suspend()
		for i := 0; i < 5; i++ {
			s.Yield()
		}
		if count != 1 {
			t.Errorf("suspended task kept running: %d", count)
		}
		victim.Start()
	})
	run(t, s)
	if count != 10 {
		t.Errorf("resumed task did not finish: %d", count)
	}
}

func TestHaltInsideTask(t *testing.T) {
	k, s := newTestScheduler(t, Options{})
	spawn(k, func(*joy.Task) {
		trust.Fatalf(9, "disk on fire")
	})
	err := s.Run(context.Background())
	h, ok := err.(*trust.Halt)
	if !ok || h.Code != 9 {
		t.Fatalf("expected the halt back from Run, got %v", err)
	}
	if err := s.Run(context.Background()); err != h {
		t.Errorf("a halted machine stays halted")
	}
}

func TestPanicInsideTaskHalts(t *testing.T) {
	k, s := newTestScheduler(t, Options{})
	spawn(k, func(*joy.Task) {
		var m map[string]int
		m["boom"] = 1
	})
	err := s.Run(context.Background())
	if _, ok := err.(*trust.Halt); !ok || !strings.Contains(err.Error(), "panic") {
		t.Errorf("expected a panic to halt the machine, got %v", err)
	}
}

func TestSwitchInstallsTaskContext(t *testing.T) {
	var ids []uint32
	var k *joy.Kernel
	k, s := newTestScheduler(t, Options{
		SwitchHandler: func(t *joy.Task) {
			ids = append(ids, k.Core.ReadContextID())
		},
	})
	a := spawn(k, func(*joy.Task) {})
	b := spawn(k, func(*joy.Task) {})
	bootTTBR0 := k.Core.ReadTTBR0()
	run(t, s)
	if len(ids) != 2 || ids[0] != uint32(a.Handle()) || ids[1] != uint32(b.Handle()) {
		t.Errorf("context ids at switch: %x", ids)
	}
	if k.Core.ReadTTBR0() != bootTTBR0 || k.Core.ReadContextID() != 0 {
		t.Errorf("main task context not restored after Run")
	}
	if k.Core.Mode() != arm.ModeSystem || !k.Core.IRQsEnabled() {
		t.Errorf("main task status not restored: %#x", k.Core.CPSR())
	}
}

func TestWaitForTerminationFromMainIsFatal(t *testing.T) {
	k, _ := newTestScheduler(t, Options{})
	worker := spawn(k, func(*joy.Task) {})
	defer func() {
		if _, ok := trust.AsHalt(recover()); !ok {
			t.Errorf("expected a halt")
		}
	}()
	worker.WaitForTermination()
}

func TestRealtimeSleepHonoursContext(t *testing.T) {
	k, s := newTestScheduler(t, Options{})
	s.clock = newRealtimeClock(k.Params.HZ)
	spawn(k, func(*joy.Task) { s.Sleep(3600) })
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != context.DeadlineExceeded {
		t.Errorf("expected the deadline, got %v", err)
	}
}

func TestRealtimeClockAdvances(t *testing.T) {
	c := newRealtimeClock(1000)
	start := c.Now()
	c.AdvanceTo(context.Background(), start+5)
	if c.Now() < start+5 {
		t.Errorf("clock at %d, expected at least %d", c.Now(), start+5)
	}
}
