package main

import (
	"github.com/pkg/errors"

	"contentment/src/hardware/arm"
	"contentment/src/joy"
	"contentment/src/ladies/libc"
	"contentment/src/ladies/madeleine"
)

const demoStackSize = 0x4000

// startTasks creates the user tasks, the kernel demo tasks and a reaper
// that waits for all of them.  The reaper is last so it is destroyed last.
func startTasks(k *joy.Kernel, users, kernel int) ([]*joy.Task, error) {
	var tasks []*joy.Task
	if users > 0 && k.Model() != arm.Model32 {
		return nil, errors.Errorf("user tasks need the aarch32 model, the board is %s", k.Model())
	}
	for i := 0; i < users; i++ {
		img, err := madeleine.Image()
		if err != nil {
			return nil, errors.Wrap(err, "madeleine image")
		}
		u := joy.NewUserModeTask(k, img)
		u.SetName(libc.Sprintf("%s-%d", madeleine.Name, i+1))
		tasks = append(tasks, u.Task)
	}
	for i := 0; i < kernel; i++ {
		t := joy.NewTask(k, demoStackSize, false, joy.RunnerFunc(kernelDemo))
		t.SetName(libc.Sprintf("kernel-%d", i+1))
		tasks = append(tasks, t)
	}
	others := append([]*joy.Task(nil), tasks...)
	reaper := joy.NewTask(k, demoStackSize, false, joy.RunnerFunc(func(t *joy.Task) {
		for _, o := range others {
			o.WaitForTermination()
		}
		c := libc.New(k.Core)
		c.Print(libc.Sprintf("[%08x] all %d tasks done", c.GetTime(), len(others)))
	}))
	reaper.SetName("reaper")
	return append(tasks, reaper), nil
}

// kernelDemo runs in System mode but talks to the kernel through the same
// swi interface as user programs.
func kernelDemo(t *joy.Task) {
	c := libc.New(t.Kernel().Core)
	name := c.GetTaskName(64)
	for i := 0; i < 2; i++ {
		c.Print(libc.Sprintf("[%08x] Kernel task %s is running. CPSR=0x%08x", c.GetTime(), name, c.CPSR()))
		c.Sleep(2)
	}
}
