// Package madeleine is the demo user program: it prints a banner with its
// name a few times, sleeping a second between lines, and exits.
package madeleine

import (
	"contentment/src/hardware/arm"
	"contentment/src/ladies/libc"
	"contentment/src/lib/loader"
)

const Name = "madeleine"

// Iterations is how many banners the program prints.
const Iterations = 3

func init() {
	loader.Register(Name, Main)
}

// Image returns a fresh image of the program, ready for a user task.
func Image() (*loader.Image, error) {
	return loader.NewImage(Name)
}

// Main is the program's entry point.
func Main(cpu *arm.Core) {
	libc.Start(cpu, run)
}

func run(c *libc.C) {
	cpsr := c.CPSR()
	name := c.GetTaskName(128)
	for i := 0; i < Iterations; i++ {
		c.Print(libc.Sprintf("[%08x] Task %s is running. CPSR=0x%08x\n", c.GetTime(), name, cpsr))
		c.Sleep(1)
	}
}
