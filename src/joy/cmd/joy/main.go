package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	tty "github.com/mattn/go-tty"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"contentment/src/boot/bootloader"
	"contentment/src/joy"
	"contentment/src/joy/sched"
	"contentment/src/joy/svc"
	"contentment/src/lib/trust"
)

var helpFlag = flag.Bool("h", false, "get usage info")
var configFlag = flag.String("c", "", "board configuration (yaml), defaults are used when empty")
var ttyFlag = flag.String("p", "", "supply a TTY device for the console, stdout when empty")
var usersFlag = flag.Int("u", 2, "number of madeleine user tasks to start")
var kernelFlag = flag.Int("k", 1, "number of kernel demo tasks to start")
var logFlag = flag.String("l", "", "log level (none, error, warn, info, debug), overrides the configuration")

func usage() {
	fmt.Printf("usage: joy [flags]\n")
	flag.PrintDefaults()
	os.Exit(1)
}

func main() {
	flag.Parse()
	if *helpFlag || flag.NArg() != 0 {
		usage()
	}
	os.Exit(boot())
}

func loadParams() (*bootloader.Params, error) {
	p := bootloader.Default()
	if *configFlag != "" {
		var err error
		if p, err = bootloader.Load(*configFlag); err != nil {
			return nil, err
		}
	}
	if *logFlag != "" {
		p.LogLevel = *logFlag
	}
	return p, nil
}

// openConsole returns the console writer and a function to put the device
// back the way it was.
func openConsole() (io.Writer, bool, func() error, error) {
	if *ttyFlag == "" {
		return os.Stdout, false, func() error { return nil }, nil
	}
	t, err := tty.OpenDevice(*ttyFlag)
	if err != nil {
		return nil, false, nil, errors.Wrapf(err, "opening %s", *ttyFlag)
	}
	restore := t.MustRaw()
	return t.Output(), true, func() error {
		return multierr.Append(restore(), t.Close())
	}, nil
}

func boot() int {
	p, err := loadParams()
	if err != nil {
		trust.Errorf("%v", err)
		return 1
	}
	mask, err := trust.ParseLevel(p.LogLevel)
	if err != nil {
		trust.Errorf("%v", err)
		return 1
	}
	trust.SetMask(mask)

	w, crlf, closeConsole, err := openConsole()
	if err != nil {
		trust.Errorf("%v", err)
		return 1
	}
	defer func() {
		if err := closeConsole(); err != nil {
			trust.Warnf("closing console: %v", err)
		}
	}()
	console := joy.NewConsole(w, crlf)

	k, err := joy.NewKernel(p, console)
	if err != nil {
		trust.Errorf("boot: %v", err)
		return 1
	}
	s := sched.New(k, sched.Options{
		TerminationHandler: func(t *joy.Task) {
			trust.Debugf("%s terminated", t.Name())
		},
	})
	defer s.Close()
	svc.Install(k, console)

	tasks, err := startTasks(k, *usersFlag, *kernelFlag)
	if err != nil {
		trust.Errorf("%v", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		if h, ok := trust.AsHalt(err); ok {
			return h.Code
		}
		trust.Errorf("%v", err)
		return 1
	}

	for _, t := range tasks {
		t.Destroy()
	}
	k.Report()
	if err := k.Shutdown(); err != nil {
		trust.Errorf("shutdown: %v", err)
		return 1
	}
	return 0
}
