package trust

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

type MaskLevel int

const (
	Nothing   MaskLevel = 0x0
	ErrorMask MaskLevel = 0x1
	WarnMask  MaskLevel = 0x2
	InfoMask  MaskLevel = 0x4
	DebugMask MaskLevel = 0x8
	StatsMask MaskLevel = 0x10
	fatalMask MaskLevel = 0x80
)

var (
	lock  sync.Mutex
	level = fatalMask | StatsMask | ErrorMask | WarnMask | InfoMask
	root  = newBackend("", os.Stderr)
)

func newBackend(name string, w io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:            name,
		Level:           hclog.Trace,
		Output:          w,
		DisableTime:     true,
		IncludeLocation: false,
	})
}

// SetLevel lets you set an error mask directly. You can pass in something like
// ErrorMask | DebugMask to control exactly what gets printed.  It returns the
// previous mask.
func SetLevel(mask MaskLevel) MaskLevel {
	if mask&0xf == 0 {
		root.Warn("trust.SetLevel is turning off log messages")
	}
	result := Nothing
	switch {
	case mask&ErrorMask > 0:
		result |= ErrorMask
		fallthrough
	case mask&WarnMask > 0:
		result |= WarnMask
		fallthrough
	case mask&InfoMask > 0:
		result |= InfoMask
		fallthrough
	case mask&DebugMask > 0:
		result |= DebugMask
		fallthrough
	case mask&StatsMask > 0:
		result |= StatsMask
	}
	lock.Lock()
	defer lock.Unlock()
	r := level & 0x1f
	level = result | fatalMask
	return r
}

func Level() MaskLevel {
	lock.Lock()
	defer lock.Unlock()
	return level
}

// SetMask installs exactly the given mask, without the cascading SetLevel does.
// It returns the previous mask.
func SetMask(mask MaskLevel) MaskLevel {
	lock.Lock()
	defer lock.Unlock()
	r := level & 0x1f
	level = (mask & 0x1f) | fatalMask
	return r
}

// ParseLevel converts a verbosity name (error, warn, info, debug) into a mask
// for SetMask.  Each name includes the more severe levels; info and debug also
// include stats.
func ParseLevel(name string) (MaskLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "off":
		return Nothing, nil
	case "error":
		return ErrorMask, nil
	case "warn", "warning":
		return ErrorMask | WarnMask, nil
	case "", "info":
		return ErrorMask | WarnMask | InfoMask | StatsMask, nil
	case "debug":
		return ErrorMask | WarnMask | InfoMask | DebugMask | StatsMask, nil
	}
	return Nothing, fmt.Errorf("unknown log level %q", name)
}

func LevelToString() string {
	l := Level()
	names := []string{}
	for _, n := range []struct {
		m    MaskLevel
		name string
	}{{ErrorMask, "error"}, {WarnMask, "warn"}, {InfoMask, "info"}, {DebugMask, "debug"}, {StatsMask, "stats"}} {
		if l&n.m > 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, " ")
}

// SetOutput redirects every logger, including ones already handed out by Named,
// to w.
func SetOutput(w io.Writer) {
	lock.Lock()
	defer lock.Unlock()
	root = newBackend("", w)
}

// Logger is a named view onto the shared log stream.  The zero value logs
// without a name.
type Logger struct {
	name string
}

// Named returns a logger whose lines carry the given subsystem name.
func Named(name string) *Logger {
	return &Logger{name: name}
}

func (l *Logger) backend() hclog.Logger {
	lock.Lock()
	defer lock.Unlock()
	if l == nil || l.name == "" {
		return root
	}
	return root.Named(l.name)
}

func (l *Logger) logf(m MaskLevel, format string, params ...interface{}) {
	if Level()&m == 0 {
		return
	}
	b := l.backend()
	switch {
	case m&fatalMask > 0:
		b.Error("FATAL: " + strings.TrimRight(fmt.Sprintf(format, params...), "\n"))
	case m&ErrorMask > 0:
		b.Error(strings.TrimRight(fmt.Sprintf(format, params...), "\n"))
	case m&WarnMask > 0:
		b.Warn(strings.TrimRight(fmt.Sprintf(format, params...), "\n"))
	case m&InfoMask > 0:
		b.Info(strings.TrimRight(fmt.Sprintf(format, params...), "\n"))
	case m&DebugMask > 0:
		b.Debug(strings.TrimRight(fmt.Sprintf(format, params...), "\n"))
	case m&StatsMask > 0:
		category, ok := params[0].(string)
		if !ok {
			category = "unknown"
		}
		b.Info(strings.TrimRight(fmt.Sprintf(format, params[1:]...), "\n"), "stats", category)
	}
}

// Fatalf logs the message (format + params) and then halts the machine with
// exitCode.  Fatalf is not maskable and does not return.
func (l *Logger) Fatalf(exitCode int, format string, params ...interface{}) {
	l.logf(fatalMask, format, params...)
	halt(&Halt{Code: exitCode, Message: fmt.Sprintf(format, params...)})
}

// Assertf halts the machine when cond is false.
func (l *Logger) Assertf(cond bool, format string, params ...interface{}) {
	if cond {
		return
	}
	l.Fatalf(1, "assertion failed: "+format, params...)
}

// Errorf prints the given log message (format + params) using the ErrorMask level.
func (l *Logger) Errorf(format string, params ...interface{}) {
	l.logf(ErrorMask, format, params...)
}

// Warnf prints the given log message (format + params) using the WarnMask level.
func (l *Logger) Warnf(format string, params ...interface{}) {
	l.logf(WarnMask, format, params...)
}

// Infof prints the given log message (format + params) using the InfoMask level.
func (l *Logger) Infof(format string, params ...interface{}) {
	l.logf(InfoMask, format, params...)
}

// Debugf prints the given log message (format + params) using the DebugMask level.
func (l *Logger) Debugf(format string, params ...interface{}) {
	l.logf(DebugMask, format, params...)
}

// Statsf prints the given log message (format + params) using the StatsMask level and
// takes an extra parameter that will be visible in the log message as the category
// of stats that is reported.
func (l *Logger) Statsf(category string, format string, params ...interface{}) {
	l.logf(StatsMask, format, append([]interface{}{category}, params...)...)
}

var std = &Logger{}

func Fatalf(exitCode int, format string, params ...interface{}) {
	std.Fatalf(exitCode, format, params...)
}

func Assertf(cond bool, format string, params ...interface{}) {
	if cond {
		return
	}
	std.Fatalf(1, "assertion failed: "+format, params...)
}

func Errorf(format string, params ...interface{}) {
	std.logf(ErrorMask, format, params...)
}

func Warnf(format string, params ...interface{}) {
	std.logf(WarnMask, format, params...)
}

func Infof(format string, params ...interface{}) {
	std.logf(InfoMask, format, params...)
}

func Debugf(format string, params ...interface{}) {
	std.logf(DebugMask, format, params...)
}

func Statsf(category string, format string, params ...interface{}) {
	std.logf(StatsMask, format, append([]interface{}{category}, params...)...)
}
