package joy

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Console is where task output lands: the UART on a board, a terminal or a
// buffer here.
type Console interface {
	Logf(string, ...interface{})
	WriteLine(string)
}

type ConsoleImpl struct {
	lock sync.Mutex
	w    io.Writer
	crlf bool
}

// NewConsole writes lines to w.  With crlf set every newline goes out as
// "\r\n", which a raw terminal needs.
func NewConsole(w io.Writer, crlf bool) *ConsoleImpl {
	return &ConsoleImpl{w: w, crlf: crlf}
}

func (c *ConsoleImpl) Logf(format string, values ...interface{}) {
	if format == "" {
		return
	}
	c.WriteLine(fmt.Sprintf(format, values...))
}

// WriteLine writes s and ends the line if s did not.
func (c *ConsoleImpl) WriteLine(s string) {
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	if c.crlf {
		s = strings.ReplaceAll(s, "\n", "\r\n")
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	if _, err := io.WriteString(c.w, s); err != nil {
		log.Warnf("console write: %v", err)
	}
}
