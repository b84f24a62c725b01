package trust

import "fmt"

// Halt is what a stopped machine leaves behind: the exit code given to Fatalf
// and the message that explained it.
type Halt struct {
	Code    int
	Message string
}

func (h *Halt) Error() string {
	return fmt.Sprintf("machine halted (code %d): %s", h.Code, h.Message)
}

// haltFn is replaced by tests and by hosts that want to stop differently.  The
// default unwinds the calling goroutine so whoever owns it can report the halt.
var haltFn = func(h *Halt) {
	panic(h)
}

func halt(h *Halt) {
	lock.Lock()
	fn := haltFn
	lock.Unlock()
	fn(h)
	// a replacement halt function must not return either
	panic(h)
}

// SetHaltFunc installs fn as the halt handler and returns the previous one.
func SetHaltFunc(fn func(*Halt)) func(*Halt) {
	lock.Lock()
	defer lock.Unlock()
	prev := haltFn
	haltFn = fn
	return prev
}

// AsHalt reports whether a recovered panic value is a machine halt.
func AsHalt(r interface{}) (*Halt, bool) {
	h, ok := r.(*Halt)
	return h, ok
}
