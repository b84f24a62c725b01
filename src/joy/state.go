package joy

import "fmt"

type TaskState int

const (
	TaskStateNew TaskState = iota
	TaskStateReady
	TaskStateTerminated
	TaskStateUnknown
)

func (s TaskState) String() string {
	switch s {
	case TaskStateNew:
		return "new"
	case TaskStateReady:
		return "ready"
	case TaskStateTerminated:
		return "terminated"
	case TaskStateUnknown:
		return "unknown"
	}
	return fmt.Sprintf("state(%d)", int(s))
}
