package fanout

import "fmt"

// PanicError carries a value recovered from a panicking task.
type PanicError struct {
	Task  string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("fanout: task %s panicked: %v", e.Task, e.Value)
}
