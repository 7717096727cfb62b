package orchestrator

import "fmt"

// privilegeError indicates the tooling was invoked without the elevation it
// needs; nothing has been mutated when it is returned.
type privilegeError struct{ op string }

func (e privilegeError) Error() string {
	return fmt.Sprintf("%s requires root privileges; re-run with sudo or from the resgov service unit", e.op)
}

// ErrPrivilege constructs a privilegeError for the given operation.
func ErrPrivilege(op string) error { return privilegeError{op: op} }

// IsPrivilege reports whether err is a privilege failure.
func IsPrivilege(err error) bool {
	_, ok := err.(privilegeError)
	return ok
}

// lockBusyError indicates another governance invocation holds the host lock.
type lockBusyError struct{ path string }

// ErrLockBusy constructs a lockBusyError for the given lock path.
func ErrLockBusy(path string) error { return lockBusyError{path: path} }

func (e lockBusyError) Error() string {
	return fmt.Sprintf("another resgov invocation holds %s; at most one writer may mutate host configuration", e.path)
}

// IsLockBusy reports whether err means the host lock was already held.
func IsLockBusy(err error) bool {
	_, ok := err.(lockBusyError)
	return ok
}
