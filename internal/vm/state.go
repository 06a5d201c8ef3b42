package vm

// State is the lifecycle state of an instance as observed by its
// controller. Exactly one value holds at any time per instance; the
// controller persists every authoritative change through its
// StatusMonitor.
type State string

const (
	// StateOff means the instance is not running. It is also used
	// internally as the sentinel a stop request forces while a start
	// is still settling.
	StateOff State = "off"
	// StateStarting means a start was requested and the instance has
	// not yet been confirmed running.
	StateStarting State = "starting"
	// StateRunning means the instance is up.
	StateRunning State = "running"
	// StateStopped means the instance exists but is not running.
	StateStopped State = "stopped"
	// StateSuspending means the remote is freezing the instance.
	StateSuspending State = "suspending"
	// StateSuspended means the instance is frozen.
	StateSuspended State = "suspended"
	// StateDelayedShutdown means a stop was requested but the remote
	// has not yet reported non-running.
	StateDelayedShutdown State = "delayed_shutdown"
	// StateUnknown means the remote reported a status this driver
	// does not recognize, or a transitional status with no local
	// equivalent.
	StateUnknown State = "unknown"
)

// String returns the state name.
func (s State) String() string {
	return string(s)
}

// IsRunning reports whether the instance is up or still counts as up
// for the purposes of shutdown handling.
func (s State) IsRunning() bool {
	return s == StateRunning || s == StateDelayedShutdown
}
