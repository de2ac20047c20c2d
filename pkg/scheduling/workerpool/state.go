package workerpool

// State is the lifecycle state of a Pool.
//
// Transitions are Running → Stopping → Stopped. Running → Stopping happens
// once, on the first Stop/Shutdown call. Stopping → Stopped happens when the
// last worker has drained the queue and exited.
type State int

const (
	// StateRunning accepts submissions.
	StateRunning State = iota
	// StateStopping rejects submissions while workers drain the queue.
	StateStopping
	// StateStopped means every worker has exited.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// workerState tracks one worker through its run loop:
// waitingForWork → executing → waitingForWork → … → exited.
type workerState int

const (
	waitingForWork workerState = iota
	executing
	exited
)

func (s workerState) String() string {
	switch s {
	case waitingForWork:
		return "waiting"
	case executing:
		return "executing"
	case exited:
		return "exited"
	default:
		return "unknown"
	}
}
