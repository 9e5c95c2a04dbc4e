package proc

import "github.com/mach-sim/rmach/pkg/types"

// State is a task's lifecycle state.
type State int

const (
	Ready State = iota
	Running
	Waiting
	Closed
)

func (s State) String() string {
	switch s {
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Waiting:
		return "WAITING"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ProcessState is the lifecycle state of a single task, owned by the
// kernel alongside that task's VM.
type ProcessState struct {
	Task    types.TaskID
	current State
}

// New creates a process state in Ready, the state every freshly
// spawned task starts in.
func New(task types.TaskID) *ProcessState {
	return &ProcessState{Task: task, current: Ready}
}

// Current returns the task's present state.
func (p *ProcessState) Current() State {
	return p.current
}

func (p *ProcessState) SetRunning() { p.current = Running }
func (p *ProcessState) SetWaiting() { p.current = Waiting }
func (p *ProcessState) SetReady()   { p.current = Ready }
func (p *ProcessState) SetClosed()  { p.current = Closed }
