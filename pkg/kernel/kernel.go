package kernel

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mach-sim/rmach/pkg/asm"
	"github.com/mach-sim/rmach/pkg/ipc"
	"github.com/mach-sim/rmach/pkg/log"
	"github.com/mach-sim/rmach/pkg/metrics"
	"github.com/mach-sim/rmach/pkg/proc"
	"github.com/mach-sim/rmach/pkg/scheduler"
	"github.com/mach-sim/rmach/pkg/trace"
	"github.com/mach-sim/rmach/pkg/types"
	"github.com/mach-sim/rmach/pkg/vm"
)

// maxHandoffChain bounds how many recipients the kernel chains into
// directly before giving control back to the scheduler (invariant #7).
const maxHandoffChain = 3

type taskEntry struct {
	state       *proc.ProcessState
	vm          *vm.VM
	prio        int
	faultStreak int
}

// Config configures a Kernel at construction time.
type Config struct {
	// RobustMode clamps the computed quantum to a floor of 8 instead of
	// letting short programs run effectively unbounded.
	RobustMode bool
	// SystemTasks are exempt from the repeated-fault forced exit.
	SystemTasks []types.TaskID
	// Output receives every PRINT opcode's value, across every task.
	// Defaults to a no-op sink.
	Output vm.OutputSink
	// Tracer, if set, receives lifecycle events. Optional.
	Tracer *trace.Broker
}

// Kernel owns one simulator run: its IPC switch, its scheduler, and
// every task's VM and ProcessState.
type Kernel struct {
	RunID string

	ipc   *ipc.IPC
	sched *scheduler.Scheduler
	procs map[types.TaskID]*taskEntry

	systemTasks map[types.TaskID]bool
	robustMode  bool
	output      vm.OutputSink
	tracer      *trace.Broker
	logger      zerolog.Logger
}

// New creates a Kernel ready to spawn tasks into.
func New(cfg Config) *Kernel {
	runID := uuid.New().String()
	out := cfg.Output
	if out == nil {
		out = func(types.Value) {}
	}

	system := make(map[types.TaskID]bool, len(cfg.SystemTasks))
	for _, t := range cfg.SystemTasks {
		system[t] = true
	}

	sched := scheduler.New()
	ipcSwitch := ipc.New()
	ipcSwitch.SetWaker(sched)
	ipcSwitch.SetTracer(cfg.Tracer)

	return &Kernel{
		RunID:       runID,
		ipc:         ipcSwitch,
		sched:       sched,
		procs:       make(map[types.TaskID]*taskEntry),
		systemTasks: system,
		robustMode:  cfg.RobustMode,
		output:      out,
		tracer:      cfg.Tracer,
		logger:      log.WithRun(runID),
	}
}

// IPC exposes the run's IPC switch, for a native handler registered by
// the caller before any task that talks to it is spawned.
func (k *Kernel) IPC() *ipc.IPC {
	return k.ipc
}

// GrantRight pre-seeds task with mask on port, for test harnesses and
// bootstrap code that hand out capabilities before the first step.
func (k *Kernel) GrantRight(task types.TaskID, port types.PortID, mask types.RightMask) {
	k.ipc.GrantRight(task, port, mask)
}

func (k *Kernel) publish(ev trace.Event) {
	if k.tracer != nil {
		k.tracer.Publish(ev)
	}
}

// Spawn assembles source, builds a VM for it, and registers task with
// the scheduler at priority prio.
func (k *Kernel) Spawn(task types.TaskID, prio int, source string) {
	program := asm.Assemble(source)
	v := vm.New(k.ipc, task, k.output)
	v.Load(program)

	k.procs[task] = &taskEntry{state: proc.New(task), vm: v, prio: prio}
	k.sched.CreateProc(task, prio)

	metrics.TasksSpawned.Inc()
	metrics.TasksRunning.Set(float64(len(k.procs)))
	k.publish(trace.Event{Type: trace.EventTaskSpawned, Task: task})
	k.logger.Debug().Int("task", int(task)).Int("prio", prio).Msg("task spawned")
}

func (k *Kernel) exitProc(task types.TaskID, reason string) {
	k.ipc.CleanupProcess(task)
	delete(k.procs, task)
	k.sched.Remove(task)

	metrics.TasksClosed.WithLabelValues(reason).Inc()
	metrics.TasksRunning.Set(float64(len(k.procs)))
	k.publish(trace.Event{Type: trace.EventTaskClosed, Task: task, Message: reason})
	k.logger.Debug().Int("task", int(task)).Str("reason", reason).Msg("task exited")
}

// computeQuantum derives the natural quantum for a program: roughly
// one opcode of slice per 8 instructions of program, biased down by 8. Robust
// mode floors it at 8 instead of letting short programs run unbounded.
func (k *Kernel) computeQuantum(program int) int {
	q := program/8 - 8
	if k.robustMode {
		return max(q, 8)
	}
	return max(q, program)
}

// runTask advances one task's VM by quantum opcodes, reacts to the
// resulting run state, and reports any handoff target. A panic inside
// Step (never expected in practice — every opcode here is built to
// fail closed rather than throw) is treated the same way the source's
// bare except around its step call was: counted as a fault, and past
// three consecutive faults the task is force-exited unless it's a
// system task.
func (k *Kernel) runTask(task types.TaskID, quantum int) (target types.TaskID, hasHandoff bool) {
	entry, ok := k.procs[task]
	if !ok {
		return 0, false
	}

	defer func() {
		if r := recover(); r != nil {
			entry.faultStreak++
			k.logger.Warn().Int("task", int(task)).Interface("panic", r).Msg("task step faulted")
			if entry.faultStreak >= 3 && !k.systemTasks[task] {
				entry.state.SetClosed()
				if _, stillAlive := k.procs[task]; stillAlive {
					k.exitProc(task, "fault")
				}
			}
		}
	}()

	res := entry.vm.Step(quantum)
	entry.faultStreak = 0
	metrics.VMStepsExecuted.Observe(float64(res.StepsRun))

	switch entry.vm.State {
	case vm.Waiting:
		entry.state.SetWaiting()
		k.publish(trace.Event{Type: trace.EventTaskWaiting, Task: task})
	case vm.Closed:
		k.exitProc(task, entry.vm.ExitReason)
	}

	if res.HasHandoff {
		return res.Handoff, true
	}
	return 0, false
}

// Run drives the kernel loop until every task has exited.
func (k *Kernel) Run() {
	for {
		task, ok := k.sched.GetNext()
		if !ok {
			return
		}

		entry, exists := k.procs[task]
		if !exists {
			// Scheduler pick fault: the task was already reaped.
			continue
		}
		if entry.state.Current() == proc.Waiting {
			continue
		}

		entry.state.SetRunning()
		quantum := k.computeQuantum(len(entry.vm.Program))
		target, hasHandoff := k.runTask(task, quantum)

		if hasHandoff {
			k.chainHandoff(target)
		}

		if entry2, ok := k.procs[task]; ok && entry2.state.Current() == proc.Running {
			if k.sched.Tick(task) {
				entry2.state.SetReady()
				metrics.QuantumExhausted.Inc()
				k.publish(trace.Event{Type: trace.EventTaskReady, Task: task})
			}
		}
	}
}

// chainHandoff opportunistically runs up to maxHandoffChain consecutive
// recipients before returning control to the scheduler, collapsing a
// send/receive rendezvous into a single kernel iteration (invariant #7).
func (k *Kernel) chainHandoff(target types.TaskID) {
	current := target
	for passes := 0; passes < maxHandoffChain; passes++ {
		entry, exists := k.procs[current]
		if !exists || entry.vm.Ended {
			return
		}

		quantum := k.computeQuantum(len(entry.vm.Program))
		next, hasNext := k.runTask(current, quantum)
		if !hasNext {
			return
		}
		if _, stillExists := k.procs[next]; !stillExists || next == current {
			return
		}
		current = next
	}
}
