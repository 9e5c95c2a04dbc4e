package scheduler

import (
	"math/bits"
	"strconv"
	"sync"

	"github.com/mach-sim/rmach/pkg/log"
	"github.com/mach-sim/rmach/pkg/metrics"
	"github.com/mach-sim/rmach/pkg/types"
	"github.com/rs/zerolog"
)

// defaultMaxPriority mirrors the source's auto-growing default; queues
// beyond it are allocated lazily the first time a task needs one.
const defaultMaxPriority = 16

// defaultSlice is the number of steps a task is granted before tick
// reports quantum expiry.
const defaultSlice = 2

// Scheduler is a multi-level priority run queue with active/expired
// rotation. Priority 0..N, higher wins. Bounded to 64 priority levels
// by the bitmask width — comfortably past any priority this simulator
// is expected to assign.
type Scheduler struct {
	mu     sync.Mutex
	logger zerolog.Logger

	active  [][]types.TaskID
	expired [][]types.TaskID

	activeMask  uint64
	expiredMask uint64

	slices     map[types.TaskID]int
	priorities map[types.TaskID]int
}

// New creates an empty scheduler with the default priority range.
func New() *Scheduler {
	return &Scheduler{
		logger:     log.WithComponent("scheduler"),
		active:     make([][]types.TaskID, defaultMaxPriority+1),
		expired:    make([][]types.TaskID, defaultMaxPriority+1),
		slices:     make(map[types.TaskID]int),
		priorities: make(map[types.TaskID]int),
	}
}

func (s *Scheduler) growTo(prio int) {
	for prio >= len(s.active) {
		s.active = append(s.active, nil)
		s.expired = append(s.expired, nil)
	}
}

// CreateProc registers a freshly spawned task at the back of its
// priority's active queue.
func (s *Scheduler) CreateProc(task types.TaskID, prio int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.growTo(prio)
	s.slices[task] = defaultSlice
	s.priorities[task] = prio
	s.active[prio] = append(s.active[prio], task)
	s.activeMask |= 1 << uint(prio)
	s.observeDepth(prio)
}

// WakeUp inserts task at the front of its priority's active queue — a
// woken task preempts already-queued peers of equal priority.
func (s *Scheduler) WakeUp(task types.TaskID, prio int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.growTo(prio)
	s.active[prio] = append([]types.TaskID{task}, s.active[prio]...)
	s.activeMask |= 1 << uint(prio)
	s.observeDepth(prio)
}

// PriorityOf reports the priority a task was registered with by
// CreateProc. Used by IPC to pass the right priority to WakeUp.
func (s *Scheduler) PriorityOf(task types.TaskID) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.priorities[task]
	return p, ok
}

// getPrioFast returns the highest set bit in mask, or -1 if mask is
// zero. bits.Len64 is the standard library's own fast-path for this —
// the table-and-shift routine it replaces was purely an implementation
// detail with no semantics of its own.
func getPrioFast(mask uint64) int {
	if mask == 0 {
		return -1
	}
	return bits.Len64(mask) - 1
}

// GetNext pops the highest-priority runnable task, rotating the
// active/expired arrays if the active set is exhausted. It reports
// false only when both arrays are empty (no tasks left at all).
func (s *Scheduler) GetNext() (types.TaskID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeMask == 0 {
		if s.expiredMask == 0 {
			return 0, false
		}
		s.active, s.expired = s.expired, s.active
		s.activeMask, s.expiredMask = s.expiredMask, s.activeMask
	}

	p := getPrioFast(s.activeMask)
	queue := s.active[p]
	task := queue[0]
	s.active[p] = queue[1:]
	if len(s.active[p]) == 0 {
		s.activeMask &^= 1 << uint(p)
	}

	s.expired[p] = append(s.expired[p], task)
	s.expiredMask |= 1 << uint(p)
	s.observeDepth(p)

	return task, true
}

// Tick decrements task's remaining time slice, resetting and reporting
// expiry once it drops to or below zero.
func (s *Scheduler) Tick(task types.TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	slice, ok := s.slices[task]
	if !ok {
		slice = defaultSlice
	}
	slice--
	if slice <= 0 {
		s.slices[task] = defaultSlice
		return true
	}
	s.slices[task] = slice
	return false
}

// Remove drops task from every bookkeeping structure: its slice
// counter, its priority record, and whichever queue currently holds
// it. Called by the kernel on exit_proc.
func (s *Scheduler) Remove(task types.TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.slices, task)
	delete(s.priorities, task)

	for p := range s.active {
		for idx := indexOf(s.active[p], task); idx >= 0; idx = indexOf(s.active[p], task) {
			s.active[p] = append(s.active[p][:idx], s.active[p][idx+1:]...)
			if len(s.active[p]) == 0 {
				s.activeMask &^= 1 << uint(p)
			}
		}
		for idx := indexOf(s.expired[p], task); idx >= 0; idx = indexOf(s.expired[p], task) {
			s.expired[p] = append(s.expired[p][:idx], s.expired[p][idx+1:]...)
			if len(s.expired[p]) == 0 {
				s.expiredMask &^= 1 << uint(p)
			}
		}
	}
}

func indexOf(queue []types.TaskID, task types.TaskID) int {
	for i, t := range queue {
		if t == task {
			return i
		}
	}
	return -1
}

func (s *Scheduler) observeDepth(prio int) {
	depth := len(s.active[prio]) + len(s.expired[prio])
	metrics.SchedulerRunQueueDepth.WithLabelValues(strconv.Itoa(prio)).Set(float64(depth))
}
