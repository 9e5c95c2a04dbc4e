package ipc

import (
	"github.com/mach-sim/rmach/pkg/log"
	"github.com/mach-sim/rmach/pkg/metrics"
	"github.com/mach-sim/rmach/pkg/trace"
	"github.com/mach-sim/rmach/pkg/types"
)

// Waker lets IPC hand a blocked task back to the scheduler without
// importing pkg/scheduler directly. The kernel wires the concrete
// scheduler in at startup.
type Waker interface {
	WakeUp(task types.TaskID, priority int)
	PriorityOf(task types.TaskID) (int, bool)
}

// NativeHandler is a host-implemented port: IPC invokes it synchronously
// on send instead of enqueueing, the way a Mach in-kernel server handles
// a message without a context switch.
type NativeHandler func(msg types.Message, ipc *IPC)

// IPC is the capability-mediated switch every task and native handler
// sends through. One instance is owned by the kernel for the lifetime
// of a run.
type IPC struct {
	ports    map[types.PortID]*Port
	handlers map[types.PortID]NativeHandler
	dead     map[types.PortID]bool
	rights   *rightsTable
	counter  types.PortID
	waker    Waker
	tracer   *trace.Broker
}

// New creates an empty IPC switch.
func New() *IPC {
	return &IPC{
		ports:    make(map[types.PortID]*Port),
		handlers: make(map[types.PortID]NativeHandler),
		dead:     make(map[types.PortID]bool),
		rights:   newRightsTable(),
	}
}

// SetWaker wires the scheduler dependency. Must be called before any
// Receive that can block, or before any Send that can wake a receiver.
func (i *IPC) SetWaker(w Waker) {
	i.waker = w
}

// SetTracer wires an optional event broker. A nil tracer is fine; every
// publish call is guarded.
func (i *IPC) SetTracer(b *trace.Broker) {
	i.tracer = b
}

func (i *IPC) publish(ev trace.Event) {
	if i.tracer != nil {
		i.tracer.Publish(ev)
	}
}

// CreatePort allocates a new port owned by task and grants task a
// RECEIVE right on it (which subsumes SEND).
func (i *IPC) CreatePort(task types.TaskID) types.PortID {
	i.counter++
	id := i.counter
	port := newPort(task)
	i.ports[id] = port
	i.rights.add(task, id, types.RightReceive, port)
	metrics.PortsCreated.Inc()
	i.publish(trace.Event{Type: trace.EventPortCreated, Task: task, Port: id})
	return id
}

// RegisterNativeHandler allocates a handler id sharing the port-id
// counter and associates it with h. Handler ids are never stored in
// the ports map; Send special-cases them.
func (i *IPC) RegisterNativeHandler(h NativeHandler) types.PortID {
	i.counter++
	id := i.counter
	i.handlers[id] = h
	return id
}

// GrantRight pre-seeds task with mask on port, for ports and handler
// ids alike. Used to hand a freshly spawned task its initial
// capabilities before it has run a single instruction.
func (i *IPC) GrantRight(task types.TaskID, port types.PortID, mask types.RightMask) {
	i.rights.add(task, port, mask, i.ports[port])
}

// Send implements the authorize -> dispatch pipeline described for the
// SEND opcode and the send syscall alike.
//
// Order: a reference to a tombstoned port id always resolves to
// DIED_NAME before rights are even consulted — real-world dead-name
// notifications work the same way, informing a holder their name died
// without requiring they still hold a right on it. Only after that
// does authorization run, then handler dispatch, then the live-port
// path. This reverses the literal authorize-before-liveness order of
// the system being modeled in the one case (destroyed ports) where
// that order made DIED_NAME unreachable: destroying a port purges
// every rights entry on it, so under strict authorize-first ordering
// nobody could ever still hold a right to trip the liveness branch.
func (i *IPC) Send(task types.TaskID, msg types.Message) (status types.Status, target types.TaskID, hasTarget bool) {
	if i.dead[msg.Remote] {
		metrics.MessagesSent.WithLabelValues(types.StatusDiedName.String()).Inc()
		return types.StatusDiedName, 0, false
	}

	authorized := i.rights.check(task, msg.Remote, types.RightSend) || i.rights.check(task, msg.Remote, types.RightServer)
	if !authorized {
		metrics.MessagesSent.WithLabelValues(types.StatusErrNoRight.String()).Inc()
		return types.StatusErrNoRight, 0, false
	}

	if h, ok := i.handlers[msg.Remote]; ok {
		i.dispatchHandler(task, msg.Remote, h, msg)
		metrics.MessagesSent.WithLabelValues(types.StatusSuccess.String()).Inc()
		return types.StatusSuccess, 0, false
	}

	port, ok := i.ports[msg.Remote]
	if !ok {
		metrics.MessagesSent.WithLabelValues(types.StatusErrInvalidName.String()).Inc()
		return types.StatusErrInvalidName, 0, false
	}

	owner, wake := port.put(msg.Payload)
	i.afterEnqueue(task, msg)

	metrics.MessagesSent.WithLabelValues(types.StatusHandoff.String()).Inc()
	if wake {
		metrics.HandoffsTotal.Inc()
		if i.waker != nil {
			if prio, ok := i.waker.PriorityOf(owner); ok {
				i.waker.WakeUp(owner, prio)
			}
		}
		return types.StatusHandoff, owner, true
	}
	return types.StatusHandoff, 0, false
}

// afterEnqueue consumes the one-shot SERVER bit (if that was how the
// send was authorized) and, if the message carries a reply port,
// transfers a SEND right on it from the sender to the remote port's
// owner, mirroring the source's "transfer reply right on every send
// with a nonzero reply field" behavior.
func (i *IPC) afterEnqueue(task types.TaskID, msg types.Message) {
	if i.rights.consumeServer(task, msg.Remote) {
		if port, ok := i.ports[msg.Remote]; ok {
			if port.release() {
				i.destroyPortLocked(msg.Remote)
			}
		}
	}
	if msg.Reply != 0 {
		if remote, ok := i.ports[msg.Remote]; ok {
			i.TransferRight(task, remote.owner, msg.Reply, types.RightSend)
		}
	}
}

func (i *IPC) dispatchHandler(task types.TaskID, handlerID types.PortID, h NativeHandler, msg types.Message) {
	if msg.Reply != 0 {
		i.rights.add(types.TaskID(handlerID), msg.Reply, types.RightServer, i.ports[msg.Reply])
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerFaults.Inc()
			i.publish(trace.Event{Type: trace.EventHandlerFault, Task: task, Port: handlerID})
			log.WithComponent("ipc").Warn().Interface("panic", r).Msg("native handler fault")
			if msg.Reply != 0 {
				i.SyscallSend(handlerID, types.Message{Remote: msg.Reply, Payload: types.HandlerErrorValue})
			}
		}
	}()
	h(msg, i)
}

// SyscallSend is how a native handler replies: it sends as the handler
// id itself rather than as a task, since handler ids occupy the rights
// table's task slot for exactly this purpose.
func (i *IPC) SyscallSend(handlerID types.PortID, msg types.Message) types.Status {
	status, _, _ := i.Send(types.TaskID(handlerID), msg)
	return status
}

// Receive implements the RECV opcode's port-read path.
func (i *IPC) Receive(task types.TaskID, port types.PortID) (types.Value, types.Status) {
	if i.dead[port] {
		return nil, types.StatusDiedName
	}
	if !i.rights.check(task, port, types.RightReceive) {
		return nil, types.StatusErrNoRight
	}
	p, ok := i.ports[port]
	if !ok {
		return nil, types.StatusErrInvalidName
	}
	return p.read()
}

// TransferRight grants dest the same mask src holds on port, provided
// src actually holds it. Send uses it to give the remote port's owner
// a SEND right on a message's reply port; payload values are never
// inspected for capabilities.
func (i *IPC) TransferRight(src, dest types.TaskID, port types.PortID, mask types.RightMask) bool {
	if !i.rights.check(src, port, mask) {
		return false
	}
	i.rights.add(dest, port, mask, i.ports[port])
	return true
}

// DestroyPort removes port, tombstones its id, and purges every rights
// entry referencing it.
func (i *IPC) DestroyPort(port types.PortID) types.Status {
	if _, ok := i.ports[port]; !ok {
		return types.StatusErrInvalidName
	}
	i.destroyPortLocked(port)
	return types.StatusExtinguished
}

func (i *IPC) destroyPortLocked(port types.PortID) {
	owner := types.TaskID(0)
	if p, ok := i.ports[port]; ok {
		owner = p.owner
	}
	delete(i.ports, port)
	i.dead[port] = true
	i.rights.purgePort(port)
	metrics.PortsDestroyed.Inc()
	i.publish(trace.Event{Type: trace.EventPortDestroyed, Task: owner, Port: port})
}

// CleanupProcess tears down every right task holds. A port task still
// has a RECEIVE right on is force-destroyed regardless of remaining
// ref count — ownership, not reference counting, governs when a port
// dies, matching invariant #3 and the "destroyed when its owner exits"
// rule in the port lifecycle.
func (i *IPC) CleanupProcess(task types.TaskID) {
	keys := i.rights.keysForTask(task)
	for _, key := range keys {
		mask := i.rights.entries[key]
		if port, ok := i.ports[key.Port]; ok {
			if port.release() && !mask.Has(types.RightReceive) {
				i.destroyPortLocked(key.Port)
			}
		}
		if mask.Has(types.RightReceive) {
			i.destroyPortLocked(key.Port)
		}
		delete(i.rights.entries, key)
	}
}

// QueueDepth reports how many messages are buffered on port, for tests
// and introspection.
func (i *IPC) QueueDepth(port types.PortID) int {
	p, ok := i.ports[port]
	if !ok {
		return 0
	}
	return p.depth()
}

// HasRight reports whether task holds every bit of required on port,
// for tests that assert on the rights table directly.
func (i *IPC) HasRight(task types.TaskID, port types.PortID, required types.RightMask) bool {
	return i.rights.check(task, port, required)
}

// IsDead reports whether port is a tombstoned id.
func (i *IPC) IsDead(port types.PortID) bool {
	return i.dead[port]
}
