package ipc

import "github.com/mach-sim/rmach/pkg/types"

// portQueueCap is the maximum number of buffered messages a port holds
// before further puts are silently dropped.
const portQueueCap = 32

// Port is a bounded FIFO mailbox owned by exactly one task. Every other
// task that wants to enqueue into it needs a right recorded in the
// rights table; the port itself knows nothing about rights.
type Port struct {
	owner    types.TaskID
	refCount int
	queue    []types.Value
	blocked  bool
}

func newPort(owner types.TaskID) *Port {
	return &Port{owner: owner}
}

// retain records one more distinct holder of a right on this port.
func (p *Port) retain() {
	p.refCount++
}

// release drops one holder. It reports whether the port's reference
// count reached zero, in which case the caller (IPC) destroys it.
func (p *Port) release() bool {
	p.refCount--
	return p.refCount <= 0
}

// put enqueues a payload. It reports the owning task and whether that
// task was blocked waiting on this port — the caller wakes it only in
// that case. A full queue silently drops the message, mirroring the
// bounded-mailbox semantics of the system this package models.
func (p *Port) put(payload types.Value) (owner types.TaskID, wake bool) {
	if len(p.queue) >= portQueueCap {
		return 0, false
	}
	p.queue = append(p.queue, payload)
	if p.blocked {
		p.blocked = false
		return p.owner, true
	}
	return 0, false
}

// read dequeues the oldest buffered payload. If the queue is empty it
// marks the port blocked so a subsequent put knows to wake the owner.
func (p *Port) read() (types.Value, types.Status) {
	if len(p.queue) == 0 {
		p.blocked = true
		return nil, types.StatusBuffered
	}
	v := p.queue[0]
	p.queue = p.queue[1:]
	return v, types.StatusSuccess
}

func (p *Port) depth() int {
	return len(p.queue)
}
