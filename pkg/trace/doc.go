/*
Package trace is an in-memory event broker for kernel lifecycle events.

It is the single-process analogue of a cluster event bus: instead of
node/service/task events fanned out to CLI clients, it fans out task and
port lifecycle events (spawned, waiting, ready, closed, created,
destroyed, handler faults) to whatever observers a simulation run wants
attached — a test assertion, a log sink, a metrics collector.

Publish puts an event on the broker's 100-event queue; while that queue
is full it waits for room, unless the broker has been stopped, in which
case it returns at once. Delivery from the queue is best-effort: a
subscriber with a full buffer skips the event rather than stalling the
broker.
*/
package trace
