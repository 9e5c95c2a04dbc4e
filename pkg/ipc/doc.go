/*
Package ipc implements rmach's capability-based message-passing layer:
ports, the rights table, and the IPC switch that mediates every send,
receive, and right transfer a task or native handler performs.

IPC exclusively owns every Port and every native handler. The rights
table is IPC's own field, not process-wide state — the simulator
happens to run one IPC instance, as the system this package reimplements
did, but nothing here relies on that being the only instance.

Execution is single-threaded and cooperative (see pkg/kernel): every
mutation here happens on the kernel's single goroutine while stepping
the currently running task's VM, or during kernel cleanup. No locking
is used or required.
*/
package ipc
