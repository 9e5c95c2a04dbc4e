/*
Package kernel is the glue between pkg/scheduler, pkg/ipc, and pkg/vm:
it spawns tasks, asks the scheduler who runs next, steps that task's
VM, reacts to the state the VM came back in, and opportunistically
chains into a send's handoff recipient before returning control to the
scheduler.

One Kernel owns one run: one IPC switch, one scheduler, and the VM and
ProcessState of every task currently alive. Each run gets its own
random id (Kernel.RunID), stamped onto every log line the Kernel itself
emits during that run, so its output from concurrent simulator
instances in the same process — tests, mainly — can be told apart.
Trace events, and log lines from pkg/ipc and pkg/scheduler, do not
carry the run id.
*/
package kernel
