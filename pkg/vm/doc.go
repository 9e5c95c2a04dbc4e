/*
Package vm implements the per-task stack bytecode machine: one VM per
spawned task, holding its own program, program counter, operand stack,
and named-cell environment.

A VM never touches another task directly — SEND and RECV opcodes go
through the IPC switch it was constructed with (see pkg/ipc), and
CREATE_PORT is attributed to the VM's own task id. Step is the only
entry point the kernel calls; everything else is opcode bookkeeping.
*/
package vm
