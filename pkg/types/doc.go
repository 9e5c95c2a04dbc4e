/*
Package types defines the core data structures shared across rmach.

This package holds the vocabulary every other package builds on: the
tagged Value a VM operand stack holds, the right bits a task can hold on
a port, and the status codes IPC operations return. Nothing here owns
behavior beyond small value-type helpers; ownership of ports, rights,
and tasks lives in pkg/ipc, pkg/proc, and pkg/kernel respectively.

# Rights

Three bits, RECEIVE implying SEND:

	SEND    = 0b001  // may enqueue to the port
	RECEIVE = 0b011  // owns the port, may dequeue from it
	SERVER  = 0b100  // one-shot reply capability, consumed on use

# Values

The VM's operand stack is dynamically typed. Value is a tagged union
over the four shapes a program can push: integer, string, list, and map.
*/
package types
