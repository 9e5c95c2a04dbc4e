/*
Package asm compiles the textual program syntax into the Instr stream
pkg/vm executes: one instruction per line, '#' starts a line comment,
and ".func NAME" / ".end" defines a macro whose body is inlined at
every call site that uses NAME as a mnemonic. An unrecognized mnemonic
compiles to HALT and ends assembly right there — the VM itself is
never handed an opcode it doesn't know.

This syntax is an external collaborator to the VM proper, not part of
its contract; a caller that already has an Instr slice (built by a
test, or some other frontend) never needs this package at all.
*/
package asm
