/*
Package proc tracks each task's lifecycle state.

The system this package reimplements drove state changes through a
table of event-name strings bound to callbacks registered at spawn
time — useful for extensibility its simulator never needed, and prone
to the registration simply being forgotten for an event nobody thought
to wire up. Here a task's state is a four-value enum with direct
setter methods; anything that needs to react to a transition (waking a
peer, notifying the scheduler) is the kernel's job, called inline where
the transition happens rather than dispatched indirectly.
*/
package proc
