/*
Package scheduler implements rmach's multi-level priority run queue:
two arrays of per-priority FIFOs, rotated between "active" and
"expired" the way an O(1)-style Linux scheduler does, with a bitmask
per array recording which priorities currently have runnable tasks so
picking the next one never has to scan an empty queue.

Priority is "higher number wins" — a task spawned at priority 4
dominates one at priority 1, which reads backwards from a traditional
nice-value scheduler but matches how this simulator's callers assign
priority as an importance score.
*/
package scheduler
