/*
Package metrics provides Prometheus metrics for rmach.

It instruments the kernel loop, the scheduler, and IPC: tasks
spawned/closed, ports created/destroyed, send outcomes by status,
handoffs, recovered handler faults, per-priority run-queue depth, and
quantum exhaustion. Handler returns the standard promhttp scrape
handler for a caller that wants to expose it; the kernel itself never
opens a listener.
*/
package metrics
