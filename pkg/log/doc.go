/*
Package log provides structured logging for rmach using zerolog.

It wraps zerolog to give the packages that log (ipc, scheduler, kernel)
a scoped logger — by component, or by run id in the kernel's case —
rather than reaching for fmt.Println or the stdlib log package directly.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	logger := log.WithComponent("kernel")
	logger.Info().Int("task", int(id)).Msg("task spawned")
*/
package log
