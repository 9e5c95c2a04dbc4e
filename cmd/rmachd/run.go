package main

import (
	"fmt"
	"net/http"

	"github.com/mach-sim/rmach/pkg/config"
	"github.com/mach-sim/rmach/pkg/kernel"
	"github.com/mach-sim/rmach/pkg/metrics"
	"github.com/mach-sim/rmach/pkg/types"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run -f MANIFEST",
	Short: "Run a simulation manifest to completion",
	Long: `Run loads a Simulation manifest, spawns every task it declares,
and drives the scheduler until every task has exited.

Example:
  rmachd run -f simulation.yaml`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("file", "f", "", "Simulation manifest to run (required)")
	runCmd.Flags().String("metrics-addr", "", "If set, serve Prometheus metrics on this address while running")
	_ = runCmd.MarkFlagRequired("file")
}

func runRun(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	manifest, err := config.Load(filename)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	if metricsAddr != "" {
		go func() {
			http.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				fmt.Printf("metrics server error: %v\n", err)
			}
		}()
		fmt.Printf("metrics endpoint: http://%s/metrics\n", metricsAddr)
	}

	systemTasks := make([]types.TaskID, 0, len(manifest.Spec.SystemTasks))
	for _, id := range manifest.Spec.SystemTasks {
		systemTasks = append(systemTasks, types.TaskID(id))
	}

	k := kernel.New(kernel.Config{
		RobustMode:  manifest.Spec.RobustMode,
		SystemTasks: systemTasks,
		Output: func(v types.Value) {
			fmt.Println(v.String())
		},
	})

	fmt.Printf("run %s: spawning %d task(s)\n", k.RunID, len(manifest.Spec.Tasks))
	for _, task := range manifest.Spec.Tasks {
		source, err := manifest.Source(task)
		if err != nil {
			return err
		}
		k.Spawn(types.TaskID(task.ID), task.Priority, source)
	}

	k.Run()
	fmt.Println("simulation complete")
	return nil
}
