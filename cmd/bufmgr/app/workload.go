package app

import (
	"github.com/spf13/cobra"

	"github.com/Blackdeer1524/bufmgr/src/app"
)

func initWorkload() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "workload",
		Short: "Runs the synthetic workload and prints pool statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode := app.OutputText
			if rootCmd.Options.JSON {
				mode = app.OutputJSON
			}

			return app.Run(cmd.Context(), &app.WorkloadEntrypoint{
				ConfigPath: rootCmd.Options.ConfigPath,
				Output:     mode,
				Out:        cmd.OutOrStdout(),
			})
		},
	})
}

func initDump() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Runs the synthetic workload and prints the frame table as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context(), &app.WorkloadEntrypoint{
				ConfigPath: rootCmd.Options.ConfigPath,
				Output:     app.OutputFrames,
				Out:        cmd.OutOrStdout(),
			})
		},
	})
}
