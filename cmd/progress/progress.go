// Package progress provides the annotator progress report command
package progress

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/progress"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/runtime"
)

// Command creates and returns the progress command
func Command(rt *runtime.Context) *cobra.Command {
	var taskIDs []int

	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Report annotation progress per task and per annotator",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rt.CVAT()
			if err != nil {
				return err
			}
			rep, err := progress.New(client, progress.Config{
				TaskIDs:  taskIDs,
				Excluded: rt.Settings.ExcludedTasks,
			}).Run(cmd.Context())
			if err != nil {
				return err
			}
			progress.Print(rt.Out, rep)

			reportPath, dailyPath, err := progress.Write(rt.Logs(), rep)
			if err != nil {
				return err
			}
			rt.Record("tasks", rep.Summary.TotalTasks)
			rt.Record("users", rep.Summary.TotalUsers)
			fmt.Fprintf(rt.Out, "\nReport: %s\nDaily:  %s\n", reportPath, dailyPath)
			return nil
		},
	}

	cmd.Flags().IntSliceVarP(&taskIDs, "task", "t", nil, "Only report these tasks")
	return cmd
}
