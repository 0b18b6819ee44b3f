// Package performance provides the daily performance report command
package performance

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/performance"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/runtime"
)

// Command creates and returns the performance command
func Command(rt *runtime.Context) *cobra.Command {
	var snapshot string

	cmd := &cobra.Command{
		Use:   "performance [YYYYMMDD]",
		Short: "Report frames annotated per user on a day",
		Long: `Performance compares today's job state with the snapshot of the previous day
and credits the difference to each job's assignee. Only runs for today save a
snapshot. Use --snapshot to rebuild a missed snapshot from job update dates.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rt.CVAT()
			if err != nil {
				return err
			}
			st, err := rt.Store()
			if err != nil {
				return err
			}
			checker := performance.New(client, st, rt.Reports(), performance.Config{
				Excluded: rt.Settings.ExcludedTasks,
			})

			if snapshot != "" {
				snap, err := checker.Backfill(cmd.Context(), snapshot)
				if err != nil {
					return err
				}
				rt.Record("snapshot", snap.Date)
				fmt.Fprintf(rt.Out, "Snapshot for %s saved with %d jobs\n", snap.Date, len(snap.Jobs))
				return nil
			}

			var date string
			if len(args) == 1 {
				date = args[0]
			}
			res, err := checker.Run(cmd.Context(), date)
			if err != nil {
				return err
			}
			performance.Print(rt.Out, res)
			rt.Record("date", res.Date)
			rt.Record("today_frames", res.TotalToday())
			return nil
		},
	}

	cmd.Flags().StringVar(&snapshot, "snapshot", "", "Backfill the snapshot of this day (YYYYMMDD) and exit")
	return cmd
}
