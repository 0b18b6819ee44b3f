// Package status provides the command that compares cloud storage with CVAT
package status

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/reconcile"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/runtime"
)

// DefaultWorkers is how many jobs are probed at once
const DefaultWorkers = 10

// Command creates and returns the status command
func Command(rt *runtime.Context) *cobra.Command {
	var (
		taskIDs []int
		workers int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report which images are new, loaded and annotated",
		Long: `Status lists the cloud storage bucket and every CVAT task, then reports images
that are not in CVAT yet and loaded images that have no annotations. New image
keys are written to logs/new_images_<timestamp>.txt for import-new.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rt.CVAT()
			if err != nil {
				return err
			}
			bucket, err := rt.OptionalBucket()
			if err != nil {
				return err
			}
			r := reconcile.New(client, bucket, reconcile.Config{
				TaskIDs:  taskIDs,
				Excluded: rt.Settings.ExcludedTasks,
				Prefix:   rt.Settings.S3.Prefix,
				Workers:  workers,
			}, rt.Metrics)

			status, err := r.Run(cmd.Context())
			if err != nil {
				return err
			}
			statusPath, listPath, err := reconcile.Write(rt.Logs(), status, time.Now())
			if err != nil {
				return err
			}

			sum := status.Summary
			rt.Record("cvat_loaded", sum.CVATLoaded)
			rt.Record("cvat_annotated", sum.CVATAnnotated)
			out := rt.Out
			fmt.Fprintln(out)
			if sum.CloudTotal != nil {
				fmt.Fprintf(out, "Cloud storage images:  %d\n", *sum.CloudTotal)
			}
			fmt.Fprintf(out, "Loaded in CVAT:        %d\n", sum.CVATLoaded)
			fmt.Fprintf(out, "Annotated:             %d\n", sum.CVATAnnotated)
			fmt.Fprintf(out, "Loaded, not annotated: %d\n", sum.CVATNotAnnotated)
			if sum.NewImages != nil {
				rt.Record("new_images", *sum.NewImages)
				fmt.Fprintf(out, "New images:            %d\n", *sum.NewImages)
			}
			fmt.Fprintf(out, "\nReport: %s\n", statusPath)
			if listPath != "" {
				fmt.Fprintf(out, "New image list: %s (run `cvat-tools import-new`)\n", listPath)
			}
			return nil
		},
	}

	cmd.Flags().IntSliceVarP(&taskIDs, "task", "t", nil, "Only inspect these tasks")
	cmd.Flags().IntVar(&workers, "workers", DefaultWorkers, "Jobs probed concurrently")
	return cmd
}
