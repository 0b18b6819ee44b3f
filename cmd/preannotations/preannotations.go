// Package preannotations provides the pre-annotation check, import and compare commands
package preannotations

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/preannotation"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/runtime"
)

// Command creates the preannotations parent command
func Command(rt *runtime.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "preannotations",
		Aliases: []string{"pre"},
		Short:   "Work with model pre-annotations stored next to the images",
	}

	cmd.AddCommand(checkCommand(rt), importCommand(rt), compareCommand(rt))
	return cmd
}

func checkCommand(rt *runtime.Context) *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Summarize the *_bbox.json files in cloud storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, err := rt.Bucket()
			if err != nil {
				return err
			}
			if prefix == "" {
				prefix = rt.Settings.S3.Prefix
			}
			res, err := preannotation.Check(cmd.Context(), bucket, prefix, rt.Reports())
			if err != nil {
				return err
			}
			frames, annotated, boxes := res.Totals()
			rt.Record("chunks", len(res.Chunks))
			fmt.Fprintf(rt.Out, "Files scanned:     %d (%d unreadable)\n", res.Scanned, res.Failed)
			fmt.Fprintf(rt.Out, "Chunks:            %d\n", len(res.Chunks))
			fmt.Fprintf(rt.Out, "Frames:            %d\n", frames)
			fmt.Fprintf(rt.Out, "Annotated frames:  %d\n", annotated)
			fmt.Fprintf(rt.Out, "Boxes:             %d\n", boxes)
			if res.SummaryPath != "" {
				fmt.Fprintf(rt.Out, "\nSummary: %s\nDetails: %s\n", res.SummaryPath, res.DetailsPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "Bucket prefix to scan (default s3.prefix)")
	return cmd
}

func importCommand(rt *runtime.Context) *cobra.Command {
	var taskID, jobID int

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Upload pre-annotations into the jobs of a task that have no human shapes",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rt.CVAT()
			if err != nil {
				return err
			}
			bucket, err := rt.Bucket()
			if err != nil {
				return err
			}
			st, err := rt.Store()
			if err != nil {
				return err
			}
			res, err := preannotation.NewImporter(client, bucket, st, rt.Metrics).Run(cmd.Context(), taskID, jobID)
			if res != nil {
				rt.Record("imported", res.Imported)
				rt.Record("failed", res.Failed)
				fmt.Fprintf(rt.Out, "Imported: %d  Skipped: %d  Failed: %d\n", res.Imported, res.Skipped, res.Failed)
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&taskID, "task", "t", 0, "Task to import into")
	cmd.Flags().IntVarP(&jobID, "job", "j", 0, "Only import into this job")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func compareCommand(rt *runtime.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare human annotation progress with available pre-annotations",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rt.CVAT()
			if err != nil {
				return err
			}
			res, err := preannotation.NewComparer(client, rt.Reports(), rt.Settings.ExcludedTasks).Run(cmd.Context())
			if err != nil {
				return err
			}
			counts := res.Counts()
			rt.Record("jobs", len(res.Jobs))
			fmt.Fprintf(rt.Out, "Jobs compared:        %d\n", len(res.Jobs))
			fmt.Fprintf(rt.Out, "Annotated:            %d\n", counts[preannotation.StatusAnnotated])
			fmt.Fprintf(rt.Out, "Pending, with pre:    %d\n", counts[preannotation.StatusPendingWithPre])
			fmt.Fprintf(rt.Out, "Pending, without pre: %d\n", counts[preannotation.StatusPendingWithoutPre])
			fmt.Fprintf(rt.Out, "\nCSV:  %s\nJSON: %s\n", res.CSVPath, res.JSONPath)
			return nil
		},
	}
	return cmd
}
