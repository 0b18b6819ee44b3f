// Package jobmap provides the command that rebuilds the job/session table of a task
package jobmap

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/coco"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/migrate"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/runtime"
)

// Command creates and returns the job-mapping command
func Command(rt *runtime.Context) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "job-mapping [task-id]",
		Short: "Write which session each job of a migrated task holds",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var taskID int
			var err error
			if len(args) == 1 {
				if taskID, err = strconv.Atoi(args[0]); err != nil {
					return fmt.Errorf("invalid task id %q", args[0])
				}
			} else if taskID, err = rt.Prompter().Int("Task ID", migrate.DefaultMappingTask); err != nil {
				return err
			}
			if file == "" {
				file = rt.Settings.Files.HumanSignalJSON
			}

			client, err := rt.CVAT()
			if err != nil {
				return err
			}
			d, err := coco.LoadFile(file)
			if err != nil {
				return err
			}
			entries, path, err := migrate.JobMapping(cmd.Context(), client, rt.Logs(), taskID, d)
			if err != nil {
				return err
			}
			rt.Record("task_id", taskID)
			rt.Record("jobs", len(entries))
			for _, e := range entries {
				fmt.Fprintf(rt.Out, "job %d\t%s\tframes %d-%d\n", e.JobID, e.SessionID, e.StartFrame, e.StopFrame)
			}
			fmt.Fprintf(rt.Out, "Mapping saved to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "HumanSignal COCO export (default files.humansignal_json)")
	return cmd
}
