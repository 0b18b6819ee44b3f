// Package importnew provides the command that loads new cloud images into a task
package importnew

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/conf"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/cvat"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/importnew"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/members"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/runtime"
)

// Command creates and returns the import-new command
func Command(rt *runtime.Context) *cobra.Command {
	var noAssign bool

	cmd := &cobra.Command{
		Use:   "import-new [image-list]",
		Short: "Create a task from the newest new image list and assign its jobs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := rt.Settings
			client, err := rt.CVAT()
			if err != nil {
				return err
			}
			var list string
			if len(args) == 1 {
				list = args[0]
			}

			dataWait, _, done := rt.Waits()
			defer done()
			config := importnew.Config{
				CloudStorageID: s.CloudStorage.ID,
				Labels:         Labels(s.Task.Labels),
				UseMapping:     s.JobFileMapping(true),
				ImageQuality:   s.Task.ImageQuality,
				Wait:           dataWait,
			}
			if !noAssign {
				config.Assignees = members.People(s.Assignees)
			}

			res, err := importnew.New(client, rt.Logs(), config, rt.Metrics).Run(cmd.Context(), list)
			done()
			if res == nil {
				return err
			}
			out := rt.Out
			fmt.Fprintf(out, "\nImage list: %s (%d files)\n", res.Source, res.Files)
			if res.TaskID != 0 {
				rt.Record("task_id", res.TaskID)
				rt.Record("files", res.Files)
				fmt.Fprintf(out, "Task:       %d %s (%s)\n", res.TaskID, res.TaskName, res.TaskURL)
				fmt.Fprintf(out, "Jobs:       %d, assigned %d, failed %d\n", res.Jobs, res.Assigned.Assigned, res.Assigned.Failed)
			}
			if res.MappingPath != "" {
				fmt.Fprintf(out, "Mapping:    %s\n", res.MappingPath)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&noAssign, "no-assign", false, "Leave the new jobs unassigned")
	return cmd
}

// Labels converts configured labels, falling back to the hand labels
func Labels(labels []conf.Label) []cvat.LabelSpec {
	if len(labels) == 0 {
		labels = conf.DefaultLabels()
	}
	out := make([]cvat.LabelSpec, len(labels))
	for i, l := range labels {
		color := l.Color
		if color == "" {
			color = conf.DefaultLabelColor
		}
		out[i] = cvat.LabelSpec{Name: l.Name, Color: color}
	}
	return out
}
