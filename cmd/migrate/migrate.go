// Package migrate provides the command that moves a HumanSignal export into CVAT
package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/coco"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/migrate"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/runtime"
)

// Command creates and returns the migrate command
func Command(rt *runtime.Context) *cobra.Command {
	var (
		file   string
		prefix string
		name   string
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create a CVAT task from a HumanSignal COCO export and import its annotations",
		Long: `Migrate groups the exported images by session, creates a task whose jobs follow
the sessions, waits for CVAT to load the images from cloud storage and uploads
the converted annotations for the images that were loaded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := rt.Settings
			if file == "" {
				file = s.Files.HumanSignalJSON
			}
			if prefix == "" {
				prefix = s.Files.ServerPrefix
			}
			if name == "" {
				name = s.Task.Name
			}

			client, err := rt.CVAT()
			if err != nil {
				return err
			}
			d, err := coco.LoadFile(file)
			if err != nil {
				return err
			}

			dataWait, requestWait, done := rt.Waits()
			defer done()
			storage := s.LegacyCloudStorage()
			m := migrate.New(client, rt.Logs(), migrate.Config{
				TaskName:       name,
				CloudStorageID: storage.ID,
				Prefix:         prefix,
				UseMapping:     s.JobFileMapping(false),
				ImageQuality:   s.Task.ImageQuality,
				Wait:           dataWait,
				RequestWait:    requestWait,
			}, rt.Metrics)

			res, err := m.Run(cmd.Context(), d)
			done()
			if res != nil {
				rt.Record("task_id", res.TaskID)
				rt.Record("jobs", res.Jobs)
				printResult(rt, res)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "HumanSignal COCO export (default files.humansignal_json)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Cloud storage directory of the images (default files.server_prefix)")
	cmd.Flags().StringVar(&name, "name", "", "Task name (default task.name)")

	return cmd
}

func printResult(rt *runtime.Context, res *migrate.Result) {
	out := rt.Out
	fmt.Fprintln(out)
	if res.TaskID == 0 {
		return
	}
	fmt.Fprintf(out, "Task:        %d (%s)\n", res.TaskID, res.TaskURL)
	fmt.Fprintf(out, "Sessions:    %d\n", res.Sessions)
	fmt.Fprintf(out, "Files:       %d requested, %d loaded\n", res.Files, res.Loaded)
	fmt.Fprintf(out, "Jobs:        %d\n", res.Jobs)
	fmt.Fprintf(out, "Annotations: %d on %d images (%d images skipped)\n",
		res.Converted.Annotations, res.Converted.Images, res.Converted.Skipped)
	if res.Requests != nil && res.Requests.HasErrors {
		fmt.Fprintf(out, "Failed background requests: %d, see the log for a diagnosis\n", len(res.Requests.Failed))
	}
	if res.MappingPath != "" {
		fmt.Fprintf(out, "Job mapping: %s\n", res.MappingPath)
	}
}
