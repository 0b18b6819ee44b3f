// Package upload provides the command that uploads annotations to an existing task
package upload

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/coco"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/migrate"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/runtime"
)

// Command creates and returns the upload-annotations command
func Command(rt *runtime.Context) *cobra.Command {
	var (
		file   string
		prefix string
		taskID int
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "upload-annotations",
		Short: "Upload converted HumanSignal annotations to an existing task",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := rt.Settings
			if file == "" {
				file = s.Files.HumanSignalJSON
			}
			if prefix == "" {
				prefix = s.Files.ServerPrefix
			}
			d, err := coco.LoadFile(file)
			if err != nil {
				return err
			}
			converted, stats := coco.Convert(d, prefix, nil)
			fmt.Fprintf(rt.Out, "Images:      %d\n", stats.Images)
			fmt.Fprintf(rt.Out, "Annotations: %d\n", stats.Annotations)
			fmt.Fprintf(rt.Out, "Categories:  %d\n", len(converted.Categories))

			p := rt.Prompter()
			if taskID == 0 {
				if taskID, err = p.Int("Task ID", 0); err != nil {
					return err
				}
			}
			if !yes {
				ok, err := p.ConfirmWord(fmt.Sprintf("Upload annotations to task %d?", taskID), "yes")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(rt.Out, "Upload cancelled")
					return nil
				}
			}

			client, err := rt.CVAT()
			if err != nil {
				return err
			}
			_, requestWait, done := rt.Waits()
			defer done()
			rt.Record("task_id", taskID)
			if _, err := migrate.Upload(cmd.Context(), client, taskID, converted, requestWait); err != nil {
				return err
			}
			done()
			rt.Record("annotations", stats.Annotations)
			fmt.Fprintf(rt.Out, "Annotations imported: %s\n", client.TaskURL(taskID))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "HumanSignal COCO export (default files.humansignal_json)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Cloud storage directory of the images (default files.server_prefix)")
	cmd.Flags().IntVarP(&taskID, "task", "t", 0, "Task to upload to; asked for when not given")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}
