// Package annotators provides the command that lists organization members
package annotators

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/conf"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/members"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/runtime"
)

// Command creates and returns the annotators command
func Command(rt *runtime.Context) *cobra.Command {
	var noSave bool

	cmd := &cobra.Command{
		Use:   "annotators",
		Short: "List organization members and store the annotators as assignees",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rt.CVAT()
			if err != nil {
				return err
			}
			roster, err := members.Fetch(cmd.Context(), client)
			if err != nil {
				return err
			}
			members.Print(rt.Out, roster)
			rt.Record("annotators", len(roster.Annotators))

			if noSave {
				return nil
			}
			rt.Settings.Assignees = roster.Assignees()
			if err := conf.Save(rt.ConfigPath, rt.Settings); err != nil {
				return err
			}
			fmt.Fprintf(rt.Out, "\n%d annotators saved to %s\n", len(roster.Annotators), rt.ConfigPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noSave, "no-save", false, "Only print, do not update the configuration file")
	return cmd
}
