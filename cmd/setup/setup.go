// Package setup provides the interactive configuration wizard
package setup

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/conf"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/prompt"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/runtime"
)

// Command creates and returns the setup command
func Command(rt *runtime.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create the configuration file interactively",
		Long:  `Setup asks for the CVAT server, API key, cloud storage and input file and writes them to the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(rt)
		},
	}
	return cmd
}

func runSetup(rt *runtime.Context) error {
	p := rt.Prompter()
	out := rt.Out

	if _, err := os.Stat(rt.ConfigPath); err == nil {
		overwrite, err := p.Confirm(fmt.Sprintf("%s already exists. Overwrite?", rt.ConfigPath), false)
		if err != nil {
			return err
		}
		if !overwrite {
			fmt.Fprintln(out, "Setup cancelled")
			return nil
		}
	}

	settings := rt.Settings
	if err := Ask(p, settings); err != nil {
		return err
	}
	if err := conf.Save(rt.ConfigPath, settings); err != nil {
		return err
	}
	fmt.Fprintf(out, "Configuration saved to %s\n", rt.ConfigPath)
	fmt.Fprintln(out, "Next: run `cvat-tools annotators` to store the annotator list")
	return nil
}

// Ask fills the settings a fresh checkout needs, offering current values
// as defaults
func Ask(p *prompt.Prompter, settings *conf.Settings) error {
	var err error
	if settings.CVAT.URL, err = p.String("CVAT URL", settings.CVAT.URL); err != nil {
		return err
	}
	if settings.CVAT.APIKey, err = p.String("CVAT API key", settings.CVAT.APIKey); err != nil {
		return err
	}
	if settings.CloudStorage.ID, err = p.Int("Cloud storage ID", settings.CloudStorage.ID); err != nil {
		return err
	}
	if settings.Files.HumanSignalJSON, err = p.String("HumanSignal JSON file", settings.Files.HumanSignalJSON); err != nil {
		return err
	}
	if settings.Task.Name, err = p.String("Task name", settings.Task.Name); err != nil {
		return err
	}
	return nil
}
