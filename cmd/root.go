// Package cmd wires the cvat-tools subcommands together
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/cmd/annotators"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/cmd/importnew"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/cmd/jobmap"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/cmd/migrate"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/cmd/notify"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/cmd/performance"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/cmd/preannotations"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/cmd/progress"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/cmd/reassign"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/cmd/setup"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/cmd/status"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/cmd/upload"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/conf"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/runtime"
)

// RootCommand creates and returns the root command
func RootCommand(rt *runtime.Context) *cobra.Command {
	var debug bool

	rootCmd := &cobra.Command{
		Use:           "cvat-tools",
		Short:         "Move HumanSignal data into CVAT and track annotation work",
		Version:       rt.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&rt.ConfigPath, "config", "c", conf.DefaultConfigFile, "Path to the configuration file (JSON or YAML)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(fmt.Sprintf("error binding flags: %v", err))
	}

	subcommands := []*cobra.Command{
		setup.Command(rt),
		migrate.Command(rt),
		upload.Command(rt),
		jobmap.Command(rt),
		status.Command(rt),
		importnew.Command(rt),
		annotators.Command(rt),
		progress.Command(rt),
		performance.Command(rt),
		preannotations.Command(rt),
		reassign.Command(rt),
		notify.Command(rt),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		settings, err := conf.Load(rt.ConfigPath)
		if err != nil {
			return err
		}
		if debug || viper.GetBool("debug") {
			settings.Debug = true
		}
		return initialize(rt, settings)
	}

	return rootCmd
}

// initialize sets up logging, error reporting and run services once the
// configuration is known
func initialize(rt *runtime.Context, settings *conf.Settings) error {
	logCfg := settings.Logging
	if settings.Debug {
		logCfg.DefaultLevel = "debug"
		if logCfg.Console != nil {
			logCfg.Console.Level = "debug"
		}
	}
	central, err := logger.NewCentralLogger(&logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	reporter, err := errors.InitSentry(settings.Sentry.DSN, rt.Version)
	if err != nil {
		// error reporting is optional
		logger.Global().Module("main").Warn("sentry disabled", logger.Error(err))
	} else if reporter.IsEnabled() {
		errors.SetTelemetryReporter(reporter)
	}

	if err := rt.Init(settings); err != nil {
		return err
	}
	logger.Global().Module("main").Debug("run started",
		logger.String("run_id", rt.RunID),
		logger.String("version", rt.Version),
		logger.String("config", rt.ConfigPath))
	return nil
}
