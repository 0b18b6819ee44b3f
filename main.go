package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/cmd"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/runtime"
)

// buildDate and version are set at build time with -ldflags
var (
	buildDate string
	version   = "dev"
)

func main() {
	os.Exit(run())
}

func run() int {
	rt := runtime.New(version, buildDate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cmd.RootCommand(rt)
	executed, err := rootCmd.ExecuteContextC(ctx)

	command := rootCmd.Name()
	if executed != nil {
		command = executed.Name()
	}
	// the summary still goes out after Ctrl-C
	rt.Finish(context.WithoutCancel(ctx), command, err)
	sentry.Flush(2 * time.Second)
	_ = logger.Global().Close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
