package reconcile

import "github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"

// GetLogger returns the reconcile logger
func GetLogger() logger.Logger {
	return logger.Global().Module("reconcile")
}
