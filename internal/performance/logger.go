package performance

import "github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"

// GetLogger returns the performance logger
func GetLogger() logger.Logger {
	return logger.Global().Module("performance")
}
