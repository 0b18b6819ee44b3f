package progress

import "github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"

// GetLogger returns the progress logger
func GetLogger() logger.Logger {
	return logger.Global().Module("progress")
}
