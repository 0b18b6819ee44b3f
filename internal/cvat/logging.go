package cvat

import "github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"

// GetLogger returns the cvat module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("cvat")
}
