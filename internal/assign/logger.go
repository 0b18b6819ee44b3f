package assign

import "github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"

// GetLogger returns the assign logger
func GetLogger() logger.Logger {
	return logger.Global().Module("assign")
}
