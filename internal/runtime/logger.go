package runtime

import "github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"

// GetLogger returns the runtime logger
func GetLogger() logger.Logger {
	return logger.Global().Module("runtime")
}
