package loader

import "github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"

// GetLogger returns the loader logger
func GetLogger() logger.Logger {
	return logger.Global().Module("loader")
}
