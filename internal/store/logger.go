package store

import "github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"

// GetLogger returns the store logger
func GetLogger() logger.Logger {
	return logger.Global().Module("store")
}
