package cloudstore

import "github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"

// GetLogger returns the cloud storage logger
func GetLogger() logger.Logger {
	return logger.Global().Module("cloudstore")
}
