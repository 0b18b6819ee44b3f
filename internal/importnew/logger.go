package importnew

import "github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"

// GetLogger returns the import logger
func GetLogger() logger.Logger {
	return logger.Global().Module("importnew")
}
