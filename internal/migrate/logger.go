package migrate

import "github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"

// GetLogger returns the migration logger
func GetLogger() logger.Logger {
	return logger.Global().Module("migrate")
}
