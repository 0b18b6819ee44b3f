package secrets

import "github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"

// GetLogger returns the secrets logger
func GetLogger() logger.Logger {
	return logger.Global().Module("secrets")
}
