package notify

import "github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"

// GetLogger returns the notification logger
func GetLogger() logger.Logger {
	return logger.Global().Module("notify")
}
