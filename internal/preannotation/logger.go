package preannotation

import "github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"

// GetLogger returns the preannotation logger
func GetLogger() logger.Logger {
	return logger.Global().Module("preannotation")
}
