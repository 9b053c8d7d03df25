package logger

import "gitlab.com/fcv-2025.net/codegrader/internal/adapter/logging"

var Logger = logging.NewZapLogger()

// UseDebug swaps the process logger for one with debug output enabled
func UseDebug() {
	Logger = logging.NewDevelopmentLogger()
}

func Info(msg string, args ...interface{}) {
	Logger.Info(msg, args...)
}

func Error(msg string, args ...interface{}) {
	Logger.Error(msg, args...)
}

func Debug(msg string, args ...interface{}) {
	Logger.Debug(msg, args...)
}

func Warn(msg string, args ...interface{}) {
	Logger.Warn(msg, args...)
}
