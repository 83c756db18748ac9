package logging

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	*zap.Logger
}

// NewLogger builds a logger writing to stderr. format is "console" or "json".
func NewLogger(level, format string) (*Logger, error) {
	var config zap.Config
	if format == "json" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.DisableStacktrace = true
	}

	// Parse log level
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{logger}, nil
}

// ForCommand tags every entry of one CLI invocation with the command name
// and a fresh run id.
func (l *Logger) ForCommand(name string) *zap.Logger {
	return l.With(
		zap.String("command", name),
		zap.String("run_id", uuid.New().String()),
	)
}
