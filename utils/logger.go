package utils

import (
	"log"
	"sync"

	"tailortalk/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Global logger instance
var (
	Logger     *zap.Logger
	loggerOnce sync.Once
)

// InitializeLogger builds the process logger: JSON in production, colored
// console otherwise. LOG_LEVEL overrides the default level.
func InitializeLogger() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if config.IsProduction() {
		cfg = zap.NewProductionConfig()
	}
	if lvl, err := zapcore.ParseLevel(config.AppConfig.LogLevel); err == nil && config.AppConfig.LogLevel != "" {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	l, err := cfg.Build(zap.Fields(zap.String("service", "tailortalk")))
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	Logger = l
	zap.ReplaceGlobals(Logger)
}

// GetLogger retrieves the global logger
func GetLogger() *zap.Logger {
	loggerOnce.Do(func() {
		if Logger == nil {
			InitializeLogger()
		}
	})
	return Logger
}

// ComponentLogger tags log lines with the emitting component.
func ComponentLogger(name string) *zap.Logger {
	return GetLogger().Named(name)
}
