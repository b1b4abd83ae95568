package config

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the console logger and, when enabled, tees it into a
// rotating JSON log file.
func NewLogger(cfg Config) *zap.SugaredLogger {
	var zapConfig = zap.NewProductionEncoderConfig()
	var level = zap.InfoLevel
	if cfg.Debug {
		level = zap.DebugLevel
	}

	zapConfig.ConsoleSeparator = " "
	zapConfig.EncodeTime = zapcore.TimeEncoderOfLayout("02 Jan 15:04")
	zapConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(zapConfig)

	var core zapcore.Core
	if cfg.Logger.Enabled {
		fileConfig := zap.NewProductionEncoderConfig()
		fileConfig.EncodeTime = zapcore.EpochNanosTimeEncoder
		fileConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		fileEncoder := zapcore.NewJSONEncoder(fileConfig)

		core = zapcore.NewTee(
			zapcore.NewCore(fileEncoder, zapcore.AddSync(&lumberjack.Logger{
				Filename:   cfg.Logger.Filename,
				MaxSize:    cfg.Logger.MaxSize,
				MaxAge:     cfg.Logger.MaxAge,
				MaxBackups: cfg.Logger.MaxBackups,
				LocalTime:  cfg.Logger.LocalTime,
				Compress:   cfg.Logger.Compress,
			}), level),
			zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stderr), level),
		)
	} else {
		core = zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stderr), level)
	}

	return zap.New(core).Sugar()
}
