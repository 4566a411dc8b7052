package logger

import (
	"os"
	"strings"
	"sync"

	"marketplace-trading-bot-go/internal/models"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.RWMutex
	sugared *zap.SugaredLogger
)

// Init builds the global logger from config. The console sink gets a
// human-readable encoder; the file sink gets JSON so trade audits stay
// machine-parseable after rotation.
func Init(cfg models.LogConfig) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core

	output := strings.ToLower(cfg.Output)
	if output == "file" || output == "both" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(rotator),
			level,
		))
	}
	if output == "console" || output == "both" || len(cores) == 0 {
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleCfg),
			zapcore.AddSync(os.Stdout),
			level,
		))
	}

	l := zap.New(zapcore.NewTee(cores...), zap.AddCaller())

	mu.Lock()
	sugared = l.Sugar()
	mu.Unlock()
}

// S returns the global sugared logger, or a development fallback when Init
// has not run yet (early startup, tests).
func S() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	if sugared == nil {
		l, _ := zap.NewDevelopment()
		return l.Sugar()
	}
	return sugared
}

// L returns the non-sugared logger for hot paths that want typed fields.
func L() *zap.Logger {
	return S().Desugar()
}
