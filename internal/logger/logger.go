// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ResolveBridge - DaVinci Resolve AI 字幕桥接服务

package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger provides a simple logging interface
type Logger interface {
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
}

// Config for the process-wide base logger
type Config struct {
	Level  string    // "debug", "info", "error"; empty means info
	Output io.Writer // defaults to os.Stdout
}

var (
	once sync.Once
	base zerolog.Logger
)

// Configure 初始化全局 zerolog，只执行一次
func Configure(cfg Config) {
	once.Do(func() {
		level := zerolog.InfoLevel
		if cfg.Level != "" {
			if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
				level = parsed
			}
		}
		zerolog.SetGlobalLevel(level)
		zerolog.TimeFieldFormat = time.RFC3339

		writer := cfg.Output
		if writer == nil {
			writer = os.Stdout
		}

		base = zerolog.New(writer).With().
			Timestamp().
			Str("service", "resolvebridge").
			Logger()
	})
}

// New creates a Logger for a component
func New(component string) Logger {
	Configure(Config{})
	l := base.With().Str("component", component).Logger()
	return &componentLogger{log: l}
}

type componentLogger struct {
	log zerolog.Logger
}

func (l *componentLogger) Info(format string, args ...interface{}) {
	l.log.Info().Msgf(format, args...)
}

func (l *componentLogger) Error(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}

func (l *componentLogger) Debug(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}
