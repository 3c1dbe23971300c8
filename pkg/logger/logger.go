package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caarlos0/env/v6"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds the logging settings
type LogConfig struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info"`
	Format     string `env:"LOG_FORMAT" envDefault:"text"`     // text | json
	Output     string `env:"LOG_OUTPUT" envDefault:"stdout"`   // stdout | file | both
	Path       string `env:"LOG_PATH" envDefault:"./logs"`
	File       string `env:"LOG_FILE" envDefault:"posbridge.log"`
	MaxSize    int    `env:"LOG_MAX_SIZE" envDefault:"100"` // MB
	MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"7"`
	MaxAge     int    `env:"LOG_MAX_AGE" envDefault:"7"` // days
	Compress   bool   `env:"LOG_COMPRESS" envDefault:"true"`
}

var (
	mu  sync.Mutex
	std = logrus.New()
)

// Init configures the process logger from LOG_* environment variables.
func Init() error {
	cfg := LogConfig{}
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("failed to parse log config: %w", err)
	}
	return Configure(cfg)
}

// Configure applies cfg to the process logger.
func Configure(cfg LogConfig) error {
	mu.Lock()
	defer mu.Unlock()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	std.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		std.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	} else {
		std.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	}

	var writers []io.Writer
	output := strings.ToLower(cfg.Output)
	if output == "file" || output == "both" {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Path, cfg.File),
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}
	if output != "file" {
		writers = append(writers, os.Stdout)
	}
	std.SetOutput(io.MultiWriter(writers...))
	return nil
}

// L returns the process logger.
func L() *logrus.Logger {
	return std
}

// WithRequest returns an entry tagged with the request correlation id.
func WithRequest(requestID string) *logrus.Entry {
	return std.WithField("request_id", requestID)
}
