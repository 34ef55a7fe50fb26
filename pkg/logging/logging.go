// Package logging создает logrus логгер по конфигурации: уровень, формат,
// вывод в stdout/stderr или в файл с ротацией.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/arzzra/voicechat/pkg/config"
	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
)

// Version версия сборки, выставляется из cmd
var Version = "dev"

// New создает логгер по конфигурации
func New(cfg config.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	}

	switch cfg.Output {
	case "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr", "":
		logger.SetOutput(os.Stderr)
	default:
		// Файл с ротацией
		dir := filepath.Dir(cfg.Output)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		logger.SetOutput(&lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSize, // МБ
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // дни
			Compress:   true,
		})
	}

	return logger, nil
}

// WithService добавляет поля сервиса к каждой записи
func WithService(logger *logrus.Logger) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"service": "voicechat",
		"version": Version,
	})
}

// WithComponent создает запись с полем component
func WithComponent(logger logrus.FieldLogger, component string) *logrus.Entry {
	return logger.WithField("component", component)
}

// Discard логгер, который ничего не пишет. Используется по умолчанию в библиотеке и в тестах.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// Fields псевдоним logrus.Fields
type Fields = logrus.Fields
