package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/arzzra/voicechat/pkg/config"
	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("Уровень и текстовый формат", func(t *testing.T) {
		logger, err := New(config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"})
		require.NoError(t, err)

		assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
		assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
		assert.Equal(t, os.Stderr, logger.Out)
	})

	t.Run("JSON формат и stdout", func(t *testing.T) {
		logger, err := New(config.LoggingConfig{Level: "warn", Format: "json", Output: "stdout"})
		require.NoError(t, err)

		assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
		assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
		assert.Equal(t, os.Stdout, logger.Out)
	})

	t.Run("Файл с ротацией", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "voicechat.log")
		logger, err := New(config.LoggingConfig{
			Level: "info", Format: "text", Output: path,
			MaxSize: 10, MaxBackups: 2, MaxAge: 7,
		})
		require.NoError(t, err)

		rotator, ok := logger.Out.(*lumberjack.Logger)
		require.True(t, ok)
		assert.Equal(t, path, rotator.Filename)
		assert.Equal(t, 10, rotator.MaxSize)

		logger.Info("проверка")
		require.NoError(t, rotator.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "проверка")
	})

	t.Run("Неверный уровень", func(t *testing.T) {
		_, err := New(config.LoggingConfig{Level: "loud", Format: "text", Output: "stderr"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	WithComponent(WithService(logger), "receiver").Info("сообщение")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "receiver", entry["component"])
	assert.Equal(t, "voicechat", entry["service"])
	assert.Equal(t, Version, entry["version"])
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	assert.False(t, logger.IsLevelEnabled(logrus.ErrorLevel))
	// Не должно паниковать и ничего не писать
	logger.Error("ничего")
}
