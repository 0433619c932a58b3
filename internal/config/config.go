// Пакет config — загрузка и валидация конфигурации file-drop сервиса
// из переменных окружения.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации сервиса.
// Снимок неизменяем после загрузки и потребляется один раз при старте.
type Config struct {
	// Адрес HTTP-сервера (host:port)
	Address string
	// Путь к директории хранения блобов
	StorageDir string
	// Время жизни записи с момента загрузки
	TTL time.Duration
	// Интервал запуска фоновой очистки
	CleanupInterval time.Duration
	// Бюджет скачиваний на одну запись
	MaxDownloads int
	// Максимальный размер загружаемого файла в байтах
	MaxFileSize int64
	// Включена ли интерактивная страница загрузки (GET /)
	UploadPageEnabled bool
	// Общий пароль загрузки (обязателен при включённой странице)
	UploadPassword string
	// Добавлять ли расширение оригинального файла к токену скачивания
	AppendExtension bool
	// Базовый URL для построения ссылки скачивания
	// (пустой — ссылка относительная)
	BaseURL string
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// LoadEnvFile подгружает .env из текущей директории, если он есть.
// Отсутствие файла — не ошибка; уже установленные переменные окружения
// имеют приоритет (godotenv их не перезаписывает).
func LoadEnvFile(logger *slog.Logger) {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Не удалось загрузить .env файл", slog.String("error", err.Error()))
		}
	}
}

// Load загружает конфигурацию из переменных окружения, валидирует
// значения и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// FD_ADDRESS — адрес HTTP-сервера (по умолчанию 0.0.0.0:8080)
	cfg.Address = getEnvDefault("FD_ADDRESS", "0.0.0.0:8080")

	// FD_STORAGE_DIR — директория хранения блобов (по умолчанию data)
	cfg.StorageDir = getEnvDefault("FD_STORAGE_DIR", "data")

	// FD_DEFAULT_TTL_MINS — время жизни записи в минутах (по умолчанию 60)
	ttlMins, err := getEnvInt("FD_DEFAULT_TTL_MINS", 60)
	if err != nil {
		return nil, fmt.Errorf("FD_DEFAULT_TTL_MINS: %w", err)
	}
	if ttlMins <= 0 {
		return nil, fmt.Errorf("FD_DEFAULT_TTL_MINS: значение должно быть положительным, получено %d", ttlMins)
	}
	cfg.TTL = time.Duration(ttlMins) * time.Minute

	// FD_CLEANUP_INTERVAL_MINS — интервал очистки в минутах (по умолчанию 1)
	cleanupMins, err := getEnvInt("FD_CLEANUP_INTERVAL_MINS", 1)
	if err != nil {
		return nil, fmt.Errorf("FD_CLEANUP_INTERVAL_MINS: %w", err)
	}
	if cleanupMins <= 0 {
		return nil, fmt.Errorf("FD_CLEANUP_INTERVAL_MINS: значение должно быть положительным, получено %d", cleanupMins)
	}
	cfg.CleanupInterval = time.Duration(cleanupMins) * time.Minute

	// FD_MAX_DOWNLOADS — бюджет скачиваний (по умолчанию 3)
	cfg.MaxDownloads, err = getEnvInt("FD_MAX_DOWNLOADS", 3)
	if err != nil {
		return nil, fmt.Errorf("FD_MAX_DOWNLOADS: %w", err)
	}
	if cfg.MaxDownloads <= 0 {
		return nil, fmt.Errorf("FD_MAX_DOWNLOADS: значение должно быть положительным, получено %d", cfg.MaxDownloads)
	}

	// FD_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 100 MB)
	cfg.MaxFileSize, err = getEnvInt64("FD_MAX_FILE_SIZE", 104857600)
	if err != nil {
		return nil, fmt.Errorf("FD_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("FD_MAX_FILE_SIZE: значение должно быть положительным")
	}

	// FD_UPLOAD_PAGE_ENABLED — страница загрузки (по умолчанию выключена)
	cfg.UploadPageEnabled, err = getEnvBool("FD_UPLOAD_PAGE_ENABLED", false)
	if err != nil {
		return nil, fmt.Errorf("FD_UPLOAD_PAGE_ENABLED: %w", err)
	}

	// FD_UPLOAD_PASSWORD — общий пароль загрузки
	cfg.UploadPassword = getEnvDefault("FD_UPLOAD_PASSWORD", "")
	if cfg.UploadPageEnabled && cfg.UploadPassword == "" {
		return nil, fmt.Errorf("FD_UPLOAD_PASSWORD: обязателен при включённой странице загрузки")
	}

	// FD_APPEND_EXTENSION — добавлять расширение к токену (по умолчанию включено)
	cfg.AppendExtension, err = getEnvBool("FD_APPEND_EXTENSION", true)
	if err != nil {
		return nil, fmt.Errorf("FD_APPEND_EXTENSION: %w", err)
	}

	// FD_BASE_URL — базовый URL ссылки скачивания (по умолчанию пустой)
	cfg.BaseURL = strings.TrimRight(getEnvDefault("FD_BASE_URL", ""), "/")

	// FD_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("FD_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("FD_LOG_LEVEL: %w", err)
	}

	// FD_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("FD_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FD_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// FD_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("FD_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FD_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1m, 1h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
