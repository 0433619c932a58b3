package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

// clearAllFDEnvVars очищает все переменные окружения FD_* для чистого теста
// и возвращает функцию восстановления.
func clearAllFDEnvVars(t *testing.T) func() {
	t.Helper()
	keys := []string{
		"FD_ADDRESS", "FD_STORAGE_DIR", "FD_DEFAULT_TTL_MINS",
		"FD_CLEANUP_INTERVAL_MINS", "FD_MAX_DOWNLOADS", "FD_MAX_FILE_SIZE",
		"FD_UPLOAD_PAGE_ENABLED", "FD_UPLOAD_PASSWORD", "FD_APPEND_EXTENSION",
		"FD_BASE_URL", "FD_LOG_LEVEL", "FD_LOG_FORMAT", "FD_SHUTDOWN_TIMEOUT",
	}
	originals := make(map[string]string)
	origSet := make(map[string]bool)
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			originals[k] = v
			origSet[k] = true
		}
		os.Unsetenv(k)
	}
	return func() {
		for _, k := range keys {
			if origSet[k] {
				os.Setenv(k, originals[k])
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	cleanup := clearAllFDEnvVars(t)
	defer cleanup()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if cfg.Address != "0.0.0.0:8080" {
		t.Errorf("Address: ожидалось 0.0.0.0:8080, получено %q", cfg.Address)
	}
	if cfg.StorageDir != "data" {
		t.Errorf("StorageDir: ожидалось data, получено %q", cfg.StorageDir)
	}
	if cfg.TTL != 60*time.Minute {
		t.Errorf("TTL: ожидалось 60m, получено %v", cfg.TTL)
	}
	if cfg.CleanupInterval != time.Minute {
		t.Errorf("CleanupInterval: ожидалось 1m, получено %v", cfg.CleanupInterval)
	}
	if cfg.MaxDownloads != 3 {
		t.Errorf("MaxDownloads: ожидалось 3, получено %d", cfg.MaxDownloads)
	}
	if cfg.MaxFileSize != 104857600 {
		t.Errorf("MaxFileSize: ожидалось 104857600, получено %d", cfg.MaxFileSize)
	}
	if cfg.UploadPageEnabled {
		t.Error("UploadPageEnabled: по умолчанию должна быть выключена")
	}
	if !cfg.AppendExtension {
		t.Error("AppendExtension: по умолчанию должно быть включено")
	}
	if cfg.BaseURL != "" {
		t.Errorf("BaseURL: ожидался пустой, получено %q", cfg.BaseURL)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel: ожидался info, получено %v", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat: ожидался json, получено %q", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout: ожидалось 5s, получено %v", cfg.ShutdownTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	cleanup := clearAllFDEnvVars(t)
	defer cleanup()

	os.Setenv("FD_ADDRESS", "127.0.0.1:9090")
	os.Setenv("FD_STORAGE_DIR", "/var/lib/filedrop")
	os.Setenv("FD_DEFAULT_TTL_MINS", "15")
	os.Setenv("FD_CLEANUP_INTERVAL_MINS", "5")
	os.Setenv("FD_MAX_DOWNLOADS", "10")
	os.Setenv("FD_UPLOAD_PAGE_ENABLED", "true")
	os.Setenv("FD_UPLOAD_PASSWORD", "s3cret")
	os.Setenv("FD_APPEND_EXTENSION", "false")
	os.Setenv("FD_BASE_URL", "https://drop.example.com/")
	os.Setenv("FD_LOG_FORMAT", "text")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if cfg.Address != "127.0.0.1:9090" {
		t.Errorf("Address: получено %q", cfg.Address)
	}
	if cfg.TTL != 15*time.Minute {
		t.Errorf("TTL: ожидалось 15m, получено %v", cfg.TTL)
	}
	if cfg.CleanupInterval != 5*time.Minute {
		t.Errorf("CleanupInterval: ожидалось 5m, получено %v", cfg.CleanupInterval)
	}
	if cfg.MaxDownloads != 10 {
		t.Errorf("MaxDownloads: ожидалось 10, получено %d", cfg.MaxDownloads)
	}
	if !cfg.UploadPageEnabled {
		t.Error("UploadPageEnabled: должна быть включена")
	}
	if cfg.UploadPassword != "s3cret" {
		t.Errorf("UploadPassword: получено %q", cfg.UploadPassword)
	}
	if cfg.AppendExtension {
		t.Error("AppendExtension: должно быть выключено")
	}
	// Замыкающий слэш должен быть убран
	if cfg.BaseURL != "https://drop.example.com" {
		t.Errorf("BaseURL: получено %q", cfg.BaseURL)
	}
}

func TestLoad_PageEnabledRequiresPassword(t *testing.T) {
	cleanup := clearAllFDEnvVars(t)
	defer cleanup()

	os.Setenv("FD_UPLOAD_PAGE_ENABLED", "true")

	if _, err := Load(); err == nil {
		t.Error("ожидалась ошибка: страница включена без пароля")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"нечисловой TTL", "FD_DEFAULT_TTL_MINS", "abc"},
		{"нулевой TTL", "FD_DEFAULT_TTL_MINS", "0"},
		{"отрицательный TTL", "FD_DEFAULT_TTL_MINS", "-5"},
		{"нулевой интервал очистки", "FD_CLEANUP_INTERVAL_MINS", "0"},
		{"нулевой бюджет скачиваний", "FD_MAX_DOWNLOADS", "0"},
		{"отрицательный размер файла", "FD_MAX_FILE_SIZE", "-1"},
		{"некорректный флаг страницы", "FD_UPLOAD_PAGE_ENABLED", "maybe"},
		{"некорректный уровень логов", "FD_LOG_LEVEL", "verbose"},
		{"некорректный формат логов", "FD_LOG_FORMAT", "xml"},
		{"некорректный таймаут", "FD_SHUTDOWN_TIMEOUT", "5 seconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup := clearAllFDEnvVars(t)
			defer cleanup()

			os.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("%s=%q: ожидалась ошибка", tt.key, tt.value)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"WARN", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := parseLogLevel(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseLogLevel(%q): ожидалась ошибка", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseLogLevel(%q): неожиданная ошибка %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("parseLogLevel(%q): ожидалось %v, получено %v", tt.input, tt.want, got)
		}
	}
}
