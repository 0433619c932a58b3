// Точка входа filedrop — сервиса одноразового обмена файлами.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/arturkryukov/filedrop/internal/api/handlers"
	"github.com/arturkryukov/filedrop/internal/config"
	"github.com/arturkryukov/filedrop/internal/server"
	"github.com/arturkryukov/filedrop/internal/service"
	"github.com/arturkryukov/filedrop/internal/storage/filestore"
	"github.com/arturkryukov/filedrop/internal/storage/registry"
)

func main() {
	// .env подгружается до чтения переменных окружения
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	config.LoadEnvFile(bootLogger)

	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("filedrop запускается",
		slog.String("version", config.Version),
		slog.String("addr", cfg.Address),
		slog.String("storage_dir", cfg.StorageDir),
		slog.Duration("ttl", cfg.TTL),
		slog.Int("max_downloads", cfg.MaxDownloads),
		slog.Bool("upload_page", cfg.UploadPageEnabled),
	)

	// --- Инициализация компонентов ---

	// 1. Файловое хранилище блобов
	store, err := filestore.New(cfg.StorageDir)
	if err != nil {
		logger.Error("Ошибка инициализации FileStore", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. In-memory реестр записей.
	// Реестр не восстанавливается с диска: после рестарта старые ссылки
	// мертвы, осиротевшие блобы остаются в директории данных.
	reg := registry.New(logger)

	// 3. Сервисы
	uploadSvc := service.NewUploadService(cfg, store, reg, logger)
	downloadSvc := service.NewDownloadService(store, reg, logger)

	// 4. Фоновая очистка истёкших записей
	sweeper := service.NewSweeper(store, reg, cfg.CleanupInterval, logger)
	sweeper.Start(context.Background())

	// 5. Handlers
	filesHandler := handlers.NewFilesHandler(uploadSvc, downloadSvc)
	healthHandler := handlers.NewHealthHandler(store.DataDir(), reg)

	var pageHandler *handlers.PageHandler
	if cfg.UploadPageEnabled {
		pageHandler = handlers.NewPageHandler(cfg)
	}

	// 6. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, filesHandler, healthHandler, pageHandler)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")
	sweeper.Stop()

	logger.Info("filedrop остановлен")
}
