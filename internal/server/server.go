// Пакет server — HTTP-сервер filedrop с graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arturkryukov/filedrop/internal/api/errors"
	"github.com/arturkryukov/filedrop/internal/api/handlers"
	"github.com/arturkryukov/filedrop/internal/api/middleware"
	"github.com/arturkryukov/filedrop/internal/config"
)

// Server — HTTP-сервер filedrop.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// pageHandler может быть nil — тогда маршрут GET / не регистрируется
// и страница загрузки недоступна (404).
func New(
	cfg *config.Config,
	logger *slog.Logger,
	files *handlers.FilesHandler,
	health *handlers.HealthHandler,
	pageHandler *handlers.PageHandler,
) *Server {
	router := NewRouter(cfg, logger, files, health, pageHandler)

	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-роутер со всеми маршрутами сервиса.
// Вынесен отдельно, чтобы тесты могли поднимать роутер без сервера.
func NewRouter(
	cfg *config.Config,
	logger *slog.Logger,
	files *handlers.FilesHandler,
	health *handlers.HealthHandler,
	pageHandler *handlers.PageHandler,
) http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())

	// Файловые endpoints
	router.Post("/upload", files.Upload)
	router.Get("/d/{id}", files.Download)

	// Страница загрузки регистрируется только при включённом флаге
	if cfg.UploadPageEnabled && pageHandler != nil {
		router.Get("/", pageHandler.UploadPage)
	}

	// Health endpoints
	router.Get("/health/live", health.HealthLive)
	router.Get("/health/ready", health.HealthReady)

	// Prometheus метрики
	router.Get("/metrics", promhttp.Handler().ServeHTTP)

	// Неизвестные маршруты — JSON в едином формате ошибок
	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		errors.NotFound(w, "Ресурс не найден")
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown с таймаутом
// FD_SHUTDOWN_TIMEOUT.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
