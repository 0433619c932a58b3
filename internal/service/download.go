// download.go — сервис скачивания блобов.
package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	apierrors "github.com/arturkryukov/filedrop/internal/api/errors"
	"github.com/arturkryukov/filedrop/internal/api/middleware"
	"github.com/arturkryukov/filedrop/internal/storage/filestore"
	"github.com/arturkryukov/filedrop/internal/storage/registry"
)

// DownloadService — сервис скачивания блобов.
type DownloadService struct {
	store  *filestore.FileStore
	reg    *registry.Registry
	logger *slog.Logger
}

// NewDownloadService создаёт сервис скачивания.
func NewDownloadService(
	store *filestore.FileStore,
	reg *registry.Registry,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		store:  store,
		reg:    reg,
		logger: logger.With(slog.String("component", "download_service")),
	}
}

// DownloadError — ошибка скачивания с HTTP-кодом.
type DownloadError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// notFoundError — единый 404 для неизвестного, истёкшего и исчерпанного
// токенов: причины различаются только в логах и метриках.
func notFoundError() *DownloadError {
	return &DownloadError{
		StatusCode: 404,
		Code:       apierrors.CodeNotFound,
		Message:    "Файл не найден",
	}
}

// Serve потребляет одно скачивание токена и отдаёт блоб клиенту.
//
// Бюджет списывается в момент решения отдать файл (внутри Consume),
// а не по факту доставки: обрыв соединения после этой точки всё равно
// считается потреблённым скачиванием. Это не даёт клиенту удерживать
// соединение открытым и тем самым блокировать терминальную очистку.
//
// Чтение файла и удаление выполняются вне критической секции реестра;
// решению terminal, принятому под замком, доверяем без перепроверки.
func (s *DownloadService) Serve(w http.ResponseWriter, r *http.Request, id string) *DownloadError {
	// 1. Атомарно потребляем скачивание
	view, terminal, err := s.reg.Consume(id, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrExpired):
			// Запись уже удалена из реестра — файл добираем сами
			_ = s.store.DeleteFile(view.StoragePath)
			middleware.EntriesLive.Set(float64(s.reg.Len()))
			middleware.DownloadsTotal.WithLabelValues("expired").Inc()
			s.logger.Debug("Скачивание истёкшего токена",
				slog.String("token", id),
			)
		default:
			middleware.DownloadsTotal.WithLabelValues("not_found").Inc()
		}
		return notFoundError()
	}

	// 2. Открываем файл
	file, openErr := s.store.ReadFile(view.StoragePath)
	if openErr != nil {
		// Запись была живой, а файла нет — рассинхронизация диска.
		// Для терминального потребления добираем удаление на всякий случай.
		if terminal {
			_ = s.store.DeleteFile(view.StoragePath)
		}
		middleware.DownloadsTotal.WithLabelValues("error").Inc()
		s.logger.Error("Файл живой записи не найден на диске",
			slog.String("token", id),
			slog.String("storage_path", view.StoragePath),
			slog.String("error", openErr.Error()),
		)
		return &DownloadError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка чтения файла",
		}
	}

	// 3. Заголовки и тело
	contentType := view.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", view.OriginalFilename))
	w.Header().Set("Content-Length", strconv.FormatInt(view.Size, 10))

	if _, copyErr := io.Copy(w, file); copyErr != nil {
		// Клиент оборвал соединение; скачивание уже потреблено
		s.logger.Warn("Обрыв отдачи блоба",
			slog.String("token", id),
			slog.String("error", copyErr.Error()),
		)
	}
	file.Close()

	// 4. Терминальное скачивание — удаляем файл после чтения
	if terminal {
		if delErr := s.store.DeleteFile(view.StoragePath); delErr != nil {
			s.logger.Warn("Не удалось удалить файл после терминального скачивания",
				slog.String("token", id),
				slog.String("error", delErr.Error()),
			)
		}
		middleware.EntriesLive.Set(float64(s.reg.Len()))
		middleware.DownloadsTotal.WithLabelValues("terminal").Inc()
	} else {
		middleware.DownloadsTotal.WithLabelValues("success").Inc()
	}

	s.logger.Info("Блоб скачан",
		slog.String("token", id),
		slog.String("filename", view.OriginalFilename),
		slog.Int64("size", view.Size),
		slog.Bool("terminal", terminal),
	)

	return nil
}
