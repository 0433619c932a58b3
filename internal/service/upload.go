// Пакет service — бизнес-логика file-drop сервиса.
// upload.go — сервис загрузки блобов.
package service

import (
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/arturkryukov/filedrop/internal/api/errors"
	"github.com/arturkryukov/filedrop/internal/api/middleware"
	"github.com/arturkryukov/filedrop/internal/config"
	"github.com/arturkryukov/filedrop/internal/domain/model"
	"github.com/arturkryukov/filedrop/internal/storage/filestore"
	"github.com/arturkryukov/filedrop/internal/storage/registry"
)

// UploadParams — параметры загрузки блоба.
type UploadParams struct {
	// Reader — поток данных файла
	Reader io.Reader
	// OriginalFilename — оригинальное имя файла
	OriginalFilename string
	// ContentType — MIME-тип файла (может быть пустым)
	ContentType string
	// Size — размер файла (из multipart заголовка)
	Size int64
	// Password — общий пароль загрузки (проверяется только при
	// включённой странице загрузки)
	Password string
}

// UploadResult — результат успешной загрузки.
type UploadResult struct {
	// Token — публичный токен скачивания
	Token string
	// URL — ссылка скачивания (абсолютная при заданном FD_BASE_URL)
	URL string
	// ExpiresInMinutes — время жизни записи в минутах
	ExpiresInMinutes int
	// RemainingDownloads — бюджет скачиваний записи
	RemainingDownloads int
}

// UploadError — ошибка загрузки с HTTP-кодом.
type UploadError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UploadService — сервис загрузки блобов.
type UploadService struct {
	cfg    *config.Config
	store  *filestore.FileStore
	reg    *registry.Registry
	logger *slog.Logger
}

// NewUploadService создаёт сервис загрузки.
func NewUploadService(
	cfg *config.Config,
	store *filestore.FileStore,
	reg *registry.Registry,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		cfg:    cfg,
		store:  store,
		reg:    reg,
		logger: logger.With(slog.String("component", "upload_service")),
	}
}

// Upload загружает блоб в хранилище и публикует запись в реестре.
//
// Поток:
//  1. Проверка пароля (до любых обращений к диску: отклонённая
//     загрузка не оставляет частичных записей)
//  2. Проверка размера файла
//  3. Генерация токена (UUID + опциональное расширение)
//  4. SaveFile (temp + fsync + atomic rename)
//  5. registry.Create — публикация строго после надёжной записи файла
//
// При ошибке Create файл удаляется: реестр и диск не расходятся.
func (s *UploadService) Upload(params UploadParams) (*UploadResult, *UploadError) {
	// 1. Пароль проверяется только при включённой интерактивной странице
	if s.cfg.UploadPageEnabled {
		if subtle.ConstantTimeCompare([]byte(params.Password), []byte(s.cfg.UploadPassword)) != 1 {
			middleware.UploadsTotal.WithLabelValues("unauthorized").Inc()
			return nil, &UploadError{
				StatusCode: 401,
				Code:       apierrors.CodeUnauthorized,
				Message:    "Неверный пароль загрузки",
			}
		}
	}

	// 2. Проверяем размер файла
	if params.Size > s.cfg.MaxFileSize {
		middleware.UploadsTotal.WithLabelValues("too_large").Inc()
		return nil, &UploadError{
			StatusCode: 413,
			Code:       apierrors.CodeFileTooLarge,
			Message:    fmt.Sprintf("Размер файла %d байт превышает максимум %d байт", params.Size, s.cfg.MaxFileSize),
		}
	}

	// 3. Генерируем токен скачивания
	token := uuid.New().String()
	if s.cfg.AppendExtension {
		token += sanitizeExtension(params.OriginalFilename)
	}

	// 4. Сохраняем блоб на диск
	saved, err := s.store.SaveFile(params.Reader, token)
	if err != nil {
		middleware.UploadsTotal.WithLabelValues("error").Inc()
		s.logger.Error("Ошибка сохранения блоба",
			slog.String("token", token),
			slog.String("error", err.Error()),
		)
		return nil, &UploadError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка сохранения файла на диск",
		}
	}

	// 5. Публикуем запись в реестр
	now := time.Now().UTC()
	entry := &model.Entry{
		ID:                 token,
		StoragePath:        saved.StoragePath,
		OriginalFilename:   params.OriginalFilename,
		ContentType:        params.ContentType,
		Size:               saved.Size,
		UploadedAt:         now,
		ExpiresAt:          now.Add(s.cfg.TTL),
		RemainingDownloads: s.cfg.MaxDownloads,
	}

	if err := s.reg.Create(entry); err != nil {
		// Запись не опубликована — файл не должен остаться на диске
		_ = s.store.DeleteFile(saved.StoragePath)
		middleware.UploadsTotal.WithLabelValues("error").Inc()
		s.logger.Error("Ошибка публикации записи в реестр",
			slog.String("token", token),
			slog.String("error", err.Error()),
		)
		return nil, &UploadError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Внутренняя ошибка при регистрации файла",
		}
	}

	// 6. Метрики
	middleware.UploadsTotal.WithLabelValues("success").Inc()
	middleware.EntriesLive.Set(float64(s.reg.Len()))

	s.logger.Info("Блоб загружен",
		slog.String("token", token),
		slog.String("filename", params.OriginalFilename),
		slog.Int64("size", saved.Size),
		slog.String("checksum", saved.Checksum),
		slog.Time("expires_at", entry.ExpiresAt),
		slog.Int("max_downloads", s.cfg.MaxDownloads),
	)

	return &UploadResult{
		Token:              token,
		URL:                s.cfg.BaseURL + "/d/" + token,
		ExpiresInMinutes:   int(s.cfg.TTL / time.Minute),
		RemainingDownloads: s.cfg.MaxDownloads,
	}, nil
}

// sanitizeExtension возвращает расширение оригинального файла, пригодное
// для добавления к токену: только буквы и цифры после точки, не длиннее
// 10 символов. Всё остальное отбрасывается.
func sanitizeExtension(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" || ext == "." {
		return ""
	}
	body := strings.TrimPrefix(ext, ".")
	if len(body) > 10 {
		return ""
	}
	for _, r := range body {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return "." + strings.ToLower(body)
}
