// files.go — HTTP handlers загрузки и скачивания блобов.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arturkryukov/filedrop/internal/api/errors"
	"github.com/arturkryukov/filedrop/internal/service"
)

// FilesHandler — обработчик endpoints загрузки и скачивания.
type FilesHandler struct {
	uploadSvc   *service.UploadService
	downloadSvc *service.DownloadService
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(
	uploadSvc *service.UploadService,
	downloadSvc *service.DownloadService,
) *FilesHandler {
	return &FilesHandler{
		uploadSvc:   uploadSvc,
		downloadSvc: downloadSvc,
	}
}

// uploadResponse — тело ответа успешной загрузки.
type uploadResponse struct {
	URL                string `json:"url"`
	ExpiresInMinutes   int    `json:"expires_in_minutes"`
	RemainingDownloads int    `json:"remaining_downloads"`
}

// Upload обрабатывает POST /upload.
// Multipart form: file (обязательно), password (обязательно при
// включённой странице загрузки).
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	// Парсим multipart form (32 MB буфер в памяти, остальное на диск)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		errors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		errors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	result, uploadErr := h.uploadSvc.Upload(service.UploadParams{
		Reader:           file,
		OriginalFilename: header.Filename,
		ContentType:      header.Header.Get("Content-Type"),
		Size:             header.Size,
		Password:         r.FormValue("password"),
	})
	if uploadErr != nil {
		errors.WriteError(w, uploadErr.StatusCode, uploadErr.Code, uploadErr.Message)
		return
	}

	resp := uploadResponse{
		URL:                result.URL,
		ExpiresInMinutes:   result.ExpiresInMinutes,
		RemainingDownloads: result.RemainingDownloads,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// Download обрабатывает GET /d/{id}.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		errors.NotFound(w, "Файл не найден")
		return
	}

	if downloadErr := h.downloadSvc.Serve(w, r, id); downloadErr != nil {
		errors.WriteError(w, downloadErr.StatusCode, downloadErr.Code, downloadErr.Message)
	}
}
