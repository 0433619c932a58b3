// page.go — интерактивная страница загрузки (GET /).
// Страница опциональна и включается флагом FD_UPLOAD_PAGE_ENABLED;
// при выключенной странице маршрут GET / не регистрируется вовсе.
package handlers

import (
	_ "embed"
	"html/template"
	"net/http"
	"time"

	"github.com/arturkryukov/filedrop/internal/api/errors"
	"github.com/arturkryukov/filedrop/internal/config"
)

//go:embed upload.html
var uploadPageHTML string

var uploadPageTmpl = template.Must(template.New("upload").Parse(uploadPageHTML))

// pageData — данные шаблона страницы загрузки.
type pageData struct {
	TTLMinutes   int
	MaxDownloads int
	MaxFileSize  int64
}

// PageHandler отдаёт HTML-страницу загрузки.
type PageHandler struct {
	cfg *config.Config
}

// NewPageHandler создаёт обработчик страницы загрузки.
func NewPageHandler(cfg *config.Config) *PageHandler {
	return &PageHandler{cfg: cfg}
}

// UploadPage обрабатывает GET /.
func (h *PageHandler) UploadPage(w http.ResponseWriter, _ *http.Request) {
	data := pageData{
		TTLMinutes:   int(h.cfg.TTL / time.Minute),
		MaxDownloads: h.cfg.MaxDownloads,
		MaxFileSize:  h.cfg.MaxFileSize,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := uploadPageTmpl.Execute(w, data); err != nil {
		errors.InternalError(w, "Ошибка рендеринга страницы")
	}
}
