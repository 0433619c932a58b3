// Пакет model — доменные модели file-drop сервиса.
// Entry — запись реестра об одном живом (скачиваемом) блобе.
package model

import (
	"time"
)

// Entry — метаданные одного загруженного блоба.
// Живёт только в памяти реестра: после рестарта процесса все записи
// теряются, осиротевшие файлы остаются на диске (осознанный компромисс).
type Entry struct {
	// ID — непрозрачный токен скачивания (UUID v4, опционально
	// с расширением оригинального файла). Уникален среди живых записей.
	ID string

	// StoragePath — имя файла на диске относительно директории данных.
	// Совпадает с ID.
	StoragePath string

	// OriginalFilename — оригинальное имя файла при загрузке,
	// возвращается скачивающему через Content-Disposition.
	OriginalFilename string

	// ContentType — MIME-тип, заявленный при загрузке.
	// Пустая строка → application/octet-stream при отдаче.
	ContentType string

	// Size — размер блоба в байтах (для логов и метрик).
	Size int64

	// UploadedAt — момент загрузки (UTC).
	UploadedAt time.Time

	// ExpiresAt — абсолютный дедлайн жизни записи.
	// Фиксируется при создании и никогда не продлевается.
	ExpiresAt time.Time

	// RemainingDownloads — оставшийся бюджет скачиваний.
	// Строго убывает, никогда не отрицателен; запись удаляется
	// в момент, когда значение должно было бы стать 0.
	RemainingDownloads int
}

// IsExpired проверяет, истёк ли дедлайн записи на момент now.
// Граница включительно: now == ExpiresAt считается истёкшим.
func (e *Entry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
