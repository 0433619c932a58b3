// Пакет filestore — операции с физическими файлами блобов на диске.
// Чистый I/O-слой без собственного состояния: запись, чтение, удаление.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileStore — управление файлами блобов в директории данных.
type FileStore struct {
	// dataDir — корневая директория хранения (FD_STORAGE_DIR)
	dataDir string
}

// SaveResult — результат сохранения блоба на диск.
type SaveResult struct {
	// StoragePath — имя файла относительно dataDir
	StoragePath string
	// FullPath — абсолютный путь файла на диске
	FullPath string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 хэш содержимого (для логов)
	Checksum string
}

// New создаёт FileStore. Создаёт директорию данных, если её нет.
func New(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}

	return &FileStore{dataDir: dataDir}, nil
}

// SaveFile записывает данные из reader на диск под именем storageName
// с подсчётом SHA-256 на лету.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке temp файл удаляется; полузаписанный файл никогда не виден
// под финальным именем.
func (fs *FileStore) SaveFile(reader io.Reader, storageName string) (*SaveResult, error) {
	if err := validateStorageName(storageName); err != nil {
		return nil, err
	}

	fullPath := filepath.Join(fs.dataDir, storageName)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	// Streaming запись с одновременным подсчётом SHA-256
	hasher := sha256.New()
	tee := io.TeeReader(reader, hasher)

	size, err := io.Copy(f, tee)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	// Атомарный rename
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		StoragePath: storageName,
		FullPath:    fullPath,
		Size:        size,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// ReadFile открывает файл для чтения и возвращает *os.File.
// Вызывающий код обязан закрыть файл.
func (fs *FileStore) ReadFile(storagePath string) (*os.File, error) {
	if err := validateStorageName(storagePath); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(fs.dataDir, storagePath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("файл не найден: %s", storagePath)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", storagePath, err)
	}

	return f, nil
}

// DeleteFile удаляет файл с диска. Идемпотентен: удаление уже
// отсутствующего файла — не ошибка (терминальное скачивание и sweep
// могут целиться в один и тот же путь).
func (fs *FileStore) DeleteFile(storagePath string) error {
	if err := validateStorageName(storagePath); err != nil {
		return err
	}

	err := os.Remove(filepath.Join(fs.dataDir, storagePath))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", storagePath, err)
	}
	return nil
}

// FileExists проверяет существование файла на диске.
func (fs *FileStore) FileExists(storagePath string) bool {
	_, err := os.Stat(filepath.Join(fs.dataDir, storagePath))
	return err == nil
}

// DataDir возвращает путь к директории данных.
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}

// validateStorageName отклоняет имена с разделителями пути.
// Имя файла всегда плоское (UUID + расширение); всё остальное —
// попытка выйти за пределы dataDir.
func validateStorageName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("недопустимое имя файла: %q", name)
	}
	return nil
}
