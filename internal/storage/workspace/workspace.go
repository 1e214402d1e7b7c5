// Пакет workspace — контейнерное хранилище бинарных объектов на диске.
// Каждая транзакция владеет одним контейнером (директорией). Запись
// потоковая, с подсчётом SHA-512 на лету, без буферизации объекта в памяти.
package workspace

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DigestAlgorithm — алгоритм дайджеста, вычисляемого при записи.
const DigestAlgorithm = "SHA-512"

// ContentFolder — фиксированная поддиректория бинарного содержимого контейнера.
const ContentFolder = "Content"

// Store — дисковое контейнерное хранилище.
type Store struct {
	// rootDir — корневая директория workspace (CM_WORKSPACE_DIR)
	rootDir string
}

// PutResult — результат записи объекта в контейнер.
type PutResult struct {
	// Digest — SHA-512 дайджест содержимого (hex)
	Digest string
	// Algorithm — алгоритм дайджеста
	Algorithm string
	// Size — размер записанных данных в байтах
	Size int64
}

// New создаёт Store. Проверяет и создаёт корневую директорию,
// если она не существует.
func New(rootDir string) (*Store, error) {
	if err := os.MkdirAll(rootDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать корневую директорию workspace %s: %w", rootDir, err)
	}
	return &Store{rootDir: rootDir}, nil
}

// RootDir возвращает корневую директорию workspace.
func (s *Store) RootDir() string {
	return s.rootDir
}

// EnsureContainer создаёт контейнер, если он не существует.
func (s *Store) EnsureContainer(container string) error {
	dir, err := s.containerPath(container)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("ошибка создания контейнера %s: %w", container, err)
	}
	return nil
}

// ContainerExists проверяет существование контейнера.
func (s *Store) ContainerExists(container string) bool {
	dir, err := s.containerPath(container)
	if err != nil {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// Put записывает данные из reader в объект контейнера с подсчётом
// SHA-512 на лету. Контейнер должен существовать.
//
// Паттерн: temp файл → запись + SHA-512 → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (s *Store) Put(container, key string, reader io.Reader) (*PutResult, error) {
	fullPath, err := s.objectPath(container, key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return nil, fmt.Errorf("ошибка создания директории объекта: %w", err)
	}
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	// Streaming запись с одновременным подсчётом SHA-512
	hasher := sha512.New()
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

	return &PutResult{
		Digest:    hex.EncodeToString(hasher.Sum(nil)),
		Algorithm: DigestAlgorithm,
		Size:      size,
	}, nil
}

// Get открывает объект контейнера для чтения.
// Вызывающий код обязан закрыть ReadCloser.
func (s *Store) Get(container, key string) (io.ReadCloser, error) {
	fullPath, err := s.objectPath(container, key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("объект не найден: %s/%s", container, key)
		}
		return nil, fmt.Errorf("ошибка открытия объекта %s/%s: %w", container, key, err)
	}
	return f, nil
}

// ObjectExists проверяет существование объекта в контейнере.
func (s *Store) ObjectExists(container, key string) bool {
	fullPath, err := s.objectPath(container, key)
	if err != nil {
		return false
	}
	_, err = os.Stat(fullPath)
	return err == nil
}

// Path возвращает абсолютный путь объекта на диске.
// Используется там, где нужен произвольный доступ (например, чтение ZIP).
func (s *Store) Path(container, key string) (string, error) {
	return s.objectPath(container, key)
}

// DeleteContainer удаляет контейнер. При recursive=true удаляется
// всё содержимое; иначе только пустой контейнер.
// Отсутствующий контейнер — не ошибка.
func (s *Store) DeleteContainer(container string, recursive bool) error {
	dir, err := s.containerPath(container)
	if err != nil {
		return err
	}

	if recursive {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("ошибка удаления контейнера %s: %w", container, err)
		}
		return nil
	}

	err = os.Remove(dir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления контейнера %s: %w", container, err)
	}
	return nil
}

// containerPath возвращает путь директории контейнера, отклоняя
// имена, выводящие за пределы rootDir.
func (s *Store) containerPath(container string) (string, error) {
	if container == "" || strings.ContainsAny(container, "/\\") || container == "." || container == ".." {
		return "", fmt.Errorf("недопустимое имя контейнера: %q", container)
	}
	return filepath.Join(s.rootDir, container), nil
}

// objectPath возвращает путь объекта внутри контейнера, отклоняя
// ключи с выходом за пределы контейнера.
func (s *Store) objectPath(container, key string) (string, error) {
	dir, err := s.containerPath(container)
	if err != nil {
		return "", err
	}
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("недопустимый ключ объекта: %q", key)
	}
	return filepath.Join(dir, cleaned), nil
}
