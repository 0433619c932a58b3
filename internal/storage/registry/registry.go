// Пакет registry — потокобезопасный in-memory реестр живых блобов.
//
// Реестр — единственный источник истины о том, какие токены живы,
// сколько скачиваний у каждого осталось и до какого момента он доступен.
// Все мутации (создание, потребление, выселение по дедлайну) проходят
// через одну эксклюзивную критическую секцию, поэтому операции над одним
// токеном линеаризуемы: два конкурентных Consume при бюджете 1 никогда
// не вернут два успеха.
//
// Не персистентный: при рестарте процесса все записи теряются.
// Внутри критической секции не выполняется никакой I/O.
package registry

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/arturkryukov/filedrop/internal/domain/model"
)

// Ошибки реестра. ErrNotFound и ErrExpired различаются только внутри
// сервиса (логи, метрики, тесты) — наружу обе отдаются как 404.
var (
	// ErrNotFound — токен неизвестен (либо уже исчерпан/выселен).
	ErrNotFound = errors.New("запись не найдена в реестре")
	// ErrExpired — дедлайн записи истёк; запись удалена этим же вызовом.
	ErrExpired = errors.New("срок жизни записи истёк")
	// ErrConflict — токен уже занят живой записью.
	ErrConflict = errors.New("запись с таким токеном уже существует")
)

// Evicted — пара (токен, путь на диске) выселенной записи.
// Возвращается из SweepExpired для удаления файлов вне критической секции.
type Evicted struct {
	ID          string
	StoragePath string
}

// Registry — реестр живых записей. Использует sync.Mutex: почти все
// операции мутируют карту, поэтому RWMutex здесь ничего не даёт.
// Одна глобальная секция на всю карту — осознанное упрощение; при росте
// контеншена заменяется на striped lock по хэшу токена без изменения
// наблюдаемого поведения.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*model.Entry
	logger  *slog.Logger
}

// New создаёт пустой реестр.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*model.Entry),
		logger:  logger.With(slog.String("component", "registry")),
	}
}

// Create публикует полностью подготовленную запись в реестр.
// Вызывается только после того, как файл надёжно записан на диск:
// реестр никогда не ссылается на ещё не существующий файл.
// Возвращает ErrConflict, если токен уже занят (защитная проверка —
// UUID v4 коллизий на практике не даёт).
func (r *Registry) Create(entry *model.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[entry.ID]; ok {
		return ErrConflict
	}

	// Копия, чтобы внешние изменения не затронули состояние реестра
	copied := *entry
	r.entries[entry.ID] = &copied
	return nil
}

// Consume — центральная операция реестра. Атомарно, в одной критической
// секции: проверяет существование, дедлайн и остаток бюджета, после чего
// либо декрементирует счётчик, либо удаляет запись.
//
// Возвращает:
//   - снимок метаданных записи (копию) и terminal=false, если после
//     вызова запись остаётся живой (счётчик декрементирован);
//   - снимок и terminal=true, если это было последнее скачивание —
//     запись удалена, вызывающий обязан удалить файл после чтения;
//   - снимок и ErrExpired, если дедлайн истёк — запись удалена,
//     вызывающий удаляет файл (снимок нужен ради StoragePath);
//   - nil и ErrNotFound, если токен неизвестен.
//
// Решение terminal принимается под замком и не перепроверяется после
// чтения файла: чтение и удаление выполняются вызывающим уже вне секции.
func (r *Registry) Consume(id string, now time.Time) (*model.Entry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, false, ErrNotFound
	}

	if entry.IsExpired(now) {
		snapshot := *entry
		delete(r.entries, id)
		return &snapshot, false, ErrExpired
	}

	terminal := entry.RemainingDownloads <= 1
	if terminal {
		snapshot := *entry
		delete(r.entries, id)
		return &snapshot, true, nil
	}

	entry.RemainingDownloads--
	snapshot := *entry
	return &snapshot, false, nil
}

// SweepExpired атомарно удаляет все записи с истёкшим дедлайном
// и возвращает их токены и пути для удаления файлов вызывающим.
// Гонка с Consume по одному токену разрешается порядком захвата секции:
// проигравший видит ErrNotFound/ErrExpired, что корректно — запись
// мертва в любом случае.
func (r *Registry) SweepExpired(now time.Time) []Evicted {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []Evicted
	for id, entry := range r.entries {
		if !entry.IsExpired(now) {
			continue
		}
		evicted = append(evicted, Evicted{ID: id, StoragePath: entry.StoragePath})
		delete(r.entries, id)
	}
	return evicted
}

// Get возвращает копию записи по токену без изменения состояния.
// Используется только в тестах и health/метриках; скачивание всегда
// идёт через Consume.
func (r *Registry) Get(id string) *model.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil
	}
	copied := *entry
	return &copied
}

// Len возвращает количество живых записей.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
