package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/arturkryukov/filedrop/internal/domain/model"
)

// testLogger возвращает логгер для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// testEntry создаёт тестовую запись с заданным токеном и бюджетом.
func testEntry(id string, downloads int, expiresAt time.Time) *model.Entry {
	return &model.Entry{
		ID:                 id,
		StoragePath:        id,
		OriginalFilename:   fmt.Sprintf("file_%s.txt", id),
		ContentType:        "text/plain",
		Size:               1024,
		UploadedAt:         time.Now().UTC(),
		ExpiresAt:          expiresAt,
		RemainingDownloads: downloads,
	}
}

func TestCreate(t *testing.T) {
	reg := New(testLogger())

	err := reg.Create(testEntry("tok-1", 3, time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("неожиданная ошибка Create: %v", err)
	}

	if reg.Len() != 1 {
		t.Errorf("ожидалась 1 запись, получено %d", reg.Len())
	}
	if reg.Get("tok-1") == nil {
		t.Error("созданная запись не найдена в реестре")
	}
}

func TestCreate_Conflict(t *testing.T) {
	reg := New(testLogger())

	if err := reg.Create(testEntry("tok-1", 3, time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("неожиданная ошибка Create: %v", err)
	}

	err := reg.Create(testEntry("tok-1", 3, time.Now().Add(time.Hour)))
	if !errors.Is(err, ErrConflict) {
		t.Errorf("ожидалась ErrConflict, получено %v", err)
	}
	if reg.Len() != 1 {
		t.Errorf("конфликт не должен менять реестр: ожидалась 1 запись, получено %d", reg.Len())
	}
}

func TestCreate_CopiesData(t *testing.T) {
	reg := New(testLogger())

	entry := testEntry("tok-1", 3, time.Now().Add(time.Hour))
	reg.Create(entry)

	// Изменяем оригинал — реестр не должен быть затронут
	entry.RemainingDownloads = 999

	got := reg.Get("tok-1")
	if got.RemainingDownloads == 999 {
		t.Error("Create должен копировать данные, а не хранить ссылку")
	}
}

func TestConsume_NotFound(t *testing.T) {
	reg := New(testLogger())

	_, _, err := reg.Consume("nonexistent", time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}

// TestConsume_StrictlyDecreasing проверяет, что бюджет строго убывает
// и запись исчезает ровно в момент, когда он стал бы нулём.
func TestConsume_StrictlyDecreasing(t *testing.T) {
	reg := New(testLogger())
	now := time.Now().UTC()

	reg.Create(testEntry("tok-1", 3, now.Add(time.Hour)))

	// 1-е скачивание: 3 → 2
	view, terminal, err := reg.Consume("tok-1", now)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if terminal {
		t.Error("1-е скачивание не должно быть терминальным")
	}
	if view.RemainingDownloads != 2 {
		t.Errorf("ожидался остаток 2, получено %d", view.RemainingDownloads)
	}

	// 2-е скачивание: 2 → 1
	view, terminal, err = reg.Consume("tok-1", now)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if terminal {
		t.Error("2-е скачивание не должно быть терминальным")
	}
	if view.RemainingDownloads != 1 {
		t.Errorf("ожидался остаток 1, получено %d", view.RemainingDownloads)
	}

	// 3-е скачивание — терминальное, запись удаляется
	view, terminal, err = reg.Consume("tok-1", now)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !terminal {
		t.Error("последнее скачивание должно быть терминальным")
	}
	if view.StoragePath != "tok-1" {
		t.Errorf("терминальный снимок должен содержать путь файла, получено %q", view.StoragePath)
	}
	if reg.Len() != 0 {
		t.Errorf("запись должна исчезнуть после терминального скачивания, осталось %d", reg.Len())
	}

	// 4-е скачивание — уже не найдено
	_, _, err = reg.Consume("tok-1", now)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound после исчерпания, получено %v", err)
	}
}

func TestConsume_SingleBudget(t *testing.T) {
	reg := New(testLogger())
	now := time.Now().UTC()

	reg.Create(testEntry("tok-1", 1, now.Add(time.Hour)))

	_, terminal, err := reg.Consume("tok-1", now)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !terminal {
		t.Error("единственное скачивание при бюджете 1 должно быть терминальным")
	}
	if reg.Len() != 0 {
		t.Error("запись должна быть удалена")
	}
}

func TestConsume_Expired(t *testing.T) {
	reg := New(testLogger())
	now := time.Now().UTC()

	reg.Create(testEntry("tok-1", 3, now.Add(-time.Minute)))

	view, _, err := reg.Consume("tok-1", now)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("ожидалась ErrExpired, получено %v", err)
	}
	if view == nil || view.StoragePath != "tok-1" {
		t.Error("при ErrExpired снимок должен содержать путь для удаления файла")
	}
	if reg.Len() != 0 {
		t.Error("истёкшая запись должна быть удалена при Consume")
	}
}

// TestConsume_ExpiryBoundary проверяет границу дедлайна: now == ExpiresAt
// уже считается истёкшим.
func TestConsume_ExpiryBoundary(t *testing.T) {
	reg := New(testLogger())
	deadline := time.Now().UTC()

	reg.Create(testEntry("tok-1", 3, deadline))

	_, _, err := reg.Consume("tok-1", deadline)
	if !errors.Is(err, ErrExpired) {
		t.Errorf("now == ExpiresAt должно давать ErrExpired, получено %v", err)
	}
}

// TestConsume_ConcurrentLastDownload — ключевое свойство реестра:
// два конкурентных Consume при бюджете 1 дают ровно один терминальный
// успех и ровно одну ErrNotFound. Запускать с go test -race.
func TestConsume_ConcurrentLastDownload(t *testing.T) {
	for iter := 0; iter < 100; iter++ {
		reg := New(testLogger())
		now := time.Now().UTC()
		reg.Create(testEntry("tok-1", 1, now.Add(time.Hour)))

		var wg sync.WaitGroup
		results := make([]error, 2)
		terminals := make([]bool, 2)

		wg.Add(2)
		for i := 0; i < 2; i++ {
			go func(slot int) {
				defer wg.Done()
				_, terminal, err := reg.Consume("tok-1", now)
				results[slot] = err
				terminals[slot] = terminal
			}(i)
		}
		wg.Wait()

		var successes, notFound int
		for i := 0; i < 2; i++ {
			switch {
			case results[i] == nil && terminals[i]:
				successes++
			case errors.Is(results[i], ErrNotFound):
				notFound++
			default:
				t.Fatalf("итерация %d: неожиданный результат: err=%v terminal=%v",
					iter, results[i], terminals[i])
			}
		}

		if successes != 1 || notFound != 1 {
			t.Fatalf("итерация %d: ожидался ровно один успех и один ErrNotFound, получено %d/%d",
				iter, successes, notFound)
		}
	}
}

func TestSweepExpired(t *testing.T) {
	reg := New(testLogger())
	now := time.Now().UTC()

	reg.Create(testEntry("live-1", 3, now.Add(time.Hour)))
	reg.Create(testEntry("dead-1", 3, now.Add(-time.Minute)))
	reg.Create(testEntry("dead-2", 3, now.Add(-time.Hour)))

	evicted := reg.SweepExpired(now)
	if len(evicted) != 2 {
		t.Fatalf("ожидалось 2 выселенных записи, получено %d", len(evicted))
	}

	for _, e := range evicted {
		if e.StoragePath == "" {
			t.Errorf("выселенная запись %s без пути файла", e.ID)
		}
	}

	if reg.Len() != 1 {
		t.Errorf("ожидалась 1 живая запись, получено %d", reg.Len())
	}
	if reg.Get("live-1") == nil {
		t.Error("живая запись не должна быть затронута sweep'ом")
	}
}

func TestSweepExpired_Empty(t *testing.T) {
	reg := New(testLogger())

	evicted := reg.SweepExpired(time.Now())
	if evicted != nil {
		t.Errorf("пустой реестр: ожидалось nil, получено %v", evicted)
	}
}

// TestSweepVsConsume_Race проверяет гонку sweep против consume на одной
// истёкшей записи: файл должен быть запланирован на удаление ровно одной
// из сторон, а не обеими и не ни одной.
func TestSweepVsConsume_Race(t *testing.T) {
	for iter := 0; iter < 100; iter++ {
		reg := New(testLogger())
		now := time.Now().UTC()
		reg.Create(testEntry("tok-1", 3, now.Add(-time.Minute)))

		var wg sync.WaitGroup
		var consumeGotPath, sweepGotPath bool

		wg.Add(2)
		go func() {
			defer wg.Done()
			view, _, err := reg.Consume("tok-1", now)
			if errors.Is(err, ErrExpired) && view != nil {
				consumeGotPath = true
			}
		}()
		go func() {
			defer wg.Done()
			if len(reg.SweepExpired(now)) == 1 {
				sweepGotPath = true
			}
		}()
		wg.Wait()

		if consumeGotPath == sweepGotPath {
			t.Fatalf("ровно одна сторона должна получить путь для удаления: consume=%v sweep=%v",
				consumeGotPath, sweepGotPath)
		}
		if reg.Len() != 0 {
			t.Fatal("мёртвая запись осталась в реестре")
		}
	}
}

// TestConcurrentAccess — общая проверка потокобезопасности.
// Запускать с go test -race.
func TestConcurrentAccess(t *testing.T) {
	reg := New(testLogger())
	now := time.Now().UTC()

	const goroutines = 50

	var wg sync.WaitGroup
	wg.Add(goroutines * 3)

	// Писатели: создание и потребление собственных токенов
	for i := 0; i < goroutines; i++ {
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("tok-%d", n)
			reg.Create(testEntry(id, 2, now.Add(time.Hour)))
			reg.Consume(id, now)
			reg.Consume(id, now)
		}(i)
	}

	// Читатели
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				reg.Len()
				reg.Get("tok-0")
			}
		}()
	}

	// Sweep параллельно со всем остальным
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			reg.SweepExpired(now)
		}()
	}

	wg.Wait()

	// Все токены потреблены дважды при бюджете 2 — реестр пуст
	if reg.Len() != 0 {
		t.Errorf("ожидался пустой реестр, осталось %d записей", reg.Len())
	}
}
