// sweeper.go — фоновая очистка записей с истёкшим дедлайном.
//
// Consume выселяет истёкшие записи только при обращении; sweeper
// ограничивает время жизни записей, которые никто не скачивает.
// Запускается как горутина с периодическим тикером (FD_CLEANUP_INTERVAL_MINS).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/filedrop/internal/api/middleware"
	"github.com/arturkryukov/filedrop/internal/storage/filestore"
	"github.com/arturkryukov/filedrop/internal/storage/registry"
)

// Prometheus метрики очистки
var (
	// sweepRunsTotal — количество запусков очистки.
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fd_sweep_runs_total",
		Help: "Общее количество запусков фоновой очистки",
	})

	// sweepEvictedTotal — количество выселенных записей.
	sweepEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fd_sweep_evicted_total",
		Help: "Общее количество записей, выселенных очисткой",
	})

	// sweepDurationSeconds — длительность выполнения очистки.
	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fd_sweep_duration_seconds",
		Help:    "Длительность выполнения фоновой очистки в секундах",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

// SweepResult — результат одного запуска очистки.
type SweepResult struct {
	// EvictedCount — количество выселенных записей
	EvictedCount int
	// Errors — количество ошибок удаления файлов
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// Sweeper — фоновая очистка истёкших записей.
type Sweeper struct {
	store    *filestore.FileStore
	reg      *registry.Registry
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewSweeper создаёт сервис очистки.
func NewSweeper(
	store *filestore.FileStore,
	reg *registry.Registry,
	interval time.Duration,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		store:    store,
		reg:      reg,
		interval: interval,
		logger:   logger.With(slog.String("component", "sweeper")),
	}
}

// Start запускает фоновую горутину очистки с периодическим тикером.
// Вызывается один раз при старте приложения.
func (s *Sweeper) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.run(sweepCtx)

	s.logger.Info("Фоновая очистка запущена",
		slog.String("interval", s.interval.String()),
	)
}

// Stop останавливает фоновую горутину очистки.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("Фоновая очистка остановлена")
}

// run — основной цикл фоновой горутины. Каждый тик полностью
// завершается (включая удаление файлов) до обработки следующего,
// поэтому перекрытие проходов невозможно.
func (s *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// RunOnce выполняет один проход очистки: атомарно выселяет все
// истёкшие записи из реестра, затем best-effort удаляет их файлы
// вне критической секции. Ошибки удаления логируются и не повторяются:
// запись уже выселена, корректность метаданных от судьбы файла
// не зависит.
func (s *Sweeper) RunOnce() *SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result := &SweepResult{}

	evicted := s.reg.SweepExpired(time.Now().UTC())
	result.EvictedCount = len(evicted)

	for _, e := range evicted {
		if err := s.store.DeleteFile(e.StoragePath); err != nil {
			result.Errors++
			s.logger.Error("Очистка: ошибка удаления файла",
				slog.String("token", e.ID),
				slog.String("storage_path", e.StoragePath),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.logger.Debug("Очистка: запись выселена",
			slog.String("token", e.ID),
		)
	}

	result.Duration = time.Since(start)

	// Обновляем Prometheus метрики
	sweepRunsTotal.Inc()
	sweepEvictedTotal.Add(float64(result.EvictedCount))
	sweepDurationSeconds.Observe(result.Duration.Seconds())
	middleware.EntriesLive.Set(float64(s.reg.Len()))

	if result.EvictedCount > 0 || result.Errors > 0 {
		s.logger.Info("Очистка завершена",
			slog.Int("evicted", result.EvictedCount),
			slog.Int("errors", result.Errors),
			slog.Duration("duration", result.Duration),
		)
	}

	return result
}
