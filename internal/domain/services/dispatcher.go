package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/athebyme/catalog-sync/internal/adapters/messaging"
	"github.com/athebyme/catalog-sync/internal/destinations"
	"github.com/athebyme/catalog-sync/internal/domain/models"
	"github.com/athebyme/catalog-sync/internal/utils"
	"github.com/athebyme/catalog-sync/pkg/interfaces"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var (
	syncTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_tasks_total",
		Help: "Число завершенных задач синхронизации по направлениям и исходам",
	}, []string{"destination", "status"})

	syncAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_attempts_total",
		Help: "Число попыток вызова API маркетплейсов",
	}, []string{"destination"})

	syncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_sync_duration_seconds",
		Help:    "Длительность выполнения задачи синхронизации",
		Buckets: prometheus.DefBuckets,
	}, []string{"destination"})

	coalescedTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_coalesced_tasks_total",
		Help: "Число снимков, схлопнутых коалесцером до диспетчеризации",
	}, []string{"destination"})
)

// DispatcherConfig задает параметры диспетчеризации
type DispatcherConfig struct {
	ChunkSize       int           // размер пачки при полной синхронизации
	ChunkPause      time.Duration // пауза между пачками
	MaxRetries      int           // максимум попыток на задачу
	RetryBase       time.Duration // база экспоненциальной выдержки
	RequestTimeout  time.Duration // таймаут одной задачи целиком
	QueueSize       int           // емкость очереди направления
	DeadLetterTopic string        // топик отчетов о невыполненных задачах
}

// Dispatcher раздает задачи синхронизации адаптерам направлений.
// У каждого направления своя очередь и один воркер: в полете не больше
// одной задачи направления, темп задается паузой между пачками
type Dispatcher struct {
	cfg       DispatcherConfig
	adapters  map[models.Destination]destinations.Adapter
	coalescer *Coalescer
	queues    map[models.Destination]chan models.TaskKey
	limiters  map[models.Destination]*rate.Limiter
	messaging interfaces.MessagingPort
	logger    interfaces.LoggerPort

	// sleep подменяется в тестах, чтобы не ждать выдержку по-настоящему
	sleep func(ctx context.Context, d time.Duration) error

	wg     sync.WaitGroup
	cancel context.CancelFunc
	once   sync.Once
}

// NewDispatcher создает диспетчер для набора адаптеров
func NewDispatcher(cfg DispatcherConfig, adapters []destinations.Adapter,
	coalescer *Coalescer, msg interfaces.MessagingPort, logger interfaces.LoggerPort) *Dispatcher {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 120 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}

	d := &Dispatcher{
		cfg:       cfg,
		adapters:  make(map[models.Destination]destinations.Adapter, len(adapters)),
		coalescer: coalescer,
		queues:    make(map[models.Destination]chan models.TaskKey, len(adapters)),
		limiters:  make(map[models.Destination]*rate.Limiter, len(adapters)),
		messaging: msg,
		logger:    logger,
		sleep:     sleepContext,
	}
	for _, a := range adapters {
		d.adapters[a.Name()] = a
		d.queues[a.Name()] = make(chan models.TaskKey, cfg.QueueSize)
		limit := rate.Inf
		if cfg.ChunkPause > 0 {
			limit = rate.Every(cfg.ChunkPause)
		}
		d.limiters[a.Name()] = rate.NewLimiter(limit, 1)
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Start запускает воркеры направлений
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for dest, queue := range d.queues {
		d.wg.Add(1)
		go d.worker(ctx, dest, queue)
	}
	d.logger.Info("Диспетчер запущен",
		interfaces.LogField{Key: "destinations", Value: len(d.queues)})
}

// Stop останавливает воркеры и дожидается завершения задач в полете
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		if d.cancel != nil {
			d.cancel()
		}
		d.wg.Wait()
		d.logger.Info("Диспетчер остановлен")
	})
}

// Enqueue предлагает задачу коалесцеру и при необходимости кладет токен
// ключа в очередь направления
func (d *Dispatcher) Enqueue(ctx context.Context, task *models.SyncTask) error {
	queue, ok := d.queues[task.Destination]
	if !ok {
		return utils.ErrDestinationDisabled
	}

	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}
	task.Status = models.TaskPending

	if !d.coalescer.Offer(task) {
		// Ключ уже в работе: снимок заменен, новый токен не нужен
		coalescedTasksTotal.WithLabelValues(string(task.Destination)).Inc()
		return nil
	}

	select {
	case queue <- task.Key():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// worker обрабатывает очередь одного направления
func (d *Dispatcher) worker(ctx context.Context, dest models.Destination, queue chan models.TaskKey) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case key := <-queue:
			d.run(ctx, dest, key, queue)
		}
	}
}

// run выполняет один токен: забирает последний снимок ключа, прогоняет
// задачу с повторами и освобождает ключ
func (d *Dispatcher) run(ctx context.Context, dest models.Destination, key models.TaskKey, queue chan models.TaskKey) {
	task := d.coalescer.Acquire(key)
	if task == nil {
		return
	}

	d.runTask(ctx, task)

	if d.coalescer.Complete(key) {
		// За время полета пришел новый снимок
		select {
		case queue <- key:
		case <-ctx.Done():
		}
	}
}

// runTask выполняет задачу с повторами. Повторяются только временные
// ошибки; постоянная ошибка завершает задачу с первой попытки
func (d *Dispatcher) runTask(ctx context.Context, task *models.SyncTask) {
	adapter := d.adapters[task.Destination]
	dest := string(task.Destination)

	started := time.Now()
	task.Status = models.TaskDispatched

	var result destinations.Result
	for attempt := 0; attempt < d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := d.cfg.RetryBase << (attempt - 1)
			if err := d.sleep(ctx, backoff); err != nil {
				break
			}
		}

		task.Attempts++
		syncAttemptsTotal.WithLabelValues(dest).Inc()

		// Таймаут покрывает один вызов адаптера, выдержки между
		// попытками в него не входят
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
		switch task.Action {
		case models.ActionDelete:
			result = adapter.Delete(attemptCtx, task.ProductID)
		default:
			result = adapter.UpsertOne(attemptCtx, task.Snapshot)
		}
		cancel()

		if result.Success || !result.Transient {
			break
		}

		d.logger.WarnWithContext(ctx, "Временная ошибка задачи, будет повтор",
			interfaces.LogField{Key: "destination", Value: dest},
			interfaces.LogField{Key: "product_id", Value: task.ProductID},
			interfaces.LogField{Key: "attempt", Value: task.Attempts},
			interfaces.LogField{Key: "status", Value: result.StatusCode})
	}

	syncDuration.WithLabelValues(dest).Observe(time.Since(started).Seconds())

	if result.Success {
		task.Status = models.TaskSucceeded
		syncTasksTotal.WithLabelValues(dest, "succeeded").Inc()
		d.logger.InfoWithContext(ctx, "Задача синхронизации выполнена",
			interfaces.LogField{Key: "destination", Value: dest},
			interfaces.LogField{Key: "product_id", Value: task.ProductID},
			interfaces.LogField{Key: "action", Value: string(task.Action)},
			interfaces.LogField{Key: "remote_id", Value: result.RemoteID},
			interfaces.LogField{Key: "attempts", Value: task.Attempts})
		return
	}

	task.Status = models.TaskFailed
	task.LastError = result.ErrorDetail
	syncTasksTotal.WithLabelValues(dest, "failed").Inc()
	d.logger.ErrorWithContext(ctx, "Задача синхронизации провалена",
		interfaces.LogField{Key: "destination", Value: dest},
		interfaces.LogField{Key: "product_id", Value: task.ProductID},
		interfaces.LogField{Key: "attempts", Value: task.Attempts},
		interfaces.LogField{Key: "error", Value: result.ErrorDetail})

	d.reportFailure(ctx, task)
}

// reportFailure публикует отчет о невыполненной задаче в топик недоставленных
func (d *Dispatcher) reportFailure(ctx context.Context, task *models.SyncTask) {
	if d.messaging == nil || d.cfg.DeadLetterTopic == "" {
		return
	}

	event := messaging.FailedTaskEvent{
		TaskID:      task.ID,
		ProductID:   task.ProductID,
		Destination: task.Destination,
		Action:      task.Action,
		Attempts:    task.Attempts,
		LastError:   task.LastError,
		FailedAt:    time.Now(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := d.messaging.PublishWithKey(ctx, d.cfg.DeadLetterTopic, task.ProductID, data); err != nil {
		d.logger.ErrorWithContext(ctx, "Не удалось опубликовать отчет о провале задачи",
			interfaces.LogField{Key: "task_id", Value: task.ID},
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
}

// ResyncBatch прогоняет полный набор товаров направления пачками.
// Первая попытка каждой пачки идет одним вызовом UpsertBatch, временно
// провалившиеся товары возвращаются в общий конвейер поштучно.
// Ключи занимаются через коалесцер: товар с активной задачей в пачку
// не попадает, его снимок не старее нашего и уже в работе
func (d *Dispatcher) ResyncBatch(ctx context.Context, dest models.Destination, products []*models.CanonicalProduct) error {
	adapter, ok := d.adapters[dest]
	if !ok {
		return utils.ErrDestinationDisabled
	}
	queue := d.queues[dest]
	limiter := d.limiters[dest]

	var failed, skipped int
	for start := 0; start < len(products); start += d.cfg.ChunkSize {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		end := start + d.cfg.ChunkSize
		if end > len(products) {
			end = len(products)
		}

		chunk := make([]*models.CanonicalProduct, 0, end-start)
		for _, p := range products[start:end] {
			if d.coalescer.BeginExternal(models.TaskKey{ProductID: p.ID, Destination: dest}) {
				chunk = append(chunk, p)
				continue
			}
			skipped++
		}
		if len(chunk) == 0 {
			continue
		}

		results := adapter.UpsertBatch(ctx, chunk)
		for i, res := range results {
			key := models.TaskKey{ProductID: chunk[i].ID, Destination: dest}
			if d.coalescer.Complete(key) {
				// За время пачки пришел свежий снимок, итог пачки
				// по этому товару уже не интересен
				select {
				case queue <- key:
				case <-ctx.Done():
					return ctx.Err()
				}
				continue
			}
			if res.Success {
				syncTasksTotal.WithLabelValues(string(dest), "succeeded").Inc()
				continue
			}
			failed++
			if !res.Transient {
				syncTasksTotal.WithLabelValues(string(dest), "failed").Inc()
				d.logger.ErrorWithContext(ctx, "Товар отклонен при полной синхронизации",
					interfaces.LogField{Key: "destination", Value: string(dest)},
					interfaces.LogField{Key: "product_id", Value: chunk[i].ID},
					interfaces.LogField{Key: "error", Value: res.ErrorDetail})
				continue
			}
			// Временная ошибка: товар уходит на поштучный повтор
			task := &models.SyncTask{
				ProductID:   chunk[i].ID,
				Destination: dest,
				Action:      models.ActionUpsert,
				Snapshot:    chunk[i],
			}
			if err := d.Enqueue(ctx, task); err != nil {
				return fmt.Errorf("повторная постановка товара %s: %w", chunk[i].ID, err)
			}
		}
	}

	d.logger.InfoWithContext(ctx, "Полная синхронизация направлена",
		interfaces.LogField{Key: "destination", Value: string(dest)},
		interfaces.LogField{Key: "total", Value: len(products)},
		interfaces.LogField{Key: "skipped_busy", Value: skipped},
		interfaces.LogField{Key: "failed_first_pass", Value: failed})
	return nil
}
