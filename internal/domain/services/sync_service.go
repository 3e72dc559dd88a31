package services

import (
	"context"
	"fmt"
	"time"

	"github.com/athebyme/catalog-sync/internal/adapters/messaging"
	"github.com/athebyme/catalog-sync/internal/adapters/storage"
	"github.com/athebyme/catalog-sync/internal/destinations"
	"github.com/athebyme/catalog-sync/internal/domain/models"
	"github.com/athebyme/catalog-sync/internal/utils"
	"github.com/athebyme/catalog-sync/pkg/interfaces"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var feedRenderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "catalog_feed_render_duration_seconds",
	Help:    "Длительность рендера фида",
	Buckets: prometheus.DefBuckets,
}, []string{"destination", "format"})

// FeedFormat определяет формат отдачи фида
type FeedFormat string

const (
	FeedCSV FeedFormat = "csv"
	FeedXML FeedFormat = "xml"
)

// срок жизни блокировки полной синхронизации: страховка на случай,
// если процесс умер, не сняв блокировку
const resyncLockTTL = 30 * time.Minute

// SyncServiceConfig задает параметры сервиса синхронизации
type SyncServiceConfig struct {
	Enabled      []models.Destination // направления, для которых созданы адаптеры
	FeedCacheTTL time.Duration
	FeedFileName string // имя файла фида на SFTP приемнике
}

// SyncServiceInterface определяет операции сервиса синхронизации
type SyncServiceInterface interface {
	HandleChangeEvent(ctx context.Context, event *messaging.ProductChangeEvent) error
	FullResync(ctx context.Context, dest models.Destination) error
	RenderFeed(ctx context.Context, dest models.Destination, format FeedFormat) ([]byte, error)
	RegenerateFeed(ctx context.Context, dest models.Destination) error
	FeedStatus(ctx context.Context, dest models.Destination) (*models.FeedJob, error)
	ListJobs(ctx context.Context, dest models.Destination, limit, offset int) ([]*models.FeedJob, int, error)
	PollFeedStatuses(ctx context.Context) error
}

// SyncService связывает каталог, коалесцер, диспетчер и фиды.
// Это единственная точка, в которой событие каталога превращается
// в работу для направлений
type SyncService struct {
	cfg        SyncServiceConfig
	storage    storage.SyncStorageInterface
	cache      interfaces.CachePort
	normalizer *Normalizer
	dispatcher *Dispatcher
	renderer   FeedRenderer
	uploader   FeedUploader
	pollers    map[models.Destination]destinations.AsyncFeedAdapter
	logger     interfaces.LoggerPort
}

// FeedRenderer строит фид из набора канонических товаров
type FeedRenderer interface {
	RenderCSV(products []*models.CanonicalProduct) []byte
	RenderXML(products []*models.CanonicalProduct) []byte
}

// FeedUploader доставляет отрендеренный фид наружу (SFTP)
type FeedUploader interface {
	Upload(ctx context.Context, remoteFileName string, content []byte) error
}

// NewSyncService создает сервис синхронизации.
// uploader может быть nil, если доставка по SFTP выключена
func NewSyncService(cfg SyncServiceConfig, store storage.SyncStorageInterface,
	cache interfaces.CachePort, normalizer *Normalizer, dispatcher *Dispatcher,
	renderer FeedRenderer, uploader FeedUploader,
	pollers map[models.Destination]destinations.AsyncFeedAdapter,
	logger interfaces.LoggerPort) *SyncService {
	if cfg.FeedCacheTTL <= 0 {
		cfg.FeedCacheTTL = 10 * time.Minute
	}
	if cfg.FeedFileName == "" {
		cfg.FeedFileName = "google-merchant"
	}
	return &SyncService{
		cfg:        cfg,
		storage:    store,
		cache:      cache,
		normalizer: normalizer,
		dispatcher: dispatcher,
		renderer:   renderer,
		uploader:   uploader,
		pollers:    pollers,
		logger:     logger,
	}
}

// destinationEnabled сообщает, создан ли адаптер направления
func (s *SyncService) destinationEnabled(dest models.Destination) bool {
	for _, d := range s.cfg.Enabled {
		if d == dest {
			return true
		}
	}
	return false
}

// HandleChangeEvent превращает событие каталога в задачи синхронизации:
// по одной на каждое включенное направление
func (s *SyncService) HandleChangeEvent(ctx context.Context, event *messaging.ProductChangeEvent) error {
	if event.ProductID == "" {
		return utils.ErrMissingIdentifier
	}

	if event.EventType == messaging.ProductDeletedEvent {
		return s.enqueueAll(ctx, &models.SyncTask{
			ProductID: event.ProductID,
			Action:    models.ActionDelete,
		})
	}

	raw := event.Product
	if raw == nil {
		var err error
		raw, err = s.storage.GetProduct(ctx, event.ProductID)
		if err != nil {
			return fmt.Errorf("чтение товара %s: %w", event.ProductID, err)
		}
		if raw == nil {
			// Товар уже удален из каталога: синхронизируем удаление
			return s.enqueueAll(ctx, &models.SyncTask{
				ProductID: event.ProductID,
				Action:    models.ActionDelete,
			})
		}
	}

	product, err := s.normalizer.Normalize(raw)
	if err != nil {
		return fmt.Errorf("нормализация товара %s: %w", event.ProductID, err)
	}

	return s.enqueueAll(ctx, &models.SyncTask{
		ProductID: product.ID,
		Action:    models.ActionUpsert,
		Snapshot:  product,
	})
}

// enqueueAll ставит копию задачи в очередь каждого включенного направления
func (s *SyncService) enqueueAll(ctx context.Context, template *models.SyncTask) error {
	for _, dest := range s.cfg.Enabled {
		task := *template
		task.ID = ""
		task.Destination = dest
		if err := s.dispatcher.Enqueue(ctx, &task); err != nil {
			return fmt.Errorf("постановка задачи для %s: %w", dest, err)
		}
	}

	// Каталог изменился, закэшированные фиды всех направлений устарели
	if err := s.cache.DeleteByPattern(ctx, "feed:*"); err != nil {
		s.logger.WarnWithContext(ctx, "Не удалось сбросить кэш фидов",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
	return nil
}

// FullResync прогоняет весь активный каталог через одно направление.
// Блокировка в кэше не дает двум процессам гнать одно направление
// одновременно: расписание воркера и ручной запуск через API могут совпасть
func (s *SyncService) FullResync(ctx context.Context, dest models.Destination) error {
	if !s.destinationEnabled(dest) {
		return utils.ErrDestinationDisabled
	}

	lockKey := fmt.Sprintf("resync:%s", dest)
	acquired, err := s.cache.Lock(ctx, lockKey, resyncLockTTL)
	switch {
	case err != nil:
		// Кэш недоступен: синхронизация важнее блокировки
		s.logger.WarnWithContext(ctx, "Блокировка синхронизации недоступна",
			interfaces.LogField{Key: "error", Value: err.Error()})
	case !acquired:
		return utils.ErrResyncInProgress
	default:
		defer func() {
			if err := s.cache.Unlock(ctx, lockKey); err != nil {
				s.logger.WarnWithContext(ctx, "Не удалось снять блокировку синхронизации",
					interfaces.LogField{Key: "key", Value: lockKey},
					interfaces.LogField{Key: "error", Value: err.Error()})
			}
		}()
	}

	raws, err := s.storage.ListActiveInStock(ctx)
	if err != nil {
		return fmt.Errorf("чтение каталога: %w", err)
	}

	products := make([]*models.CanonicalProduct, 0, len(raws))
	for _, raw := range raws {
		p, err := s.normalizer.Normalize(raw)
		if err != nil {
			// Запись без идентификатора синхронизировать не во что
			s.logger.WarnWithContext(ctx, "Запись каталога пропущена",
				interfaces.LogField{Key: "error", Value: err.Error()})
			continue
		}
		products = append(products, p)
	}

	s.logger.InfoWithContext(ctx, "Начата полная синхронизация",
		interfaces.LogField{Key: "destination", Value: string(dest)},
		interfaces.LogField{Key: "products", Value: len(products)})

	return s.dispatcher.ResyncBatch(ctx, dest, products)
}

// feedCacheKey собирает ключ кэша отрендеренного фида
func feedCacheKey(dest models.Destination, format FeedFormat) string {
	return fmt.Sprintf("feed:%s:%s", dest, format)
}

// RenderFeed отдает фид направления из кэша или рендерит его с нуля
func (s *SyncService) RenderFeed(ctx context.Context, dest models.Destination, format FeedFormat) ([]byte, error) {
	if !s.destinationEnabled(dest) {
		return nil, utils.ErrDestinationDisabled
	}

	key := feedCacheKey(dest, format)
	if cached, err := s.cache.Get(ctx, key); err == nil {
		return cached, nil
	} else if err != utils.ErrCacheMiss {
		// Кэш недоступен: рендерим вживую, фид важнее кэша
		s.logger.WarnWithContext(ctx, "Кэш фидов недоступен",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}

	content, err := s.renderFresh(ctx, dest, format)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, content, s.cfg.FeedCacheTTL); err != nil {
		s.logger.WarnWithContext(ctx, "Не удалось закэшировать фид",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
	return content, nil
}

// renderFresh рендерит фид из текущего состояния каталога
func (s *SyncService) renderFresh(ctx context.Context, dest models.Destination, format FeedFormat) ([]byte, error) {
	started := time.Now()

	raws, err := s.storage.ListActiveInStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("чтение каталога: %w", err)
	}

	products := make([]*models.CanonicalProduct, 0, len(raws))
	for _, raw := range raws {
		p, err := s.normalizer.Normalize(raw)
		if err != nil {
			continue
		}
		products = append(products, p)
	}

	var content []byte
	switch format {
	case FeedXML:
		content = s.renderer.RenderXML(products)
	default:
		content = s.renderer.RenderCSV(products)
	}

	feedRenderDuration.WithLabelValues(string(dest), string(format)).Observe(time.Since(started).Seconds())
	return content, nil
}

// RegenerateFeed перерисовывает фид, обновляет кэш и при включенной
// доставке выгружает CSV на SFTP приемник
func (s *SyncService) RegenerateFeed(ctx context.Context, dest models.Destination) error {
	if !s.destinationEnabled(dest) {
		return utils.ErrDestinationDisabled
	}

	for _, format := range []FeedFormat{FeedCSV, FeedXML} {
		content, err := s.renderFresh(ctx, dest, format)
		if err != nil {
			return err
		}
		if err := s.cache.Set(ctx, feedCacheKey(dest, format), content, s.cfg.FeedCacheTTL); err != nil {
			s.logger.WarnWithContext(ctx, "Не удалось закэшировать фид",
				interfaces.LogField{Key: "error", Value: err.Error()})
		}
		if format == FeedCSV && s.uploader != nil {
			name := fmt.Sprintf("%s.csv", s.cfg.FeedFileName)
			if err := s.uploader.Upload(ctx, name, content); err != nil {
				return fmt.Errorf("выгрузка фида: %w", err)
			}
		}
	}

	s.logger.InfoWithContext(ctx, "Фид перегенерирован",
		interfaces.LogField{Key: "destination", Value: string(dest)})
	return nil
}

// FeedStatus возвращает последнюю запись журнала фидов направления
func (s *SyncService) FeedStatus(ctx context.Context, dest models.Destination) (*models.FeedJob, error) {
	if !s.destinationEnabled(dest) {
		return nil, utils.ErrDestinationDisabled
	}
	job, err := s.storage.LatestFeedJob(ctx, dest)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, utils.ErrFeedNotReady
	}
	return job, nil
}

// ListJobs возвращает страницу журнала фидов направления
func (s *SyncService) ListJobs(ctx context.Context, dest models.Destination, limit, offset int) ([]*models.FeedJob, int, error) {
	if !s.destinationEnabled(dest) {
		return nil, 0, utils.ErrDestinationDisabled
	}
	return s.storage.ListFeedJobs(ctx, dest, limit, offset)
}

// PollFeedStatuses опрашивает маркетплейсы о судьбе незавершенных фидов
// и фиксирует переходы статусов в журнале
func (s *SyncService) PollFeedStatuses(ctx context.Context) error {
	for dest, poller := range s.pollers {
		jobs, err := s.storage.ListUnfinishedFeedJobs(ctx, dest)
		if err != nil {
			return fmt.Errorf("чтение незавершенных фидов %s: %w", dest, err)
		}

		for _, job := range jobs {
			status, response, err := poller.CheckFeedStatus(ctx, job.FeedID)
			if err != nil {
				s.logger.WarnWithContext(ctx, "Опрос статуса фида не удался",
					interfaces.LogField{Key: "feed_id", Value: job.FeedID},
					interfaces.LogField{Key: "error", Value: err.Error()})
				continue
			}
			if status == job.Status {
				continue
			}
			if err := s.storage.UpdateFeedJobStatus(ctx, job.FeedID, status, response); err != nil {
				return fmt.Errorf("обновление статуса фида %s: %w", job.FeedID, err)
			}
			s.logger.InfoWithContext(ctx, "Статус фида обновлен",
				interfaces.LogField{Key: "feed_id", Value: job.FeedID},
				interfaces.LogField{Key: "status", Value: string(status)})
		}
	}
	return nil
}
