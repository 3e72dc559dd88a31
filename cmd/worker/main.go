package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/athebyme/catalog-sync/config"
	"github.com/athebyme/catalog-sync/internal/adapters/cache"
	"github.com/athebyme/catalog-sync/internal/adapters/logger"
	"github.com/athebyme/catalog-sync/internal/adapters/messaging"
	"github.com/athebyme/catalog-sync/internal/adapters/storage"
	"github.com/athebyme/catalog-sync/internal/destinations"
	"github.com/athebyme/catalog-sync/internal/domain/models"
	"github.com/athebyme/catalog-sync/internal/domain/services"
	"github.com/athebyme/catalog-sync/internal/feed"
	"github.com/athebyme/catalog-sync/internal/utils"
	"github.com/athebyme/catalog-sync/pkg/interfaces"
	"github.com/athebyme/catalog-sync/pkg/tx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// интервал опроса статусов асинхронных фидов
const feedPollInterval = 5 * time.Minute

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log, err := logger.NewZapLogger(cfg.LogLevel, cfg.ENV == "production")
	if err != nil {
		fmt.Printf("Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	log.Info("Инициализация воркера",
		interfaces.LogField{Key: "app_name", Value: cfg.AppName},
		interfaces.LogField{Key: "version", Value: cfg.Version},
		interfaces.LogField{Key: "env", Value: cfg.ENV},
	)

	postgresCon, err := utils.GenerateConnectionString(
		cfg.Postgres.Host,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
		cfg.Postgres.Port,
		cfg.Postgres.PoolSize,
		cfg.Postgres.Timeout,
	)
	if err != nil {
		fmt.Printf("Ошибка инициализации строки подключения базы: %v\n", err)
		os.Exit(1)
	}

	db, err := storage.NewPostgresStorage(ctx, postgresCon)
	if err != nil {
		log.Fatal("Ошибка инициализации хранилища", interfaces.LogField{Key: "error", Value: err.Error()})
	}
	defer db.Close()

	testCtx, testCancel := context.WithTimeout(ctx, 5*time.Second)
	defer testCancel()

	if err := db.Ping(testCtx); err != nil {
		log.Fatal("Ошибка подключения к PostgreSQL",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
	log.Info("Соединение с PostgreSQL проверено")

	cacheClient, err := cache.NewRedisCache(
		ctx,
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	if err != nil {
		log.Fatal("Ошибка инициализации кэша", interfaces.LogField{Key: "error", Value: err.Error()})
	}
	defer cacheClient.Close()

	messagingClient, err := messaging.NewKafkaMessaging(
		cfg.Kafka.Brokers,
		cfg.Kafka.GroupID,
		cfg.Kafka.DeadLetterTopic,
		log,
	)
	if err != nil {
		log.Fatal("Ошибка инициализации системы обмена сообщениями", interfaces.LogField{Key: "error", Value: err.Error()})
	}
	defer messagingClient.Close()

	txManager := tx.NewTxManager(db.Pool(), log)
	journal := services.NewFeedJournal(db, txManager, log)

	adapters, pollers := destinations.Build(cfg, db, journal, log)
	if len(adapters) == 0 {
		log.Fatal("Ни одно направление не сконфигурировано")
	}

	enabled := make([]models.Destination, 0, len(adapters))
	for _, a := range adapters {
		enabled = append(enabled, a.Name())
	}

	coalescer := services.NewCoalescer()
	dispatcher := services.NewDispatcher(services.DispatcherConfig{
		ChunkSize:       cfg.Sync.ChunkSize,
		ChunkPause:      cfg.Sync.ChunkPause,
		MaxRetries:      cfg.Sync.MaxRetries,
		RetryBase:       cfg.Sync.RetryBase,
		RequestTimeout:  cfg.Sync.RequestTimeout,
		QueueSize:       cfg.Sync.QueueSize,
		DeadLetterTopic: cfg.Kafka.DeadLetterTopic,
	}, adapters, coalescer, messagingClient, log)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	normalizer := services.NewNormalizer(services.NormalizerConfig{
		DefaultCurrency: cfg.Feed.DefaultCurrency,
		DefaultBrand:    cfg.Feed.DefaultBrand,
		StoreBaseURL:    cfg.Feed.StoreBaseURL,
	})
	renderer := feed.NewRenderer(feed.GoogleSchema(cfg.Feed.StoreBaseURL, cfg.Feed.CategoryMap), log)

	var uploader services.FeedUploader
	if cfg.SFTP.Enabled {
		uploader = feed.NewUploader(feed.UploaderConfig{
			Host:      cfg.SFTP.Host,
			Port:      cfg.SFTP.Port,
			User:      cfg.SFTP.User,
			Password:  cfg.SFTP.Password,
			RemoteDir: cfg.SFTP.RemoteDir,
		}, log)
	}

	syncService := services.NewSyncService(services.SyncServiceConfig{
		Enabled:      enabled,
		FeedCacheTTL: cfg.Feed.CacheTTL,
	}, db, cacheClient, normalizer, dispatcher, renderer, uploader, pollers, log)
	log.Info("Сервис синхронизации инициализирован")

	// Подписка на события изменения каталога
	unsubscribe, err := messagingClient.Subscribe(ctx, cfg.Kafka.ProductTopic,
		func(ctx context.Context, msg *interfaces.Message) error {
			var event messaging.ProductChangeEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("разбор события каталога: %w", err)
			}
			return syncService.HandleChangeEvent(ctx, &event)
		})
	if err != nil {
		log.Fatal("Ошибка подписки на события каталога",
			interfaces.LogField{Key: "topic", Value: cfg.Kafka.ProductTopic},
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
	defer unsubscribe()
	log.Info("Подписка на события каталога оформлена",
		interfaces.LogField{Key: "topic", Value: cfg.Kafka.ProductTopic})

	// Ежедневная полная синхронизация, время разнесено по направлениям
	schedule := resyncSchedule(cfg, enabled)
	scheduler := services.NewResyncScheduler(schedule,
		func(ctx context.Context, dest models.Destination) error {
			if err := syncService.FullResync(ctx, dest); err != nil {
				return err
			}
			// Фидовые направления после прогона получают свежий фид
			if dest == models.DestinationGoogle {
				return syncService.RegenerateFeed(ctx, dest)
			}
			return nil
		}, log)
	scheduler.Start(ctx)
	defer scheduler.Stop()
	log.Info("Расписание синхронизации запущено",
		interfaces.LogField{Key: "entries", Value: len(schedule)})

	// Опрос статусов асинхронных фидов
	go func() {
		ticker := time.NewTicker(feedPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := syncService.PollFeedStatuses(ctx); err != nil {
					log.Error("Опрос статусов фидов провален",
						interfaces.LogField{Key: "error", Value: err.Error()})
				}
			}
		}
	}()

	// Сервер метрик
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			log.Info("Сервер метрик запущен", interfaces.LogField{Key: "address", Value: metricsServer.Addr})
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("Ошибка сервера метрик", interfaces.LogField{Key: "error", Value: err.Error()})
			}
		}()
	}

	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("Получен сигнал завершения, выполняется graceful shutdown...")

		cancel()
		scheduler.Stop()
		dispatcher.Stop()

		if metricsServer != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Error("Ошибка остановки сервера метрик",
					interfaces.LogField{Key: "error", Value: err.Error()})
			}
		}

		if err := messagingClient.Close(); err != nil {
			log.Error("Ошибка при закрытии Kafka",
				interfaces.LogField{Key: "error", Value: err.Error()})
		}

		if err := cacheClient.Close(); err != nil {
			log.Error("Ошибка при закрытии Redis",
				interfaces.LogField{Key: "error", Value: err.Error()})
		}

		if err := db.Close(); err != nil {
			log.Error("Ошибка при закрытии БД",
				interfaces.LogField{Key: "error", Value: err.Error()})
		}

		close(done)
	}()

	<-done
	log.Info("Воркер корректно завершил работу")
}

// resyncSchedule собирает расписание "направление -> HH:MM" из конфигурации
func resyncSchedule(cfg *config.Config, enabled []models.Destination) map[models.Destination]string {
	at := map[models.Destination]string{
		models.DestinationFacebook:  cfg.Destinations.Facebook.ResyncAt,
		models.DestinationInstagram: cfg.Destinations.Instagram.ResyncAt,
		models.DestinationGoogle:    cfg.Destinations.Google.ResyncAt,
		models.DestinationAmazon:    cfg.Destinations.Amazon.ResyncAt,
		models.DestinationEbay:      cfg.Destinations.Ebay.ResyncAt,
	}

	schedule := make(map[models.Destination]string, len(enabled))
	for _, dest := range enabled {
		if t := at[dest]; t != "" {
			schedule[dest] = t
		}
	}
	return schedule
}
