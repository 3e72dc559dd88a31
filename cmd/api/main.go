package main

import (
	"context"
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
	"github.com/athebyme/catalog-sync/internal/api"
	"github.com/athebyme/catalog-sync/internal/destinations"
	"github.com/athebyme/catalog-sync/internal/domain/models"
	"github.com/athebyme/catalog-sync/internal/domain/services"
	"github.com/athebyme/catalog-sync/internal/feed"
	"github.com/athebyme/catalog-sync/internal/utils"
	"github.com/athebyme/catalog-sync/pkg/interfaces"
	"github.com/athebyme/catalog-sync/pkg/tx"
)

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
	log.Info("Инициализация сервиса",
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
	log.Info("Хранилище инициализировано")

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
	log.Info("Кэш инициализирован")

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
	log.Info("Система обмена сообщениями инициализирована")

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
	log.Info("Направления синхронизации собраны",
		interfaces.LogField{Key: "enabled", Value: enabled})

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

	router := api.SetupRouter(syncService, log, cfg.Security.CORSAllowOrigins, cfg.Security.JWTSecret)
	log.Info("Маршрутизатор настроен")

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("Сервер запущен", interfaces.LogField{Key: "address", Value: server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Ошибка запуска сервера", interfaces.LogField{Key: "error", Value: err.Error()})
		}
	}()

	go func() {
		<-quit
		log.Info("Получен сигнал завершения, выполняется graceful shutdown...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Fatal("Ошибка при graceful shutdown", interfaces.LogField{Key: "error", Value: err.Error()})
		}

		log.Info("HTTP сервер остановлен")

		dispatcher.Stop()

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
	log.Info("Сервер корректно завершил работу")
}
