package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config содержит все настройки сервиса
// Структура создается один раз при старте процесса и далее не изменяется
type Config struct {
	AppName  string
	Version  string
	LogLevel string
	ENV      string

	Server struct {
		Host            string
		Port            int
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
	}

	Postgres struct {
		Host     string
		Port     int
		User     string
		Password string
		DBName   string
		SSLMode  string
		Timeout  time.Duration
		PoolSize int // размер пула соединений
	}

	Redis struct {
		Host     string
		Port     int
		Password string
		DB       int
	}

	Kafka struct {
		Brokers         []string `mapstructure:"brokers"`
		GroupID         string   `mapstructure:"group_id"`
		ProductTopic    string   `mapstructure:"product_topic"`     // тема событий изменения каталога
		DeadLetterTopic string   `mapstructure:"dead_letter_topic"` // тема для задач, исчерпавших повторы
	}

	// Sync содержит параметры диспетчера синхронизации
	Sync struct {
		ChunkSize      int           // размер пачки продуктов на один вызов API
		ChunkPause     time.Duration // пауза между пачками (требование маркетплейсов, не оптимизация)
		MaxRetries     int           // число повторов для временных ошибок
		RetryBase      time.Duration // базовая задержка экспоненциального backoff
		RequestTimeout time.Duration // таймаут одного вызова API маркетплейса
		QueueSize      int           // емкость очереди задач на направление
	}

	// Feed содержит параметры генерации статических фидов
	Feed struct {
		DefaultCurrency string        // валюта, если запись каталога ее не содержит
		DefaultBrand    string        // бренд по умолчанию
		StoreBaseURL    string        // базовый URL магазина для относительных ссылок
		CacheTTL        time.Duration // срок жизни отрендеренного фида в кэше

		// CategoryMap переводит категорию каталога в узел таксономии
		// маркетплейса, например "Luminaires" -> "Home & Garden > Lighting"
		CategoryMap map[string]string `mapstructure:"categoryMap"`
	}

	// Destinations описывает направления синхронизации
	// Отключенные направления просто отсутствуют в списке активных
	Destinations struct {
		Enabled []string `mapstructure:"enabled"`

		Facebook struct {
			AccessToken string `mapstructure:"access_token"`
			CatalogID   string `mapstructure:"catalog_id"`
			APIVersion  string `mapstructure:"api_version"`
			ResyncAt    string `mapstructure:"resync_at"` // время ежедневной полной синхронизации "HH:MM"
		} `mapstructure:"facebook"`

		Instagram struct {
			CatalogID string `mapstructure:"catalog_id"` // отдельный каталог, тот же Graph API
			ResyncAt  string `mapstructure:"resync_at"`
		} `mapstructure:"instagram"`

		Google struct {
			MerchantID      string `mapstructure:"merchant_id"`
			ServiceAccount  string `mapstructure:"service_account"`  // путь к JSON ключу сервисного аккаунта
			ContentLanguage string `mapstructure:"content_language"` // язык контента, например "fr"
			TargetCountry   string `mapstructure:"target_country"`   // страна, например "MA"
			ResyncAt        string `mapstructure:"resync_at"`
		} `mapstructure:"google"`

		Amazon struct {
			ClientID       string   `mapstructure:"client_id"`
			ClientSecret   string   `mapstructure:"client_secret"`
			RefreshToken   string   `mapstructure:"refresh_token"`
			Endpoint       string   `mapstructure:"endpoint"` // NA, EU или FE
			MarketplaceIDs []string `mapstructure:"marketplace_ids"`
			SKUPrefix      string   `mapstructure:"sku_prefix"`
			ResyncAt       string   `mapstructure:"resync_at"`
		} `mapstructure:"amazon"`

		Ebay struct {
			Environment   string `mapstructure:"environment"` // sandbox или production
			ClientID      string `mapstructure:"client_id"`
			ClientSecret  string `mapstructure:"client_secret"`
			RefreshToken  string `mapstructure:"refresh_token"` // запасной вариант, если токен не сохранен в БД
			MarketplaceID string `mapstructure:"marketplace_id"`
			SKUPrefix     string `mapstructure:"sku_prefix"`
			ResyncAt      string `mapstructure:"resync_at"`
		} `mapstructure:"ebay"`
	}

	// SFTP описывает доставку фидов на SFTP маркетплейса (Google Merchant SFTP)
	SFTP struct {
		Enabled   bool
		Host      string
		Port      int
		User      string
		Password  string
		RemoteDir string
	}

	Metrics struct {
		Enabled bool
		Port    int `mapstructure:"port"`
	}

	Security struct {
		JWTSecret        string
		CORSAllowOrigins []string
	}
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	configFile := "config"
	if configPath != "" {
		configFile = configPath
	}

	var cfg Config

	// Настройка Viper
	viper.SetConfigName(configFile)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("../config")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Чтение конфигурационного файла
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
		}
		// Продолжаем, если файл не найден, будем использовать только переменные окружения
	}

	setDefaults()
	bindEnvVariables()

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("ошибка десериализации конфигурации: %w", err)
	}

	cfg.ENV = viper.GetString("env")
	if cfg.ENV == "" {
		cfg.ENV = "development"
		if envVar := os.Getenv("APP_ENV"); envVar != "" {
			cfg.ENV = envVar
		}
	}

	return &cfg, nil
}

// DestinationEnabled сообщает, включено ли направление в конфигурации
func (c *Config) DestinationEnabled(name string) bool {
	for _, d := range c.Destinations.Enabled {
		if strings.EqualFold(d, name) {
			return true
		}
	}
	return false
}

// setDefaults устанавливает значения по умолчанию
func setDefaults() {
	// Основные настройки
	viper.SetDefault("appName", "catalog-sync")
	viper.SetDefault("version", "1.0.0")
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("env", "development")

	// Настройки сервера
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", "10s")
	viper.SetDefault("server.writeTimeout", "30s")
	viper.SetDefault("server.shutdownTimeout", "5s")

	// Настройки Postgres
	viper.SetDefault("postgres.host", "localhost")
	viper.SetDefault("postgres.port", 5432)
	viper.SetDefault("postgres.user", "postgres")
	viper.SetDefault("postgres.password", "postgres")
	viper.SetDefault("postgres.dbname", "catalog")
	viper.SetDefault("postgres.sslmode", "disable")
	viper.SetDefault("postgres.timeout", "5s")
	viper.SetDefault("postgres.poolSize", 10)

	// Настройки Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Настройки Kafka
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.group_id", "catalog-sync")
	viper.SetDefault("kafka.product_topic", "catalog.product-changes")
	viper.SetDefault("kafka.dead_letter_topic", "catalog.sync-failures")

	// Настройки диспетчера
	viper.SetDefault("sync.chunkSize", 50)
	viper.SetDefault("sync.chunkPause", "1s")
	viper.SetDefault("sync.maxRetries", 3)
	viper.SetDefault("sync.retryBase", "1s")
	viper.SetDefault("sync.requestTimeout", "120s")
	viper.SetDefault("sync.queueSize", 1024)

	// Настройки фидов
	viper.SetDefault("feed.defaultCurrency", "MAD")
	viper.SetDefault("feed.defaultBrand", "Hanaball")
	viper.SetDefault("feed.storeBaseURL", "https://hanaball.devaito.com")
	viper.SetDefault("feed.cacheTTL", "10m")

	// Направления: по умолчанию включены только фидовые, API-направления
	// требуют учетных данных и включаются явно
	viper.SetDefault("destinations.enabled", []string{"facebook", "google"})
	viper.SetDefault("destinations.facebook.api_version", "v16.0")
	viper.SetDefault("destinations.facebook.resync_at", "02:50")
	viper.SetDefault("destinations.instagram.resync_at", "02:55")
	viper.SetDefault("destinations.google.content_language", "fr")
	viper.SetDefault("destinations.google.target_country", "MA")
	viper.SetDefault("destinations.google.resync_at", "03:10")
	viper.SetDefault("destinations.amazon.endpoint", "NA")
	viper.SetDefault("destinations.amazon.sku_prefix", "HANABALL-")
	viper.SetDefault("destinations.amazon.resync_at", "02:30")
	viper.SetDefault("destinations.ebay.environment", "sandbox")
	viper.SetDefault("destinations.ebay.marketplace_id", "EBAY_US")
	viper.SetDefault("destinations.ebay.sku_prefix", "hanaball-")
	viper.SetDefault("destinations.ebay.resync_at", "02:40")

	// Настройки SFTP
	viper.SetDefault("sftp.enabled", false)
	viper.SetDefault("sftp.port", 22)
	viper.SetDefault("sftp.remoteDir", "/feeds")

	// Настройки метрик
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9090)

	// Настройки безопасности
	viper.SetDefault("security.jwtSecret", "")
	viper.SetDefault("security.corsAllowOrigins", []string{"*"})
}

// bindEnvVariables привязывает переменные окружения к конфигурации
func bindEnvVariables() {
	// Основные настройки
	viper.BindEnv("appName", "APP_NAME")
	viper.BindEnv("version", "APP_VERSION")
	viper.BindEnv("logLevel", "LOG_LEVEL")
	viper.BindEnv("env", "APP_ENV")

	// Настройки сервера
	viper.BindEnv("server.host", "SERVER_HOST")
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.readTimeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.writeTimeout", "SERVER_WRITE_TIMEOUT")
	viper.BindEnv("server.shutdownTimeout", "SERVER_SHUTDOWN_TIMEOUT")

	// Настройки Postgres
	viper.BindEnv("postgres.host", "POSTGRES_HOST")
	viper.BindEnv("postgres.port", "POSTGRES_PORT")
	viper.BindEnv("postgres.user", "POSTGRES_USER")
	viper.BindEnv("postgres.password", "POSTGRES_PASSWORD")
	viper.BindEnv("postgres.dbname", "POSTGRES_DBNAME")
	viper.BindEnv("postgres.sslmode", "POSTGRES_SSLMODE")
	viper.BindEnv("postgres.timeout", "POSTGRES_TIMEOUT")
	viper.BindEnv("postgres.poolSize", "POSTGRES_POOL_SIZE")

	// Настройки Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	// Настройки Kafka
	viper.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	viper.BindEnv("kafka.group_id", "KAFKA_GROUP_ID")
	viper.BindEnv("kafka.product_topic", "KAFKA_PRODUCT_TOPIC")
	viper.BindEnv("kafka.dead_letter_topic", "KAFKA_DEAD_LETTER_TOPIC")

	// Настройки диспетчера
	viper.BindEnv("sync.chunkSize", "SYNC_CHUNK_SIZE")
	viper.BindEnv("sync.chunkPause", "SYNC_CHUNK_PAUSE")
	viper.BindEnv("sync.maxRetries", "SYNC_MAX_RETRIES")
	viper.BindEnv("sync.retryBase", "SYNC_RETRY_BASE")
	viper.BindEnv("sync.requestTimeout", "SYNC_REQUEST_TIMEOUT")

	// Настройки фидов
	viper.BindEnv("feed.defaultCurrency", "FEED_DEFAULT_CURRENCY")
	viper.BindEnv("feed.defaultBrand", "FEED_DEFAULT_BRAND")
	viper.BindEnv("feed.storeBaseURL", "FEED_STORE_BASE_URL")
	viper.BindEnv("feed.cacheTTL", "FEED_CACHE_TTL")

	// Направления
	viper.BindEnv("destinations.enabled", "DESTINATIONS_ENABLED")
	viper.BindEnv("destinations.facebook.access_token", "FACEBOOK_ACCESS_TOKEN")
	viper.BindEnv("destinations.facebook.catalog_id", "FACEBOOK_CATALOG_ID")
	viper.BindEnv("destinations.facebook.api_version", "FACEBOOK_API_VERSION")
	viper.BindEnv("destinations.instagram.catalog_id", "INSTAGRAM_CATALOG_ID")
	viper.BindEnv("destinations.google.merchant_id", "GOOGLE_MERCHANT_ID")
	viper.BindEnv("destinations.google.service_account", "GOOGLE_SERVICE_ACCOUNT")
	viper.BindEnv("destinations.google.content_language", "GOOGLE_CONTENT_LANGUAGE")
	viper.BindEnv("destinations.google.target_country", "GOOGLE_TARGET_COUNTRY")
	viper.BindEnv("destinations.amazon.client_id", "SPAPI_CLIENT_ID")
	viper.BindEnv("destinations.amazon.client_secret", "SPAPI_CLIENT_SECRET")
	viper.BindEnv("destinations.amazon.refresh_token", "SPAPI_REFRESH_TOKEN")
	viper.BindEnv("destinations.amazon.endpoint", "SPAPI_ENDPOINT")
	viper.BindEnv("destinations.amazon.marketplace_ids", "SPAPI_MARKETPLACE_IDS")
	viper.BindEnv("destinations.ebay.environment", "EBAY_ENVIRONMENT")
	viper.BindEnv("destinations.ebay.client_id", "EBAY_CLIENT_ID")
	viper.BindEnv("destinations.ebay.client_secret", "EBAY_CLIENT_SECRET")
	viper.BindEnv("destinations.ebay.refresh_token", "EBAY_REFRESH_TOKEN")
	viper.BindEnv("destinations.ebay.marketplace_id", "EBAY_MARKETPLACE_ID")

	// Настройки SFTP
	viper.BindEnv("sftp.enabled", "SFTP_ENABLED")
	viper.BindEnv("sftp.host", "SFTP_HOST")
	viper.BindEnv("sftp.port", "SFTP_PORT")
	viper.BindEnv("sftp.user", "SFTP_USER")
	viper.BindEnv("sftp.password", "SFTP_PASS")
	viper.BindEnv("sftp.remoteDir", "SFTP_REMOTE_DIR")

	// Настройки метрик
	viper.BindEnv("metrics.enabled", "METRICS_ENABLED")
	viper.BindEnv("metrics.port", "METRICS_PORT")

	// Настройки безопасности
	viper.BindEnv("security.jwtSecret", "JWT_SECRET")
	viper.BindEnv("security.corsAllowOrigins", "CORS_ALLOW_ORIGINS")
}
