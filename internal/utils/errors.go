package utils

import "errors"

// ----------------- storage ------------------
var (
	ErrStorageEmptyHostName       = errors.New("host name is empty")
	ErrStorageInvalidPortNumber   = errors.New("port number is invalid")
	ErrStorageEmptyUsername       = errors.New("username is empty")
	ErrStorageEmptyPassword       = errors.New("password is empty")
	ErrStorageInvalidDatabaseName = errors.New("database name is empty")
	ErrStorageInvalidSslMode      = errors.New("SSL mode is invalid")
	ErrStorageInvalidPoolSize     = errors.New("pool size is invalid")
	ErrStorageInvalidTimeout      = errors.New("timeout is invalid")
)

// ----------------- sync ------------------
var (
	// ErrMissingIdentifier возвращается нормализатором, если у записи каталога нет ID.
	// Запись пропускается и логируется, пачка при этом не прерывается
	ErrMissingIdentifier = errors.New("catalog record has no identifier")

	// ErrDestinationDisabled возвращается при обращении к направлению, отсутствующему в конфигурации
	ErrDestinationDisabled = errors.New("destination is not enabled")

	// ErrConfiguration означает отсутствие учетных данных или идентификаторов направления.
	// Фатальна для направления при старте, не повторяется
	ErrConfiguration = errors.New("destination configuration is incomplete")

	// ErrFeedNotReady возвращается, когда фид еще не сгенерирован и живой рендер тоже не удался
	ErrFeedNotReady = errors.New("feed is not available")

	// ErrResyncInProgress возвращается, когда полная синхронизация
	// направления уже идет в этом или другом процессе
	ErrResyncInProgress = errors.New("full resync is already running")
)

// ----------------- cache ------------------
var (
	ErrCacheMiss = errors.New("cache miss")
)
