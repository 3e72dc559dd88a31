package models

import "time"

// SyncAction описывает действие задачи синхронизации
type SyncAction string

const (
	ActionUpsert SyncAction = "upsert"
	ActionDelete SyncAction = "delete"
)

// TaskStatus описывает состояние задачи синхронизации
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskDispatched TaskStatus = "dispatched"
	TaskSucceeded  TaskStatus = "succeeded"
	TaskFailed     TaskStatus = "failed"
)

// SyncTask представляет единицу работы диспетчера: один товар,
// одно направление, одно действие. Задача принадлежит очереди диспетчера
// с момента постановки до завершения или окончательного отказа
type SyncTask struct {
	ID          string            `json:"id"`
	ProductID   string            `json:"product_id"`
	Destination Destination       `json:"destination"`
	Action      SyncAction        `json:"action"`
	EnqueuedAt  time.Time         `json:"enqueued_at"`
	Snapshot    *CanonicalProduct `json:"snapshot,omitempty"` // nil для удаления
	Attempts    int               `json:"attempts"`
	Status      TaskStatus        `json:"status"`
	LastError   string            `json:"last_error,omitempty"`
}

// Key возвращает ключ коалесценции задачи
func (t *SyncTask) Key() TaskKey {
	return TaskKey{ProductID: t.ProductID, Destination: t.Destination}
}

// TaskKey идентифицирует пару (товар, направление) для коалесценции
type TaskKey struct {
	ProductID   string
	Destination Destination
}

// FeedJobStatus описывает состояние асинхронной обработки фида на стороне маркетплейса
type FeedJobStatus string

const (
	FeedSubmitted  FeedJobStatus = "submitted"
	FeedProcessing FeedJobStatus = "processing"
	FeedSucceeded  FeedJobStatus = "succeeded"
	FeedFailed     FeedJobStatus = "failed"
)

// FeedJob фиксирует отправку пачки/фида направлению с асинхронной обработкой.
// Записи не удаляются: таблица служит журналом аудита
type FeedJob struct {
	ID              string        `json:"id"`
	FeedID          string        `json:"feed_id"` // идентификатор, присвоенный маркетплейсом
	Destination     Destination   `json:"destination"`
	FeedType        string        `json:"feed_type"`
	Status          FeedJobStatus `json:"status"`
	RequestPayload  string        `json:"request_payload,omitempty"`
	ResponsePayload string        `json:"response_payload,omitempty"`
	SubmittedAt     time.Time     `json:"submitted_at"`
	ProcessedAt     *time.Time    `json:"processed_at,omitempty"`
}

// EbayToken представляет сохраненный OAuth токен eBay для одного окружения
type EbayToken struct {
	Environment  string    `json:"environment"` // sandbox или production
	RefreshToken string    `json:"refresh_token"`
	AccessToken  string    `json:"access_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        string    `json:"scope,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Valid сообщает, действителен ли еще access token
func (t *EbayToken) Valid() bool {
	return t.AccessToken != "" && time.Now().Before(t.ExpiresAt)
}
