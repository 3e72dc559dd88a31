package messaging

import (
	"time"

	"github.com/athebyme/catalog-sync/internal/domain/models"
)

// Типы событий изменения каталога
const (
	ProductCreatedEvent = "product_created"
	ProductUpdatedEvent = "product_updated"
	ProductDeletedEvent = "product_deleted"
)

// ProductChangeEvent представляет типизированное событие изменения каталога.
// Каталог публикует событие, воркер подписывается и раскладывает его
// на задачи по настроенным направлениям
type ProductChangeEvent struct {
	EventType  string             `json:"event_type"` // product_created, product_updated, product_deleted
	ProductID  string             `json:"product_id"`
	Product    *models.RawProduct `json:"product,omitempty"` // отсутствует для product_deleted
	OccurredAt time.Time          `json:"occurred_at"`
}

// FailedTaskEvent публикуется в dead-letter тему для задач, исчерпавших повторы
type FailedTaskEvent struct {
	TaskID      string             `json:"task_id"`
	ProductID   string             `json:"product_id"`
	Destination models.Destination `json:"destination"`
	Action      models.SyncAction  `json:"action"`
	Attempts    int                `json:"attempts"`
	LastError   string             `json:"last_error"`
	FailedAt    time.Time          `json:"failed_at"`
}
