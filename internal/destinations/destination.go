package destinations

import (
	"context"
	"net/http"

	"github.com/athebyme/catalog-sync/internal/domain/models"
)

// Result представляет исход одного вызова API маркетплейса.
// Ошибки адаптера никогда не покидают его границу как panic или error:
// вызывающая сторона (диспетчер) решает политику повторов по этим полям
type Result struct {
	Success     bool   `json:"success"`
	RemoteID    string `json:"remote_id,omitempty"` // ключ идемпотентности на стороне маркетплейса
	StatusCode  int    `json:"status_code,omitempty"`
	ErrorDetail string `json:"error_detail,omitempty"`
	Transient   bool   `json:"transient,omitempty"` // стоит ли повторять вызов
}

// Adapter определяет общий набор возможностей направления синхронизации
type Adapter interface {
	// Name возвращает идентификатор направления
	Name() models.Destination

	// UpsertOne создает или обновляет один товар.
	// Повторный вызов с тем же товаром обновляет, а не дублирует листинг
	UpsertOne(ctx context.Context, product *models.CanonicalProduct) Result

	// UpsertBatch создает или обновляет пачку товаров.
	// Размер пачки ограничивается диспетчером до лимита направления
	UpsertBatch(ctx context.Context, products []*models.CanonicalProduct) []Result

	// Delete убирает товар с направления. Для фидовых направлений это
	// перевод в "out of stock" (скрытие из каталога), а не физическое
	// удаление: удаление товара из живой рекламной кампании ломает ее
	Delete(ctx context.Context, productID string) Result
}

// AsyncFeedAdapter расширяет Adapter для направлений с асинхронной
// обработкой фидов (Amazon): результат отправки становится известен
// только после опроса статуса
type AsyncFeedAdapter interface {
	Adapter

	// CheckFeedStatus опрашивает статус обработки фида.
	// Возвращает статус и сырой ответ маркетплейса для журнала
	CheckFeedStatus(ctx context.Context, feedID string) (models.FeedJobStatus, string, error)
}

// transientStatus сообщает, является ли HTTP статус временной ошибкой.
// Код 0 означает сетевую ошибку до получения ответа
func transientStatus(code int) bool {
	return code == 0 || code >= 500 || code == http.StatusTooManyRequests
}

// failure собирает Result для неуспешного вызова
func failure(code int, detail string) Result {
	return Result{
		Success:     false,
		StatusCode:  code,
		ErrorDetail: detail,
		Transient:   transientStatus(code),
	}
}

// networkFailure собирает Result для сетевой ошибки (таймаут, обрыв соединения)
func networkFailure(err error) Result {
	return Result{
		Success:     false,
		ErrorDetail: err.Error(),
		Transient:   true,
	}
}

// success собирает Result для успешного вызова
func success(code int, remoteID string) Result {
	return Result{
		Success:    true,
		RemoteID:   remoteID,
		StatusCode: code,
	}
}
