package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/athebyme/catalog-sync/internal/domain/services"
	"github.com/athebyme/catalog-sync/internal/utils"
	"github.com/athebyme/catalog-sync/pkg/interfaces"
	pkgutils "github.com/athebyme/catalog-sync/pkg/utils"
	"github.com/go-chi/render"
)

// SyncHandler обработчик запросов управления синхронизацией
type SyncHandler struct {
	syncService services.SyncServiceInterface
	logger      interfaces.LoggerPort

	// resyncTimeout ограничивает фоновый прогон, запущенный по запросу
	resyncTimeout time.Duration
}

// NewSyncHandler создает новый обработчик синхронизации
func NewSyncHandler(syncService services.SyncServiceInterface, logger interfaces.LoggerPort) *SyncHandler {
	return &SyncHandler{
		syncService:   syncService,
		logger:        logger,
		resyncTimeout: time.Hour,
	}
}

// Trigger запускает полную синхронизацию направления.
// Прогон занимает минуты, поэтому запускается в фоне: проверка статуса
// выполняется отдельным запросом
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	dest, ok := destinationParam(w, r)
	if !ok {
		return
	}

	go func() {
		// Контекст запроса умирает вместе с ответом
		ctx, cancel := context.WithTimeout(context.Background(), h.resyncTimeout)
		defer cancel()

		if err := h.syncService.FullResync(ctx, dest); err != nil {
			h.logger.Error("Полная синхронизация провалена",
				interfaces.LogField{Key: "destination", Value: string(dest)},
				interfaces.LogField{Key: "error", Value: err.Error()})
		}
	}()

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, response{
		Success: true,
		Data: map[string]string{
			"destination": string(dest),
			"status":      "accepted",
		},
	})
}

// Status возвращает последнюю запись журнала фидов направления
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	dest, ok := destinationParam(w, r)
	if !ok {
		return
	}

	job, err := h.syncService.FeedStatus(r.Context(), dest)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrDestinationDisabled):
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, errorResponse{
				Error:   "destination_disabled",
				Code:    http.StatusNotFound,
				Message: "Направление выключено",
			})
		case errors.Is(err, utils.ErrFeedNotReady):
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, errorResponse{
				Error:   "not_found",
				Code:    http.StatusNotFound,
				Message: "Фиды направления еще не отправлялись",
			})
		default:
			h.logger.ErrorWithContext(r.Context(), "Ошибка чтения статуса",
				interfaces.LogField{Key: "error", Value: err.Error()})
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, errorResponse{
				Error:   "internal_error",
				Code:    http.StatusInternalServerError,
				Message: "Ошибка чтения статуса",
			})
		}
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{
		Success: true,
		Data:    job,
	})
}

// Jobs возвращает страницу журнала фидов направления
func (h *SyncHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	dest, ok := destinationParam(w, r)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	pagination := pkgutils.NewPagination(page, pageSize)

	jobs, total, err := h.syncService.ListJobs(r.Context(), dest, pagination.GetLimit(), pagination.GetOffset())
	if err != nil {
		if errors.Is(err, utils.ErrDestinationDisabled) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, errorResponse{
				Error:   "destination_disabled",
				Code:    http.StatusNotFound,
				Message: "Направление выключено",
			})
			return
		}

		h.logger.ErrorWithContext(r.Context(), "Ошибка чтения журнала фидов",
			interfaces.LogField{Key: "error", Value: err.Error()})
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errorResponse{
			Error:   "internal_error",
			Code:    http.StatusInternalServerError,
			Message: "Ошибка чтения журнала фидов",
		})
		return
	}

	pagination.SetTotal(int64(total))

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response{
		Success: true,
		Data:    jobs,
		Meta:    pagination,
	})
}
