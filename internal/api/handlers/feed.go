package handlers

import (
	"errors"
	"net/http"

	"github.com/athebyme/catalog-sync/internal/domain/models"
	"github.com/athebyme/catalog-sync/internal/domain/services"
	"github.com/athebyme/catalog-sync/internal/utils"
	"github.com/athebyme/catalog-sync/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// errorResponse представляет структуру ответа с ошибкой
type errorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// response представляет структуру успешного ответа
type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// validDestinations - направления, известные обработчикам
var validDestinations = map[string]models.Destination{
	"facebook":  models.DestinationFacebook,
	"instagram": models.DestinationInstagram,
	"google":    models.DestinationGoogle,
	"amazon":    models.DestinationAmazon,
	"ebay":      models.DestinationEbay,
}

// destinationParam извлекает и проверяет направление из URL
func destinationParam(w http.ResponseWriter, r *http.Request) (models.Destination, bool) {
	name := chi.URLParam(r, "destination")
	dest, ok := validDestinations[name]
	if !ok {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, errorResponse{
			Error:   "not_found",
			Code:    http.StatusNotFound,
			Message: "Неизвестное направление: " + name,
		})
		return "", false
	}
	return dest, true
}

// FeedHandler обработчик запросов фидов
type FeedHandler struct {
	syncService services.SyncServiceInterface
	logger      interfaces.LoggerPort
}

// NewFeedHandler создает новый обработчик фидов
func NewFeedHandler(syncService services.SyncServiceInterface, logger interfaces.LoggerPort) *FeedHandler {
	return &FeedHandler{
		syncService: syncService,
		logger:      logger,
	}
}

// ServeCSV отдает CSV фид направления
func (h *FeedHandler) ServeCSV(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, services.FeedCSV, "text/csv; charset=utf-8")
}

// ServeXML отдает XML фид направления
func (h *FeedHandler) ServeXML(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, services.FeedXML, "application/xml; charset=utf-8")
}

func (h *FeedHandler) serve(w http.ResponseWriter, r *http.Request, format services.FeedFormat, contentType string) {
	dest, ok := destinationParam(w, r)
	if !ok {
		return
	}

	content, err := h.syncService.RenderFeed(r.Context(), dest, format)
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

		h.logger.ErrorWithContext(r.Context(), "Ошибка рендера фида",
			interfaces.LogField{Key: "destination", Value: string(dest)},
			interfaces.LogField{Key: "error", Value: err.Error()})
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, errorResponse{
			Error:   "feed_unavailable",
			Code:    http.StatusBadGateway,
			Message: "Фид временно недоступен",
		})
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}
