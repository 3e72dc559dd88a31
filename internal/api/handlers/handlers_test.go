package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/athebyme/catalog-sync/internal/adapters/messaging"
	"github.com/athebyme/catalog-sync/internal/domain/models"
	"github.com/athebyme/catalog-sync/internal/domain/services"
	"github.com/athebyme/catalog-sync/internal/utils"
	"github.com/athebyme/catalog-sync/pkg/interfaces"
	"github.com/go-chi/chi/v5"
)

// nopLogger - логгер-заглушка для тестов
type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{})                             {}
func (nopLogger) Info(string, ...interface{})                              {}
func (nopLogger) Warn(string, ...interface{})                              {}
func (nopLogger) Error(string, ...interface{})                             {}
func (nopLogger) Fatal(string, ...interface{})                             {}
func (nopLogger) DebugWithContext(context.Context, string, ...interface{}) {}
func (nopLogger) InfoWithContext(context.Context, string, ...interface{})  {}
func (nopLogger) WarnWithContext(context.Context, string, ...interface{})  {}
func (nopLogger) ErrorWithContext(context.Context, string, ...interface{}) {}
func (l nopLogger) WithFields(...interfaces.LogField) interfaces.LoggerPort { return l }
func (l nopLogger) WithField(string, interface{}) interfaces.LoggerPort     { return l }
func (l nopLogger) WithDestination(string) interfaces.LoggerPort            { return l }
func (nopLogger) Sync() error                                               { return nil }

// fakeSyncService подменяет сервис синхронизации в тестах обработчиков
type fakeSyncService struct {
	feedContent []byte
	feedErr     error
	statusJob   *models.FeedJob
	statusErr   error
	jobs        []*models.FeedJob
	jobsTotal   int
	jobsErr     error

	resyncCalled chan models.Destination
}

func (f *fakeSyncService) HandleChangeEvent(context.Context, *messaging.ProductChangeEvent) error {
	return nil
}

func (f *fakeSyncService) FullResync(_ context.Context, dest models.Destination) error {
	if f.resyncCalled != nil {
		f.resyncCalled <- dest
	}
	return nil
}

func (f *fakeSyncService) RenderFeed(context.Context, models.Destination, services.FeedFormat) ([]byte, error) {
	return f.feedContent, f.feedErr
}

func (f *fakeSyncService) RegenerateFeed(context.Context, models.Destination) error {
	return nil
}

func (f *fakeSyncService) FeedStatus(context.Context, models.Destination) (*models.FeedJob, error) {
	return f.statusJob, f.statusErr
}

func (f *fakeSyncService) ListJobs(context.Context, models.Destination, int, int) ([]*models.FeedJob, int, error) {
	return f.jobs, f.jobsTotal, f.jobsErr
}

func (f *fakeSyncService) PollFeedStatuses(context.Context) error {
	return nil
}

// feedRequest выполняет запрос с параметром destination в chi контексте
func feedRequest(handler http.HandlerFunc, destination, target string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("destination", destination)
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))

	w := httptest.NewRecorder()
	handler(w, r)
	return w
}

func TestServeCSV(t *testing.T) {
	svc := &fakeSyncService{feedContent: []byte("id,title\n42,Лампа\n")}
	h := NewFeedHandler(svc, nopLogger{})

	w := feedRequest(h.ServeCSV, "google", "/feeds/google/products.csv")
	if w.Code != http.StatusOK {
		t.Fatalf("статус = %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "text/csv; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if !strings.Contains(w.Body.String(), "42,Лампа") {
		t.Errorf("тело = %q", w.Body.String())
	}
}

func TestServeXMLDisabledDestination(t *testing.T) {
	svc := &fakeSyncService{feedErr: utils.ErrDestinationDisabled}
	h := NewFeedHandler(svc, nopLogger{})

	w := feedRequest(h.ServeXML, "ebay", "/feeds/ebay/products.xml")
	if w.Code != http.StatusNotFound {
		t.Fatalf("статус = %d, ожидался 404", w.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if resp.Error != "destination_disabled" {
		t.Errorf("код ошибки = %q", resp.Error)
	}
}

func TestServeCSVUnknownDestination(t *testing.T) {
	h := NewFeedHandler(&fakeSyncService{}, nopLogger{})

	w := feedRequest(h.ServeCSV, "etsy", "/feeds/etsy/products.csv")
	if w.Code != http.StatusNotFound {
		t.Errorf("статус = %d, ожидался 404", w.Code)
	}
}

func TestServeCSVRenderFailure(t *testing.T) {
	svc := &fakeSyncService{feedErr: utils.ErrFeedNotReady}
	h := NewFeedHandler(svc, nopLogger{})

	w := feedRequest(h.ServeCSV, "google", "/feeds/google/products.csv")
	if w.Code != http.StatusBadGateway {
		t.Errorf("статус = %d, ожидался 502", w.Code)
	}
}

func TestTriggerAccepted(t *testing.T) {
	svc := &fakeSyncService{resyncCalled: make(chan models.Destination, 1)}
	h := NewSyncHandler(svc, nopLogger{})

	w := feedRequest(h.Trigger, "facebook", "/api/v1/sync/facebook/trigger")
	if w.Code != http.StatusAccepted {
		t.Fatalf("статус = %d, ожидался 202", w.Code)
	}

	// Прогон уходит в фон и не блокирует ответ
	if dest := <-svc.resyncCalled; dest != models.DestinationFacebook {
		t.Errorf("запущено направление %q", dest)
	}
}

func TestStatusFeedNotReady(t *testing.T) {
	svc := &fakeSyncService{statusErr: utils.ErrFeedNotReady}
	h := NewSyncHandler(svc, nopLogger{})

	w := feedRequest(h.Status, "amazon", "/api/v1/sync/amazon/status")
	if w.Code != http.StatusNotFound {
		t.Fatalf("статус = %d, ожидался 404", w.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if resp.Error != "not_found" {
		t.Errorf("код ошибки = %q", resp.Error)
	}
}

func TestStatusReturnsJob(t *testing.T) {
	svc := &fakeSyncService{statusJob: &models.FeedJob{
		FeedID:      "feed-9",
		Destination: models.DestinationAmazon,
		Status:      models.FeedProcessing,
	}}
	h := NewSyncHandler(svc, nopLogger{})

	w := feedRequest(h.Status, "amazon", "/api/v1/sync/amazon/status")
	if w.Code != http.StatusOK {
		t.Fatalf("статус = %d", w.Code)
	}

	var resp struct {
		Success bool           `json:"success"`
		Data    models.FeedJob `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if !resp.Success || resp.Data.FeedID != "feed-9" {
		t.Errorf("ответ = %+v", resp)
	}
}

func TestJobsPagination(t *testing.T) {
	svc := &fakeSyncService{
		jobs:      []*models.FeedJob{{FeedID: "feed-1"}, {FeedID: "feed-2"}},
		jobsTotal: 42,
	}
	h := NewSyncHandler(svc, nopLogger{})

	w := feedRequest(h.Jobs, "amazon", "/api/v1/sync/amazon/jobs?page=2&page_size=2")
	if w.Code != http.StatusOK {
		t.Fatalf("статус = %d", w.Code)
	}

	var resp struct {
		Success bool              `json:"success"`
		Data    []*models.FeedJob `json:"data"`
		Meta    struct {
			Page       int   `json:"page"`
			PageSize   int   `json:"page_size"`
			TotalItems int64 `json:"total_items"`
			TotalPages int   `json:"total_pages"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Errorf("страница из %d записей", len(resp.Data))
	}
	if resp.Meta.Page != 2 || resp.Meta.PageSize != 2 {
		t.Errorf("метаданные = %+v", resp.Meta)
	}
	if resp.Meta.TotalItems != 42 || resp.Meta.TotalPages != 21 {
		t.Errorf("итоги = %+v", resp.Meta)
	}
}
