package destinations

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/athebyme/catalog-sync/internal/domain/models"
)

// captureRecorder запоминает записи журнала фидов
type captureRecorder struct {
	jobs []*models.FeedJob
}

func (r *captureRecorder) RecordFeedSubmission(_ context.Context, job *models.FeedJob) error {
	r.jobs = append(r.jobs, job)
	return nil
}

// amazonTestServer моделирует трехшаговый протокол Feeds API
func amazonTestServer(t *testing.T, uploaded *[]byte) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/feeds/2021-06-30/documents":
			if got := r.Header.Get("x-amz-access-token"); got != "lwa-token" {
				t.Errorf("x-amz-access-token = %q", got)
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{
				"feedDocumentId": "doc-1",
				"url":            server.URL + "/upload/doc-1",
			})
		case r.Method == http.MethodPut && r.URL.Path == "/upload/doc-1":
			// Выгрузка идет по подписанному URL без токена
			if r.Header.Get("x-amz-access-token") != "" {
				t.Error("выгрузка содержимого не должна нести LWA токен")
			}
			body, _ := io.ReadAll(r.Body)
			*uploaded = body
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPost && r.URL.Path == "/feeds/2021-06-30/feeds":
			var req map[string]any
			json.NewDecoder(r.Body).Decode(&req)
			if req["feedType"] != "JSON_LISTINGS_FEED" {
				t.Errorf("feedType = %v", req["feedType"])
			}
			if req["inputFeedDocumentId"] != "doc-1" {
				t.Errorf("inputFeedDocumentId = %v", req["inputFeedDocumentId"])
			}
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{"feedId": "feed-9"})
		default:
			t.Errorf("неожиданный запрос %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	return server
}

func TestAmazonUpsertBatchSubmitsFeed(t *testing.T) {
	var uploaded []byte
	server := amazonTestServer(t, &uploaded)
	defer server.Close()

	recorder := &captureRecorder{}
	adapter := NewAmazonAdapter("EU", []string{"A13V1IB3VIYZZH"}, "HANABALL-",
		NewStaticCredential("lwa-token"), recorder, nopLogger{}, WithAmazonEndpoint(server.URL))

	results := adapter.UpsertBatch(context.Background(), []*models.CanonicalProduct{testProduct()})
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("ожидался успех, получено %+v", results)
	}
	if results[0].RemoteID != "HANABALL-42" {
		t.Errorf("RemoteID = %q", results[0].RemoteID)
	}

	var feed listingsFeed
	if err := json.Unmarshal(uploaded, &feed); err != nil {
		t.Fatalf("разбор выгруженного фида: %v", err)
	}
	if feed.Header.Version != "2.0" {
		t.Errorf("версия заголовка = %q", feed.Header.Version)
	}
	if len(feed.Messages) != 1 {
		t.Fatalf("в фиде должно быть одно сообщение, получено %d", len(feed.Messages))
	}
	msg := feed.Messages[0]
	if msg.SKU != "HANABALL-42" || msg.OperationType != "UPDATE" {
		t.Errorf("сообщение = %+v", msg)
	}

	// Прием фида записывается в журнал для последующего опроса
	if len(recorder.jobs) != 1 {
		t.Fatalf("ожидалась одна запись журнала, получено %d", len(recorder.jobs))
	}
	job := recorder.jobs[0]
	if job.FeedID != "feed-9" {
		t.Errorf("FeedID = %q", job.FeedID)
	}
	if job.Status != models.FeedSubmitted {
		t.Errorf("статус записи = %q", job.Status)
	}
	if job.Destination != models.DestinationAmazon {
		t.Errorf("направление записи = %q", job.Destination)
	}
}

func TestAmazonDeleteFeedMessage(t *testing.T) {
	var uploaded []byte
	server := amazonTestServer(t, &uploaded)
	defer server.Close()

	adapter := NewAmazonAdapter("EU", []string{"A13V1IB3VIYZZH"}, "HANABALL-",
		NewStaticCredential("lwa-token"), &captureRecorder{}, nopLogger{}, WithAmazonEndpoint(server.URL))

	res := adapter.Delete(context.Background(), "42")
	if !res.Success {
		t.Fatalf("ожидался успех, получено %+v", res)
	}

	var feed listingsFeed
	if err := json.Unmarshal(uploaded, &feed); err != nil {
		t.Fatalf("разбор выгруженного фида: %v", err)
	}
	if len(feed.Messages) != 1 {
		t.Fatalf("в фиде должно быть одно сообщение, получено %d", len(feed.Messages))
	}
	if feed.Messages[0].OperationType != "DELETE" {
		t.Errorf("операция = %q, ожидалось DELETE", feed.Messages[0].OperationType)
	}
	if feed.Messages[0].SKU != "HANABALL-42" {
		t.Errorf("SKU = %q", feed.Messages[0].SKU)
	}
}

func TestAmazonCheckFeedStatus(t *testing.T) {
	tests := []struct {
		processing string
		want       models.FeedJobStatus
		wantErr    bool
	}{
		{"IN_QUEUE", models.FeedSubmitted, false},
		{"IN_PROGRESS", models.FeedProcessing, false},
		{"DONE", models.FeedSucceeded, false},
		{"FATAL", models.FeedFailed, false},
		{"CANCELLED", models.FeedFailed, false},
		{"UNHEARD_OF", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.processing, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/feeds/2021-06-30/feeds/feed-9" {
					t.Errorf("путь = %q", r.URL.Path)
				}
				json.NewEncoder(w).Encode(map[string]string{"processingStatus": tt.processing})
			}))
			defer server.Close()

			adapter := NewAmazonAdapter("EU", nil, "HANABALL-",
				NewStaticCredential("lwa-token"), &captureRecorder{}, nopLogger{}, WithAmazonEndpoint(server.URL))

			status, raw, err := adapter.CheckFeedStatus(context.Background(), "feed-9")
			if tt.wantErr {
				if err == nil {
					t.Fatal("неизвестный статус должен возвращать ошибку")
				}
				return
			}
			if err != nil {
				t.Fatalf("CheckFeedStatus: %v", err)
			}
			if status != tt.want {
				t.Errorf("статус = %q, ожидалось %q", status, tt.want)
			}
			if raw == "" {
				t.Error("сырой ответ должен сохраняться для журнала")
			}
		})
	}
}
