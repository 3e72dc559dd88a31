package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/athebyme/catalog-sync/internal/adapters/messaging"
	"github.com/athebyme/catalog-sync/internal/destinations"
	"github.com/athebyme/catalog-sync/internal/domain/models"
	"github.com/athebyme/catalog-sync/pkg/interfaces"
)

// nopLogger - логгер-заглушка для тестов
type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{})                          {}
func (nopLogger) Info(string, ...interface{})                           {}
func (nopLogger) Warn(string, ...interface{})                           {}
func (nopLogger) Error(string, ...interface{})                          {}
func (nopLogger) Fatal(string, ...interface{})                          {}
func (nopLogger) DebugWithContext(context.Context, string, ...interface{}) {}
func (nopLogger) InfoWithContext(context.Context, string, ...interface{})  {}
func (nopLogger) WarnWithContext(context.Context, string, ...interface{})  {}
func (nopLogger) ErrorWithContext(context.Context, string, ...interface{}) {}
func (l nopLogger) WithFields(...interfaces.LogField) interfaces.LoggerPort { return l }
func (l nopLogger) WithField(string, interface{}) interfaces.LoggerPort     { return l }
func (l nopLogger) WithDestination(string) interfaces.LoggerPort            { return l }
func (nopLogger) Sync() error                                               { return nil }

// scriptedAdapter отдает заранее заданные результаты по порядку вызовов
type scriptedAdapter struct {
	name    models.Destination
	results []destinations.Result

	mu      sync.Mutex
	calls   int
	batches [][]string // идентификаторы товаров каждой пачки
}

func (a *scriptedAdapter) Name() models.Destination { return a.name }

func (a *scriptedAdapter) next() destinations.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	res := a.results[len(a.results)-1]
	if a.calls < len(a.results) {
		res = a.results[a.calls]
	}
	a.calls++
	return res
}

func (a *scriptedAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *scriptedAdapter) UpsertOne(_ context.Context, _ *models.CanonicalProduct) destinations.Result {
	return a.next()
}

func (a *scriptedAdapter) UpsertBatch(ctx context.Context, products []*models.CanonicalProduct) []destinations.Result {
	ids := make([]string, len(products))
	out := make([]destinations.Result, len(products))
	for i, p := range products {
		ids[i] = p.ID
		out[i] = a.next()
	}
	a.mu.Lock()
	a.batches = append(a.batches, ids)
	a.mu.Unlock()
	return out
}

func (a *scriptedAdapter) batchCalls() [][]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.batches
}

func (a *scriptedAdapter) Delete(_ context.Context, _ string) destinations.Result {
	return a.next()
}

func transientFailure() destinations.Result {
	return destinations.Result{Success: false, StatusCode: 500, Transient: true, ErrorDetail: "server error"}
}

func permanentFailure() destinations.Result {
	return destinations.Result{Success: false, StatusCode: 401, Transient: false, ErrorDetail: "unauthorized"}
}

func okResult() destinations.Result {
	return destinations.Result{Success: true, StatusCode: 200}
}

func newTestDispatcher(adapter destinations.Adapter) (*Dispatcher, *[]time.Duration) {
	d := NewDispatcher(DispatcherConfig{
		MaxRetries: 3,
		RetryBase:  time.Second,
	}, []destinations.Adapter{adapter}, NewCoalescer(), nil, nopLogger{})

	var backoffs []time.Duration
	d.sleep = func(_ context.Context, wait time.Duration) error {
		backoffs = append(backoffs, wait)
		return nil
	}
	return d, &backoffs
}

func TestRunTaskRetriesTransientErrors(t *testing.T) {
	adapter := &scriptedAdapter{
		name:    models.DestinationFacebook,
		results: []destinations.Result{transientFailure(), transientFailure(), okResult()},
	}
	d, backoffs := newTestDispatcher(adapter)

	task := upsertTask("42", models.DestinationFacebook, "Lamp")
	d.runTask(context.Background(), task)

	if adapter.callCount() != 3 {
		t.Errorf("ожидалось 3 попытки, выполнено %d", adapter.callCount())
	}
	if task.Status != models.TaskSucceeded {
		t.Errorf("задача должна завершиться успехом, статус %q", task.Status)
	}
	if task.Attempts != 3 {
		t.Errorf("Attempts = %d, ожидалось 3", task.Attempts)
	}

	// Экспоненциальная выдержка: 1s перед второй попыткой, 2s перед третьей
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*backoffs) != len(want) {
		t.Fatalf("ожидалось %d выдержек, получено %d", len(want), len(*backoffs))
	}
	for i := range want {
		if (*backoffs)[i] != want[i] {
			t.Errorf("выдержка %d = %v, ожидалось %v", i, (*backoffs)[i], want[i])
		}
	}
}

func TestRunTaskPermanentErrorNoRetry(t *testing.T) {
	adapter := &scriptedAdapter{
		name:    models.DestinationFacebook,
		results: []destinations.Result{permanentFailure()},
	}
	d, backoffs := newTestDispatcher(adapter)

	task := upsertTask("42", models.DestinationFacebook, "Lamp")
	d.runTask(context.Background(), task)

	if adapter.callCount() != 1 {
		t.Errorf("постоянная ошибка дает ровно одну попытку, выполнено %d", adapter.callCount())
	}
	if task.Status != models.TaskFailed {
		t.Errorf("задача должна провалиться, статус %q", task.Status)
	}
	if len(*backoffs) != 0 {
		t.Errorf("выдержек быть не должно, было %d", len(*backoffs))
	}
}

func TestRunTaskExhaustsRetries(t *testing.T) {
	adapter := &scriptedAdapter{
		name:    models.DestinationFacebook,
		results: []destinations.Result{transientFailure(), transientFailure(), transientFailure()},
	}
	d, _ := newTestDispatcher(adapter)

	task := upsertTask("42", models.DestinationFacebook, "Lamp")
	d.runTask(context.Background(), task)

	if adapter.callCount() != 3 {
		t.Errorf("лимит попыток 3, выполнено %d", adapter.callCount())
	}
	if task.Status != models.TaskFailed {
		t.Errorf("исчерпание попыток должно провалить задачу, статус %q", task.Status)
	}
	if task.LastError == "" {
		t.Error("провал должен сохранять текст последней ошибки")
	}
}

func TestRunTaskDeleteAction(t *testing.T) {
	adapter := &scriptedAdapter{
		name:    models.DestinationEbay,
		results: []destinations.Result{okResult()},
	}
	d, _ := newTestDispatcher(adapter)

	task := &models.SyncTask{
		ProductID:   "42",
		Destination: models.DestinationEbay,
		Action:      models.ActionDelete,
	}
	d.runTask(context.Background(), task)

	if task.Status != models.TaskSucceeded {
		t.Errorf("удаление должно завершиться успехом, статус %q", task.Status)
	}
}

func TestDispatcherEndToEnd(t *testing.T) {
	adapter := &scriptedAdapter{
		name:    models.DestinationFacebook,
		results: []destinations.Result{okResult()},
	}
	d, _ := newTestDispatcher(adapter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.Start(ctx)
	defer d.Stop()

	if err := d.Enqueue(ctx, upsertTask("42", models.DestinationFacebook, "Lamp")); err != nil {
		t.Fatalf("постановка задачи: %v", err)
	}

	// Воркер разбирает очередь асинхронно
	deadline := time.After(2 * time.Second)
	for adapter.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("задача не была выполнена за отведенное время")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestEnqueueUnknownDestination(t *testing.T) {
	adapter := &scriptedAdapter{name: models.DestinationFacebook}
	d, _ := newTestDispatcher(adapter)

	err := d.Enqueue(context.Background(), upsertTask("42", models.DestinationEbay, "Lamp"))
	if err == nil {
		t.Fatal("постановка в выключенное направление должна возвращать ошибку")
	}
}

// deadlineAdapter запоминает срок контекста каждого вызова
type deadlineAdapter struct {
	scriptedAdapter
	deadlines []time.Time
}

func (a *deadlineAdapter) UpsertOne(ctx context.Context, _ *models.CanonicalProduct) destinations.Result {
	dl, _ := ctx.Deadline()
	a.deadlines = append(a.deadlines, dl)
	time.Sleep(5 * time.Millisecond)
	return a.next()
}

func TestRunTaskTimeoutPerAttempt(t *testing.T) {
	adapter := &deadlineAdapter{scriptedAdapter: scriptedAdapter{
		name:    models.DestinationFacebook,
		results: []destinations.Result{transientFailure(), okResult()},
	}}
	d, _ := newTestDispatcher(adapter)

	d.runTask(context.Background(), upsertTask("42", models.DestinationFacebook, "Lamp"))

	if len(adapter.deadlines) != 2 {
		t.Fatalf("ожидалось 2 попытки, выполнено %d", len(adapter.deadlines))
	}
	// Срок отсчитывается от начала попытки, а не от начала задачи
	if !adapter.deadlines[1].After(adapter.deadlines[0]) {
		t.Error("каждая попытка должна получать собственный срок")
	}
}

func TestResyncBatchSkipsBusyKeys(t *testing.T) {
	adapter := &scriptedAdapter{
		name:    models.DestinationFacebook,
		results: []destinations.Result{okResult()},
	}
	d, _ := newTestDispatcher(adapter)

	// Ключ товара 1 занят задачей из события каталога
	if err := d.Enqueue(context.Background(), upsertTask("1", models.DestinationFacebook, "Лампа")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	products := []*models.CanonicalProduct{
		{ID: "1", Title: "Лампа"},
		{ID: "2", Title: "Ваза"},
	}
	if err := d.ResyncBatch(context.Background(), models.DestinationFacebook, products); err != nil {
		t.Fatalf("ResyncBatch: %v", err)
	}

	batches := adapter.batchCalls()
	if len(batches) != 1 || len(batches[0]) != 1 || batches[0][0] != "2" {
		t.Fatalf("в пачку должен попасть только свободный товар, получено %v", batches)
	}
	// Занятый ключ остался за задачей из события, свободный освобожден
	if got := d.coalescer.PendingCount(); got != 1 {
		t.Errorf("в коалесцере должен остаться один ключ, осталось %d", got)
	}
}

// memMessaging копит опубликованные сообщения
type memMessaging struct {
	mu        sync.Mutex
	published []interfaces.Message
}

func (m *memMessaging) Publish(_ context.Context, topic string, message []byte) error {
	return m.PublishWithKey(context.Background(), topic, "", message)
}

func (m *memMessaging) PublishWithKey(_ context.Context, topic, key string, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, interfaces.Message{Topic: topic, Key: key, Value: message})
	return nil
}

func (m *memMessaging) Subscribe(context.Context, string, interfaces.MessageHandler) (func() error, error) {
	return func() error { return nil }, nil
}

func (m *memMessaging) Close() error { return nil }

func TestRunTaskFailureReportsDeadLetter(t *testing.T) {
	adapter := &scriptedAdapter{
		name:    models.DestinationFacebook,
		results: []destinations.Result{transientFailure()},
	}
	msg := &memMessaging{}
	d := NewDispatcher(DispatcherConfig{
		MaxRetries:      2,
		RetryBase:       time.Second,
		DeadLetterTopic: "catalog.sync.failed",
	}, []destinations.Adapter{adapter}, NewCoalescer(), msg, nopLogger{})
	d.sleep = func(context.Context, time.Duration) error { return nil }

	d.runTask(context.Background(), upsertTask("42", models.DestinationFacebook, "Лампа"))

	if len(msg.published) != 1 {
		t.Fatalf("ожидался один отчет о провале, опубликовано %d", len(msg.published))
	}
	rec := msg.published[0]
	if rec.Topic != "catalog.sync.failed" || rec.Key != "42" {
		t.Errorf("тема = %q, ключ = %q", rec.Topic, rec.Key)
	}

	var event messaging.FailedTaskEvent
	if err := json.Unmarshal(rec.Value, &event); err != nil {
		t.Fatalf("разбор отчета: %v", err)
	}
	if event.Destination != models.DestinationFacebook {
		t.Errorf("направление = %q", event.Destination)
	}
	if event.Action != models.ActionUpsert {
		t.Errorf("действие = %q", event.Action)
	}
	if event.Attempts != 2 {
		t.Errorf("Attempts = %d, ожидалось 2", event.Attempts)
	}
}
