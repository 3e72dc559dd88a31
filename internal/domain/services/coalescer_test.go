package services

import (
	"testing"

	"github.com/athebyme/catalog-sync/internal/domain/models"
)

func upsertTask(productID string, dest models.Destination, title string) *models.SyncTask {
	return &models.SyncTask{
		ProductID:   productID,
		Destination: dest,
		Action:      models.ActionUpsert,
		Snapshot:    &models.CanonicalProduct{ID: productID, Title: title},
	}
}

func TestCoalescerRapidUpdatesCollapse(t *testing.T) {
	c := NewCoalescer()
	key := models.TaskKey{ProductID: "42", Destination: models.DestinationFacebook}

	// Три быстрых изменения одного товара
	if !c.Offer(upsertTask("42", models.DestinationFacebook, "v1")) {
		t.Fatal("первое предложение должно требовать постановки токена")
	}
	if c.Offer(upsertTask("42", models.DestinationFacebook, "v2")) {
		t.Error("второе предложение не должно требовать нового токена")
	}
	if c.Offer(upsertTask("42", models.DestinationFacebook, "v3")) {
		t.Error("третье предложение не должно требовать нового токена")
	}

	// Диспетчеру достается только последний снимок
	task := c.Acquire(key)
	if task == nil {
		t.Fatal("снимок должен быть доступен")
	}
	if task.Snapshot.Title != "v3" {
		t.Errorf("должен побеждать последний снимок, получен %q", task.Snapshot.Title)
	}

	// Повторный Acquire без нового Offer пуст
	if c.Acquire(key) != nil {
		t.Error("повторный Acquire должен возвращать nil")
	}

	// Завершение без новых снимков не требует повторной постановки
	if c.Complete(key) {
		t.Error("Complete без ожидающего снимка не должен требовать токен")
	}
	if c.PendingCount() != 0 {
		t.Errorf("после завершения ключей не должно остаться, есть %d", c.PendingCount())
	}
}

func TestCoalescerInFlightReleasesPending(t *testing.T) {
	c := NewCoalescer()
	key := models.TaskKey{ProductID: "42", Destination: models.DestinationGoogle}

	c.Offer(upsertTask("42", models.DestinationGoogle, "v1"))
	inFlight := c.Acquire(key)
	if inFlight == nil || inFlight.Snapshot.Title != "v1" {
		t.Fatal("первый снимок должен уйти в полет")
	}

	// Пока задача в полете, приходит обновление
	if c.Offer(upsertTask("42", models.DestinationGoogle, "v2")) {
		t.Error("снимок ключа в полете не должен требовать нового токена")
	}

	// Завершение полета освобождает ожидающий снимок
	if !c.Complete(key) {
		t.Fatal("Complete обязан сообщить об ожидающем снимке")
	}

	next := c.Acquire(key)
	if next == nil || next.Snapshot.Title != "v2" {
		t.Fatal("после завершения должен доставаться свежий снимок")
	}
	if c.Complete(key) {
		t.Error("второй Complete не должен требовать токен")
	}
}

func TestCoalescerBeginExternal(t *testing.T) {
	c := NewCoalescer()
	key := models.TaskKey{ProductID: "42", Destination: models.DestinationAmazon}

	if !c.BeginExternal(key) {
		t.Fatal("свободный ключ должен захватываться")
	}
	if c.BeginExternal(key) {
		t.Error("захваченный ключ не должен захватываться повторно")
	}

	// Снимок, пришедший во время внешней работы, дожидается ее конца
	if c.Offer(upsertTask("42", models.DestinationAmazon, "v1")) {
		t.Error("снимок занятого ключа не должен требовать токена")
	}
	if !c.Complete(key) {
		t.Fatal("Complete обязан сообщить об ожидающем снимке")
	}

	// Ключ с ожидающим снимком для внешней работы закрыт
	if c.BeginExternal(key) {
		t.Error("ключ с ожидающим снимком не должен захватываться")
	}
}

func TestCoalescerIndependentKeys(t *testing.T) {
	c := NewCoalescer()

	// Разные направления одного товара не мешают друг другу
	if !c.Offer(upsertTask("42", models.DestinationFacebook, "fb")) {
		t.Error("facebook должен получить свой токен")
	}
	if !c.Offer(upsertTask("42", models.DestinationEbay, "ebay")) {
		t.Error("ebay должен получить свой токен")
	}
	if !c.Offer(upsertTask("7", models.DestinationFacebook, "other")) {
		t.Error("другой товар должен получить свой токен")
	}

	if c.PendingCount() != 3 {
		t.Errorf("ожидалось 3 активных ключа, получено %d", c.PendingCount())
	}
}
