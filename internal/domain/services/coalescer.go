package services

import (
	"sync"

	"github.com/athebyme/catalog-sync/internal/domain/models"
)

// Coalescer схлопывает лавину изменений одного товара в минимум вызовов
// API маркетплейса. Инвариант на ключ (товар, направление): не больше
// одной задачи в очереди и одной в полете; более свежий снимок
// перезаписывает ожидающий, диспетчеру всегда достается последний
type Coalescer struct {
	mu    sync.Mutex
	slots map[models.TaskKey]*slot
}

// slot - состояние одного ключа (товар, направление)
type slot struct {
	pending  *models.SyncTask // последний снимок, ожидающий диспетчеризации
	queued   bool             // токен ключа уже лежит в очереди диспетчера
	inFlight bool             // задача ключа сейчас выполняется
}

// NewCoalescer создает пустой коалесцер
func NewCoalescer() *Coalescer {
	return &Coalescer{slots: make(map[models.TaskKey]*slot)}
}

// Offer предлагает задачу. Снимок ключа всегда замещается на более
// свежий; возврат true означает, что вызывающая сторона должна положить
// токен ключа в очередь диспетчера (в очереди его еще нет)
func (c *Coalescer) Offer(task *models.SyncTask) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := task.Key()
	s, ok := c.slots[key]
	if !ok {
		s = &slot{}
		c.slots[key] = s
	}

	s.pending = task

	if s.queued || s.inFlight {
		// Ключ уже в работе: свежий снимок дождется своей очереди
		return false
	}
	s.queued = true
	return true
}

// BeginExternal помечает свободный ключ выполняющимся в обход очередей
// диспетчера, например в пачке полной синхронизации. Возврат false
// означает, что по ключу уже идет или ожидается работа и внешний вызов
// по нему делать нельзя. Завершается ключ обычным Complete
func (c *Coalescer) BeginExternal(key models.TaskKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.slots[key]; ok {
		return false
	}
	c.slots[key] = &slot{inFlight: true}
	return true
}

// Acquire забирает последний снимок ключа и помечает его выполняющимся.
// Возврат nil означает, что снимок уже был забран (ложный токен)
func (c *Coalescer) Acquire(key models.TaskKey) *models.SyncTask {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[key]
	if !ok || s.pending == nil {
		return nil
	}

	task := s.pending
	s.pending = nil
	s.queued = false
	s.inFlight = true
	return task
}

// Complete завершает выполнение ключа. Если за время полета пришел
// новый снимок, возвращается true: вызывающая сторона кладет токен
// ключа обратно в очередь
func (c *Coalescer) Complete(key models.TaskKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[key]
	if !ok {
		return false
	}

	s.inFlight = false
	if s.pending != nil {
		s.queued = true
		return true
	}

	delete(c.slots, key)
	return false
}

// PendingCount возвращает число ключей с незавершенной работой
func (c *Coalescer) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}
