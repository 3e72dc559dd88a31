package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/athebyme/catalog-sync/internal/domain/models"
	"github.com/athebyme/catalog-sync/pkg/interfaces"
)

// ResyncScheduler запускает ежедневную полную синхронизацию направлений.
// Время запуска каждого направления задается отдельно и разнесено
// по минутам, чтобы не бить по каталогу и сети одновременно
type ResyncScheduler struct {
	schedule map[models.Destination]string // "HH:MM" локального времени
	run      func(ctx context.Context, dest models.Destination) error
	logger   interfaces.LoggerPort

	wg     sync.WaitGroup
	cancel context.CancelFunc
	once   sync.Once

	// now подменяется в тестах
	now func() time.Time
}

// NewResyncScheduler создает планировщик.
// run вызывается раз в сутки для каждого направления из расписания
func NewResyncScheduler(schedule map[models.Destination]string,
	run func(ctx context.Context, dest models.Destination) error,
	logger interfaces.LoggerPort) *ResyncScheduler {
	return &ResyncScheduler{
		schedule: schedule,
		run:      run,
		logger:   logger,
		now:      time.Now,
	}
}

// Start запускает расписание. Направления с некорректным временем
// пропускаются с ошибкой в журнале, остальные работают
func (s *ResyncScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	for dest, at := range s.schedule {
		hour, minute, err := parseClock(at)
		if err != nil {
			s.logger.Error("Некорректное время в расписании",
				interfaces.LogField{Key: "destination", Value: string(dest)},
				interfaces.LogField{Key: "at", Value: at},
				interfaces.LogField{Key: "error", Value: err.Error()})
			continue
		}

		s.wg.Add(1)
		go s.loop(ctx, dest, hour, minute)
	}
}

// Stop останавливает расписание и дожидается завершения запущенных прогонов
func (s *ResyncScheduler) Stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

// loop ждет следующего наступления HH:MM и запускает прогон направления
func (s *ResyncScheduler) loop(ctx context.Context, dest models.Destination, hour, minute int) {
	defer s.wg.Done()

	for {
		wait := time.Until(nextOccurrence(s.now(), hour, minute))
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.logger.Info("Запуск ежедневной синхронизации",
			interfaces.LogField{Key: "destination", Value: string(dest)})

		if err := s.run(ctx, dest); err != nil {
			s.logger.Error("Ежедневная синхронизация провалена",
				interfaces.LogField{Key: "destination", Value: string(dest)},
				interfaces.LogField{Key: "error", Value: err.Error()})
		}
	}
}

// parseClock разбирает время вида "02:30"
func parseClock(s string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("ожидается HH:MM, получено %q", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("время %q вне диапазона", s)
	}
	return hour, minute, nil
}

// nextOccurrence возвращает ближайшее будущее наступление HH:MM
func nextOccurrence(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
