package services

import (
	"context"

	"github.com/athebyme/catalog-sync/internal/adapters/storage"
	"github.com/athebyme/catalog-sync/internal/domain/models"
	"github.com/athebyme/catalog-sync/pkg/interfaces"
	"github.com/athebyme/catalog-sync/pkg/tx"
)

// FeedJournal ведет журнал отправленных фидов
type FeedJournal struct {
	storage   storage.SyncStorageInterface
	txManager tx.TxManager
	logger    interfaces.LoggerPort
}

// NewFeedJournal создает журнал фидов
func NewFeedJournal(store storage.SyncStorageInterface, txManager tx.TxManager,
	logger interfaces.LoggerPort) *FeedJournal {
	return &FeedJournal{
		storage:   store,
		txManager: txManager,
		logger:    logger,
	}
}

// RecordFeedSubmission записывает отправку фида. Незавершенные записи
// того же направления закрываются в той же транзакции: новый полный фид
// делает их итог неинтересным
func (j *FeedJournal) RecordFeedSubmission(ctx context.Context, job *models.FeedJob) error {
	return j.txManager.Do(ctx, func(ctx context.Context) error {
		stale, err := j.storage.ListUnfinishedFeedJobs(ctx, job.Destination)
		if err != nil {
			return err
		}
		for _, old := range stale {
			if err := j.storage.UpdateFeedJobStatus(ctx, old.FeedID, models.FeedFailed,
				`{"note":"superseded by a newer feed"}`); err != nil {
				return err
			}
		}
		return j.storage.SaveFeedJob(ctx, job)
	})
}
