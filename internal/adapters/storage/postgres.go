package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/catalog-sync/internal/domain/models"
	"github.com/athebyme/catalog-sync/pkg/tx"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SyncStorageInterface определяет интерфейс взаимодействия с хранилищем PostgreSQL
type SyncStorageInterface interface {
	// Каталог (модель чтения)
	ListActiveInStock(ctx context.Context) ([]*models.RawProduct, error)
	GetProduct(ctx context.Context, productID string) (*models.RawProduct, error)

	// Журнал фидов
	SaveFeedJob(ctx context.Context, job *models.FeedJob) error
	UpdateFeedJobStatus(ctx context.Context, feedID string, status models.FeedJobStatus, responsePayload string) error
	LatestFeedJob(ctx context.Context, destination models.Destination) (*models.FeedJob, error)
	ListFeedJobs(ctx context.Context, destination models.Destination, limit, offset int) ([]*models.FeedJob, int, error)
	ListUnfinishedFeedJobs(ctx context.Context, destination models.Destination) ([]*models.FeedJob, error)

	// OAuth токены eBay
	GetEbayToken(ctx context.Context, environment string) (*models.EbayToken, error)
	UpsertEbayToken(ctx context.Context, token *models.EbayToken) error
}

// SyncStoragePort расширяет интерфейс хранилища управлением соединением
type SyncStoragePort interface {
	SyncStorageInterface

	Pool() *pgxpool.Pool
	Ping(ctx context.Context) error
	Close() error
}

// SyncStorage реализация SyncStoragePort для PostgreSQL
type SyncStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage создает новый экземпляр SyncStorage
func NewPostgresStorage(ctx context.Context, connectionString string) (*SyncStorage, error) {
	pool, err := pgxpool.New(ctx, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &SyncStorage{pool: pool}, nil
}

// NewPostgresStorageWithPool создает хранилище поверх готового пула
func NewPostgresStorageWithPool(ctx context.Context, pool *pgxpool.Pool) (*SyncStorage, error) {
	if pool == nil {
		return nil, errors.New("pool is nil")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &SyncStorage{pool: pool}, nil
}

// Pool возвращает пул соединений (для менеджера транзакций)
func (s *SyncStorage) Pool() *pgxpool.Pool {
	return s.pool
}

// Ping проверяет соединение с БД
func (s *SyncStorage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close закрывает соединение с БД
func (s *SyncStorage) Close() error {
	s.pool.Close()
	return nil
}

// querier объединяет общие методы pgx.Tx и pgxpool.Pool
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// querier возвращает транзакцию из контекста, если она есть, иначе пул
func (s *SyncStorage) querier(ctx context.Context) querier {
	if t := tx.FromContext(ctx); t != nil {
		return t
	}
	return s.pool
}

// ----------------------------- каталог -----------------------------

const productColumns = `
	id, name, slug, COALESCE(description, ''), COALESCE(image, ''),
	COALESCE(additional_images, '{}'), price_minor, currency, COALESCE(url, ''),
	COALESCE(discount_type, ''), COALESCE(discount_amount_minor, 0),
	COALESCE(brand_name, ''), stock,
	COALESCE(availability, ''), COALESCE(condition, ''), COALESCE(gtin, ''),
	COALESCE(mpn, ''), COALESCE(categories, '{}'),
	COALESCE(google_product_category, ''), updated_at`

// ListActiveInStock возвращает активные товары с положительным остатком
func (s *SyncStorage) ListActiveInStock(ctx context.Context) ([]*models.RawProduct, error) {
	query := `SELECT` + productColumns + `
		FROM products
		WHERE is_active = TRUE AND stock > 0
		ORDER BY id`

	rows, err := s.querier(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*models.RawProduct
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}

	return products, rows.Err()
}

// GetProduct возвращает запись каталога по ID.
// Возвращает nil, nil если товар не найден
func (s *SyncStorage) GetProduct(ctx context.Context, productID string) (*models.RawProduct, error) {
	query := `SELECT` + productColumns + ` FROM products WHERE id = $1`

	rows, err := s.querier(ctx).Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanProduct(rows)
}

func scanProduct(rows pgx.Rows) (*models.RawProduct, error) {
	var p models.RawProduct
	err := rows.Scan(
		&p.ID, &p.Name, &p.Slug, &p.Description, &p.Image,
		&p.AdditionalImages, &p.PriceMinor, &p.Currency, &p.URL,
		&p.DiscountType, &p.DiscountAmountMinor,
		&p.BrandName, &p.Stock,
		&p.Availability, &p.Condition, &p.GTIN,
		&p.MPN, &p.Categories,
		&p.GoogleProductCategory, &p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	return &p, nil
}

// ----------------------------- журнал фидов -----------------------------

// SaveFeedJob сохраняет запись об отправленном фиде
func (s *SyncStorage) SaveFeedJob(ctx context.Context, job *models.FeedJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO feed_jobs (id, feed_id, destination, feed_type, status, request_payload, response_payload, submitted_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.querier(ctx).Exec(ctx, query,
		job.ID, job.FeedID, string(job.Destination), job.FeedType, string(job.Status),
		job.RequestPayload, job.ResponsePayload, job.SubmittedAt, job.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save feed job: %w", err)
	}
	return nil
}

// UpdateFeedJobStatus обновляет статус обработки фида по результату опроса маркетплейса
func (s *SyncStorage) UpdateFeedJobStatus(ctx context.Context, feedID string, status models.FeedJobStatus, responsePayload string) error {
	query := `
		UPDATE feed_jobs
		SET status = $2,
		    response_payload = CASE WHEN $3 <> '' THEN $3 ELSE response_payload END,
		    processed_at = CASE WHEN $2 IN ('succeeded', 'failed') THEN NOW() ELSE processed_at END
		WHERE feed_id = $1`

	_, err := s.querier(ctx).Exec(ctx, query, feedID, string(status), responsePayload)
	if err != nil {
		return fmt.Errorf("failed to update feed job status: %w", err)
	}
	return nil
}

// LatestFeedJob возвращает последнюю запись журнала для направления.
// Возвращает nil, nil если записей еще нет
func (s *SyncStorage) LatestFeedJob(ctx context.Context, destination models.Destination) (*models.FeedJob, error) {
	query := `
		SELECT id, feed_id, destination, feed_type, status,
		       COALESCE(request_payload, ''), COALESCE(response_payload, ''),
		       submitted_at, processed_at
		FROM feed_jobs
		WHERE destination = $1
		ORDER BY submitted_at DESC
		LIMIT 1`

	rows, err := s.querier(ctx).Query(ctx, query, string(destination))
	if err != nil {
		return nil, fmt.Errorf("failed to get latest feed job: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanFeedJob(rows)
}

// ListFeedJobs возвращает страницу журнала фидов и общее число записей
func (s *SyncStorage) ListFeedJobs(ctx context.Context, destination models.Destination, limit, offset int) ([]*models.FeedJob, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM feed_jobs WHERE destination = $1`
	if err := s.querier(ctx).QueryRow(ctx, countQuery, string(destination)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count feed jobs: %w", err)
	}

	query := `
		SELECT id, feed_id, destination, feed_type, status,
		       COALESCE(request_payload, ''), COALESCE(response_payload, ''),
		       submitted_at, processed_at
		FROM feed_jobs
		WHERE destination = $1
		ORDER BY submitted_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.querier(ctx).Query(ctx, query, string(destination), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list feed jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.FeedJob
	for rows.Next() {
		job, err := scanFeedJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}

	return jobs, total, rows.Err()
}

// ListUnfinishedFeedJobs возвращает фиды, ожидающие результата обработки маркетплейсом
func (s *SyncStorage) ListUnfinishedFeedJobs(ctx context.Context, destination models.Destination) ([]*models.FeedJob, error) {
	query := `
		SELECT id, feed_id, destination, feed_type, status,
		       COALESCE(request_payload, ''), COALESCE(response_payload, ''),
		       submitted_at, processed_at
		FROM feed_jobs
		WHERE destination = $1 AND status IN ('submitted', 'processing')
		ORDER BY submitted_at`

	rows, err := s.querier(ctx).Query(ctx, query, string(destination))
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished feed jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.FeedJob
	for rows.Next() {
		job, err := scanFeedJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func scanFeedJob(rows pgx.Rows) (*models.FeedJob, error) {
	var job models.FeedJob
	var destination, status string
	err := rows.Scan(
		&job.ID, &job.FeedID, &destination, &job.FeedType, &status,
		&job.RequestPayload, &job.ResponsePayload,
		&job.SubmittedAt, &job.ProcessedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan feed job: %w", err)
	}
	job.Destination = models.Destination(destination)
	job.Status = models.FeedJobStatus(status)
	return &job, nil
}

// ----------------------------- токены eBay -----------------------------

// GetEbayToken возвращает сохраненный токен для окружения.
// Возвращает nil, nil если токен еще не сохранен
func (s *SyncStorage) GetEbayToken(ctx context.Context, environment string) (*models.EbayToken, error) {
	query := `
		SELECT environment, refresh_token, access_token, expires_at, COALESCE(scope, ''), updated_at
		FROM ebay_tokens
		WHERE environment = $1`

	rows, err := s.querier(ctx).Query(ctx, query, environment)
	if err != nil {
		return nil, fmt.Errorf("failed to get ebay token: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var token models.EbayToken
	if err := rows.Scan(&token.Environment, &token.RefreshToken, &token.AccessToken,
		&token.ExpiresAt, &token.Scope, &token.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan ebay token: %w", err)
	}
	return &token, nil
}

// UpsertEbayToken сохраняет обновленный токен, перезаписывая запись окружения
func (s *SyncStorage) UpsertEbayToken(ctx context.Context, token *models.EbayToken) error {
	query := `
		INSERT INTO ebay_tokens (environment, refresh_token, access_token, expires_at, scope, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (environment) DO UPDATE
		SET refresh_token = EXCLUDED.refresh_token,
		    access_token = EXCLUDED.access_token,
		    expires_at = EXCLUDED.expires_at,
		    scope = EXCLUDED.scope,
		    updated_at = NOW()`

	_, err := s.querier(ctx).Exec(ctx, query,
		token.Environment, token.RefreshToken, token.AccessToken, token.ExpiresAt, token.Scope)
	if err != nil {
		return fmt.Errorf("failed to upsert ebay token: %w", err)
	}
	return nil
}
