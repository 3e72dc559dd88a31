package destinations

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/athebyme/catalog-sync/internal/adapters/storage"
	"github.com/athebyme/catalog-sync/internal/domain/models"
	"github.com/athebyme/catalog-sync/pkg/interfaces"
	gocache "github.com/patrickmn/go-cache"
)

// CredentialProvider выдает действительный токен для запроса к маркетплейсу.
// Адаптер вызывает его лениво перед каждым запросом, провайдер сам
// прозрачно обновляет и сохраняет продленные учетные данные
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// staticCredential - долгоживущий токен приложения (Facebook)
type staticCredential struct {
	token string
}

// NewStaticCredential создает провайдер с неизменяемым токеном
func NewStaticCredential(token string) CredentialProvider {
	return &staticCredential{token: token}
}

func (s *staticCredential) Token(_ context.Context) (string, error) {
	if s.token == "" {
		return "", fmt.Errorf("access token is not configured")
	}
	return s.token, nil
}

// запас до истечения токена, чтобы не отправить запрос с токеном на грани срока
const tokenExpiryMargin = 60 * time.Second

// ----------------------------- eBay -----------------------------

// EbayCredentials реализует OAuth2 refresh-token поток eBay.
// Access token кэшируется в памяти и сохраняется в БД; конкурентные
// обновления сериализуются мьютексом (один писатель на направление)
type EbayCredentials struct {
	environment  string
	clientID     string
	clientSecret string
	// запасной refresh token из конфигурации, если в БД еще нет записи
	fallbackRefreshToken string
	identityBase         string

	storage storage.SyncStorageInterface
	http    *http.Client
	logger  interfaces.LoggerPort

	mu   sync.Mutex
	memo *gocache.Cache
}

const ebayTokenCacheKey = "ebay:access_token"

// NewEbayCredentials создает провайдер токенов eBay
func NewEbayCredentials(environment, clientID, clientSecret, fallbackRefreshToken, identityBase string,
	store storage.SyncStorageInterface, logger interfaces.LoggerPort) *EbayCredentials {
	return &EbayCredentials{
		environment:          environment,
		clientID:             clientID,
		clientSecret:         clientSecret,
		fallbackRefreshToken: fallbackRefreshToken,
		identityBase:         identityBase,
		storage:              store,
		http:                 &http.Client{Timeout: 30 * time.Second},
		logger:               logger,
		memo:                 gocache.New(gocache.NoExpiration, 5*time.Minute),
	}
}

// Token возвращает действительный access token, при необходимости обновляя его
func (e *EbayCredentials) Token(ctx context.Context) (string, error) {
	if cached, ok := e.memo.Get(ebayTokenCacheKey); ok {
		return cached.(string), nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Повторная проверка под мьютексом: другой запрос мог уже обновить токен
	if cached, ok := e.memo.Get(ebayTokenCacheKey); ok {
		return cached.(string), nil
	}

	// Сначала сохраненная запись
	stored, err := e.storage.GetEbayToken(ctx, e.environment)
	if err != nil {
		return "", fmt.Errorf("чтение сохраненного токена eBay: %w", err)
	}
	if stored != nil && stored.Valid() {
		e.memo.Set(ebayTokenCacheKey, stored.AccessToken, time.Until(stored.ExpiresAt)-tokenExpiryMargin)
		return stored.AccessToken, nil
	}

	refreshToken := e.fallbackRefreshToken
	if stored != nil && stored.RefreshToken != "" {
		refreshToken = stored.RefreshToken
	}
	if refreshToken == "" {
		return "", fmt.Errorf("refresh token eBay не найден: пройдите OAuth поток")
	}

	token, err := e.refresh(ctx, refreshToken)
	if err != nil {
		return "", err
	}

	if err := e.storage.UpsertEbayToken(ctx, token); err != nil {
		// Токен рабочий, потеря записи означает лишь лишнее обновление после рестарта
		e.logger.Warn("Не удалось сохранить обновленный токен eBay",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}

	e.memo.Set(ebayTokenCacheKey, token.AccessToken, time.Until(token.ExpiresAt)-tokenExpiryMargin)
	return token.AccessToken, nil
}

// refresh запрашивает новый access token по refresh token
func (e *EbayCredentials) refresh(ctx context.Context, refreshToken string) (*models.EbayToken, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.identityBase+"/identity/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(e.clientID + ":" + e.clientSecret))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос токена eBay: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("чтение ответа eBay: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ответ eBay %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Scope       string `json:"scope"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("разбор ответа eBay: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("eBay не вернул access token: %s", string(body))
	}

	ttl := payload.ExpiresIn
	if ttl <= 0 {
		ttl = 3500
	}

	return &models.EbayToken{
		Environment:  e.environment,
		RefreshToken: refreshToken,
		AccessToken:  payload.AccessToken,
		ExpiresAt:    time.Now().Add(time.Duration(ttl) * time.Second),
		Scope:        payload.Scope,
	}, nil
}

// ----------------------------- Amazon LWA -----------------------------

// LWACredentials реализует Login with Amazon refresh-token поток для SP-API
type LWACredentials struct {
	clientID     string
	clientSecret string
	refreshToken string
	tokenURL     string

	http   *http.Client
	logger interfaces.LoggerPort

	mu   sync.Mutex
	memo *gocache.Cache
}

const lwaTokenCacheKey = "amazon:access_token"

// NewLWACredentials создает провайдер токенов Login with Amazon
func NewLWACredentials(clientID, clientSecret, refreshToken, tokenURL string, logger interfaces.LoggerPort) *LWACredentials {
	if tokenURL == "" {
		tokenURL = "https://api.amazon.com/auth/o2/token"
	}
	return &LWACredentials{
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
		tokenURL:     tokenURL,
		http:         &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
		memo:         gocache.New(gocache.NoExpiration, 5*time.Minute),
	}
}

// Token возвращает действительный access token LWA
func (l *LWACredentials) Token(ctx context.Context) (string, error) {
	if cached, ok := l.memo.Get(lwaTokenCacheKey); ok {
		return cached.(string), nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if cached, ok := l.memo.Get(lwaTokenCacheKey); ok {
		return cached.(string), nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", l.refreshToken)
	form.Set("client_id", l.clientID)
	form.Set("client_secret", l.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := l.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("запрос токена LWA: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("чтение ответа LWA: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ответ LWA %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("разбор ответа LWA: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("LWA не вернул access token")
	}

	ttl := time.Duration(payload.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	l.memo.Set(lwaTokenCacheKey, payload.AccessToken, ttl-tokenExpiryMargin)

	return payload.AccessToken, nil
}
