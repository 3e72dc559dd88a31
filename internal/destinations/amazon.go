package destinations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/athebyme/catalog-sync/internal/domain/models"
	"github.com/athebyme/catalog-sync/pkg/interfaces"
)

const (
	feedsAPIPath     = "/feeds/2021-06-30"
	listingsFeedType = "JSON_LISTINGS_FEED"
	feedContentType  = "application/json; charset=UTF-8"
)

// регионы SP-API
var spAPIEndpoints = map[string]string{
	"NA": "https://sellingpartnerapi-na.amazon.com",
	"EU": "https://sellingpartnerapi-eu.amazon.com",
	"FE": "https://sellingpartnerapi-fe.amazon.com",
}

// FeedRecorder сохраняет запись об отправленном фиде для последующего
// опроса статуса. Реализуется сервисом синхронизации поверх хранилища
type FeedRecorder interface {
	RecordFeedSubmission(ctx context.Context, job *models.FeedJob) error
}

// AmazonAdapter синхронизирует товары через SP-API Feeds.
// Направление асинхронное: отправка фида возвращает идентификатор,
// итог обработки узнается опросом CheckFeedStatus
type AmazonAdapter struct {
	endpoint       string
	marketplaceIDs []string
	skuPrefix      string

	cred     CredentialProvider
	recorder FeedRecorder
	http     *http.Client
	logger   interfaces.LoggerPort
}

// AmazonOption настраивает адаптер при создании
type AmazonOption func(*AmazonAdapter)

// WithAmazonEndpoint переопределяет базовый URL SP-API
func WithAmazonEndpoint(endpoint string) AmazonOption {
	return func(a *AmazonAdapter) {
		a.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithAmazonHTTPClient переопределяет HTTP клиент адаптера
func WithAmazonHTTPClient(client *http.Client) AmazonOption {
	return func(a *AmazonAdapter) {
		a.http = client
	}
}

// NewAmazonAdapter создает адаптер SP-API.
// region - NA, EU или FE; skuPrefix добавляется к идентификатору товара
func NewAmazonAdapter(region string, marketplaceIDs []string, skuPrefix string,
	cred CredentialProvider, recorder FeedRecorder, logger interfaces.LoggerPort,
	opts ...AmazonOption) *AmazonAdapter {
	endpoint, ok := spAPIEndpoints[strings.ToUpper(region)]
	if !ok {
		endpoint = spAPIEndpoints["NA"]
	}
	a := &AmazonAdapter{
		endpoint:       endpoint,
		marketplaceIDs: marketplaceIDs,
		skuPrefix:      skuPrefix,
		cred:           cred,
		recorder:       recorder,
		http:           &http.Client{Timeout: 120 * time.Second},
		logger:         logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name возвращает идентификатор направления
func (a *AmazonAdapter) Name() models.Destination {
	return models.DestinationAmazon
}

// SKU собирает SKU товара на Amazon: HANABALL-42.
// Один и тот же товар всегда получает один и тот же SKU
func (a *AmazonAdapter) SKU(productID string) string {
	return a.skuPrefix + productID
}

// listingsMessage - одно сообщение JSON_LISTINGS_FEED
type listingsMessage struct {
	MessageID     int            `json:"messageId"`
	SKU           string         `json:"sku"`
	OperationType string         `json:"operationType"`
	ProductType   string         `json:"productType,omitempty"`
	Requirements  string         `json:"requirements,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty"`
}

type listingsFeed struct {
	Header   listingsHeader    `json:"header"`
	Messages []listingsMessage `json:"messages"`
}

type listingsHeader struct {
	Version string `json:"version"`
}

// upsertMessage собирает сообщение UPDATE для товара
func (a *AmazonAdapter) upsertMessage(id int, p *models.CanonicalProduct) listingsMessage {
	description := p.Description
	if description == "" {
		description = p.Title
	}
	attributes := map[string]any{
		"item_name": []map[string]any{
			{"value": p.Title, "language_tag": "en_US"},
		},
		"brand": []map[string]any{
			{"value": p.Brand},
		},
		"product_description": []map[string]any{
			{"value": description, "language_tag": "en_US"},
		},
		"condition_type": []map[string]any{
			{"value": "new_new"},
		},
		"purchasable_offer": []map[string]any{
			{
				"currency": p.CurrencyCode,
				"our_price": []map[string]any{
					{"schedule": []map[string]any{
						{"value_with_tax": contentMoney(p.PriceMinor)},
					}},
				},
			},
		},
		"fulfillment_availability": []map[string]any{
			{"fulfillment_channel_code": "DEFAULT", "quantity": p.StockQuantity},
		},
	}
	if p.ImageURL != "" {
		attributes["main_product_image_locator"] = []map[string]any{
			{"media_location": p.ImageURL},
		}
	}
	return listingsMessage{
		MessageID:     id,
		SKU:           a.SKU(p.ID),
		OperationType: "UPDATE",
		ProductType:   "PRODUCT",
		Requirements:  "LISTING",
		Attributes:    attributes,
	}
}

// UpsertOne отправляет фид с одним товаром
func (a *AmazonAdapter) UpsertOne(ctx context.Context, product *models.CanonicalProduct) Result {
	return a.UpsertBatch(ctx, []*models.CanonicalProduct{product})[0]
}

// UpsertBatch отправляет пачку товаров одним фидом.
// Успешный Result означает лишь прием фида: итог обработки
// станет известен после опроса статуса
func (a *AmazonAdapter) UpsertBatch(ctx context.Context, products []*models.CanonicalProduct) []Result {
	messages := make([]listingsMessage, 0, len(products))
	for i, p := range products {
		messages = append(messages, a.upsertMessage(i+1, p))
	}

	res := a.submitFeed(ctx, messages)
	results := make([]Result, len(products))
	for i, p := range products {
		results[i] = res
		results[i].RemoteID = a.SKU(p.ID)
	}
	return results
}

// Delete убирает листинг фидом с операцией DELETE
func (a *AmazonAdapter) Delete(ctx context.Context, productID string) Result {
	res := a.submitFeed(ctx, []listingsMessage{{
		MessageID:     1,
		SKU:           a.SKU(productID),
		OperationType: "DELETE",
	}})
	res.RemoteID = a.SKU(productID)
	return res
}

// submitFeed выполняет трехшаговый протокол Feeds API:
// createFeedDocument, выгрузка содержимого по выданному URL, createFeed.
// Принятый фид записывается в журнал для опроса статуса
func (a *AmazonAdapter) submitFeed(ctx context.Context, messages []listingsMessage) Result {
	payload, err := json.Marshal(listingsFeed{
		Header:   listingsHeader{Version: "2.0"},
		Messages: messages,
	})
	if err != nil {
		return failure(0, fmt.Sprintf("сериализация фида: %v", err))
	}

	token, err := a.cred.Token(ctx)
	if err != nil {
		return failure(0, fmt.Sprintf("токен LWA: %v", err))
	}

	// 1. createFeedDocument
	docBody, _ := json.Marshal(map[string]string{"contentType": feedContentType})
	var doc struct {
		FeedDocumentID string `json:"feedDocumentId"`
		URL            string `json:"url"`
	}
	if res := a.doJSON(ctx, token, http.MethodPost, a.endpoint+feedsAPIPath+"/documents", docBody, &doc); !res.Success {
		return res
	}
	if doc.FeedDocumentID == "" || doc.URL == "" {
		return failure(0, "createFeedDocument вернул пустой документ")
	}

	// 2. выгрузка содержимого: подписанный URL, без токена
	upload, err := http.NewRequestWithContext(ctx, http.MethodPut, doc.URL, bytes.NewReader(payload))
	if err != nil {
		return failure(0, err.Error())
	}
	upload.Header.Set("Content-Type", feedContentType)
	uploadResp, err := a.http.Do(upload)
	if err != nil {
		return networkFailure(err)
	}
	io.Copy(io.Discard, uploadResp.Body)
	uploadResp.Body.Close()
	if uploadResp.StatusCode < 200 || uploadResp.StatusCode >= 300 {
		return failure(uploadResp.StatusCode, "выгрузка содержимого фида отклонена")
	}

	// 3. createFeed
	feedBody, _ := json.Marshal(map[string]any{
		"feedType":            listingsFeedType,
		"marketplaceIds":      a.marketplaceIDs,
		"inputFeedDocumentId": doc.FeedDocumentID,
	})
	var created struct {
		FeedID string `json:"feedId"`
	}
	if res := a.doJSON(ctx, token, http.MethodPost, a.endpoint+feedsAPIPath+"/feeds", feedBody, &created); !res.Success {
		return res
	}
	if created.FeedID == "" {
		return failure(0, "createFeed не вернул feedId")
	}

	job := &models.FeedJob{
		FeedID:         created.FeedID,
		Destination:    models.DestinationAmazon,
		FeedType:       listingsFeedType,
		Status:         models.FeedSubmitted,
		RequestPayload: string(payload),
		SubmittedAt:    time.Now(),
	}
	if err := a.recorder.RecordFeedSubmission(ctx, job); err != nil {
		// Фид уже принят Amazon, потеря записи означает лишь пропуск опроса
		a.logger.ErrorWithContext(ctx, "Не удалось записать отправку фида",
			interfaces.LogField{Key: "feed_id", Value: created.FeedID},
			interfaces.LogField{Key: "error", Value: err.Error()})
	}

	a.logger.InfoWithContext(ctx, "Фид принят SP-API",
		interfaces.LogField{Key: "feed_id", Value: created.FeedID},
		interfaces.LogField{Key: "messages", Value: len(messages)})

	return success(http.StatusAccepted, created.FeedID)
}

// CheckFeedStatus опрашивает статус обработки фида
func (a *AmazonAdapter) CheckFeedStatus(ctx context.Context, feedID string) (models.FeedJobStatus, string, error) {
	token, err := a.cred.Token(ctx)
	if err != nil {
		return "", "", fmt.Errorf("токен LWA: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+feedsAPIPath+"/feeds/"+feedID, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("x-amz-access-token", token)

	resp, err := a.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("опрос статуса фида: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("опрос статуса фида %s: статус %d: %s", feedID, resp.StatusCode, string(body))
	}

	var feed struct {
		ProcessingStatus string `json:"processingStatus"`
	}
	if err := json.Unmarshal(body, &feed); err != nil {
		return "", "", fmt.Errorf("разбор статуса фида: %w", err)
	}

	switch feed.ProcessingStatus {
	case "IN_QUEUE":
		return models.FeedSubmitted, string(body), nil
	case "IN_PROGRESS":
		return models.FeedProcessing, string(body), nil
	case "DONE":
		return models.FeedSucceeded, string(body), nil
	case "FATAL", "CANCELLED":
		return models.FeedFailed, string(body), nil
	default:
		return "", string(body), fmt.Errorf("неизвестный статус фида: %s", feed.ProcessingStatus)
	}
}

// doJSON выполняет JSON запрос SP-API с LWA токеном и разбирает ответ в out
func (a *AmazonAdapter) doJSON(ctx context.Context, token, method, endpoint string, body []byte, out any) Result {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return failure(0, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-amz-access-token", token)

	resp, err := a.http.Do(req)
	if err != nil {
		return networkFailure(err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		a.logger.ErrorWithContext(ctx, "Ошибка SP-API",
			interfaces.LogField{Key: "endpoint", Value: endpoint},
			interfaces.LogField{Key: "status", Value: resp.StatusCode},
			interfaces.LogField{Key: "response", Value: string(respBody)})
		return failure(resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return failure(resp.StatusCode, fmt.Sprintf("разбор ответа SP-API: %v", err))
		}
	}
	return success(resp.StatusCode, "")
}
