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

const inventoryAPIPath = "/sell/inventory/v1"

// базовые URL Sell API по окружениям
var ebayAPIEndpoints = map[string]string{
	"production": "https://api.ebay.com",
	"sandbox":    "https://api.sandbox.ebay.com",
}

// EbayAdapter синхронизирует товары через eBay Inventory API.
// Создание листинга трехшаговое: inventory item, offer, publish
type EbayAdapter struct {
	apiBase       string
	marketplaceID string
	skuPrefix     string

	cred   CredentialProvider
	http   *http.Client
	logger interfaces.LoggerPort
}

// EbayOption настраивает адаптер при создании
type EbayOption func(*EbayAdapter)

// WithEbayAPIBase переопределяет базовый URL Sell API
func WithEbayAPIBase(base string) EbayOption {
	return func(e *EbayAdapter) {
		e.apiBase = strings.TrimRight(base, "/")
	}
}

// WithEbayHTTPClient переопределяет HTTP клиент адаптера
func WithEbayHTTPClient(client *http.Client) EbayOption {
	return func(e *EbayAdapter) {
		e.http = client
	}
}

// NewEbayAdapter создает адаптер eBay.
// environment - sandbox или production
func NewEbayAdapter(environment, marketplaceID, skuPrefix string,
	cred CredentialProvider, logger interfaces.LoggerPort, opts ...EbayOption) *EbayAdapter {
	apiBase, ok := ebayAPIEndpoints[strings.ToLower(environment)]
	if !ok {
		apiBase = ebayAPIEndpoints["sandbox"]
	}
	if marketplaceID == "" {
		marketplaceID = "EBAY_US"
	}
	e := &EbayAdapter{
		apiBase:       apiBase,
		marketplaceID: marketplaceID,
		skuPrefix:     skuPrefix,
		cred:          cred,
		http:          &http.Client{Timeout: 60 * time.Second},
		logger:        logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name возвращает идентификатор направления
func (e *EbayAdapter) Name() models.Destination {
	return models.DestinationEbay
}

// SKU собирает SKU товара на eBay: hanaball-42
func (e *EbayAdapter) SKU(productID string) string {
	return e.skuPrefix + productID
}

// UpsertOne создает или обновляет листинг товара.
// PUT inventory_item идемпотентен по SKU; offer и publish выполняются
// каждый раз, повторное создание оффера на существующий SKU обновляет его
func (e *EbayAdapter) UpsertOne(ctx context.Context, product *models.CanonicalProduct) Result {
	sku := e.SKU(product.ID)

	description := product.Description
	if description == "" {
		description = product.Title
	}

	item := map[string]any{
		"product": map[string]any{
			"title":       product.Title,
			"description": description,
			"aspects":     map[string]any{},
			"brand":       product.Brand,
			"imageUrls":   imageURLs(product),
		},
		"availability": map[string]any{
			"shipToLocationAvailability": map[string]any{
				"quantity": product.StockQuantity,
			},
		},
		"condition": ebayCondition(product.Condition),
	}
	if product.MPN != "" {
		item["product"].(map[string]any)["mpn"] = product.MPN
	}
	if product.GTIN != "" {
		item["product"].(map[string]any)["gtin"] = product.GTIN
	}

	if res := e.do(ctx, http.MethodPut, inventoryAPIPath+"/inventory_item/"+sku, item, nil); !res.Success {
		res.RemoteID = sku
		return res
	}

	price := contentMoney(product.PriceMinor)
	if product.HasSalePrice {
		price = contentMoney(product.SalePriceMinor)
	}
	quantity := product.StockQuantity
	if quantity < 1 {
		quantity = 1
	}
	offer := map[string]any{
		"sku":                sku,
		"marketplaceId":      e.marketplaceID,
		"format":             "FIXED_PRICE",
		"availableQuantity":  quantity,
		"listingDescription": description,
		"pricingSummary": map[string]any{
			"price": map[string]any{
				"value":    price,
				"currency": product.CurrencyCode,
			},
		},
	}

	var offerResp struct {
		OfferID string `json:"offerId"`
	}
	if res := e.do(ctx, http.MethodPost, inventoryAPIPath+"/offer", offer, &offerResp); !res.Success {
		res.RemoteID = sku
		return res
	}

	if offerResp.OfferID != "" {
		if res := e.do(ctx, http.MethodPost,
			inventoryAPIPath+"/offer/"+offerResp.OfferID+"/publish", map[string]any{}, nil); !res.Success {
			res.RemoteID = sku
			return res
		}
	}

	e.logger.InfoWithContext(ctx, "Листинг eBay опубликован",
		interfaces.LogField{Key: "sku", Value: sku},
		interfaces.LogField{Key: "offer_id", Value: offerResp.OfferID})

	return success(http.StatusOK, sku)
}

// UpsertBatch обрабатывает товары по одному: Inventory API не имеет
// пакетного upsert с публикацией
func (e *EbayAdapter) UpsertBatch(ctx context.Context, products []*models.CanonicalProduct) []Result {
	results := make([]Result, len(products))
	for i, p := range products {
		results[i] = e.UpsertOne(ctx, p)
	}
	return results
}

// Delete физически убирает листинг: DELETE inventory_item снимает
// и связанные офферы. Листинги eBay не привязаны к кампаниям,
// поэтому скрытие через остаток не требуется
func (e *EbayAdapter) Delete(ctx context.Context, productID string) Result {
	sku := e.SKU(productID)
	res := e.do(ctx, http.MethodDelete, inventoryAPIPath+"/inventory_item/"+sku, nil, nil)
	// Листинга уже нет - цель достигнута
	if !res.Success && res.StatusCode == http.StatusNotFound {
		res = success(http.StatusNotFound, "")
	}
	res.RemoteID = sku
	return res
}

// do выполняет JSON запрос Inventory API и разбирает ответ в out
func (e *EbayAdapter) do(ctx context.Context, method, path string, payload any, out any) Result {
	token, err := e.cred.Token(ctx)
	if err != nil {
		return failure(0, fmt.Sprintf("токен eBay: %v", err))
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return failure(0, fmt.Sprintf("сериализация запроса: %v", err))
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.apiBase+path, body)
	if err != nil {
		return failure(0, err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Language", "en-US")

	resp, err := e.http.Do(req)
	if err != nil {
		return networkFailure(err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.logger.ErrorWithContext(ctx, "Ошибка Inventory API",
			interfaces.LogField{Key: "path", Value: path},
			interfaces.LogField{Key: "status", Value: resp.StatusCode},
			interfaces.LogField{Key: "response", Value: string(respBody)})
		return failure(resp.StatusCode, string(respBody))
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return failure(resp.StatusCode, fmt.Sprintf("разбор ответа eBay: %v", err))
		}
	}
	return success(resp.StatusCode, "")
}

// ebayCondition переводит состояние товара в перечисление eBay
func ebayCondition(c models.Condition) string {
	switch c {
	case models.ConditionUsed:
		return "USED_GOOD"
	case models.ConditionRefurbished:
		return "SELLER_REFURBISHED"
	default:
		return "NEW"
	}
}

// imageURLs собирает главное и дополнительные изображения
func imageURLs(p *models.CanonicalProduct) []string {
	urls := make([]string, 0, 1+len(p.AdditionalImageURLs))
	if p.ImageURL != "" {
		urls = append(urls, p.ImageURL)
	}
	return append(urls, p.AdditionalImageURLs...)
}
