package destinations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/athebyme/catalog-sync/internal/domain/models"
	"github.com/athebyme/catalog-sync/pkg/interfaces"
)

const defaultGraphBase = "https://graph.facebook.com"

// FacebookAdapter синхронизирует товары с каталогом Facebook через
// Graph API items_batch. Instagram использует тот же каталог и тот же
// адаптер с собственным идентификатором каталога
type FacebookAdapter struct {
	name       models.Destination
	catalogID  string
	apiVersion string
	graphBase  string

	cred   CredentialProvider
	http   *http.Client
	logger interfaces.LoggerPort
}

// FacebookOption настраивает адаптер при создании
type FacebookOption func(*FacebookAdapter)

// WithFacebookGraphBase переопределяет базовый URL Graph API
func WithFacebookGraphBase(base string) FacebookOption {
	return func(f *FacebookAdapter) {
		f.graphBase = strings.TrimRight(base, "/")
	}
}

// WithFacebookHTTPClient переопределяет HTTP клиент адаптера
func WithFacebookHTTPClient(client *http.Client) FacebookOption {
	return func(f *FacebookAdapter) {
		f.http = client
	}
}

// NewFacebookAdapter создает адаптер каталога Facebook
func NewFacebookAdapter(catalogID, apiVersion string, cred CredentialProvider,
	logger interfaces.LoggerPort, opts ...FacebookOption) *FacebookAdapter {
	if apiVersion == "" {
		apiVersion = "v16.0"
	}
	f := &FacebookAdapter{
		name:       models.DestinationFacebook,
		catalogID:  catalogID,
		apiVersion: apiVersion,
		graphBase:  defaultGraphBase,
		cred:       cred,
		http:       http.DefaultClient,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewInstagramAdapter создает адаптер каталога Instagram.
// Протокол идентичен Facebook: Instagram Shopping читает товары из
// каталога Facebook, отличается только каталог
func NewInstagramAdapter(catalogID, apiVersion string, cred CredentialProvider,
	logger interfaces.LoggerPort, opts ...FacebookOption) *FacebookAdapter {
	f := NewFacebookAdapter(catalogID, apiVersion, cred, logger, opts...)
	f.name = models.DestinationInstagram
	return f
}

// Name возвращает идентификатор направления
func (f *FacebookAdapter) Name() models.Destination {
	return f.name
}

// UpsertOne создает или обновляет один товар в каталоге
func (f *FacebookAdapter) UpsertOne(ctx context.Context, product *models.CanonicalProduct) Result {
	return f.UpsertBatch(ctx, []*models.CanonicalProduct{product})[0]
}

// UpsertBatch отправляет пачку товаров одним вызовом items_batch.
// retailer_id равен идентификатору товара: повторная отправка того же
// товара обновляет существующий листинг
func (f *FacebookAdapter) UpsertBatch(ctx context.Context, products []*models.CanonicalProduct) []Result {
	requests := make([]graphBatchRequest, 0, len(products))
	for _, p := range products {
		requests = append(requests, graphBatchRequest{
			Method:      http.MethodPost,
			RelativeURL: fmt.Sprintf("/%s/products", f.catalogID),
			Body:        f.buildPayload(p).Encode(),
		})
	}

	res := f.submitBatch(ctx, requests)
	results := make([]Result, len(products))
	for i, p := range products {
		results[i] = res
		results[i].RemoteID = p.ID
	}
	return results
}

// Delete скрывает товар из каталога переводом в "out of stock".
// Физическое удаление листинга ломает привязанные рекламные кампании,
// поэтому товар остается в каталоге невидимым для покупателей
func (f *FacebookAdapter) Delete(ctx context.Context, productID string) Result {
	body := url.Values{}
	body.Set("retailer_id", productID)
	body.Set("availability", string(models.OutOfStock))

	res := f.submitBatch(ctx, []graphBatchRequest{{
		Method:      http.MethodPost,
		RelativeURL: fmt.Sprintf("/%s/products", f.catalogID),
		Body:        body.Encode(),
	}})
	res.RemoteID = productID
	return res
}

// graphBatchRequest - один элемент массива requests items_batch
type graphBatchRequest struct {
	Method      string `json:"method"`
	RelativeURL string `json:"relative_url"`
	Body        string `json:"body"`
}

// submitBatch выполняет form-encoded POST на items_batch
func (f *FacebookAdapter) submitBatch(ctx context.Context, requests []graphBatchRequest) Result {
	token, err := f.cred.Token(ctx)
	if err != nil {
		return failure(0, fmt.Sprintf("токен %s: %v", f.name, err))
	}

	encoded, err := json.Marshal(requests)
	if err != nil {
		return failure(0, fmt.Sprintf("сериализация requests: %v", err))
	}

	form := url.Values{}
	form.Set("requests", string(encoded))
	form.Set("access_token", token)

	endpoint := fmt.Sprintf("%s/%s/%s/items_batch", f.graphBase, f.apiVersion, f.catalogID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return failure(0, err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.http.Do(req)
	if err != nil {
		return networkFailure(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.ErrorWithContext(ctx, "Ошибка items_batch",
			interfaces.LogField{Key: "destination", Value: string(f.name)},
			interfaces.LogField{Key: "status", Value: resp.StatusCode},
			interfaces.LogField{Key: "response", Value: string(body)})
		return failure(resp.StatusCode, string(body))
	}

	f.logger.InfoWithContext(ctx, "items_batch принят",
		interfaces.LogField{Key: "destination", Value: string(f.name)},
		interfaces.LogField{Key: "count", Value: len(requests)})
	return success(resp.StatusCode, "")
}

// buildPayload собирает поля товара для каталога Facebook.
// Необязательные поля с пустыми значениями не отправляются:
// Graph API отклоняет пустые gtin и mpn
func (f *FacebookAdapter) buildPayload(p *models.CanonicalProduct) url.Values {
	v := url.Values{}
	v.Set("retailer_id", p.ID)
	v.Set("name", p.Title)
	description := p.Description
	if description == "" {
		description = p.Title
	}
	v.Set("description", description)
	v.Set("url", p.URL)
	v.Set("image_url", p.ImageURL)
	v.Set("price", p.PriceString())
	v.Set("availability", string(p.Availability))
	v.Set("condition", string(p.Condition))
	v.Set("brand", p.Brand)

	if p.HasSalePrice {
		v.Set("sale_price", p.SalePriceString())
	}
	if p.GTIN != "" {
		v.Set("gtin", p.GTIN)
	}
	if p.MPN != "" {
		v.Set("mpn", p.MPN)
	}
	if len(p.AdditionalImageURLs) > 0 {
		v.Set("additional_image_url", strings.Join(p.AdditionalImageURLs, "|"))
	}
	if category := p.PrimaryCategory(); category != "" {
		v.Set("product_type", category)
	}
	return v
}
