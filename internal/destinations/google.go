package destinations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/athebyme/catalog-sync/internal/domain/models"
	"github.com/athebyme/catalog-sync/pkg/interfaces"
	"golang.org/x/oauth2/jwt"
)

const (
	defaultContentAPIBase = "https://shoppingcontent.googleapis.com/content/v2.1"
	contentAPIScope       = "https://www.googleapis.com/auth/content"
)

// GoogleAdapter синхронизирует товары с Google Merchant Center через
// Content API v2.1. Аутентификация - сервисный аккаунт (JWT grant)
type GoogleAdapter struct {
	merchantID      string
	contentLanguage string
	targetCountry   string
	apiBase         string

	http   *http.Client
	logger interfaces.LoggerPort
}

// GoogleOption настраивает адаптер при создании
type GoogleOption func(*GoogleAdapter)

// WithGoogleAPIBase переопределяет базовый URL Content API
func WithGoogleAPIBase(base string) GoogleOption {
	return func(g *GoogleAdapter) {
		g.apiBase = strings.TrimRight(base, "/")
	}
}

// WithGoogleHTTPClient переопределяет HTTP клиент адаптера (минуя OAuth)
func WithGoogleHTTPClient(client *http.Client) GoogleOption {
	return func(g *GoogleAdapter) {
		g.http = client
	}
}

// NewGoogleAdapter создает адаптер Merchant Center.
// serviceAccountFile - путь к JSON ключу сервисного аккаунта
func NewGoogleAdapter(merchantID, serviceAccountFile, contentLanguage, targetCountry string,
	logger interfaces.LoggerPort, opts ...GoogleOption) (*GoogleAdapter, error) {
	g := &GoogleAdapter{
		merchantID:      merchantID,
		contentLanguage: contentLanguage,
		targetCountry:   targetCountry,
		apiBase:         defaultContentAPIBase,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.http == nil {
		client, err := serviceAccountClient(serviceAccountFile)
		if err != nil {
			return nil, err
		}
		g.http = client
	}
	return g, nil
}

// serviceAccountClient собирает HTTP клиент с JWT grant сервисного аккаунта
func serviceAccountClient(keyFile string) (*http.Client, error) {
	raw, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("чтение ключа сервисного аккаунта: %w", err)
	}

	var key struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
		TokenURI    string `json:"token_uri"`
	}
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil, fmt.Errorf("разбор ключа сервисного аккаунта: %w", err)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, fmt.Errorf("ключ сервисного аккаунта неполный: нет client_email или private_key")
	}

	conf := &jwt.Config{
		Email:      key.ClientEmail,
		PrivateKey: []byte(key.PrivateKey),
		TokenURL:   key.TokenURI,
		Scopes:     []string{contentAPIScope},
	}
	if conf.TokenURL == "" {
		conf.TokenURL = "https://oauth2.googleapis.com/token"
	}
	return conf.Client(context.Background()), nil
}

// Name возвращает идентификатор направления
func (g *GoogleAdapter) Name() models.Destination {
	return models.DestinationGoogle
}

// productID собирает полный идентификатор Content API: online:fr:MA:42
func (g *GoogleAdapter) productID(id string) string {
	return fmt.Sprintf("online:%s:%s:%s", g.contentLanguage, g.targetCountry, id)
}

// contentProduct - тело товара Content API v2.1
type contentProduct struct {
	OfferID               string            `json:"offerId"`
	Title                 string            `json:"title"`
	Description           string            `json:"description,omitempty"`
	Link                  string            `json:"link"`
	ImageLink             string            `json:"imageLink,omitempty"`
	ContentLanguage       string            `json:"contentLanguage"`
	TargetCountry         string            `json:"targetCountry"`
	Channel               string            `json:"channel"`
	Availability          string            `json:"availability"`
	Condition             string            `json:"condition"`
	Brand                 string            `json:"brand,omitempty"`
	GTIN                  string            `json:"gtin,omitempty"`
	MPN                   string            `json:"mpn,omitempty"`
	GoogleProductCategory string            `json:"googleProductCategory,omitempty"`
	Price                 *contentPrice     `json:"price,omitempty"`
	SalePrice             *contentPrice     `json:"salePrice,omitempty"`
	AdditionalImageLinks  []string          `json:"additionalImageLinks,omitempty"`
	ProductTypes          []string          `json:"productTypes,omitempty"`
}

type contentPrice struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// contentMoney форматирует минорные единицы как "85.00" без кода валюты:
// Content API несет валюту отдельным полем
func contentMoney(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

// mapProduct переводит канонический товар в формат Content API
func (g *GoogleAdapter) mapProduct(p *models.CanonicalProduct) *contentProduct {
	cp := &contentProduct{
		OfferID:               p.ID,
		Title:                 p.Title,
		Description:           p.Description,
		Link:                  p.URL,
		ImageLink:             p.ImageURL,
		ContentLanguage:       g.contentLanguage,
		TargetCountry:         g.targetCountry,
		Channel:               "online",
		Availability:          string(p.Availability),
		Condition:             string(p.Condition),
		Brand:                 p.Brand,
		GTIN:                  p.GTIN,
		MPN:                   p.MPN,
		GoogleProductCategory: p.GoogleProductCategory,
		Price: &contentPrice{
			Value:    contentMoney(p.PriceMinor),
			Currency: p.CurrencyCode,
		},
		AdditionalImageLinks: p.AdditionalImageURLs,
	}
	if p.HasSalePrice {
		cp.SalePrice = &contentPrice{
			Value:    contentMoney(p.SalePriceMinor),
			Currency: p.CurrencyCode,
		}
	}
	if category := p.PrimaryCategory(); category != "" {
		cp.ProductTypes = []string{category}
	}
	return cp
}

// UpsertOne вставляет товар в Merchant Center.
// products.insert перезаписывает существующий товар с тем же productId,
// отдельный вызов update не нужен
func (g *GoogleAdapter) UpsertOne(ctx context.Context, product *models.CanonicalProduct) Result {
	body, err := json.Marshal(g.mapProduct(product))
	if err != nil {
		return failure(0, fmt.Sprintf("сериализация товара: %v", err))
	}

	endpoint := fmt.Sprintf("%s/%s/products", g.apiBase, g.merchantID)
	res := g.do(ctx, http.MethodPost, endpoint, body)
	res.RemoteID = g.productID(product.ID)
	return res
}

// UpsertBatch вставляет товары по одному: у Content API есть custombatch,
// но поштучные вызовы дают адресные ошибки на каждый товар
func (g *GoogleAdapter) UpsertBatch(ctx context.Context, products []*models.CanonicalProduct) []Result {
	results := make([]Result, len(products))
	for i, p := range products {
		results[i] = g.UpsertOne(ctx, p)
	}
	return results
}

// Delete скрывает товар переводом availability в "out of stock".
// Merchant Center наполняется и из регулярного фида: физически удаленный
// товар вернется со следующей загрузкой фида, а "out of stock" переживает ее
func (g *GoogleAdapter) Delete(ctx context.Context, productID string) Result {
	patch := struct {
		Availability string `json:"availability"`
	}{Availability: string(models.OutOfStock)}

	body, err := json.Marshal(patch)
	if err != nil {
		return failure(0, err.Error())
	}

	endpoint := fmt.Sprintf("%s/%s/products/%s?updateMask=availability",
		g.apiBase, g.merchantID, g.productID(productID))
	res := g.do(ctx, http.MethodPatch, endpoint, body)
	res.RemoteID = g.productID(productID)
	return res
}

// do выполняет JSON запрос к Content API
func (g *GoogleAdapter) do(ctx context.Context, method, endpoint string, body []byte) Result {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return failure(0, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return networkFailure(err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.logger.ErrorWithContext(ctx, "Ошибка Content API",
			interfaces.LogField{Key: "destination", Value: string(models.DestinationGoogle)},
			interfaces.LogField{Key: "status", Value: resp.StatusCode},
			interfaces.LogField{Key: "response", Value: string(respBody)})
		return failure(resp.StatusCode, string(respBody))
	}
	return success(resp.StatusCode, "")
}
