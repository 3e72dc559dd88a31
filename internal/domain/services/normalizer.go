package services

import (
	"fmt"
	"strings"

	"github.com/athebyme/catalog-sync/internal/domain/models"
	"github.com/athebyme/catalog-sync/internal/utils"
)

// NormalizerConfig задает значения по умолчанию для нормализации
type NormalizerConfig struct {
	DefaultCurrency string
	DefaultBrand    string
	StoreBaseURL    string
}

// Normalizer переводит запись каталога в каноническое представление
// товара. Чистая функция без внешних вызовов: одинаковый вход всегда
// дает одинаковый выход
type Normalizer struct {
	cfg NormalizerConfig
}

// NewNormalizer создает нормализатор
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	return &Normalizer{cfg: cfg}
}

// Normalize строит канонический товар из записи каталога.
// Ошибка возможна только при отсутствии идентификатора, все остальные
// дыры в данных закрываются значениями по умолчанию
func (n *Normalizer) Normalize(raw *models.RawProduct) (*models.CanonicalProduct, error) {
	if raw == nil || strings.TrimSpace(raw.ID) == "" {
		return nil, utils.ErrMissingIdentifier
	}

	title := strings.TrimSpace(raw.Name)
	description := strings.TrimSpace(raw.Description)
	if description == "" {
		description = title
	}

	currency := raw.Currency
	if currency == "" {
		currency = n.cfg.DefaultCurrency
	}

	brand := strings.TrimSpace(raw.BrandName)
	if brand == "" {
		brand = n.cfg.DefaultBrand
	}

	productURL := raw.URL
	if productURL == "" && raw.Slug != "" {
		productURL = strings.TrimRight(n.cfg.StoreBaseURL, "/") + "/products/" + raw.Slug
	}

	p := &models.CanonicalProduct{
		ID:                    strings.TrimSpace(raw.ID),
		Title:                 title,
		Description:           description,
		URL:                   productURL,
		ImageURL:              n.absoluteURL(raw.Image),
		PriceMinor:            raw.PriceMinor,
		CurrencyCode:          currency,
		Availability:          n.availability(raw),
		Condition:             condition(raw.Condition),
		Brand:                 brand,
		GTIN:                  raw.GTIN,
		MPN:                   raw.MPN,
		CategoryPath:          raw.Categories,
		GoogleProductCategory: raw.GoogleProductCategory,
		StockQuantity:         raw.Stock,
	}

	for _, img := range raw.AdditionalImages {
		if img == "" {
			continue
		}
		p.AdditionalImageURLs = append(p.AdditionalImageURLs, n.absoluteURL(img))
	}

	// Скидка превращается в цену со скидкой только когда результат
	// положителен и строго ниже исходной цены: нулевые и отрицательные
	// цены наружу не уходят
	if sale := salePrice(raw); sale > 0 && sale < raw.PriceMinor {
		p.SalePriceMinor = sale
		p.HasSalePrice = true
	}

	return p, nil
}

// salePrice считает цену со скидкой. Для процентной скидки значение
// поля трактуется как процент, для фиксированной как сумма в минорных
// единицах. Отсутствие типа означает фиксированную скидку
func salePrice(raw *models.RawProduct) int64 {
	if raw.DiscountAmountMinor <= 0 {
		return 0
	}
	if strings.EqualFold(strings.TrimSpace(raw.DiscountType), "percent") {
		if raw.DiscountAmountMinor >= 100 {
			return 0
		}
		return raw.PriceMinor - raw.PriceMinor*raw.DiscountAmountMinor/100
	}
	return raw.PriceMinor - raw.DiscountAmountMinor
}

// availability выводит доступность: нулевой остаток всегда означает
// "out of stock", что бы ни говорил флаг каталога
func (n *Normalizer) availability(raw *models.RawProduct) models.Availability {
	if raw.Stock <= 0 {
		return models.OutOfStock
	}
	switch strings.ToLower(strings.TrimSpace(raw.Availability)) {
	case "out of stock", "out_of_stock", "outofstock":
		return models.OutOfStock
	default:
		return models.InStock
	}
}

// condition переводит состояние товара, неизвестные значения считаются новыми
func condition(s string) models.Condition {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "used":
		return models.ConditionUsed
	case "refurbished":
		return models.ConditionRefurbished
	default:
		return models.ConditionNew
	}
}

// absoluteURL дополняет относительный путь изображения базовым URL магазина
func (n *Normalizer) absoluteURL(u string) string {
	if u == "" || strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	base := strings.TrimRight(n.cfg.StoreBaseURL, "/")
	if strings.HasPrefix(u, "/") {
		return base + u
	}
	return fmt.Sprintf("%s/%s", base, u)
}
