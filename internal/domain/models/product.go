package models

import (
	"fmt"
	"time"
)

// Destination идентифицирует направление синхронизации (маркетплейс)
type Destination string

const (
	DestinationFacebook  Destination = "facebook"
	DestinationInstagram Destination = "instagram"
	DestinationGoogle    Destination = "google"
	DestinationAmazon    Destination = "amazon"
	DestinationEbay      Destination = "ebay"
)

// Availability описывает доступность товара
type Availability string

const (
	InStock    Availability = "in stock"
	OutOfStock Availability = "out of stock"
)

// Condition описывает состояние товара
type Condition string

const (
	ConditionNew         Condition = "new"
	ConditionUsed        Condition = "used"
	ConditionRefurbished Condition = "refurbished"
)

// RawProduct представляет запись каталога в том виде, в котором она
// хранится и приходит в событиях изменения. Все поля, кроме ID, опциональны
type RawProduct struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	Slug                  string    `json:"slug"`
	Description           string    `json:"description"`
	Image                 string    `json:"image"`
	AdditionalImages      []string  `json:"additional_images,omitempty"`
	PriceMinor            int64     `json:"price_minor"` // цена в минорных единицах валюты
	Currency              string    `json:"currency"`
	URL                   string    `json:"url"`
	DiscountType          string    `json:"discount_type,omitempty"` // "fixed" или "percent"
	DiscountAmountMinor   int64     `json:"discount_amount_minor,omitempty"`
	BrandName             string    `json:"brand_name"`
	Stock                 int       `json:"stock"`
	Availability          string    `json:"availability"` // флаг из каталога, может расходиться с остатком
	Condition             string    `json:"condition"`
	GTIN                  string    `json:"gtin,omitempty"`
	MPN                   string    `json:"mpn,omitempty"`
	Categories            []string  `json:"categories,omitempty"`
	GoogleProductCategory string    `json:"google_product_category,omitempty"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// CanonicalProduct представляет нормализованное, независимое от направления
// представление товара. Создается нормализатором при каждом запуске
// синхронизации и не изменяется после создания
type CanonicalProduct struct {
	ID                  string       `json:"id"` // стабильный идентификатор каталога, ключ идемпотентности на всех направлениях
	Title               string       `json:"title"`
	Description         string       `json:"description"`
	URL                 string       `json:"url"`
	ImageURL            string       `json:"image_url"`
	AdditionalImageURLs []string     `json:"additional_image_urls,omitempty"`
	PriceMinor          int64        `json:"price_minor"`
	CurrencyCode        string       `json:"currency_code"` // валюта всегда путешествует вместе с ценой
	SalePriceMinor      int64        `json:"sale_price_minor,omitempty"`
	HasSalePrice        bool         `json:"has_sale_price"`
	Availability        Availability `json:"availability"`
	Condition           Condition    `json:"condition"`
	Brand               string       `json:"brand"`
	GTIN                string       `json:"gtin,omitempty"`
	MPN                 string       `json:"mpn,omitempty"`
	CategoryPath        []string     `json:"category_path,omitempty"` // первый элемент - основная категория
	GoogleProductCategory string     `json:"google_product_category,omitempty"`
	StockQuantity       int          `json:"stock_quantity"`
}

// PrimaryCategory возвращает основную категорию товара
func (p *CanonicalProduct) PrimaryCategory() string {
	if len(p.CategoryPath) == 0 {
		return ""
	}
	return p.CategoryPath[0]
}

// FormatMoney форматирует сумму в минорных единицах как "85.00 MAD".
// Ровно два знака после точки, валюта всегда указывается вместе с суммой
func FormatMoney(minor int64, currencyCode string) string {
	return fmt.Sprintf("%d.%02d %s", minor/100, minor%100, currencyCode)
}

// PriceString возвращает цену с валютой
func (p *CanonicalProduct) PriceString() string {
	return FormatMoney(p.PriceMinor, p.CurrencyCode)
}

// SalePriceString возвращает цену со скидкой с валютой.
// Пустая строка, если скидки нет: "0.00" никогда не отдается наружу
func (p *CanonicalProduct) SalePriceString() string {
	if !p.HasSalePrice {
		return ""
	}
	return FormatMoney(p.SalePriceMinor, p.CurrencyCode)
}
