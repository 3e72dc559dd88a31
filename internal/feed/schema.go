package feed

import (
	"github.com/athebyme/catalog-sync/internal/domain/models"
)

// значение, подставляемое вместо отсутствующего обязательного поля.
// Товар с дырой в данных остается в фиде видимым для ручной проверки,
// а не молча выпадает из него
const missingFieldSentinel = "MISSING"

// Column описывает одну колонку фида
type Column struct {
	// Header - имя колонки в заголовке CSV и имя элемента g: в XML
	Header string
	// Extract возвращает значение колонки для товара
	Extract func(p *models.CanonicalProduct) string
	// Required помечает колонку, пустое значение которой является
	// дефектом данных и подменяется на сигнальное значение
	Required bool
	// CDATA помечает колонки со свободным текстом для XML рендера
	CDATA bool
}

// Schema описывает формат фида одного направления: упорядоченный набор
// колонок. Порядок колонок фиксирован и не зависит от данных
type Schema struct {
	// Name попадает в заголовок XML канала
	Name string
	// StoreURL попадает в элемент link XML канала
	StoreURL string
	Columns  []Column
}

// GoogleSchema собирает схему фида Google Merchant.
// Facebook и Instagram читают тот же набор колонок, поэтому отдельной
// схемы для них нет. categoryMap переводит первую категорию каталога
// в узел таксономии маркетплейса для товаров без явной категории
func GoogleSchema(storeURL string, categoryMap map[string]string) Schema {
	return Schema{
		Name:     "Products",
		StoreURL: storeURL,
		Columns: []Column{
			{Header: "id", Required: true,
				Extract: func(p *models.CanonicalProduct) string { return p.ID }},
			{Header: "title", Required: true, CDATA: true,
				Extract: func(p *models.CanonicalProduct) string { return p.Title }},
			{Header: "description", CDATA: true,
				Extract: func(p *models.CanonicalProduct) string { return p.Description }},
			{Header: "link", Required: true,
				Extract: func(p *models.CanonicalProduct) string { return p.URL }},
			{Header: "image_link",
				Extract: func(p *models.CanonicalProduct) string { return p.ImageURL }},
			{Header: "availability", Required: true,
				Extract: func(p *models.CanonicalProduct) string { return string(p.Availability) }},
			{Header: "price", Required: true,
				Extract: func(p *models.CanonicalProduct) string { return p.PriceString() }},
			{Header: "condition",
				Extract: func(p *models.CanonicalProduct) string { return string(p.Condition) }},
			{Header: "brand",
				Extract: func(p *models.CanonicalProduct) string { return p.Brand }},
			// скидки нет - значение пустое, нули наружу не отдаются
			{Header: "sale_price",
				Extract: func(p *models.CanonicalProduct) string { return p.SalePriceString() }},
			{Header: "google_product_category",
				Extract: func(p *models.CanonicalProduct) string {
					if p.GoogleProductCategory != "" {
						return p.GoogleProductCategory
					}
					if len(p.CategoryPath) == 0 {
						return ""
					}
					return categoryMap[p.CategoryPath[0]]
				}},
		},
	}
}
